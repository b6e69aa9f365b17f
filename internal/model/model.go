// Package model defines the domain types used across the application.
package model

import "time"

// User is a bot subscriber. ID is the Telegram user ID, which is also the
// private chat the bot forwards matches to.
type User struct {
	ID        int64
	Name      string
	Username  string
	CreatedAt time.Time
}

// ChatType mirrors the Telegram chat kinds the bot cares about.
type ChatType string

// Supported chat types.
const (
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
)

// Chat is a monitored group chat.
type Chat struct {
	ID         int64
	ExternalID int64
	Type       ChatType
	Title      string
	BotPresent bool
	CreatedAt  time.Time
}

// Relation gates notifications for one user in one chat. Member is false
// once the user has left the chat.
type Relation struct {
	UserID int64
	ChatID int64
	Active bool
	Member bool
}

// Keyword is a user-owned pattern matched against chat messages.
type Keyword struct {
	ID        int64
	UserID    int64
	Text      string
	Active    bool
	CreatedAt time.Time
}

// NegativeKeyword suppresses matches of the keywords it is linked to.
type NegativeKeyword struct {
	ID        int64
	UserID    int64
	Text      string
	CreatedAt time.Time
}

// KeywordsGroup bundles keywords of one user for bulk activation.
type KeywordsGroup struct {
	ID        int64
	UserID    int64
	Name      string
	Active    bool
	CreatedAt time.Time
}

// InboundMessage is a group chat message queued for matching.
type InboundMessage struct {
	ChatID    int64 // external chat ID
	MessageID int
	Text      string
	SourceID  string
	SentAt    time.Time
}

// Notification asks the delivery layer to forward one message to one user.
type Notification struct {
	TargetUserID int64
	SourceChatID int64
	MessageID    int
}
