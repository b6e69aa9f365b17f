// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"keyword_bot/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a record violates a per-user uniqueness rule.
	ErrAlreadyExists = errors.New("already exists")
)

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	UpsertChat(ctx context.Context, c *model.Chat) error
	GetChat(ctx context.Context, id int64) (*model.Chat, error)
	GetChatByExternalID(ctx context.Context, externalID int64) (*model.Chat, error)
	SetChatBotPresent(ctx context.Context, id int64, present bool) error
	ListChats(ctx context.Context) ([]model.Chat, error)
	ListUserChats(ctx context.Context, userID int64) ([]model.Chat, error)

	GetRelation(ctx context.Context, userID, chatID int64) (*model.Relation, error)
	EnsureRelation(ctx context.Context, userID, chatID int64) error
	SetRelationActive(ctx context.Context, userID, chatID int64, active bool) error
	LeaveRelation(ctx context.Context, userID, chatID int64) error

	CreateKeyword(ctx context.Context, k *model.Keyword) error
	GetKeyword(ctx context.Context, id int64) (*model.Keyword, error)
	ListKeywords(ctx context.Context, userID int64) ([]model.Keyword, error)
	DeleteKeyword(ctx context.Context, id int64) error
	SetKeywordActive(ctx context.Context, id int64, active bool) error
	ListActivePinnedKeywords(ctx context.Context, chatID int64) ([]model.Keyword, error)
	PinKeyword(ctx context.Context, keywordID, chatID int64) error
	UnpinKeyword(ctx context.Context, keywordID, chatID int64) error
	ListPinnedChats(ctx context.Context, keywordID int64) ([]model.Chat, error)
	ListChatKeywords(ctx context.Context, chatID, userID int64) ([]model.Keyword, error)

	CreateNegativeKeyword(ctx context.Context, n *model.NegativeKeyword) error
	GetNegativeKeyword(ctx context.Context, id int64) (*model.NegativeKeyword, error)
	ListNegativeKeywords(ctx context.Context, userID int64) ([]model.NegativeKeyword, error)
	DeleteNegativeKeyword(ctx context.Context, id int64) error
	LinkNegative(ctx context.Context, negativeID, keywordID int64) error
	UnlinkNegative(ctx context.Context, negativeID, keywordID int64) error
	ListLinkedNegatives(ctx context.Context, keywordID int64) ([]model.NegativeKeyword, error)

	CreateGroup(ctx context.Context, g *model.KeywordsGroup) error
	GetGroup(ctx context.Context, id int64) (*model.KeywordsGroup, error)
	ListGroups(ctx context.Context, userID int64) ([]model.KeywordsGroup, error)
	SetGroupActive(ctx context.Context, id int64, active bool) error
	AddGroupMember(ctx context.Context, groupID, keywordID int64) error
	RemoveGroupMember(ctx context.Context, groupID, keywordID int64) error
	ListGroupMembers(ctx context.Context, groupID int64) ([]model.Keyword, error)

	Ping(ctx context.Context) error
	Close() error
}
