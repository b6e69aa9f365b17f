package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/relation"
)

const (
	cmdChats = "chats"
	cbMute   = "mute"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	parts := strings.SplitN(cb.Data, ":", 2)
	if len(parts) != 2 || cb.Message == nil {
		b.answer(cb.ID, "")
		return
	}

	action := parts[0]
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		b.answer(cb.ID, "")
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cbMute:
		b.handleMuteToggle(ctx, cb, id)
	default:
		b.answer(cb.ID, "")
	}
}

func (b *Bot) handleMuteToggle(ctx context.Context, cb *tgbotapi.CallbackQuery, chatID int64) {
	userID := cb.From.ID

	chats, err := b.store.ListUserChats(ctx, userID)
	if err != nil {
		b.log.Error("list user chats", "user_id", userID, "error", err)
		b.answer(cb.ID, "Something went wrong.")
		return
	}
	found := false
	for _, c := range chats {
		if c.ID == chatID {
			found = true
			break
		}
	}
	if !found {
		b.answer(cb.ID, "Chat not found.")
		return
	}

	active, err := b.registry.Toggle(ctx, userID, chatID)
	switch {
	case errors.Is(err, relation.ErrPermissionDenied):
		b.answer(cb.ID, "The bot is no longer in this chat.")
		return
	case err != nil:
		b.log.Error("toggle relation", "user_id", userID, "chat_id", chatID, "error", err)
		b.answer(cb.ID, "Something went wrong.")
		return
	}

	if active {
		b.answer(cb.ID, "Notifications on.")
	} else {
		b.answer(cb.ID, "Notifications muted.")
	}

	states, err := b.chatStates(ctx, userID, chats)
	if err != nil {
		b.log.Error("chat states", "user_id", userID, "error", err)
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID, chatsKeyboard(chats, states))
	if _, err := b.api.Request(edit); err != nil {
		b.log.Error("update chats keyboard", "error", err)
	}
}
