package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/model"
	"keyword_bot/internal/storage"
)

// handleMembership applies chat membership service messages. It reports
// whether msg was one.
func (b *Bot) handleMembership(ctx context.Context, msg *tgbotapi.Message) bool {
	switch {
	case msg.GroupChatCreated || msg.SuperGroupChatCreated:
		b.provisionChat(ctx, msg.Chat)
		return true
	case len(msg.NewChatMembers) > 0:
		for _, u := range msg.NewChatMembers {
			if u.ID == b.selfID {
				b.provisionChat(ctx, msg.Chat)
				continue
			}
			b.relateMember(ctx, msg.Chat.ID, u.ID)
		}
		return true
	case msg.LeftChatMember != nil:
		b.memberLeft(ctx, msg.Chat.ID, msg.LeftChatMember.ID)
		return true
	}
	return false
}

// provisionChat records the chat with the bot present and relates every
// registered user who is currently a member.
func (b *Bot) provisionChat(ctx context.Context, tc *tgbotapi.Chat) {
	chat := &model.Chat{
		ExternalID: tc.ID,
		Type:       model.ChatType(tc.Type),
		Title:      tc.Title,
		BotPresent: true,
	}
	if err := b.store.UpsertChat(ctx, chat); err != nil {
		b.log.Error("provision chat", "chat_id", tc.ID, "error", err)
		return
	}

	users, err := b.store.ListUsers(ctx)
	if err != nil {
		b.log.Error("list users", "error", err)
		return
	}
	related := 0
	for _, u := range users {
		if !b.isMember(tc.ID, u.ID) {
			continue
		}
		if err := b.store.EnsureRelation(ctx, u.ID, chat.ID); err != nil {
			b.log.Error("relate user", "chat_id", tc.ID, "user_id", u.ID, "error", err)
			continue
		}
		related++
	}
	b.log.Info("chat provisioned", "chat_id", tc.ID, "title", tc.Title, "related_users", related)
}

func (b *Bot) isMember(chatID, userID int64) bool {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		b.log.Debug("get chat member", "chat_id", chatID, "user_id", userID, "error", err)
		return false
	}
	return !member.HasLeft() && !member.WasKicked()
}

func (b *Bot) relateMember(ctx context.Context, externalChatID, userID int64) {
	chat, user, ok := b.lookupMember(ctx, externalChatID, userID)
	if !ok {
		return
	}
	if err := b.store.EnsureRelation(ctx, user.ID, chat.ID); err != nil {
		b.log.Error("relate user", "chat_id", externalChatID, "user_id", userID, "error", err)
		return
	}
	b.log.Info("user joined chat", "chat_id", externalChatID, "user_id", userID)
}

func (b *Bot) memberLeft(ctx context.Context, externalChatID, userID int64) {
	if userID == b.selfID {
		chat, err := b.store.GetChatByExternalID(ctx, externalChatID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				b.log.Error("get chat", "chat_id", externalChatID, "error", err)
			}
			return
		}
		if err := b.store.SetChatBotPresent(ctx, chat.ID, false); err != nil {
			b.log.Error("mark bot absent", "chat_id", externalChatID, "error", err)
			return
		}
		b.log.Info("bot removed from chat", "chat_id", externalChatID)
		return
	}

	chat, user, ok := b.lookupMember(ctx, externalChatID, userID)
	if !ok {
		return
	}
	if err := b.store.LeaveRelation(ctx, user.ID, chat.ID); err != nil {
		b.log.Error("leave relation", "chat_id", externalChatID, "user_id", userID, "error", err)
		return
	}
	b.log.Info("user left chat", "chat_id", externalChatID, "user_id", userID)
}

// lookupMember resolves a provisioned chat and a registered user. Unknown
// ones are skipped silently.
func (b *Bot) lookupMember(ctx context.Context, externalChatID, userID int64) (*model.Chat, *model.User, bool) {
	user, err := b.store.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.log.Error("get user", "user_id", userID, "error", err)
		}
		return nil, nil, false
	}
	chat, err := b.store.GetChatByExternalID(ctx, externalChatID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.log.Error("get chat", "chat_id", externalChatID, "error", err)
		}
		return nil, nil, false
	}
	return chat, user, true
}
