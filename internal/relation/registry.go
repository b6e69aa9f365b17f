// Package relation manages the per-(user, chat) notification switch.
package relation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"keyword_bot/internal/model"
	"keyword_bot/internal/storage"
)

var (
	// ErrPermissionDenied is returned when the bot is not present in the chat,
	// so notifications for it cannot be controlled.
	ErrPermissionDenied = errors.New("permission denied: bot is not in the chat")
	// ErrChatNotFound is returned for unknown chats.
	ErrChatNotFound = errors.New("chat not found")
)

// Store is the subset of storage used by the registry.
type Store interface {
	GetChat(ctx context.Context, id int64) (*model.Chat, error)
	GetRelation(ctx context.Context, userID, chatID int64) (*model.Relation, error)
	SetRelationActive(ctx context.Context, userID, chatID int64, active bool) error
}

// Registry reads and writes relation flags.
type Registry struct {
	store Store
	log   *slog.Logger
}

// New creates a Registry.
func New(store Store, log *slog.Logger) *Registry {
	return &Registry{store: store, log: log}
}

// GetActive reports whether user should be notified about matches in chat.
// Users without a relation row are notified.
func (r *Registry) GetActive(ctx context.Context, userID, chatID int64) (bool, error) {
	rel, err := r.store.GetRelation(ctx, userID, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get relation: %w", err)
	}
	return rel.Active, nil
}

// SetActive switches notifications for user in chat. It fails with
// ErrPermissionDenied, leaving state untouched, when the bot has left the chat.
func (r *Registry) SetActive(ctx context.Context, userID, chatID int64, active bool) error {
	chat, err := r.store.GetChat(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("chat %d: %w", chatID, ErrChatNotFound)
	}
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if !chat.BotPresent {
		return ErrPermissionDenied
	}

	if err := r.store.SetRelationActive(ctx, userID, chatID, active); err != nil {
		return err
	}
	r.log.Info("relation switched", "user_id", userID, "chat_id", chatID, "active", active)
	return nil
}

// Toggle flips the current flag and returns the new value.
func (r *Registry) Toggle(ctx context.Context, userID, chatID int64) (bool, error) {
	active, err := r.GetActive(ctx, userID, chatID)
	if err != nil {
		return false, err
	}
	if err := r.SetActive(ctx, userID, chatID, !active); err != nil {
		return active, err
	}
	return !active, nil
}
