// Package matcher resolves which subscribers should hear about a chat message.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"keyword_bot/internal/model"
	"keyword_bot/internal/storage"
)

// ErrChatNotFound is returned when a message references a chat that was never provisioned.
var ErrChatNotFound = errors.New("chat not found")

// Store is the subset of storage used by the matcher.
type Store interface {
	GetChatByExternalID(ctx context.Context, externalID int64) (*model.Chat, error)
	ListActivePinnedKeywords(ctx context.Context, chatID int64) ([]model.Keyword, error)
	ListLinkedNegatives(ctx context.Context, keywordID int64) ([]model.NegativeKeyword, error)
}

// Relations reports the per-(user, chat) mute flag.
type Relations interface {
	GetActive(ctx context.Context, userID, chatID int64) (bool, error)
}

// Matcher evaluates messages against pinned keywords.
type Matcher struct {
	store     Store
	relations Relations
	log       *slog.Logger
}

// New creates a Matcher.
func New(store Store, relations Relations, log *slog.Logger) *Matcher {
	return &Matcher{store: store, relations: relations, log: log}
}

// Match returns the distinct owners, in ascending order, of active keywords
// pinned to the chat that occur in text. A keyword is dropped when one of its
// linked negative keywords occurs in text, or when its owner muted the chat.
func (m *Matcher) Match(ctx context.Context, chatExternalID int64, text string) ([]int64, error) {
	if text == "" {
		return nil, nil
	}

	chat, err := m.store.GetChatByExternalID(ctx, chatExternalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("chat %d: %w", chatExternalID, ErrChatNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}

	keywords, err := m.store.ListActivePinnedKeywords(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("list pinned keywords: %w", err)
	}

	lower := strings.ToLower(text)
	owners := make(map[int64]struct{})
	// Relation lookups are per owner, not per keyword.
	muted := make(map[int64]bool)

	for _, k := range keywords {
		if _, done := owners[k.UserID]; done {
			continue
		}
		if k.Text == "" || !strings.Contains(lower, strings.ToLower(k.Text)) {
			continue
		}

		negated, err := m.negated(ctx, k, text)
		if err != nil {
			return nil, err
		}
		if negated {
			m.log.Debug("keyword negated", "keyword_id", k.ID, "chat_id", chat.ID)
			continue
		}

		isMuted, seen := muted[k.UserID]
		if !seen {
			active, err := m.relations.GetActive(ctx, k.UserID, chat.ID)
			if err != nil {
				return nil, fmt.Errorf("relation %d/%d: %w", k.UserID, chat.ID, err)
			}
			isMuted = !active
			muted[k.UserID] = isMuted
		}
		if isMuted {
			continue
		}

		owners[k.UserID] = struct{}{}
	}

	result := make([]int64, 0, len(owners))
	for id := range owners {
		result = append(result, id)
	}
	slices.Sort(result)
	return result, nil
}

func (m *Matcher) negated(ctx context.Context, k model.Keyword, text string) (bool, error) {
	negatives, err := m.store.ListLinkedNegatives(ctx, k.ID)
	if err != nil {
		return false, fmt.Errorf("list negatives for keyword %d: %w", k.ID, err)
	}
	for _, n := range negatives {
		if n.Text != "" && strings.Contains(text, n.Text) {
			return true, nil
		}
	}
	return false, nil
}
