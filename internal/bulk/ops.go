// Package bulk applies mass keyword mutations as background units of work.
package bulk

import (
	"context"
	"fmt"

	"keyword_bot/internal/model"
)

// Store is the subset of storage the operations mutate.
type Store interface {
	ListKeywords(ctx context.Context, userID int64) ([]model.Keyword, error)
	SetKeywordActive(ctx context.Context, id int64, active bool) error
	PinKeyword(ctx context.Context, keywordID, chatID int64) error
	UnpinKeyword(ctx context.Context, keywordID, chatID int64) error
	ListChatKeywords(ctx context.Context, chatID, userID int64) ([]model.Keyword, error)

	ListNegativeKeywords(ctx context.Context, userID int64) ([]model.NegativeKeyword, error)
	LinkNegative(ctx context.Context, negativeID, keywordID int64) error
	UnlinkNegative(ctx context.Context, negativeID, keywordID int64) error
	ListLinkedNegatives(ctx context.Context, keywordID int64) ([]model.NegativeKeyword, error)

	SetGroupActive(ctx context.Context, id int64, active bool) error
	ListGroupMembers(ctx context.Context, groupID int64) ([]model.Keyword, error)
}

// Op is one bulk mutation. Each variant carries its own arguments and handler.
type Op interface {
	// Name identifies the operation in logs and metrics.
	Name() string
	// Apply performs the mutation. Writes are independent: a failure part way
	// leaves earlier writes in place.
	Apply(ctx context.Context, s Store) error
}

// PinAllToChat pins every keyword of the user to the chat.
type PinAllToChat struct {
	UserID int64
	ChatID int64
}

func (PinAllToChat) Name() string { return "pin_all_to_chat" }

func (o PinAllToChat) Apply(ctx context.Context, s Store) error {
	keywords, err := s.ListKeywords(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("list keywords: %w", err)
	}
	for _, k := range keywords {
		if err := s.PinKeyword(ctx, k.ID, o.ChatID); err != nil {
			return fmt.Errorf("pin keyword %d: %w", k.ID, err)
		}
	}
	return nil
}

// UnpinAllFromChat removes every pin the user has in the chat.
type UnpinAllFromChat struct {
	UserID int64
	ChatID int64
}

func (UnpinAllFromChat) Name() string { return "unpin_all_from_chat" }

func (o UnpinAllFromChat) Apply(ctx context.Context, s Store) error {
	keywords, err := s.ListChatKeywords(ctx, o.ChatID, o.UserID)
	if err != nil {
		return fmt.Errorf("list chat keywords: %w", err)
	}
	for _, k := range keywords {
		if err := s.UnpinKeyword(ctx, k.ID, o.ChatID); err != nil {
			return fmt.Errorf("unpin keyword %d: %w", k.ID, err)
		}
	}
	return nil
}

// LinkAllNegativeToAll links every negative keyword of the user to every keyword of the user.
type LinkAllNegativeToAll struct {
	UserID int64
}

func (LinkAllNegativeToAll) Name() string { return "link_all_negative_to_all" }

func (o LinkAllNegativeToAll) Apply(ctx context.Context, s Store) error {
	keywords, err := s.ListKeywords(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("list keywords: %w", err)
	}
	negatives, err := s.ListNegativeKeywords(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("list negatives: %w", err)
	}
	for _, k := range keywords {
		for _, n := range negatives {
			if err := s.LinkNegative(ctx, n.ID, k.ID); err != nil {
				return fmt.Errorf("link negative %d to %d: %w", n.ID, k.ID, err)
			}
		}
	}
	return nil
}

// LinkAllNegativeToKeyword links every negative keyword of the user to one keyword.
type LinkAllNegativeToKeyword struct {
	UserID    int64
	KeywordID int64
}

func (LinkAllNegativeToKeyword) Name() string { return "link_all_negative_to_keyword" }

func (o LinkAllNegativeToKeyword) Apply(ctx context.Context, s Store) error {
	negatives, err := s.ListNegativeKeywords(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("list negatives: %w", err)
	}
	for _, n := range negatives {
		if err := s.LinkNegative(ctx, n.ID, o.KeywordID); err != nil {
			return fmt.Errorf("link negative %d: %w", n.ID, err)
		}
	}
	return nil
}

// LinkNegativeToAll links one negative keyword to every keyword of the user.
type LinkNegativeToAll struct {
	UserID     int64
	NegativeID int64
}

func (LinkNegativeToAll) Name() string { return "link_negative_to_all" }

func (o LinkNegativeToAll) Apply(ctx context.Context, s Store) error {
	keywords, err := s.ListKeywords(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("list keywords: %w", err)
	}
	for _, k := range keywords {
		if err := s.LinkNegative(ctx, o.NegativeID, k.ID); err != nil {
			return fmt.Errorf("link to keyword %d: %w", k.ID, err)
		}
	}
	return nil
}

// UnlinkAllNegativeFromKeyword removes every negative link of one keyword.
type UnlinkAllNegativeFromKeyword struct {
	KeywordID int64
}

func (UnlinkAllNegativeFromKeyword) Name() string { return "unlink_all_negative_from_keyword" }

func (o UnlinkAllNegativeFromKeyword) Apply(ctx context.Context, s Store) error {
	negatives, err := s.ListLinkedNegatives(ctx, o.KeywordID)
	if err != nil {
		return fmt.Errorf("list linked negatives: %w", err)
	}
	for _, n := range negatives {
		if err := s.UnlinkNegative(ctx, n.ID, o.KeywordID); err != nil {
			return fmt.Errorf("unlink negative %d: %w", n.ID, err)
		}
	}
	return nil
}

// SwitchGroup sets the active flag on every member keyword of a group.
// Concurrent edits of a single member are not coordinated; the last write wins.
type SwitchGroup struct {
	GroupID int64
	Active  bool
}

func (SwitchGroup) Name() string { return "switch_group" }

func (o SwitchGroup) Apply(ctx context.Context, s Store) error {
	members, err := s.ListGroupMembers(ctx, o.GroupID)
	if err != nil {
		return fmt.Errorf("list group members: %w", err)
	}
	for _, k := range members {
		if err := s.SetKeywordActive(ctx, k.ID, o.Active); err != nil {
			return fmt.Errorf("set keyword %d active: %w", k.ID, err)
		}
	}
	return nil
}
