// Package pipeline turns one inbound group message into subscriber notifications.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"keyword_bot/internal/matcher"
	"keyword_bot/internal/metrics"
	"keyword_bot/internal/model"
	"keyword_bot/internal/worker"
)

// Matcher resolves the subscribers interested in a message.
type Matcher interface {
	Match(ctx context.Context, chatExternalID int64, text string) ([]int64, error)
}

// Deduper reports repeats of the same (source, text) pair.
type Deduper interface {
	IsDuplicate(source, text string, now time.Time) bool
}

// Notifier delivers one notification.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Processor runs matching, duplicate suppression and delivery for a message.
type Processor struct {
	matcher  Matcher
	dedup    Deduper
	notifier Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Processor.
func New(m Matcher, d Deduper, n Notifier, mt *metrics.Metrics, log *slog.Logger) *Processor {
	return &Processor{
		matcher:  m,
		dedup:    d,
		notifier: n,
		metrics:  mt,
		log:      log,
		now:      time.Now,
	}
}

// Task wraps Handle for the worker pool.
func (p *Processor) Task(msg model.InboundMessage) worker.Func {
	return func(ctx context.Context) error {
		return p.Handle(ctx, msg)
	}
}

// Handle processes one message. Messages from unknown chats fail permanently.
// Delivery errors are logged per user and do not fail the message, so a
// retry never re-sends to users that were already notified.
func (p *Processor) Handle(ctx context.Context, msg model.InboundMessage) error {
	log := p.log.With("chat_id", msg.ChatID, "message_id", msg.MessageID)

	users, err := p.matcher.Match(ctx, msg.ChatID, msg.Text)
	if errors.Is(err, matcher.ErrChatNotFound) {
		p.metrics.ChatNotFound.Inc()
		log.Warn("message from unknown chat dropped", "error", err)
		return worker.Permanent(err)
	}
	if err != nil {
		return fmt.Errorf("match message: %w", err)
	}
	if len(users) == 0 {
		log.Debug("no subscribers matched")
		return nil
	}
	p.metrics.MessagesMatched.Inc()

	if p.dedup.IsDuplicate(msg.SourceID, msg.Text, p.seenAt(msg)) {
		p.metrics.DuplicatesSuppressed.Inc()
		log.Info("duplicate message suppressed", "source", msg.SourceID)
		return nil
	}

	log.Info("message matched", "users", len(users))
	for _, userID := range users {
		n := model.Notification{TargetUserID: userID, SourceChatID: msg.ChatID, MessageID: msg.MessageID}
		if err := p.notifier.Notify(ctx, n); err != nil {
			p.metrics.NotificationsFailed.Inc()
			log.Error("notification failed", "user_id", userID, "error", err)
			continue
		}
		p.metrics.NotificationsSent.Inc()
	}
	return nil
}

// seenAt is the message's send time, or the processing time when the
// message carries none.
func (p *Processor) seenAt(msg model.InboundMessage) time.Time {
	if msg.SentAt.IsZero() {
		return p.now()
	}
	return msg.SentAt
}
