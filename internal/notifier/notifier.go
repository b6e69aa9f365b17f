// Package notifier delivers match notifications to subscribers.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"keyword_bot/internal/model"
)

// Sender is the part of the Telegram client used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram forwards the matched chat message into the subscriber's private chat.
type Telegram struct {
	api     Sender
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewTelegram creates a forwarding notifier limited to perSecond sends.
func NewTelegram(api Sender, perSecond int, log *slog.Logger) *Telegram {
	if perSecond < 1 {
		perSecond = 1
	}
	return &Telegram{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		log:     log,
	}
}

// Notify forwards one message to one user. It waits for a send slot and
// returns ctx.Err() if ctx ends first.
func (t *Telegram) Notify(ctx context.Context, n model.Notification) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait send slot: %w", err)
	}

	fwd := tgbotapi.NewForward(n.TargetUserID, n.SourceChatID, n.MessageID)
	if _, err := t.api.Send(fwd); err != nil {
		return fmt.Errorf("forward message %d from %d to %d: %w",
			n.MessageID, n.SourceChatID, n.TargetUserID, err)
	}
	t.log.Debug("notification sent",
		"user_id", n.TargetUserID, "chat_id", n.SourceChatID, "message_id", n.MessageID)
	return nil
}
