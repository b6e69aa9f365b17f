package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"keyword_bot/internal/dedup"
	"keyword_bot/internal/matcher"
	"keyword_bot/internal/metrics"
	"keyword_bot/internal/model"
	"keyword_bot/internal/relation"
	"keyword_bot/internal/storage"
	"keyword_bot/internal/worker"
)

const chatID = -100500

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []model.Notification
	fails map[int64]error
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fails[n.TargetUserID]; err != nil {
		return err
	}
	r.sent = append(r.sent, n)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProcessor(t *testing.T, subscribers ...int64) (*Processor, *recordingNotifier, *clock) {
	t.Helper()
	ctx := context.Background()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	c := &model.Chat{ExternalID: chatID, Type: model.ChatSupergroup, Title: "deals", BotPresent: true}
	if err := s.UpsertChat(ctx, c); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	for _, userID := range subscribers {
		k := &model.Keyword{UserID: userID, Text: "sale", Active: true}
		if err := s.CreateKeyword(ctx, k); err != nil {
			t.Fatalf("create keyword: %v", err)
		}
		if err := s.PinKeyword(ctx, k.ID, c.ID); err != nil {
			t.Fatalf("pin: %v", err)
		}
	}

	log := testLogger()
	m := matcher.New(s, relation.New(s, log), log)
	d := dedup.New(dedup.NewMemoryStore(dedup.DefaultWindow), dedup.DefaultWindow, log)
	n := &recordingNotifier{}
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	p := New(m, d, n, metrics.New(), log)
	p.now = clk.now
	return p, n, clk
}

func message(id int, source, text string) model.InboundMessage {
	return model.InboundMessage{ChatID: chatID, MessageID: id, Text: text, SourceID: source}
}

func TestHandleNotifiesEachUserOnce(t *testing.T) {
	p, n, _ := newProcessor(t, 3, 1)

	if err := p.Handle(context.Background(), message(10, "u1", "Big SALE")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	want := []model.Notification{
		{TargetUserID: 1, SourceChatID: chatID, MessageID: 10},
		{TargetUserID: 3, SourceChatID: chatID, MessageID: 10},
	}
	if diff := cmp.Diff(want, n.sent); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleRedelivery(t *testing.T) {
	tests := []struct {
		name      string
		gap       time.Duration
		secondID  int
		source    string
		wantCalls int
	}{
		{name: "same message redelivered", gap: time.Second, secondID: 10, source: "u1", wantCalls: 2},
		{name: "same text new id inside window", gap: 5 * time.Second, secondID: 11, source: "u1", wantCalls: 2},
		{name: "other source", gap: time.Second, secondID: 11, source: "u2", wantCalls: 4},
		{name: "after window", gap: 31 * time.Second, secondID: 10, source: "u1", wantCalls: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, n, clk := newProcessor(t, 1, 2)
			ctx := context.Background()

			if err := p.Handle(ctx, message(10, "u1", "sale")); err != nil {
				t.Fatalf("first handle: %v", err)
			}
			clk.advance(tt.gap)
			if err := p.Handle(ctx, message(tt.secondID, tt.source, "sale")); err != nil {
				t.Fatalf("second handle: %v", err)
			}

			if len(n.sent) != tt.wantCalls {
				t.Errorf("dispatch calls = %d, want %d", len(n.sent), tt.wantCalls)
			}
		})
	}
}

func TestHandleDedupUsesSendTime(t *testing.T) {
	sent := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		sentGap    time.Duration
		processGap time.Duration
		wantCalls  int
	}{
		{name: "backlog keeps repeats together", sentGap: 5 * time.Second, processGap: time.Minute, wantCalls: 1},
		{name: "sent a window apart, processed together", sentGap: 31 * time.Second, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, n, clk := newProcessor(t, 1)
			ctx := context.Background()

			first := message(10, "u1", "sale")
			first.SentAt = sent
			if err := p.Handle(ctx, first); err != nil {
				t.Fatalf("first handle: %v", err)
			}

			clk.advance(tt.processGap)
			second := message(11, "u1", "sale")
			second.SentAt = sent.Add(tt.sentGap)
			if err := p.Handle(ctx, second); err != nil {
				t.Fatalf("second handle: %v", err)
			}

			if len(n.sent) != tt.wantCalls {
				t.Errorf("dispatch calls = %d, want %d", len(n.sent), tt.wantCalls)
			}
		})
	}
}

func TestHandleUnmatchedDoesNotTouchDedup(t *testing.T) {
	p, n, _ := newProcessor(t, 1)
	ctx := context.Background()

	// A message nobody subscribed to is not recorded, so it cannot shadow
	// the same text once a subscription exists.
	if err := p.Handle(ctx, message(1, "u1", "hello")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if p.dedup.IsDuplicate("u1", "hello", p.now()) {
		t.Error("unmatched message was recorded by the dedup filter")
	}
	if len(n.sent) != 0 {
		t.Errorf("sent %d notifications, want 0", len(n.sent))
	}
}

func TestHandleEmptyText(t *testing.T) {
	p, n, _ := newProcessor(t, 1)
	if err := p.Handle(context.Background(), message(1, "u1", "")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(n.sent) != 0 {
		t.Errorf("sent %d notifications, want 0", len(n.sent))
	}
}

func TestHandleChatNotFoundIsPermanent(t *testing.T) {
	p, _, _ := newProcessor(t, 1)
	msg := message(1, "u1", "sale")
	msg.ChatID = 999

	err := p.Handle(context.Background(), msg)
	if !errors.Is(err, matcher.ErrChatNotFound) {
		t.Fatalf("Handle error = %v, want ErrChatNotFound", err)
	}
	if !worker.IsPermanent(err) {
		t.Error("chat not found should not be retried")
	}
}

func TestHandleNotifyFailureContinues(t *testing.T) {
	p, n, _ := newProcessor(t, 1, 2, 3)
	n.fails = map[int64]error{2: errors.New("bot was blocked by the user")}

	if err := p.Handle(context.Background(), message(10, "u1", "sale")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var got []int64
	for _, s := range n.sent {
		got = append(got, s.TargetUserID)
	}
	if diff := cmp.Diff([]int64{1, 3}, got); diff != "" {
		t.Errorf("delivered users mismatch (-want +got):\n%s", diff)
	}
}

func TestTaskOnPool(t *testing.T) {
	p, n, _ := newProcessor(t, 1)
	pool := worker.New(worker.Options{Workers: 1, QueueSize: 1}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = pool.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	f, err := pool.Submit(ctx, "message", p.Task(message(10, "u1", "sale")))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := f.Wait(waitCtx); err != nil {
		t.Fatalf("task: %v", err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) != 1 {
		t.Errorf("sent %d notifications, want 1", len(n.sent))
	}
}
