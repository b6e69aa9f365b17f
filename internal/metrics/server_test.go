package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		wantCode int
		want     healthResponse
	}{
		{
			name:     "healthy",
			wantCode: http.StatusOK,
			want:     healthResponse{Status: "ok"},
		},
		{
			name:     "database down",
			pingErr:  errors.New("database is locked"),
			wantCode: http.StatusServiceUnavailable,
			want:     healthResponse{Status: "degraded", Error: "database is locked"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", New(), stubPinger{err: tt.pingErr}, slog.New(slog.NewTextHandler(io.Discard, nil)))
			srv := httptest.NewServer(s.Handler())
			defer srv.Close()

			res, err := http.Get(srv.URL + "/healthz")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer func() { _ = res.Body.Close() }()

			if res.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", res.StatusCode, tt.wantCode)
			}
			var got healthResponse
			if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := New()
	m.MessagesReceived.Add(2)
	m.DuplicatesSuppressed.Inc()
	m.TaskFinished("message", 1, nil)
	m.TaskFinished("message", 3, errors.New("boom"))
	m.QueueDepth(5)

	s := NewServer(":0", m, stubPinger{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = res.Body.Close() }()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	for _, line := range []string{
		"keyword_bot_messages_received_total 2",
		"keyword_bot_duplicates_suppressed_total 1",
		`keyword_bot_tasks_total{result="ok",task="message"} 1`,
		`keyword_bot_tasks_total{result="error",task="message"} 1`,
		`keyword_bot_task_attempts_count{task="message"} 2`,
		"keyword_bot_queue_depth 5",
	} {
		if !strings.Contains(string(body), line) {
			t.Errorf("metrics output missing %q", line)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", New(), stubPinger{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}
