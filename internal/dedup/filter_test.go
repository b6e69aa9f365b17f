package dedup

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestFilter(window time.Duration) (*Filter, *MemoryStore) {
	store := NewMemoryStore(window)
	return New(store, window, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

type failingStore struct{}

func (failingStore) Update(string, UpdateFunc) (bool, error) {
	return false, errors.New("cache down")
}

func TestIsDuplicateTimeline(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	type call struct {
		source string
		text   string
		at     time.Duration
		want   bool
	}
	tests := []struct {
		name  string
		calls []call
	}{
		{
			name: "repeat within window then after window",
			calls: []call{
				{"u1", "hello", 0, false},
				{"u1", "hello", 5 * time.Second, true},
				{"u1", "hello", 36 * time.Second, false},
			},
		},
		{
			name: "t0, t0+5s, t0+31s: 31s is still inside the window refreshed at 5s",
			calls: []call{
				{"u1", "hello", 0, false},
				{"u1", "hello", 5 * time.Second, true},
				{"u1", "hello", 31 * time.Second, true},
			},
		},
		{
			name: "window measured from last refresh",
			calls: []call{
				{"u1", "hello", 0, false},
				{"u1", "hello", 20 * time.Second, true},
				{"u1", "hello", 45 * time.Second, true},
			},
		},
		{
			name: "exactly at window boundary is new",
			calls: []call{
				{"u1", "hello", 0, false},
				{"u1", "hello", 30 * time.Second, false},
			},
		},
		{
			name: "different source is not a duplicate",
			calls: []call{
				{"u1", "hello", 0, false},
				{"u2", "hello", time.Second, false},
			},
		},
		{
			name: "different text is not a duplicate",
			calls: []call{
				{"u1", "hello", 0, false},
				{"u1", "hello!", time.Second, false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newTestFilter(DefaultWindow)
			for i, c := range tt.calls {
				got := f.IsDuplicate(c.source, c.text, t0.Add(c.at))
				if diff := cmp.Diff(c.want, got); diff != "" {
					t.Errorf("call %d IsDuplicate(%q, %q, +%s) (-want +got):\n%s", i, c.source, c.text, c.at, diff)
				}
			}
		})
	}
}

func TestIsDuplicateExpiresAfterWindow(t *testing.T) {
	f, _ := newTestFilter(DefaultWindow)
	t0 := time.Now()

	if f.IsDuplicate("u1", "hello", t0) {
		t.Error("first observation reported as duplicate")
	}
	if f.IsDuplicate("u1", "hello", t0.Add(31*time.Second)) {
		t.Error("repeat after 31s reported as duplicate")
	}
	if !f.IsDuplicate("u1", "hello", t0.Add(36*time.Second)) {
		t.Error("repeat 5s after a fresh observation not reported as duplicate")
	}
}

func TestIsDuplicateCollisionOverwrites(t *testing.T) {
	f, store := newTestFilter(DefaultWindow)
	f.digest = func(string, string) string { return "same-key" }
	t0 := time.Now()

	if f.IsDuplicate("u1", "first", t0) {
		t.Fatal("first message reported as duplicate")
	}
	if f.IsDuplicate("u2", "second", t0.Add(time.Second)) {
		t.Error("colliding message with different content reported as duplicate")
	}
	// The colliding message replaced the record.
	if !f.IsDuplicate("u2", "second", t0.Add(2*time.Second)) {
		t.Error("repeat of the overwriting message not reported as duplicate")
	}
	if f.IsDuplicate("u1", "first", t0.Add(3*time.Second)) {
		t.Error("original message should have been evicted by the collision")
	}
	if diff := cmp.Diff(1, store.Len()); diff != "" {
		t.Errorf("store size (-want +got):\n%s", diff)
	}
}

func TestIsDuplicateFailsOpen(t *testing.T) {
	f := New(failingStore{}, DefaultWindow, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Now()
	for i := 0; i < 3; i++ {
		if f.IsDuplicate("u1", "hello", now) {
			t.Fatalf("call %d: failing store suppressed a message", i)
		}
	}
}

func TestIsDuplicateConcurrent(t *testing.T) {
	f, _ := newTestFilter(DefaultWindow)
	now := time.Now()

	const goroutines = 64
	var fresh atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if !f.IsDuplicate("u1", "spam", now) {
				fresh.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if diff := cmp.Diff(int32(1), fresh.Load()); diff != "" {
		t.Errorf("non-duplicate verdicts (-want +got):\n%s", diff)
	}
}

func TestMemoryStorePurgesExpired(t *testing.T) {
	store := NewMemoryStore(time.Second)
	f := New(store, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t0 := time.Now()

	for i := 0; i < purgeThreshold*shardCount; i++ {
		f.IsDuplicate("src", fmt.Sprintf("msg-%d", i), t0)
	}
	before := store.Len()

	later := t0.Add(time.Minute)
	for i := 0; i < purgeThreshold*shardCount; i++ {
		f.IsDuplicate("src", fmt.Sprintf("new-%d", i), later)
	}

	if store.Len() >= before*2 {
		t.Errorf("expected expired records to be purged, size went from %d to %d", before, store.Len())
	}
}

func TestDigestStable(t *testing.T) {
	a := Digest("u1", "hello")
	if diff := cmp.Diff(a, Digest("u1", "hello")); diff != "" {
		t.Errorf("digest not stable (-want +got):\n%s", diff)
	}
	if Digest("u1", "hello") == Digest("u1h", "ello") {
		t.Error("separator does not disambiguate source and text")
	}
	if diff := cmp.Diff(64, len(a)); diff != "" {
		t.Errorf("digest length (-want +got):\n%s", diff)
	}
}
