// Package dedup suppresses repeated notifications for identical messages
// arriving from the same source within a short window.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// DefaultWindow is how long an identical (source, text) pair is treated as a repeat.
const DefaultWindow = 30 * time.Second

// Filter decides whether a message was already processed recently.
type Filter struct {
	store  Store
	window time.Duration
	log    *slog.Logger
	digest func(source, text string) string
}

// New creates a Filter backed by store. A non-positive window falls back to DefaultWindow.
func New(store Store, window time.Duration, log *slog.Logger) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Filter{
		store:  store,
		window: window,
		log:    log,
		digest: Digest,
	}
}

// Window returns the dedup window.
func (f *Filter) Window() time.Duration {
	return f.window
}

// IsDuplicate reports whether (source, text) was seen less than the window
// ago, recording the observation either way. A failing store never
// suppresses a message.
func (f *Filter) IsDuplicate(source, text string, now time.Time) bool {
	key := f.digest(source, text)

	dup, err := f.store.Update(key, func(prev Record, ok bool) (Record, bool) {
		next := Record{Source: source, Text: text, SeenAt: now}
		if !ok {
			return next, false
		}
		if now.Sub(prev.SeenAt) >= f.window {
			return next, false
		}
		if prev.Source == source && prev.Text == text {
			return next, true
		}
		// Different content under the same key: the newer message takes the slot.
		f.log.Warn("dedup key collision", "key", key)
		return next, false
	})
	if err != nil {
		f.log.Warn("dedup store unavailable, treating message as new", "error", err)
		return false
	}
	return dup
}

// Digest returns the hex-encoded SHA-256 of source and text joined by a NUL byte.
func Digest(source, text string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
