package cooldown

import (
	"time"

	"github.com/abdulachik/amplibot/internal/model"
)

// Tracker enforces a minimum wall-clock spacing between successes of the
// same action kind. State lives for the process lifetime only.
type Tracker struct {
	windows map[model.Kind]time.Duration
	last    map[model.Kind]time.Time
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a tracker with one window per kind. Kinds without a window
// are never throttled.
func New(windows map[model.Kind]time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		windows: make(map[model.Kind]time.Duration, len(windows)),
		last:    make(map[model.Kind]time.Time),
		now:     time.Now,
	}
	for k, w := range windows {
		t.windows[k] = w
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allowed reports whether an attempt of kind may proceed now.
func (t *Tracker) Allowed(kind model.Kind) bool {
	return t.Remaining(kind) == 0
}

// Remaining returns how long until kind is allowed again.
func (t *Tracker) Remaining(kind model.Kind) time.Duration {
	last, ok := t.last[kind]
	if !ok {
		return 0
	}
	elapsed := t.now().Sub(last)
	if window := t.windows[kind]; elapsed < window {
		return window - elapsed
	}
	return 0
}

// RecordSuccess starts a new window for kind. It is also called on
// rate-limit responses, since the platform window just closed.
func (t *Tracker) RecordSuccess(kind model.Kind) {
	t.last[kind] = t.now()
}

// Last returns the time of the last recorded success, and false if none.
func (t *Tracker) Last(kind model.Kind) (time.Time, bool) {
	last, ok := t.last[kind]
	return last, ok
}

// Window returns the configured window for kind.
func (t *Tracker) Window(kind model.Kind) time.Duration {
	return t.windows[kind]
}
