package platform

import (
	"context"
	"log/slog"
)

// DefaultMaxConcurrentConnects bounds simultaneous Open calls when unset.
const DefaultMaxConcurrentConnects = 4

// Limiter bounds how many adapter connections are being established at once,
// so a burst of listen requests (boot auto-start) does not hammer one platform.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter returns a limiter with n slots; n <= 0 selects DefaultMaxConcurrentConnects.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = DefaultMaxConcurrentConnects
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done. It reports whether a slot was taken.
func (l *Limiter) Acquire(ctx context.Context) bool {
	select {
	case l.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
		slog.Warn("connect slot release called without corresponding acquire", slog.String("component", "platform"))
	}
}

// Active returns the number of connections currently being established.
func (l *Limiter) Active() int { return len(l.slots) }

// Max returns the configured bound.
func (l *Limiter) Max() int { return cap(l.slots) }
