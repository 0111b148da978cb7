// Package clock abstracts wall-clock time, sleeping and id generation so the
// monitoring components can be driven deterministically in tests.
package clock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Clock provides the current time and a cancellable sleep
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces unique identifiers for reports, events and alerts
type IDGenerator interface {
	NewID() string
}

// System is the real wall clock
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UUIDGenerator issues random v4 UUIDs
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.New().String() }
