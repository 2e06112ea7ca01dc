// Package idempotency guarantees at-most-once processing of external
// events. A claim marks an event as in flight; completing it leaves a
// tombstone so replays of the same event are acknowledged without side
// effects.
package idempotency

import (
	"context"
	"time"
)

// Store is the claim ledger. Implementations must make TryClaim
// atomic: exactly one caller wins a claim for a given event id while
// the claim or its completion tombstone is alive.
type Store interface {
	// TryClaim claims the event for the caller. The returned token
	// proves ownership and is required to complete or release. claimed
	// is false when another claim or a completion tombstone exists.
	TryClaim(ctx context.Context, eventID string, ttl time.Duration) (token string, claimed bool, err error)

	// Complete replaces the caller's claim with a completion tombstone
	// that outlives provider retry windows. A stale token is a no-op.
	Complete(ctx context.Context, eventID, token string, tombstoneTTL time.Duration) error

	// Release drops the caller's claim so the event can be retried.
	// A stale token is a no-op.
	Release(ctx context.Context, eventID, token string) error

	// Fail replaces the caller's claim with a failure record carrying a
	// short error detail. The record expires on its own and never denies
	// a later claim, so the provider's retry can run the event again.
	// A stale token is a no-op.
	Fail(ctx context.Context, eventID, token, detail string, ttl time.Duration) error

	// HasBeenHandled reports whether a completion tombstone exists for
	// the event.
	HasBeenHandled(ctx context.Context, eventID string) (bool, error)
}
