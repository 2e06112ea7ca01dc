package idempotency

import (
	"context"

	"github.com/smallbiznis/serene/internal/config"
	"go.uber.org/zap"
)

// Claim is a live ownership record. It remembers which store granted
// it so completion and release always land on the same backend.
type Claim struct {
	EventID string

	token string
	store Store
}

// Guard arbitrates duplicate event deliveries. Redis is the primary
// ledger; when it is unreachable the guard degrades to the in-process
// store, which still dedupes retries hitting the same instance.
type Guard struct {
	primary  Store
	fallback Store
	policy   *config.PolicyHolder
	log      *zap.Logger
}

func NewGuard(primary Store, fallback *MemoryStore, policy *config.PolicyHolder, log *zap.Logger) *Guard {
	return &Guard{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		log:      log.Named("idempotency.guard"),
	}
}

// TryClaim claims the event. claimed false with a nil error means a
// duplicate delivery: the caller should acknowledge without acting.
func (g *Guard) TryClaim(ctx context.Context, eventID string) (*Claim, bool, error) {
	ttl := g.policy.Current().ClaimTTL()

	if g.primary != nil {
		token, claimed, err := g.primary.TryClaim(ctx, eventID, ttl)
		if err == nil {
			if !claimed {
				return nil, false, nil
			}
			return &Claim{EventID: eventID, token: token, store: g.primary}, true, nil
		}
		g.log.Warn("primary claim store unavailable, degrading to in-process store",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}

	token, claimed, err := g.fallback.TryClaim(ctx, eventID, ttl)
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		return nil, false, nil
	}
	return &Claim{EventID: eventID, token: token, store: g.fallback}, true, nil
}

// Complete tombstones the claim so later deliveries of the same event
// are treated as duplicates.
func (g *Guard) Complete(ctx context.Context, claim *Claim) error {
	if claim == nil {
		return nil
	}
	return claim.store.Complete(ctx, claim.EventID, claim.token, g.policy.Current().CompletedTTL())
}

// Release frees the claim so the provider's retry can run the event
// again, leaving no trace of the attempt.
func (g *Guard) Release(ctx context.Context, claim *Claim) error {
	if claim == nil {
		return nil
	}
	return claim.store.Release(ctx, claim.EventID, claim.token)
}

// Fail records the processing failure on the claim. The failure record
// keeps the error detail for diagnostics but expires on its own and
// never denies the provider's retry.
func (g *Guard) Fail(ctx context.Context, claim *Claim, detail string) error {
	if claim == nil {
		return nil
	}
	return claim.store.Fail(ctx, claim.EventID, claim.token, detail, g.policy.Current().ClaimTTL())
}

// HasBeenHandled reports whether a completion tombstone exists for the
// event on either store. Completions written while degraded live only
// in the fallback, so both are consulted.
func (g *Guard) HasBeenHandled(ctx context.Context, eventID string) (bool, error) {
	if g.primary != nil {
		handled, err := g.primary.HasBeenHandled(ctx, eventID)
		if err == nil && handled {
			return true, nil
		}
		if err != nil {
			g.log.Warn("primary claim store unavailable for lookup",
				zap.String("event_id", eventID),
				zap.Error(err),
			)
		}
	}
	return g.fallback.HasBeenHandled(ctx, eventID)
}
