package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/serene/internal/idempotency"
	"github.com/smallbiznis/serene/internal/observability/metrics"
	"github.com/smallbiznis/serene/internal/payment/domain"
	"github.com/smallbiznis/serene/internal/payment/gateway"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Gateways   *gateway.Registry
	Guard      *idempotency.Guard
	PaymentSvc domain.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

// Dispatcher routes verified provider webhooks into the payment
// service exactly once per event id.
type Dispatcher struct {
	log        *zap.Logger
	gateways   *gateway.Registry
	guard      *idempotency.Guard
	paymentSvc domain.Service
	metrics    *metrics.Metrics
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		log:        p.Log.Named("payment.webhook"),
		gateways:   p.Gateways,
		guard:      p.Guard,
		paymentSvc: p.PaymentSvc,
		metrics:    p.Metrics,
	}
}

// Dispatch returns nil when the delivery should be acknowledged.
// A non-nil error tells the provider to retry later.
func (d *Dispatcher) Dispatch(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.ErrProviderNotFound
	}
	gw, err := d.gateways.Get(provider)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	if err := gw.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := gw.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			d.log.Debug("ignoring unhandled event kind", zap.String("provider", provider))
			return nil
		}
		return err
	}

	// Claims are namespaced per provider so event ids cannot collide
	// across gateways.
	claimKey := provider + ":" + event.ProviderEventID
	claim, claimed, err := d.guard.TryClaim(ctx, claimKey)
	if err != nil {
		return err
	}
	if !claimed {
		handled, herr := d.guard.HasBeenHandled(ctx, claimKey)
		if herr != nil {
			d.log.Warn("claim ledger lookup failed", zap.Error(herr))
		}
		d.metrics.RecordWebhookDuplicate(ctx, provider)
		d.log.Info("duplicate webhook delivery acknowledged",
			zap.String("provider", provider),
			zap.String("event_id", event.ProviderEventID),
			zap.Bool("already_completed", handled),
		)
		return nil
	}

	if err := d.paymentSvc.ApplyEvent(ctx, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateSuccess) {
			// The payment settled under a different event id. The
			// work is done, so tombstone this delivery too.
			d.metrics.RecordWebhookDuplicate(ctx, provider)
			if cerr := d.guard.Complete(ctx, claim); cerr != nil {
				d.log.Warn("completing duplicate claim failed", zap.Error(cerr))
			}
			return nil
		}

		if ferr := d.guard.Fail(ctx, claim, err.Error()); ferr != nil {
			d.log.Warn("recording claim failure failed", zap.Error(ferr))
		}
		d.log.Warn("webhook processing failed",
			zap.String("provider", provider),
			zap.String("event_id", event.ProviderEventID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return err
	}

	if err := d.guard.Complete(ctx, claim); err != nil {
		d.log.Warn("completing claim failed",
			zap.String("event_id", event.ProviderEventID),
			zap.Error(err),
		)
	}
	return nil
}
