package payment

import (
	"github.com/smallbiznis/serene/internal/config"
	"github.com/smallbiznis/serene/internal/payment/gateway"
	"github.com/smallbiznis/serene/internal/payment/gateway/stripe"
	"github.com/smallbiznis/serene/internal/payment/repository"
	"github.com/smallbiznis/serene/internal/payment/service"
	"github.com/smallbiznis/serene/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		provideGateways,
		service.New,
		webhook.NewDispatcher,
	),
)

func provideGateways(cfg config.Config) *gateway.Registry {
	return gateway.NewRegistry(
		stripe.New(stripe.Config{
			APIKey:        cfg.Stripe.APIKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
		}),
	)
}
