package calendar

import (
	"github.com/smallbiznis/serene/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.calendar",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Calendar.BaseURL == "" {
		return &NoOpProvider{}
	}
	return NewHTTP(Config{
		BaseURL:  cfg.Calendar.BaseURL,
		APIToken: cfg.Calendar.APIToken,
		Timeline: cfg.Calendar.Timeline,
	})
}
