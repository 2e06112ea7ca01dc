package config

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BookingPolicy is the hot-reloadable business policy for the salon.
// Infrastructure settings live in Config; everything here may change
// without a restart.
type BookingPolicy struct {
	Currency                 string `mapstructure:"currency"`
	MaxSlotDurationMinutes   int    `mapstructure:"maxSlotDurationMinutes"`
	ClaimTTLMinutes          int    `mapstructure:"claimTtlMinutes"`
	CompletedTTLHours        int    `mapstructure:"completedTtlHours"`
	CheckoutTimeoutSeconds   int    `mapstructure:"checkoutTimeoutSeconds"`
	SideEffectTimeoutSeconds int    `mapstructure:"sideEffectTimeoutSeconds"`
}

func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{
		Currency:                 "USD",
		MaxSlotDurationMinutes:   12 * 60,
		ClaimTTLMinutes:          10,
		CompletedTTLHours:        24,
		CheckoutTimeoutSeconds:   12,
		SideEffectTimeoutSeconds: 10,
	}
}

func (p BookingPolicy) MaxSlotDuration() time.Duration {
	return time.Duration(p.MaxSlotDurationMinutes) * time.Minute
}

func (p BookingPolicy) ClaimTTL() time.Duration {
	return time.Duration(p.ClaimTTLMinutes) * time.Minute
}

func (p BookingPolicy) CompletedTTL() time.Duration {
	return time.Duration(p.CompletedTTLHours) * time.Hour
}

func (p BookingPolicy) CheckoutTimeout() time.Duration {
	return time.Duration(p.CheckoutTimeoutSeconds) * time.Second
}

func (p BookingPolicy) SideEffectTimeout() time.Duration {
	return time.Duration(p.SideEffectTimeoutSeconds) * time.Second
}

// PolicyHolder keeps the current BookingPolicy and swaps it atomically
// when the backing file changes.
type PolicyHolder struct {
	current atomic.Value // holds BookingPolicy
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("booking")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/serene")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SERENE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBookingPolicy()
	v.SetDefault("booking.currency", defaults.Currency)
	v.SetDefault("booking.maxSlotDurationMinutes", defaults.MaxSlotDurationMinutes)
	v.SetDefault("booking.claimTtlMinutes", defaults.ClaimTTLMinutes)
	v.SetDefault("booking.completedTtlHours", defaults.CompletedTTLHours)
	v.SetDefault("booking.checkoutTimeoutSeconds", defaults.CheckoutTimeoutSeconds)
	v.SetDefault("booking.sideEffectTimeoutSeconds", defaults.SideEffectTimeoutSeconds)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	holder := &PolicyHolder{}
	if err := holder.reload(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		_ = holder.reload(v)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) reload(v *viper.Viper) error {
	var policy BookingPolicy
	if err := v.UnmarshalKey("booking", &policy); err != nil {
		return err
	}
	policy = normalizePolicy(policy)
	h.current.Store(policy)
	return nil
}

// Current returns the active policy. Safe for concurrent use.
func (h *PolicyHolder) Current() BookingPolicy {
	if h == nil {
		return DefaultBookingPolicy()
	}
	if policy, ok := h.current.Load().(BookingPolicy); ok {
		return policy
	}
	return DefaultBookingPolicy()
}

func normalizePolicy(policy BookingPolicy) BookingPolicy {
	defaults := DefaultBookingPolicy()
	if strings.TrimSpace(policy.Currency) == "" {
		policy.Currency = defaults.Currency
	}
	policy.Currency = strings.ToUpper(strings.TrimSpace(policy.Currency))
	if policy.MaxSlotDurationMinutes <= 0 {
		policy.MaxSlotDurationMinutes = defaults.MaxSlotDurationMinutes
	}
	if policy.ClaimTTLMinutes <= 0 {
		policy.ClaimTTLMinutes = defaults.ClaimTTLMinutes
	}
	if policy.CompletedTTLHours <= 0 {
		policy.CompletedTTLHours = defaults.CompletedTTLHours
	}
	if policy.CheckoutTimeoutSeconds <= 0 {
		policy.CheckoutTimeoutSeconds = defaults.CheckoutTimeoutSeconds
	}
	if policy.SideEffectTimeoutSeconds <= 0 {
		policy.SideEffectTimeoutSeconds = defaults.SideEffectTimeoutSeconds
	}
	return policy
}
