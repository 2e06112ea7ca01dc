package gateway

import (
	"strings"

	"github.com/smallbiznis/serene/internal/payment/domain"
)

type Registry struct {
	gateways map[string]domain.Gateway
}

func NewRegistry(gateways ...domain.Gateway) *Registry {
	registry := &Registry{gateways: map[string]domain.Gateway{}}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(gw.Provider()))
		if provider == "" {
			continue
		}
		registry.gateways[provider] = gw
	}
	return registry
}

func (r *Registry) Get(provider string) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return gw, nil
}
