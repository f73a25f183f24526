package adapters

import (
	"github.com/bazaarhq/paygate/internal/payment/domain"
)

type Registry struct {
	factories map[domain.Gateway]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[domain.Gateway]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		gateway := factory.Gateway()
		if gateway == "" {
			continue
		}
		registry.factories[gateway] = factory
	}
	return registry
}

func (r *Registry) GatewayExists(gateway domain.Gateway) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[gateway]
	return ok
}

func (r *Registry) NewAdapter(gateway domain.Gateway, cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	if r == nil {
		return nil, domain.ErrInvalidGateway
	}
	factory, ok := r.factories[gateway]
	if !ok {
		return nil, domain.ErrInvalidGateway
	}
	return factory.NewAdapter(cfg)
}
