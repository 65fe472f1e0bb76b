package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider sets the provider used when neither the preference nor the currency resolves.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = normaliseKey(provider)
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = normaliseKey(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := normaliseKey(k)
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{providers: registered}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

// Has reports whether a provider is registered under key.
func (m *Manager) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.providers[normaliseKey(key)]
	return ok
}

func (m *Manager) resolveProvider(pc PaymentContext) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, ErrUnsupportedProvider
	}
	if preferred := normaliseKey(pc.PreferredProvider); preferred != "" {
		// an explicit preference never silently falls back to another gateway
		if p, ok := m.providers[preferred]; ok {
			return preferred, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, preferred)
	}
	if currency := strings.ToUpper(strings.TrimSpace(pc.Currency)); currency != "" {
		if key, ok := m.currencyRoutes[currency]; ok {
			if p, ok := m.providers[key]; ok {
				return key, p, nil
			}
		}
	}
	if p, ok := m.providers[m.defaultProvider]; ok {
		return m.defaultProvider, p, nil
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCharge delegates to the resolved provider.
func (m *Manager) CreateCharge(ctx context.Context, pc PaymentContext, req ChargeRequest) (Charge, error) {
	key, provider, err := m.resolveProvider(pc)
	if err != nil {
		return Charge{}, err
	}
	charge, err := provider.CreateCharge(ctx, req)
	if err != nil {
		return Charge{}, err
	}
	charge.Provider = key
	return charge, nil
}

// ConfirmPayment delegates to the resolved provider.
func (m *Manager) ConfirmPayment(ctx context.Context, pc PaymentContext, req ConfirmRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(pc)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.ConfirmPayment(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, pc PaymentContext, req RefundRequest) (RefundResult, error) {
	_, provider, err := m.resolveProvider(pc)
	if err != nil {
		return RefundResult{}, err
	}
	return provider.Refund(ctx, req)
}
