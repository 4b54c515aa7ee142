// Package resilient wraps the optional layout lookups in circuit breakers so
// a struggling store is skipped quickly instead of slowing every resolution.
package resilient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"quotelayout/internal/domain"
	"quotelayout/internal/ports"
)

// Settings configures every breaker created by this package.
type Settings struct {
	// MinRequests is the number of requests in the current window before the
	// failure ratio is considered.
	MinRequests uint32
	// FailureRatio trips the breaker once reached.
	FailureRatio float64
	// Interval clears the closed-state counts; zero never clears them.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// OnStateChange is called after every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultSettings trips after 60% failures over at least 5 requests and
// probes again after 30s.
func DefaultSettings() Settings {
	return Settings{MinRequests: 5, FailureRatio: 0.6, Interval: 10 * time.Second, OpenTimeout: 30 * time.Second}
}

func newBreaker(name string, s Settings) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: s.Interval,
		Timeout:  s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			if s.OnStateChange != nil {
				s.OnStateChange(name, from, to)
			}
		},
		// Absence is an answer, not a failure. A caller giving up says
		// nothing about the store.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrNotFound) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
	})
}

// call runs fn through cb and restores the typed result.
func call[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

type Templates struct {
	next ports.TemplateRepository
	cb   *gobreaker.CircuitBreaker
}

func NewTemplates(next ports.TemplateRepository, s Settings) *Templates {
	return &Templates{next: next, cb: newBreaker("template_repository", s)}
}

func (t *Templates) GetActiveTemplate(ctx context.Context, templateID string) (*domain.StoredLayout, error) {
	return call(t.cb, func() (*domain.StoredLayout, error) { return t.next.GetActiveTemplate(ctx, templateID) })
}

func (t *Templates) State() gobreaker.State { return t.cb.State() }

type CustomLayouts struct {
	next ports.CustomLayoutRepository
	cb   *gobreaker.CircuitBreaker
}

func NewCustomLayouts(next ports.CustomLayoutRepository, s Settings) *CustomLayouts {
	return &CustomLayouts{next: next, cb: newBreaker("custom_layout_repository", s)}
}

func (c *CustomLayouts) GetActiveCustomLayout(ctx context.Context, companyInternalID string) (*domain.StoredLayout, error) {
	return call(c.cb, func() (*domain.StoredLayout, error) { return c.next.GetActiveCustomLayout(ctx, companyInternalID) })
}

func (c *CustomLayouts) State() gobreaker.State { return c.cb.State() }

type Branding struct {
	next ports.BrandingRepository
	cb   *gobreaker.CircuitBreaker
}

func NewBranding(next ports.BrandingRepository, s Settings) *Branding {
	return &Branding{next: next, cb: newBreaker("branding_repository", s)}
}

func (b *Branding) GetBrandingOverrides(ctx context.Context, companyInternalID string) (*domain.BrandingOverrides, error) {
	return call(b.cb, func() (*domain.BrandingOverrides, error) { return b.next.GetBrandingOverrides(ctx, companyInternalID) })
}

func (b *Branding) State() gobreaker.State { return b.cb.State() }

var (
	_ ports.TemplateRepository     = (*Templates)(nil)
	_ ports.CustomLayoutRepository = (*CustomLayouts)(nil)
	_ ports.BrandingRepository     = (*Branding)(nil)
)
