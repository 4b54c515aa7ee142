// Package quotes is the entry point the quote page and the settings preview
// call into: it resolves, brands and renders layouts.
package quotes

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"quotelayout/internal/branding"
	"quotelayout/internal/domain"
	"quotelayout/internal/ports"
	"quotelayout/internal/render"
)

// BrandingKey is the render context key that receives the merged styles when
// the caller did not supply one.
const BrandingKey = "branding"

// RenderRecorder observes render latency.
type RenderRecorder interface {
	ObserveRender(d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveRender(time.Duration) {}

// Quote is a rendered quote page together with the layout it came from.
type Quote struct {
	Layout   domain.ResolvedLayout `json:"layout"`
	Rendered domain.RenderedLayout `json:"rendered"`
}

type Service struct {
	resolver ports.LayoutResolver
	branding ports.BrandingRepository
	merger   ports.BrandingMerger
	renderer ports.LayoutRenderer
	cache    ports.LayoutCache
	recorder RenderRecorder
	clock    clockwork.Clock
	logger   *slog.Logger

	resolveGroup singleflight.Group
}

type Option func(*Service)

// WithCache puts a resolution cache in front of the resolver.
func WithCache(c ports.LayoutCache) Option { return func(s *Service) { s.cache = c } }

func WithRenderRecorder(r RenderRecorder) Option { return func(s *Service) { s.recorder = r } }

func WithRenderer(r ports.LayoutRenderer) Option { return func(s *Service) { s.renderer = r } }

func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// New creates the facade. brandingRepo may be nil, in which case no overrides
// are ever applied.
func New(resolver ports.LayoutResolver, brandingRepo ports.BrandingRepository, opts ...Option) *Service {
	s := &Service{
		resolver: resolver,
		branding: brandingRepo,
		merger:   branding.Merger{},
		renderer: render.New(),
		recorder: noopRecorder{},
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveLayout returns the layout governing identifier's quote page.
// Concurrent calls for the same identifier share one resolution.
func (s *Service) ResolveLayout(ctx context.Context, identifier string) (domain.ResolvedLayout, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.ResolvedLayout{}, domain.ErrNotFound
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, identifier); ok {
			return cached.Clone(), nil
		}
	}

	v, err, _ := s.resolveGroup.Do(identifier, func() (any, error) {
		resolved, err := s.resolver.ResolveLayout(ctx, identifier)
		if err != nil {
			return nil, err
		}
		// Degraded results are not cached so a repaired record or a recovered
		// store shows up on the next request.
		if s.cache != nil && !resolved.Degraded && !resolved.PrecedenceDegraded {
			s.cache.Set(ctx, identifier, resolved.Clone())
		}
		return resolved, nil
	})
	if err != nil {
		return domain.ResolvedLayout{}, err
	}
	return v.(domain.ResolvedLayout).Clone(), nil
}

// MergeBranding overlays overrides onto cfg without mutating it.
func (s *Service) MergeBranding(cfg domain.LayoutConfig, overrides *domain.BrandingOverrides) domain.LayoutConfig {
	return s.merger.MergeBranding(cfg, overrides)
}

// RenderLayout expands cfg against data.
func (s *Service) RenderLayout(cfg domain.LayoutConfig, data domain.RenderContext) (domain.RenderedLayout, error) {
	start := s.clock.Now()
	out, err := s.renderer.RenderLayout(cfg, data)
	s.recorder.ObserveRender(s.clock.Since(start))
	return out, err
}

// MergedLayout resolves identifier and applies the company's branding,
// preferring the overrides snapshot the resolver selected with. The returned
// overrides are nil when the company has none or they could not be loaded.
func (s *Service) MergedLayout(ctx context.Context, identifier string) (domain.ResolvedLayout, *domain.BrandingOverrides, error) {
	resolved, err := s.ResolveLayout(ctx, identifier)
	if err != nil {
		return domain.ResolvedLayout{}, nil, err
	}
	overrides := resolved.Branding
	if overrides == nil {
		overrides = s.loadOverrides(ctx, resolved.CompanyInternalID)
	}
	resolved.Config = s.MergeBranding(resolved.Config, overrides)
	return resolved, overrides, nil
}

// RenderQuote resolves, brands and renders identifier's quote page. Unless
// data already carries a "branding" entry, the merged global styles are
// exposed there as trusted values so templates can reference them.
func (s *Service) RenderQuote(ctx context.Context, identifier string, data domain.RenderContext) (Quote, error) {
	resolved, _, err := s.MergedLayout(ctx, identifier)
	if err != nil {
		return Quote{}, err
	}

	rendered, err := s.RenderLayout(resolved.Config, WithBranding(data, resolved.Config.GlobalStyles))
	if err != nil {
		return Quote{}, err
	}
	return Quote{Layout: resolved, Rendered: rendered}, nil
}

// WithBranding returns data with styles under BrandingKey. data is never
// modified; when it already has the key it is returned unchanged.
func WithBranding(data domain.RenderContext, styles map[string]string) domain.RenderContext {
	if _, ok := data[BrandingKey]; ok {
		return data
	}
	out := make(domain.RenderContext, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	values := make(map[string]any, len(styles))
	for k, v := range styles {
		values[k] = render.Trusted(v)
	}
	out[BrandingKey] = values
	return out
}

func (s *Service) loadOverrides(ctx context.Context, companyID string) *domain.BrandingOverrides {
	if s.branding == nil || companyID == "" {
		return nil
	}
	overrides, err := s.branding.GetBrandingOverrides(ctx, companyID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "Branding lookup failed, rendering without overrides", "company_id", companyID, "error", err)
		}
		return nil
	}
	return overrides
}
