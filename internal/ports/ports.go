package ports

import (
	"context"

	"quotelayout/internal/domain"
)

// LayoutResolver decides which layout governs a company's quote page.
type LayoutResolver interface {
	ResolveLayout(ctx context.Context, identifier string) (domain.ResolvedLayout, error)
}

// BrandingMerger overlays branding onto a layout without mutating it.
type BrandingMerger interface {
	MergeBranding(cfg domain.LayoutConfig, overrides *domain.BrandingOverrides) domain.LayoutConfig
}

// LayoutRenderer expands a layout against a render context.
type LayoutRenderer interface {
	RenderLayout(cfg domain.LayoutConfig, data domain.RenderContext) (domain.RenderedLayout, error)
}

// FallbackMatcher decides whether a company, or a raw identifier when the
// company is unknown, is eligible for a static fallback layout. company may
// be nil.
type FallbackMatcher interface {
	Match(company *domain.Company, identifier string) (cfg domain.LayoutConfig, family string, ok bool)
}
