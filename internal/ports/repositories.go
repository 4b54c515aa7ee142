package ports

import (
	"context"

	"quotelayout/internal/domain"
)

// CompanyRepository looks up canonical company records. Both methods return
// domain.ErrNotFound when no row matches.
type CompanyRepository interface {
	GetByInternalID(ctx context.Context, internalID string) (domain.Company, error)
	GetByExternalTenantID(ctx context.Context, externalTenantID string) (domain.Company, error)
}

// TemplateRepository returns shared layout templates. A missing or inactive
// template is (nil, nil).
type TemplateRepository interface {
	GetActiveTemplate(ctx context.Context, templateID string) (*domain.StoredLayout, error)
}

// CustomLayoutRepository returns a company's own layout, (nil, nil) when the
// company has none or it is inactive.
type CustomLayoutRepository interface {
	GetActiveCustomLayout(ctx context.Context, companyInternalID string) (*domain.StoredLayout, error)
}

// BrandingRepository returns per-company branding, (nil, nil) when unset.
type BrandingRepository interface {
	GetBrandingOverrides(ctx context.Context, companyInternalID string) (*domain.BrandingOverrides, error)
}

// LayoutWriter is the versioned write path. Every write bumps the stored
// version by one and returns the new value.
type LayoutWriter interface {
	SaveTemplate(ctx context.Context, templateID string, cfg domain.LayoutConfig, isActive bool) (id string, version int, err error)
	SaveTemplateIfVersion(ctx context.Context, templateID string, cfg domain.LayoutConfig, expectedVersion int) (version int, err error)
	SetTemplateActive(ctx context.Context, templateID string, isActive bool) (version int, err error)
	SaveCustomLayout(ctx context.Context, companyInternalID string, cfg domain.LayoutConfig, isActive bool) (version int, err error)
	SetCustomLayoutActive(ctx context.Context, companyInternalID string, isActive bool) (version int, err error)
}
