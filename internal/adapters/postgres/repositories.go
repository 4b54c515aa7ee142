package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"quotelayout/internal/domain"
)

// CompanyRepository
func (db *DB) GetByInternalID(ctx context.Context, internalID string) (domain.Company, error) {
	return db.getCompany(ctx, `WHERE internal_id = $1`, internalID)
}

func (db *DB) GetByExternalTenantID(ctx context.Context, externalTenantID string) (domain.Company, error) {
	return db.getCompany(ctx, `WHERE external_tenant_id = $1`, externalTenantID)
}

func (db *DB) getCompany(ctx context.Context, where string, arg string) (domain.Company, error) {
	var c domain.Company
	err := db.Pool.QueryRow(ctx, `
        SELECT internal_id, COALESCE(external_tenant_id, ''), name, brand_code, COALESCE(fallback_ref, '')
        FROM companies `+where, strings.TrimSpace(arg)).
		Scan(&c.InternalID, &c.ExternalTenantID, &c.Name, &c.BrandCode, &c.FallbackRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Company{}, domain.ErrNotFound
	}
	return c, err
}

// TemplateRepository
func (db *DB) GetActiveTemplate(ctx context.Context, templateID string) (*domain.StoredLayout, error) {
	var (
		out domain.StoredLayout
		raw []byte
	)
	err := db.Pool.QueryRow(ctx, `
        SELECT id, version, is_active, config FROM layout_templates WHERE id = $1
    `, templateID).Scan(&out.ID, &out.Version, &out.IsActive, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !out.IsActive {
		return nil, nil
	}
	decodeStored(&out, raw, string(domain.SourceLayoutTemplate))
	return &out, nil
}

// CustomLayoutRepository
func (db *DB) GetActiveCustomLayout(ctx context.Context, companyInternalID string) (*domain.StoredLayout, error) {
	var (
		out domain.StoredLayout
		raw []byte
	)
	err := db.Pool.QueryRow(ctx, `
        SELECT id::text, version, is_active, config FROM custom_layouts WHERE company_internal_id = $1
    `, companyInternalID).Scan(&out.ID, &out.Version, &out.IsActive, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !out.IsActive {
		return nil, nil
	}
	decodeStored(&out, raw, string(domain.SourceCustomLayout))
	return &out, nil
}

// BrandingRepository
func (db *DB) GetBrandingOverrides(ctx context.Context, companyInternalID string) (*domain.BrandingOverrides, error) {
	var b domain.BrandingOverrides
	err := db.Pool.QueryRow(ctx, `
        SELECT font_family, hero_banner_url, footer_image_url, logo_url, primary_color, secondary_color, assigned_template_id
        FROM company_branding WHERE company_internal_id = $1
    `, companyInternalID).Scan(&b.FontFamily, &b.HeroBannerURL, &b.FooterImageURL, &b.LogoURL,
		&b.PrimaryColor, &b.SecondaryColor, &b.AssignedTemplateID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpsertCompany writes a company record, mostly for seeding and tests.
func (db *DB) UpsertCompany(ctx context.Context, c domain.Company) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO companies (internal_id, external_tenant_id, name, brand_code, fallback_ref)
        VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''))
        ON CONFLICT (internal_id) DO UPDATE SET
            external_tenant_id = EXCLUDED.external_tenant_id,
            name = EXCLUDED.name,
            brand_code = EXCLUDED.brand_code,
            fallback_ref = EXCLUDED.fallback_ref,
            updated_at = now()
    `, c.InternalID, c.ExternalTenantID, c.Name, c.BrandCode, c.FallbackRef)
	return err
}

// UpsertBranding replaces a company's branding row.
func (db *DB) UpsertBranding(ctx context.Context, companyInternalID string, b domain.BrandingOverrides) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO company_branding (company_internal_id, font_family, hero_banner_url, footer_image_url,
            logo_url, primary_color, secondary_color, assigned_template_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (company_internal_id) DO UPDATE SET
            font_family = EXCLUDED.font_family,
            hero_banner_url = EXCLUDED.hero_banner_url,
            footer_image_url = EXCLUDED.footer_image_url,
            logo_url = EXCLUDED.logo_url,
            primary_color = EXCLUDED.primary_color,
            secondary_color = EXCLUDED.secondary_color,
            assigned_template_id = EXCLUDED.assigned_template_id,
            updated_at = now()
    `, companyInternalID, b.FontFamily, b.HeroBannerURL, b.FooterImageURL, b.LogoURL,
		b.PrimaryColor, b.SecondaryColor, b.AssignedTemplateID)
	return err
}

// decodeStored parses raw into out. A parse failure is kept on the record
// instead of returned so the selector can degrade rather than fail.
func decodeStored(out *domain.StoredLayout, raw []byte, source string) {
	cfg, err := domain.ParseLayoutConfig(raw)
	if err != nil {
		var malformed *domain.MalformedConfigError
		if errors.As(err, &malformed) {
			malformed.Source = source
			malformed.ID = out.ID
		}
		out.ParseErr = err
		out.Raw = append([]byte(nil), raw...)
		return
	}
	out.Config = cfg
}
