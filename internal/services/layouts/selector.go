// Package layouts decides which layout governs a company's quote page.
//
// Precedence, first match wins:
//
//  1. the company's assigned template, when it exists and is active
//  2. the company's own custom layout, when active
//  3. the built-in fallback of an eligible brand family
//
// Lookups for steps 1 and 2 are optional enrichments: a store error is
// logged and treated as "absent" so resolution falls through instead of
// failing. Only when nothing applies does Select return domain.ErrNotFound.
package layouts

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"quotelayout/internal/domain"
	"quotelayout/internal/ports"
)

// CompanyResolver maps an identifier to the canonical company record.
type CompanyResolver interface {
	Resolve(ctx context.Context, identifier string) (domain.Company, error)
}

// Observer receives resolution outcomes, typically for metrics.
type Observer interface {
	Resolved(source domain.LayoutSource)
	Failed(reason string)
	Degraded(step string)
}

type noopObserver struct{}

func (noopObserver) Resolved(domain.LayoutSource) {}
func (noopObserver) Failed(string)                {}
func (noopObserver) Degraded(string)              {}

// Degradation steps reported to the Observer.
const (
	StepCompany      = "company"
	StepBranding     = "branding"
	StepTemplate     = "template"
	StepCustomLayout = "custom_layout"
	StepMalformed    = "malformed_config"
)

type Selector struct {
	companies CompanyResolver
	branding  ports.BrandingRepository
	templates ports.TemplateRepository
	customs   ports.CustomLayoutRepository
	fallbacks ports.FallbackMatcher
	observer  Observer
	logger    *slog.Logger
}

type Option func(*Selector)

func WithObserver(o Observer) Option { return func(s *Selector) { s.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(s *Selector) { s.logger = l } }

func NewSelector(companies CompanyResolver, branding ports.BrandingRepository, templates ports.TemplateRepository, customs ports.CustomLayoutRepository, fallbacks ports.FallbackMatcher, opts ...Option) *Selector {
	s := &Selector{
		companies: companies,
		branding:  branding,
		templates: templates,
		customs:   customs,
		fallbacks: fallbacks,
		observer:  noopObserver{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select resolves the layout for identifier, which may be a company's
// internal id, its external tenant id, or an unresolvable legacy code that
// only the fallback table knows.
func (s *Selector) Select(ctx context.Context, identifier string) (domain.ResolvedLayout, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		s.observer.Failed("empty_identifier")
		return domain.ResolvedLayout{}, domain.ErrNotFound
	}

	sel := &selection{Selector: s}
	out, err := sel.run(ctx, identifier)
	if err != nil {
		return domain.ResolvedLayout{}, err
	}
	out.PrecedenceDegraded = sel.degraded
	out.Branding = sel.overrides.Clone()
	return out, nil
}

// ResolveLayout implements ports.LayoutResolver.
func (s *Selector) ResolveLayout(ctx context.Context, identifier string) (domain.ResolvedLayout, error) {
	return s.Select(ctx, identifier)
}

// selection holds the state of a single Select call.
type selection struct {
	*Selector
	degraded  bool
	overrides *domain.BrandingOverrides
}

func (sel *selection) run(ctx context.Context, identifier string) (domain.ResolvedLayout, error) {
	company, found := sel.resolveCompany(ctx, identifier)
	if found {
		sel.overrides = sel.loadBranding(ctx, company.InternalID)
		if templateID := sel.overrides.TemplateID(); templateID != "" {
			if stored := sel.loadTemplate(ctx, templateID); stored != nil {
				return sel.fromStored(ctx, domain.SourceLayoutTemplate, stored, company.InternalID, templateID), nil
			}
		}
		if stored := sel.loadCustomLayout(ctx, company.InternalID); stored != nil {
			return sel.fromStored(ctx, domain.SourceCustomLayout, stored, company.InternalID, ""), nil
		}
	}

	var companyRef *domain.Company
	if found {
		companyRef = &company
	}
	if sel.fallbacks != nil {
		if cfg, family, ok := sel.fallbacks.Match(companyRef, identifier); ok {
			sel.observer.Resolved(domain.SourceStaticFallback)
			return domain.ResolvedLayout{
				Source:            domain.SourceStaticFallback,
				Config:            cfg,
				CompanyInternalID: company.InternalID,
				FallbackFamily:    family,
			}, nil
		}
	}

	sel.observer.Failed("not_found")
	return domain.ResolvedLayout{}, domain.ErrNotFound
}

func (sel *selection) degrade(ctx context.Context, step, msg string, args ...any) {
	sel.degraded = true
	sel.observer.Degraded(step)
	sel.logger.WarnContext(ctx, msg, args...)
}

func (sel *selection) resolveCompany(ctx context.Context, identifier string) (domain.Company, bool) {
	company, err := sel.companies.Resolve(ctx, identifier)
	if err == nil {
		return company, true
	}
	if !errors.Is(err, domain.ErrNotFound) {
		sel.degrade(ctx, StepCompany, "Company lookup failed, continuing with raw identifier", "identifier", identifier, "error", err)
	}
	return domain.Company{}, false
}

// loadBranding returns the company's overrides, empty when it has none and
// nil when the read failed.
func (sel *selection) loadBranding(ctx context.Context, companyID string) *domain.BrandingOverrides {
	if sel.branding == nil {
		return &domain.BrandingOverrides{}
	}
	overrides, err := sel.branding.GetBrandingOverrides(ctx, companyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.BrandingOverrides{}
		}
		sel.degrade(ctx, StepBranding, "Branding lookup failed, treating as absent", "company_id", companyID, "error", err)
		return nil
	}
	if overrides == nil {
		return &domain.BrandingOverrides{}
	}
	return overrides
}

func (sel *selection) loadTemplate(ctx context.Context, templateID string) *domain.StoredLayout {
	if sel.templates == nil {
		return nil
	}
	stored, err := sel.templates.GetActiveTemplate(ctx, templateID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			sel.degrade(ctx, StepTemplate, "Template lookup failed, falling through", "template_id", templateID, "error", err)
		}
		return nil
	}
	if stored == nil || !stored.IsActive {
		return nil
	}
	return stored
}

func (sel *selection) loadCustomLayout(ctx context.Context, companyID string) *domain.StoredLayout {
	if sel.customs == nil {
		return nil
	}
	stored, err := sel.customs.GetActiveCustomLayout(ctx, companyID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			sel.degrade(ctx, StepCustomLayout, "Custom layout lookup failed, falling through", "company_id", companyID, "error", err)
		}
		return nil
	}
	if stored == nil || !stored.IsActive {
		return nil
	}
	return stored
}

// fromStored builds the result for a persisted layout. A value that failed to
// parse is passed through opaquely in Raw with Degraded set, so one corrupt
// record cannot break the calling page.
func (s *Selector) fromStored(ctx context.Context, source domain.LayoutSource, stored *domain.StoredLayout, companyID, templateID string) domain.ResolvedLayout {
	version := stored.Version
	if version < 1 {
		version = 1
	}
	out := domain.ResolvedLayout{
		Source:            source,
		CompanyInternalID: companyID,
		TemplateID:        templateID,
	}

	if stored.Malformed() {
		s.observer.Degraded(StepMalformed)
		s.logger.WarnContext(ctx, "Stored layout is malformed, passing raw value through",
			"source", source, "layout_id", stored.ID, "company_id", companyID, "error", stored.ParseErr)
		out.Config = domain.LayoutConfig{Version: version, GlobalStyles: map[string]string{}, Sections: []domain.Section{}}
		out.Degraded = true
		out.Raw = append(out.Raw[:0:0], stored.Raw...)
	} else {
		out.Config = stored.Config.Clone()
		out.Config.Version = version
	}

	s.observer.Resolved(source)
	return out
}
