package domain

import (
	"encoding/json"
	"strings"
)

// Core domain models used internally. Persistence and HTTP shapes map onto
// these at the adapter boundary; keep them free of storage concerns.

// Company is the canonical identity record. ExternalTenantID is an alias
// and may equal InternalID.
type Company struct {
	InternalID       string `json:"internalId"`
	ExternalTenantID string `json:"externalTenantId"`
	Name             string `json:"name"`
	BrandCode        string `json:"brandCode"`
	// FallbackRef names a static fallback family directly, replacing the
	// substring heuristics of the seed table when set.
	FallbackRef string `json:"fallbackRef,omitempty"`
}

// BrandingOverrides are per-company style values layered over a layout.
// A nil or blank field is absent.
type BrandingOverrides struct {
	FontFamily         *string `json:"fontFamily,omitempty"`
	HeroBannerURL      *string `json:"heroBannerUrl,omitempty"`
	FooterImageURL     *string `json:"footerImageUrl,omitempty"`
	LogoURL            *string `json:"logoUrl,omitempty"`
	PrimaryColor       *string `json:"primaryColor,omitempty"`
	SecondaryColor     *string `json:"secondaryColor,omitempty"`
	AssignedTemplateID *string `json:"assignedTemplateId,omitempty"`
}

func (b *BrandingOverrides) Clone() *BrandingOverrides {
	if b == nil {
		return nil
	}
	out := &BrandingOverrides{}
	for _, f := range []struct{ dst, src **string }{
		{&out.FontFamily, &b.FontFamily},
		{&out.HeroBannerURL, &b.HeroBannerURL},
		{&out.FooterImageURL, &b.FooterImageURL},
		{&out.LogoURL, &b.LogoURL},
		{&out.PrimaryColor, &b.PrimaryColor},
		{&out.SecondaryColor, &b.SecondaryColor},
		{&out.AssignedTemplateID, &b.AssignedTemplateID},
	} {
		if *f.src != nil {
			v := **f.src
			*f.dst = &v
		}
	}
	return out
}

// TemplateID returns the assigned template id, or "" when none is assigned.
func (b *BrandingOverrides) TemplateID() string {
	if b == nil {
		return ""
	}
	return strings.TrimSpace(Value(b.AssignedTemplateID))
}

type SectionType string

const (
	SectionCustomHTML SectionType = "custom_html"
	SectionBuiltIn    SectionType = "built_in"
)

// Section is one ordered unit of a layout: templated markup or a reference
// to a built-in component.
type Section struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Type      SectionType    `json:"type"`
	Visible   bool           `json:"visible"`
	HTML      string         `json:"html,omitempty"`
	Component string         `json:"component,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// LayoutConfig describes a quote page. Sections order is rendering order.
type LayoutConfig struct {
	Version      int               `json:"version"`
	GlobalStyles map[string]string `json:"globalStyles"`
	Sections     []Section         `json:"sections"`
}

// StoredLayout is a layout as persistence returns it. When the stored value
// failed to parse, ParseErr is set and Raw carries the opaque value.
type StoredLayout struct {
	ID       string
	Version  int
	IsActive bool
	Config   LayoutConfig
	Raw      json.RawMessage
	ParseErr error
}

// Malformed reports whether the stored value could not be parsed.
func (s *StoredLayout) Malformed() bool { return s != nil && s.ParseErr != nil }

type LayoutSource string

const (
	SourceLayoutTemplate LayoutSource = "layout_template"
	SourceCustomLayout   LayoutSource = "custom_layout"
	SourceStaticFallback LayoutSource = "static_fallback"
)

// ResolvedLayout is the outcome of layout selection. It is not persisted.
type ResolvedLayout struct {
	Source            LayoutSource    `json:"source"`
	Config            LayoutConfig    `json:"config"`
	CompanyInternalID string          `json:"companyInternalId,omitempty"`
	TemplateID        string          `json:"templateId,omitempty"`
	FallbackFamily    string          `json:"fallbackFamily,omitempty"`
	Degraded          bool            `json:"degraded,omitempty"`
	Raw               json.RawMessage `json:"raw,omitempty"`

	// PrecedenceDegraded is set when an optional lookup failed and selection
	// fell through past a step that might otherwise have matched.
	PrecedenceDegraded bool               `json:"precedenceDegraded,omitempty"`
	// Branding is the overrides snapshot read while selecting, empty when the
	// company has none. Nil when no company matched or the read failed.
	Branding           *BrandingOverrides `json:"branding,omitempty"`
}

// RenderContext is the runtime data bag a layout renders against. Renderers
// treat it as read-only.
type RenderContext map[string]any

// RenderedSection is the final output for one visible section. HTML is set
// for custom_html sections; Component and Props for built_in ones.
type RenderedSection struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Type      SectionType    `json:"type"`
	HTML      string         `json:"html,omitempty"`
	Component string         `json:"component,omitempty"`
	Props     map[string]any `json:"props,omitempty"`
}

type RenderedLayout struct {
	GlobalStyles map[string]string `json:"globalStyles"`
	Sections     []RenderedSection `json:"sections"`
}

// Value dereferences an optional string, treating nil as "".
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to s.
func Ptr(s string) *string { return &s }
