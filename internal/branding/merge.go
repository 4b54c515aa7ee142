// Package branding overlays company branding onto layout configs.
package branding

import (
	"strings"

	"quotelayout/internal/domain"
)

// Style keys written by Merge.
const (
	KeyFontFamily     = "fontFamily"
	KeyHeroBannerURL  = "heroBannerUrl"
	KeyFooterImageURL = "footerImageUrl"
	KeyLogoURL        = "logoUrl"
	KeyPrimaryColor   = "primaryColor"
	KeySecondaryColor = "secondaryColor"
)

// Merge returns a copy of cfg with each present override written over its
// global style key. Nil, empty and whitespace-only overrides leave the
// template value in place. cfg is never mutated.
func Merge(cfg domain.LayoutConfig, overrides *domain.BrandingOverrides) domain.LayoutConfig {
	result := cfg.Clone()
	if overrides == nil {
		return result
	}

	for key, value := range Styles(overrides) {
		if result.GlobalStyles == nil {
			result.GlobalStyles = make(map[string]string)
		}
		result.GlobalStyles[key] = value
	}
	return result
}

// Styles returns the present override values keyed by style name. The
// assigned template id is selection data, not a style, and is never included.
func Styles(overrides *domain.BrandingOverrides) map[string]string {
	out := make(map[string]string)
	if overrides == nil {
		return out
	}
	fields := []struct {
		key   string
		value *string
	}{
		{KeyFontFamily, overrides.FontFamily},
		{KeyHeroBannerURL, overrides.HeroBannerURL},
		{KeyFooterImageURL, overrides.FooterImageURL},
		{KeyLogoURL, overrides.LogoURL},
		{KeyPrimaryColor, overrides.PrimaryColor},
		{KeySecondaryColor, overrides.SecondaryColor},
	}
	for _, f := range fields {
		if v := domain.Value(f.value); strings.TrimSpace(v) != "" {
			out[f.key] = v
		}
	}
	return out
}

// Merger adapts Merge to ports.BrandingMerger.
type Merger struct{}

func (Merger) MergeBranding(cfg domain.LayoutConfig, overrides *domain.BrandingOverrides) domain.LayoutConfig {
	return Merge(cfg, overrides)
}
