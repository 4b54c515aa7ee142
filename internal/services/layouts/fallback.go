package layouts

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"quotelayout/internal/domain"
)

//go:embed fallbacks/*.yaml fallbacks/*.jsonc
var fallbackFiles embed.FS

const defaultRulesPath = "fallbacks/rules.yaml"

// FallbackRule is one brand family of the static fallback seed table.
type FallbackRule struct {
	Family              string   `yaml:"family"`
	Layout              string   `yaml:"layout"`
	TenantIDs           []string `yaml:"tenantIds"`
	BrandCodeSubstrings []string `yaml:"brandCodeSubstrings"`
	NameSubstrings      []string `yaml:"nameSubstrings"`
}

type fallbackRules struct {
	Families []FallbackRule `yaml:"families"`
}

// FallbackCatalog decides static fallback eligibility and holds the built-in
// layout of each brand family.
type FallbackCatalog struct {
	rules   []FallbackRule
	layouts map[string]domain.LayoutConfig
}

// NewFallbackCatalog requires a valid layout for every rule's family.
func NewFallbackCatalog(rules []FallbackRule, layouts map[string]domain.LayoutConfig) (*FallbackCatalog, error) {
	c := &FallbackCatalog{layouts: make(map[string]domain.LayoutConfig, len(layouts))}
	for family, cfg := range layouts {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("fallback layout %q: %w", family, err)
		}
		c.layouts[family] = cfg.Clone()
	}
	for _, r := range rules {
		if r.Family == "" {
			return nil, fmt.Errorf("fallback rule without family")
		}
		if _, ok := c.layouts[r.Family]; !ok {
			return nil, fmt.Errorf("fallback rule %q has no layout", r.Family)
		}
		c.rules = append(c.rules, r)
	}
	return c, nil
}

// DefaultFallbackCatalog loads the seed table shipped with the binary.
func DefaultFallbackCatalog() (*FallbackCatalog, error) {
	return LoadFallbackCatalog(fallbackFiles, defaultRulesPath)
}

// LoadFallbackCatalog reads a YAML rules file and the JSONC layout each rule
// references, relative to the rules file.
func LoadFallbackCatalog(fsys fs.FS, rulesPath string) (*FallbackCatalog, error) {
	data, err := fs.ReadFile(fsys, rulesPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rulesPath, err)
	}
	var parsed fallbackRules
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rulesPath, err)
	}

	layouts := make(map[string]domain.LayoutConfig, len(parsed.Families))
	for _, r := range parsed.Families {
		if r.Layout == "" {
			return nil, fmt.Errorf("fallback family %q: missing layout file", r.Family)
		}
		layoutPath := path.Join(path.Dir(rulesPath), r.Layout)
		raw, err := fs.ReadFile(fsys, layoutPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", layoutPath, err)
		}
		cfg, err := domain.ParseLayoutConfig(jsonc.ToJSON(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", layoutPath, err)
		}
		layouts[r.Family] = cfg
	}
	return NewFallbackCatalog(parsed.Families, layouts)
}

// Families lists the known fallback families.
func (c *FallbackCatalog) Families() []string {
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.Family)
	}
	return out
}

// Match implements ports.FallbackMatcher. An explicit Company.FallbackRef
// wins; otherwise the seed table is consulted by exact tenant id (internal
// id, external tenant id or the raw identifier), then brand-code substring,
// then name substring. company may be nil when the identifier did not
// resolve, in which case only tenant ids are compared.
func (c *FallbackCatalog) Match(company *domain.Company, identifier string) (domain.LayoutConfig, string, bool) {
	if company != nil && company.FallbackRef != "" {
		if cfg, ok := c.layouts[company.FallbackRef]; ok {
			return cfg.Clone(), company.FallbackRef, true
		}
	}

	ids := []string{strings.TrimSpace(identifier)}
	if company != nil {
		ids = append(ids, company.InternalID, company.ExternalTenantID)
	}
	for _, r := range c.rules {
		for _, tenant := range r.TenantIDs {
			for _, id := range ids {
				if id != "" && id == tenant {
					return c.layouts[r.Family].Clone(), r.Family, true
				}
			}
		}
	}
	if company == nil {
		return domain.LayoutConfig{}, "", false
	}

	for _, r := range c.rules {
		if containsFold(company.BrandCode, r.BrandCodeSubstrings) {
			return c.layouts[r.Family].Clone(), r.Family, true
		}
	}
	for _, r := range c.rules {
		if containsFold(company.Name, r.NameSubstrings) {
			return c.layouts[r.Family].Clone(), r.Family, true
		}
	}
	return domain.LayoutConfig{}, "", false
}

func containsFold(s string, substrings []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, sub := range substrings {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
