package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ParseLayoutConfig decodes a stored layout. Older rows hold the config as a
// JSON string wrapping the JSON document; those are unwrapped once. Any
// failure is returned as *MalformedConfigError with an empty Source, which
// callers fill in.
func ParseLayoutConfig(raw []byte) (LayoutConfig, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return LayoutConfig{}, &MalformedConfigError{Err: errors.New("empty value")}
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return LayoutConfig{}, &MalformedConfigError{Err: err}
		}
		raw = bytes.TrimSpace([]byte(inner))
	}

	var cfg LayoutConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return LayoutConfig{}, &MalformedConfigError{Err: err}
	}
	if err := cfg.validateSections(); err != nil {
		return LayoutConfig{}, &MalformedConfigError{Err: err}
	}
	return cfg, nil
}

// Validate checks the structural invariants of a layout.
func (c LayoutConfig) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("version must be positive, got %d", c.Version)
	}
	return c.validateSections()
}

func (c LayoutConfig) validateSections() error {
	seen := make(map[string]bool, len(c.Sections))
	for i, s := range c.Sections {
		if s.ID == "" {
			return fmt.Errorf("sections[%d]: missing id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("sections[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sections[%d] %q: %w", i, s.ID, err)
		}
	}
	return nil
}

// Validate enforces that exactly one of HTML or Component is populated, as
// the section type requires.
func (s Section) Validate() error {
	switch s.Type {
	case SectionCustomHTML:
		if s.HTML == "" {
			return errors.New("custom_html section requires html")
		}
		if s.Component != "" || len(s.Config) > 0 {
			return errors.New("custom_html section must not set component or config")
		}
	case SectionBuiltIn:
		if s.Component == "" {
			return errors.New("built_in section requires component")
		}
		if s.HTML != "" {
			return errors.New("built_in section must not set html")
		}
	default:
		return fmt.Errorf("unknown section type %q", s.Type)
	}
	return nil
}

// Clone returns a deep copy; mutating the copy never affects c.
func (c LayoutConfig) Clone() LayoutConfig {
	out := LayoutConfig{Version: c.Version}
	if c.GlobalStyles != nil {
		out.GlobalStyles = make(map[string]string, len(c.GlobalStyles))
		for k, v := range c.GlobalStyles {
			out.GlobalStyles[k] = v
		}
	}
	if c.Sections != nil {
		out.Sections = make([]Section, len(c.Sections))
		for i, s := range c.Sections {
			s.Config = CloneMap(s.Config)
			out.Sections[i] = s
		}
	}
	return out
}

// CloneMap deep-copies a JSON-like map. Nested maps and slices are copied;
// other values are shared.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies JSON-like maps and slices inside v.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case RenderContext:
		return RenderContext(CloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy so cached or shared results never alias callers.
func (r ResolvedLayout) Clone() ResolvedLayout {
	out := r
	out.Config = r.Config.Clone()
	if r.Raw != nil {
		out.Raw = append(json.RawMessage(nil), r.Raw...)
	}
	out.Branding = r.Branding.Clone()
	return out
}
