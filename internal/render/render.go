// Package render expands layout configs against a render context.
//
// Rendering is a single pure pass: the config and the context are never
// mutated, missing values render blank, and the same inputs always produce
// the same output. A Renderer holds no mutable state and is safe for
// concurrent use.
package render

import (
	"fmt"
	"strings"

	"quotelayout/internal/domain"
)

// Built-in components whose props are paginated over a context sequence by
// default, mapped to that sequence's path.
var paginatedComponents = map[string]string{
	"inventory_table": "inventory",
}

const paginateKey = "paginate"

type Renderer struct {
	policy escapePolicy
}

type Option func(*Renderer)

// WithTrustedKeys adds keys whose values are substituted without escaping.
func WithTrustedKeys(keys ...string) Option {
	return func(r *Renderer) {
		for _, k := range keys {
			r.policy.keys[k] = true
		}
	}
}

func New(opts ...Option) *Renderer {
	r := &Renderer{policy: newEscapePolicy()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRenderer = New()

// Render expands cfg with the default renderer.
func Render(cfg domain.LayoutConfig, data domain.RenderContext) (domain.RenderedLayout, error) {
	return defaultRenderer.Render(cfg, data)
}

// RenderLayout implements ports.LayoutRenderer.
func (r *Renderer) RenderLayout(cfg domain.LayoutConfig, data domain.RenderContext) (domain.RenderedLayout, error) {
	return r.Render(cfg, data)
}

// Render produces the output for every visible section, in config order.
func (r *Renderer) Render(cfg domain.LayoutConfig, data domain.RenderContext) (domain.RenderedLayout, error) {
	out := domain.RenderedLayout{
		GlobalStyles: make(map[string]string, len(cfg.GlobalStyles)),
		Sections:     make([]domain.RenderedSection, 0, len(cfg.Sections)),
	}
	for k, v := range cfg.GlobalStyles {
		out.GlobalStyles[k] = v
	}

	for _, s := range cfg.Sections {
		if !s.Visible {
			continue
		}
		rs := domain.RenderedSection{ID: s.ID, Label: s.Label, Type: s.Type}
		switch s.Type {
		case domain.SectionCustomHTML:
			rs.HTML = r.RenderString(s.HTML, data)
		case domain.SectionBuiltIn:
			rs.Component = s.Component
			rs.Props = r.resolveProps(s.Component, s.Config, data)
		default:
			return domain.RenderedLayout{}, fmt.Errorf("section %q: unknown type %q", s.ID, s.Type)
		}
		out.Sections = append(out.Sections, rs)
	}
	return out, nil
}

// RenderString expands a section body. Substituted values are escaped per
// the renderer's trust policy; the template text itself is emitted as is.
func (r *Renderer) RenderString(tmpl string, data domain.RenderContext) string {
	if !hasTags(tmpl) {
		return tmpl
	}
	var b strings.Builder
	r.exec(&b, parse(tmpl), data, nil, true)
	return b.String()
}

func (r *Renderer) exec(b *strings.Builder, nodes []node, data domain.RenderContext, sc *scope, escape bool) {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			b.WriteString(n.text)
		case valueNode:
			v, _ := lookup(data, sc, n.text)
			text := format(v)
			if escape {
				text = r.policy.apply(n.text, v, text)
			}
			b.WriteString(text)
		case rawValueNode:
			v, _ := lookup(data, sc, n.text)
			b.WriteString(format(v))
		case eachNode:
			v, _ := lookup(data, sc, n.text)
			items, ok := toSlice(v)
			if !ok {
				continue
			}
			for i, item := range items {
				r.exec(b, n.body, data, &scope{this: item, index: i, parent: sc}, escape)
			}
		}
	}
}

// resolveProps deep-copies a built-in section's config, substituting
// placeholders in every string leaf. A leaf that is exactly one placeholder
// takes the referenced value itself, so props keep their types.
func (r *Renderer) resolveProps(component string, cfg map[string]any, data domain.RenderContext) map[string]any {
	props, _ := r.resolveValue(cfg, data).(map[string]any)
	if props == nil {
		props = make(map[string]any)
	}

	source, paginated := paginatedComponents[component]
	if paging, ok := props[paginateKey].(map[string]any); ok {
		for k, v := range paging {
			if _, exists := props[k]; !exists {
				props[k] = v
			}
		}
		delete(props, paginateKey)
		paginated = true
	}
	if !paginated {
		return props
	}

	var items []any
	switch s := props["source"].(type) {
	case string:
		if s != "" {
			source = s
		}
	case []any:
		items, source = s, ""
	}
	if source != "" {
		if v, ok := lookup(data, nil, source); ok {
			items, _ = toSlice(v)
		}
	}
	delete(props, "source")

	page := Paginate(items, toInt(props["pageSize"], 0), toInt(props["page"], 1))
	page.Items = domain.CloneValue(page.Items).([]any)
	for k, v := range page.props() {
		props[k] = v
	}
	return props
}

func (r *Renderer) resolveValue(v any, data domain.RenderContext) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = r.resolveValue(e, data)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = r.resolveValue(e, data)
		}
		return out
	case string:
		if !hasTags(t) {
			return t
		}
		if path, ok := singlePlaceholder(t); ok {
			val, _ := lookup(data, nil, path)
			if s, ok := val.(Trusted); ok {
				return string(s)
			}
			if _, isString := val.(string); !isString && val != nil {
				return domain.CloneValue(val)
			}
		}
		var b strings.Builder
		r.exec(&b, parse(t), data, nil, false)
		return b.String()
	default:
		return v
	}
}
