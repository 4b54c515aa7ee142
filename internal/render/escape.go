package render

import (
	"strings"

	"golang.org/x/net/html"
)

// Trusted marks a context value as operator-controlled markup or style data.
// It is substituted without HTML escaping.
type Trusted string

// Every substituted value is HTML-escaped unless it is Trusted or its key
// (the final path segment) is on the allow-list below. The allow-list covers
// style and URL values set by operators through branding settings.
var (
	defaultTrustedKeys     = []string{"fontFamily", "href", "src", "url", "color"}
	defaultTrustedSuffixes = []string{"Url", "URL", "Color", "Colour"}
)

type escapePolicy struct {
	keys     map[string]bool
	suffixes []string
}

func newEscapePolicy() escapePolicy {
	p := escapePolicy{keys: make(map[string]bool), suffixes: defaultTrustedSuffixes}
	for _, k := range defaultTrustedKeys {
		p.keys[k] = true
	}
	return p
}

func (p escapePolicy) trusted(path string) bool {
	key := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		key = path[i+1:]
	}
	if p.keys[key] {
		return true
	}
	for _, s := range p.suffixes {
		if strings.HasSuffix(key, s) && len(key) > len(s) {
			return true
		}
	}
	return false
}

func (p escapePolicy) apply(path string, v any, text string) string {
	if _, ok := v.(Trusted); ok || p.trusted(path) {
		return text
	}
	return html.EscapeString(text)
}
