package render

import "strings"

// Template grammar:
//
//	{{path}}                    placeholder, dot-separated lookup
//	{{{path}}}                  placeholder substituted without escaping
//	{{#each path}}...{{/each}}  loop block, body repeated per element
//
// Malformed tags (unclosed blocks, stray closers, empty tags) are emitted
// verbatim as text.

const (
	openDelim     = "{{"
	closeDelim    = "}}"
	rawOpenDelim  = "{{{"
	rawCloseDelim = "}}}"
	eachPrefix    = "#each"
	eachClose     = "/each"
)

type nodeKind int

const (
	textNode nodeKind = iota
	valueNode
	rawValueNode
	eachNode
)

type node struct {
	kind nodeKind
	text string // literal text, or the lookup path
	body []node
}

type frame struct {
	path  string
	raw   string
	nodes []node
}

func parse(src string) []node {
	stack := []*frame{{}}
	top := func() *frame { return stack[len(stack)-1] }
	emitText := func(s string) {
		if s == "" {
			return
		}
		f := top()
		if n := len(f.nodes); n > 0 && f.nodes[n-1].kind == textNode {
			f.nodes[n-1].text += s
			return
		}
		f.nodes = append(f.nodes, node{kind: textNode, text: s})
	}

	rest := src
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			emitText(rest)
			break
		}
		if strings.HasPrefix(rest[start:], rawOpenDelim) {
			end := strings.Index(rest[start+len(rawOpenDelim):], rawCloseDelim)
			if end < 0 {
				emitText(rest)
				break
			}
			end += start + len(rawOpenDelim)

			emitText(rest[:start])
			raw := rest[start : end+len(rawCloseDelim)]
			tag := strings.TrimSpace(rest[start+len(rawOpenDelim) : end])
			rest = rest[end+len(rawCloseDelim):]
			if !isPath(tag) {
				emitText(raw)
				continue
			}
			top().nodes = append(top().nodes, node{kind: rawValueNode, text: tag})
			continue
		}

		end := strings.Index(rest[start+len(openDelim):], closeDelim)
		if end < 0 {
			emitText(rest)
			break
		}
		end += start + len(openDelim)

		emitText(rest[:start])
		raw := rest[start : end+len(closeDelim)]
		tag := strings.TrimSpace(rest[start+len(openDelim) : end])
		rest = rest[end+len(closeDelim):]

		switch {
		case tag == eachClose:
			if len(stack) == 1 {
				emitText(raw)
				continue
			}
			f := top()
			stack = stack[:len(stack)-1]
			top().nodes = append(top().nodes, node{kind: eachNode, text: f.path, body: f.nodes})
		case strings.HasPrefix(tag, eachPrefix+" "):
			path := strings.TrimSpace(strings.TrimPrefix(tag, eachPrefix))
			stack = append(stack, &frame{path: path, raw: raw})
		case !isPath(tag):
			emitText(raw)
		default:
			top().nodes = append(top().nodes, node{kind: valueNode, text: tag})
		}
	}

	// Unclosed blocks degrade to their literal opening tag followed by the
	// body, folded into the enclosing frame.
	for len(stack) > 1 {
		f := top()
		stack = stack[:len(stack)-1]
		emitText(f.raw)
		for _, n := range f.nodes {
			if n.kind == textNode {
				emitText(n.text)
				continue
			}
			top().nodes = append(top().nodes, n)
		}
	}
	return stack[0].nodes
}

// isPath reports whether tag can be a lookup path rather than a block tag
// or malformed text.
func isPath(tag string) bool {
	return tag != "" && !strings.ContainsAny(tag, " \t\n{}") && !strings.ContainsAny(tag[:1], "#/")
}

// hasTags reports whether s contains anything the template grammar would
// act on.
func hasTags(s string) bool {
	return strings.Contains(s, openDelim)
}

// singlePlaceholder returns the path when s is exactly one placeholder tag.
func singlePlaceholder(s string) (string, bool) {
	nodes := parse(strings.TrimSpace(s))
	if len(nodes) != 1 || (nodes[0].kind != valueNode && nodes[0].kind != rawValueNode) {
		return "", false
	}
	return nodes[0].text, true
}
