package bworker

import (
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

// WildcardParam is the parameter name under which an anonymous trailing "*" is captured.
const WildcardParam = "*"

// stdWildcardName names the anonymous wildcard in the standard library pattern syntax.
const stdWildcardName = "wildcard"

type segment struct {
	literal  string
	name     string
	param    bool
	wildcard bool
}

func (s segment) std() string {
	switch {
	case s.wildcard && s.name == WildcardParam:
		return "{" + stdWildcardName + "...}"
	case s.wildcard:
		return "{" + s.name + "...}"
	case s.param:
		return "{" + s.name + "}"
	case s.literal == "":
		return "{$}"
	default:
		return s.literal
	}
}

// Pattern is a parsed route pattern. Segments starting with ":" match exactly one non-empty path
// segment, a trailing "*" or "*name" matches the remainder of the path.
type Pattern struct {
	raw  string
	segs []segment
}

// ParsePattern parses and validates a route pattern such as "/users/:id" or "/files/*path".
func ParsePattern(s string) (*Pattern, error) {
	if s == "" {
		return nil, errors.New("empty pattern")
	}

	if !strings.HasPrefix(s, "/") {
		return nil, errors.Newf("pattern %q must start with a slash", s)
	}

	parts := strings.Split(s[1:], "/")
	pat := &Pattern{raw: s, segs: make([]segment, 0, len(parts))}
	seen := map[string]bool{}

	for i, part := range parts {
		last := i == len(parts)-1

		var seg segment
		switch {
		case strings.HasPrefix(part, "*"):
			if !last {
				return nil, errors.Newf("pattern %q: wildcard must be the last segment", s)
			}

			seg = segment{name: strings.TrimPrefix(part, "*"), wildcard: true}
			if seg.name == "" {
				seg.name = WildcardParam
			} else if !isIdent(seg.name) {
				return nil, errors.Newf("pattern %q: invalid wildcard name %q", s, seg.name)
			}
		case strings.HasPrefix(part, ":"):
			seg = segment{name: part[1:], param: true}
			if !isIdent(seg.name) {
				return nil, errors.Newf("pattern %q: invalid parameter name %q", s, seg.name)
			}
		case part == "" && !last:
			return nil, errors.Newf("pattern %q: empty segment", s)
		case strings.ContainsAny(part, "{}"):
			return nil, errors.Newf("pattern %q: segment %q contains braces", s, part)
		default:
			seg = segment{literal: part}
		}

		if seg.param || seg.wildcard {
			key := seg.std()
			if seen[key] {
				return nil, errors.Newf("pattern %q: duplicate parameter %q", s, seg.name)
			}

			seen[key] = true
		}

		pat.segs = append(pat.segs, seg)
	}

	return pat, nil
}

// MustParsePattern is like [ParsePattern] but panics on invalid patterns.
func MustParsePattern(s string) *Pattern {
	pat, err := ParsePattern(s)
	if err != nil {
		panic("bworker: " + err.Error())
	}

	return pat
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}

		return false
	}

	return true
}

func (p *Pattern) String() string { return p.raw }

// Names returns the parameter names in the order they appear.
func (p *Pattern) Names() []string {
	var names []string
	for _, seg := range p.segs {
		if seg.param || seg.wildcard {
			names = append(names, seg.name)
		}
	}

	return names
}

// Match reports whether the decoded path matches and returns the captured parameters.
func (p *Pattern) Match(path string) (Params, bool) {
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}

	return p.matchSegments(strings.Split(path[1:], "/"))
}

// MatchRequest matches the request path the way [http.ServeMux] does: the escaped path is split
// on slashes before each segment is unescaped, so an encoded slash stays inside its segment.
func (p *Pattern) MatchRequest(r *http.Request) (Params, bool) {
	escaped := r.URL.EscapedPath()
	if !strings.HasPrefix(escaped, "/") {
		return nil, false
	}

	parts := strings.Split(escaped[1:], "/")
	for i, part := range parts {
		decoded, err := url.PathUnescape(part)
		if err != nil {
			return nil, false
		}

		parts[i] = decoded
	}

	return p.matchSegments(parts)
}

func (p *Pattern) matchSegments(parts []string) (Params, bool) {
	params := Params{}

	for i, seg := range p.segs {
		switch {
		case seg.wildcard:
			if len(parts) <= i {
				return nil, false
			}

			params[seg.name] = strings.Join(parts[i:], "/")

			return params, true
		case i >= len(parts):
			return nil, false
		case seg.param:
			if parts[i] == "" {
				return nil, false
			}

			params[seg.name] = parts[i]
		case seg.literal != parts[i]:
			return nil, false
		}
	}

	if len(parts) != len(p.segs) {
		return nil, false
	}

	return params, true
}

// std converts the pattern to the [http.ServeMux] syntax.
func (p *Pattern) std() string {
	var b strings.Builder
	for _, seg := range p.segs {
		b.WriteByte('/')
		b.WriteString(seg.std())
	}

	return b.String()
}

// shape identifies patterns that match the same paths, regardless of parameter names.
func (p *Pattern) shape() string {
	var b strings.Builder
	for _, seg := range p.segs {
		b.WriteByte('/')

		switch {
		case seg.wildcard:
			b.WriteString("{...}")
		case seg.param:
			b.WriteString("{}")
		default:
			b.WriteString(seg.std())
		}
	}

	return b.String()
}

// params reads the parameters the [http.ServeMux] matched for this pattern.
func (p *Pattern) params(r *http.Request) Params {
	params := Params{}
	for _, seg := range p.segs {
		switch {
		case seg.wildcard && seg.name == WildcardParam:
			params[seg.name] = r.PathValue(stdWildcardName)
		case seg.wildcard, seg.param:
			params[seg.name] = r.PathValue(seg.name)
		}
	}

	return params
}

// Build fills the parameters with vals, in order. Parameter values are path-escaped, the
// wildcard value is inserted as is.
func (p *Pattern) Build(vals ...string) (string, error) {
	var b strings.Builder

	n := 0
	for _, seg := range p.segs {
		b.WriteByte('/')

		if !seg.param && !seg.wildcard {
			b.WriteString(seg.literal)
			continue
		}

		if n >= len(vals) {
			return "", errors.Newf("not enough values for pattern %q, got: %d", p.raw, len(vals))
		}

		if seg.param {
			b.WriteString(url.PathEscape(vals[n]))
		} else {
			b.WriteString(strings.TrimPrefix(vals[n], "/"))
		}

		n++
	}

	if n != len(vals) {
		return "", errors.Newf("too many values for pattern %q, got: %d", p.raw, len(vals))
	}

	return b.String(), nil
}
