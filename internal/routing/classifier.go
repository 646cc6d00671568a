package routing

import (
	"errors"
	"strings"
)

type RouteClass string

const (
	RouteClassInternalAPI RouteClass = "internal_api"
	RouteClassPublicAPI   RouteClass = "public_api"
	RouteClassOps         RouteClass = "ops"
	RouteClassCapture     RouteClass = "capture"
)

func knownRouteClass(rc RouteClass) bool {
	switch rc {
	case RouteClassInternalAPI, RouteClassPublicAPI, RouteClassOps, RouteClassCapture:
		return true
	default:
		return false
	}
}

// Classifier maps request paths to route classes for error rendering and
// authorization gating. Allowlisted paths win; anything else falls back to
// path-shape heuristics.
type Classifier struct {
	entrypoint string
	exact      map[string]RouteClass
	patterns   []patternRoute
}

type patternRoute struct {
	pattern pathPattern
	rc      RouteClass
}

func NewClassifier(a Allowlist, entrypoint string) (*Classifier, error) {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return nil, errors.New("allowlist: missing entrypoint")
	}
	if len(ep.Routes) == 0 {
		return nil, errors.New("allowlist: entrypoint routes empty")
	}

	exact := make(map[string]RouteClass, len(ep.Routes))
	var patterns []patternRoute
	for _, r := range ep.Routes {
		if r.Path == "" || r.RouteClass == "" {
			return nil, errors.New("allowlist: invalid route")
		}
		if p, ok := parsePathPattern(r.Path); ok {
			patterns = append(patterns, patternRoute{pattern: p, rc: RouteClass(r.RouteClass)})
			continue
		}
		exact[r.Path] = RouteClass(r.RouteClass)
	}
	return &Classifier{entrypoint: entrypoint, exact: exact, patterns: patterns}, nil
}

func (c *Classifier) Classify(path string) RouteClass {
	if rc, ok := c.exact[path]; ok {
		return rc
	}
	for _, p := range c.patterns {
		if p.pattern.match(path) {
			return p.rc
		}
	}

	switch {
	case hasPrefixSegment(path, "/api/captures"):
		return RouteClassCapture
	case hasPrefixSegment(path, "/api"):
		return RouteClassInternalAPI
	case path == "/health" || path == "/healthz":
		return RouteClassOps
	default:
		return RouteClassPublicAPI
	}
}

func hasPrefixSegment(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// pathPattern is a segment-wise path template; {name} segments match any
// single non-empty segment.
type pathPattern struct {
	raw      string
	segments []string
}

func parsePathPattern(raw string) (pathPattern, bool) {
	if !strings.Contains(raw, "{") {
		return pathPattern{}, false
	}
	if raw == "" || raw[0] != '/' {
		return pathPattern{}, false
	}

	parts := splitPathSegments(raw)
	for _, s := range parts {
		if s == "" {
			return pathPattern{}, false
		}
		if strings.Contains(s, "{") || strings.Contains(s, "}") {
			if !isParamSegment(s) {
				return pathPattern{}, false
			}
		}
	}
	return pathPattern{raw: raw, segments: parts}, true
}

func (p pathPattern) match(path string) bool {
	_, ok := p.params(path)
	return ok
}

// params extracts {name} segment values; nil map and false when the path
// does not match.
func (p pathPattern) params(path string) (map[string]string, bool) {
	if p.raw == "" {
		return nil, false
	}
	in := splitPathSegments(path)
	if len(in) != len(p.segments) {
		return nil, false
	}
	out := map[string]string{}
	for i := range p.segments {
		want := p.segments[i]
		got := in[i]
		if got == "" {
			return nil, false
		}
		if isParamSegment(want) {
			out[want[1:len(want)-1]] = got
			continue
		}
		if got != want {
			return nil, false
		}
	}
	return out, true
}

func splitPathSegments(path string) []string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func isParamSegment(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && len(s) > 2
}
