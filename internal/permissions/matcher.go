package permissions

import (
	"fmt"
	"strings"
)

const wildcardSegment = "*"

// routePattern matches routes against a path template holding exactly one
// wildcard segment. The wildcard accepts one non-empty segment without slashes.
type routePattern struct {
	source   string
	segments []string
	wildcard int
	roles    []string
}

func compileRoutePattern(route string, roles []string) (*routePattern, error) {
	segments := strings.Split(route, "/")
	wildcard := -1
	for i, segment := range segments {
		if !strings.Contains(segment, wildcardSegment) {
			continue
		}
		if segment != wildcardSegment {
			return nil, fmt.Errorf("route %q: wildcard must be a whole path segment", route)
		}
		if wildcard >= 0 {
			return nil, fmt.Errorf("route %q: only one wildcard segment is allowed", route)
		}
		wildcard = i
	}
	if wildcard < 0 {
		return nil, fmt.Errorf("route %q: no wildcard segment", route)
	}
	return &routePattern{
		source:   route,
		segments: segments,
		wildcard: wildcard,
		roles:    roles,
	}, nil
}

// Match reports whether route fits the pattern. The comparison is anchored to
// the full string and case sensitive.
func (p *routePattern) Match(route string) bool {
	segments := strings.Split(route, "/")
	if len(segments) != len(p.segments) {
		return false
	}
	for i, segment := range segments {
		if i == p.wildcard {
			if segment == "" {
				return false
			}
			continue
		}
		if segment != p.segments[i] {
			return false
		}
	}
	return true
}

func isPattern(route string) bool {
	return strings.Contains(route, wildcardSegment)
}
