package pathglob

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/sdv-broker/databroker/internal/brokererr"
)

// pathToGlob normalizes a dot- or slash-separated identifier to the
// slash-separated form the matcher operates on.
func pathToGlob(path string) string {
	out := make([]byte, len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out[i] = '/'
		} else {
			out[i] = path[i]
		}
	}
	return string(out)
}

// segment is one '/'-delimited piece of a compiled Pattern.
type segment struct {
	doubleStar bool        // "**": matches zero or more path segments
	g          glob.Glob   // compiled single-segment matcher ("*", "Cabin", "Sunroof*", ...)
	literal    string      // fast path for segments with no glob metacharacters
	isLiteral  bool
}

// Pattern is a compiled request pattern, ready to be matched against a
// canonicalized glob_path. Patterns are compiled once at subscription or
// query registration time and reused for every notification round.
type Pattern struct {
	raw      string
	segments []segment
}

// Compile converts a VSS selector (dot- or slash-separated, with '*' and
// '**' wildcards) into a Pattern. Per spec.md §4.4, the input is first
// normalized to '/'-separated form.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, brokererr.New(brokererr.ValidationError, "empty pattern")
	}
	norm := pathToGlob(strings.ReplaceAll(pattern, "/", "."))
	parts := strings.Split(norm, "/")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, brokererr.New(brokererr.ValidationError, "invalid pattern %q: empty segment", pattern)
		}
		if p == "**" {
			segs = append(segs, segment{doubleStar: true})
			continue
		}
		if !strings.ContainsAny(p, "*?[{") {
			segs = append(segs, segment{literal: p, isLiteral: true})
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, brokererr.Wrap(brokererr.ValidationError, err, "invalid pattern %q", pattern)
		}
		segs = append(segs, segment{g: g})
	}
	return &Pattern{raw: pattern, segments: segs}, nil
}

// MustCompile is Compile but panics on error; intended for compile-time
// constant patterns (tests, defaults).
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) String() string { return p.raw }

// IsMatch reports whether globPath (a '/'-separated canonical entry path)
// matches the compiled pattern. Per spec.md §4.4, a pattern that neither
// starts with "**" nor ends with "/**" and fails to match is automatically
// retried with "/**" appended, implementing VSS "branch" semantics: a
// pattern naming a branch node matches the node and everything under it.
func (p *Pattern) IsMatch(globPath string) bool {
	target := strings.Split(globPath, "/")
	if matchSegments(p.segments, target) {
		return true
	}
	if p.segments[0].doubleStar || p.segments[len(p.segments)-1].doubleStar {
		return false
	}
	branch := append(append([]segment{}, p.segments...), segment{doubleStar: true})
	return matchSegments(branch, target)
}

func matchSegments(pattern []segment, target []string) bool {
	if len(pattern) == 0 {
		return len(target) == 0
	}
	head := pattern[0]
	if head.doubleStar {
		// "**" matches zero or more segments: try consuming 0, 1, 2, ...
		for consume := 0; consume <= len(target); consume++ {
			if matchSegments(pattern[1:], target[consume:]) {
				return true
			}
		}
		return false
	}
	if len(target) == 0 {
		return false
	}
	if head.isLiteral {
		if head.literal != target[0] {
			return false
		}
	} else if !head.g.Match(target[0]) {
		return false
	}
	return matchSegments(pattern[1:], target[1:])
}
