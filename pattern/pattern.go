// Package pattern compiles and evaluates glob-style patterns over
// colon-segmented event names. A pattern is anchored: it must consume the
// entire name to match.
//
// Segments are either a literal, a single-segment wildcard "*", or a
// multi-segment wildcard "**" which is only meaningful as the last segment
// of a pattern and matches any remainder, including an empty remainder.
package pattern

import "strings"

const (
	segmentWildcard = "*"
	tailWildcard    = "**"
)

// Pattern is a compiled glob over colon-segmented event names.
type Pattern struct {
	raw      string
	segments []string
}

// Compile splits p on ":" and validates that "**" only appears as the final
// segment. Compile never fails on malformed input that is merely unusual
// (e.g. empty patterns match only the empty name); it returns an error only
// when "**" appears anywhere but last, since that can never match anything
// the way the matcher is defined.
func Compile(p string) (Pattern, error) {
	segs := strings.Split(p, ":")
	for i, s := range segs {
		if s == tailWildcard && i != len(segs)-1 {
			return Pattern{}, &InvalidPatternError{Pattern: p}
		}
	}
	return Pattern{raw: p, segments: segs}, nil
}

// MustCompile is like Compile but panics on error. Intended for static
// patterns declared at init time.
func MustCompile(p string) Pattern {
	pat, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return pat
}

// String returns the original pattern text.
func (p Pattern) String() string { return p.raw }

// Match reports whether name satisfies the compiled pattern.
func (p Pattern) Match(name string) bool {
	return matchSegments(p.segments, strings.Split(name, ":"))
}

// Matches compiles pattern and tests it against name in one step. Prefer
// Compile+Match when testing the same pattern repeatedly.
func Matches(pattern, name string) bool {
	pat, err := Compile(pattern)
	if err != nil {
		return false
	}
	return pat.Match(name)
}

func matchSegments(pat, name []string) bool {
	for i, ps := range pat {
		if ps == tailWildcard {
			// "**" must be last (enforced at compile time) and matches any
			// remainder, including none.
			return true
		}
		if i >= len(name) {
			return false
		}
		if ps != segmentWildcard && ps != name[i] {
			return false
		}
	}
	return len(pat) == len(name)
}

// InvalidPatternError reports a pattern containing a "**" wildcard anywhere
// but the final segment.
type InvalidPatternError struct {
	Pattern string
}

func (e *InvalidPatternError) Error() string {
	return "pattern: \"**\" must be the last segment in " + e.Pattern
}
