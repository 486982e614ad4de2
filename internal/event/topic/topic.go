package topic

import "strings"

// Topic is a dot-separated event name or subscription pattern.
type Topic string

const (
	// Separator splits a topic into segments.
	Separator = "."

	// AnySegment matches exactly one segment.
	AnySegment = "*"

	// AnyRest, as the last segment of a pattern, matches whatever follows.
	AnyRest = "**"
)

func (t Topic) String() string { return string(t) }

// Valid reports whether t is non-empty with no empty segments. "**" may
// only appear as the last segment.
func (t Topic) Valid() bool {
	if t == "" {
		return false
	}
	segs := strings.Split(string(t), Separator)
	for i, seg := range segs {
		if seg == "" || (seg == AnyRest && i != len(segs)-1) {
			return false
		}
	}
	return true
}

// IsPattern reports whether t contains a wildcard segment.
func (t Topic) IsPattern() bool {
	for _, seg := range strings.Split(string(t), Separator) {
		if seg == AnySegment || seg == AnyRest {
			return true
		}
	}
	return false
}

// Matches reports whether the concrete topic t is matched by pattern.
func (t Topic) Matches(pattern Topic) bool {
	if t == pattern {
		return true
	}
	name := string(t)
	rest := string(pattern)
	for rest != "" {
		var want string
		want, rest, _ = strings.Cut(rest, Separator)
		if want == AnyRest {
			return true
		}
		if name == "" {
			return false
		}
		var got string
		got, name, _ = strings.Cut(name, Separator)
		if want != AnySegment && want != got {
			return false
		}
	}
	return name == ""
}
