package domain

import "strings"

// ClassifyGrade buckets free-text grading into Grade 1-3 or Ungraded.
// Digits and number words are checked from 3 down to 1, so "Grade 2 (was 3)"
// classifies as Grade 3. Text matching no rule is returned unchanged.
func ClassifyGrade(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ungraded
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "3") || strings.Contains(lower, "three"):
		return Grade3
	case strings.Contains(lower, "2") || strings.Contains(lower, "two"):
		return Grade2
	case strings.Contains(lower, "1") || strings.Contains(lower, "one"):
		return Grade1
	case strings.Contains(lower, "ungraded") ||
		strings.Contains(lower, "pending") ||
		strings.Contains(lower, "not graded"):
		return Ungraded
	default:
		// TODO: unmatched text such as "Grade 4" passes through until product
		// decides whether it should collapse to Ungraded.
		return raw
	}
}

// ResolveEventType applies the protracted override to the base event type.
// A protracted value naming level 1, 2 or 3 (checked in that order) yields
// "Protracted-<n>"; the bare word yields "Protracted-1". Any other protracted
// text leaves the base type in place.
func ResolveEventType(base, protracted string) string {
	if base = strings.TrimSpace(base); base == "" {
		base = DefaultEventType
	}
	protracted = strings.TrimSpace(protracted)
	if protracted == "" {
		return base
	}
	switch {
	case strings.Contains(protracted, "1"):
		return "Protracted-1"
	case strings.Contains(protracted, "2"):
		return "Protracted-2"
	case strings.Contains(protracted, "3"):
		return "Protracted-3"
	case strings.Contains(strings.ToLower(protracted), "protracted"):
		return "Protracted-1"
	default:
		return base
	}
}
