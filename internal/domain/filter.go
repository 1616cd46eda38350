package domain

import "strings"

// EventFilter is a conjunction of case-insensitive equality predicates. Zero
// fields match everything.
type EventFilter struct {
	Country   string
	Disease   string
	Grade     string
	EventType string
	Status    string
	Year      int
}

// IsZero reports whether the filter has no predicates.
func (f EventFilter) IsZero() bool {
	return f == EventFilter{}
}

// Match reports whether e satisfies every predicate.
func (f EventFilter) Match(e OutbreakEvent) bool {
	return matchFold(f.Country, e.Country) &&
		matchFold(f.Disease, e.Disease) &&
		matchFold(f.Grade, e.Grade) &&
		matchFold(f.EventType, e.EventType) &&
		matchFold(f.Status, e.Status) &&
		(f.Year == 0 || f.Year == e.Year)
}

// Apply returns the matching events in their original order.
func (f EventFilter) Apply(events []OutbreakEvent) []OutbreakEvent {
	if f.IsZero() {
		return events
	}
	out := make([]OutbreakEvent, 0, len(events))
	for _, e := range events {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

func matchFold(want, got string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(want, strings.TrimSpace(got))
}
