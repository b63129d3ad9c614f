// Package temporal infers the calendar date a memory refers to from the free
// text a patient or caretaker typed or dictated.
//
// Resolution is deliberately conservative: text must carry an explicit date
// marker (a 4-digit year, a month name, a relative keyword or a D/M/Y style
// numeric date) before anything is returned. Counts, ages and phone numbers
// are never read as dates. When nothing resolves, callers fall back to the
// capture time.
package temporal

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateOrder selects how ambiguous numeric dates such as 03/04/2021 are read.
type DateOrder int

const (
	// DayFirst reads D/M/Y (the default).
	DayFirst DateOrder = iota
	// MonthFirst reads M/D/Y.
	MonthFirst
)

// String returns the config spelling of the order.
func (o DateOrder) String() string {
	if o == MonthFirst {
		return "MDY"
	}
	return "DMY"
}

// ParseDateOrder accepts "DMY" or "MDY" (case-insensitive). The empty string
// yields DayFirst.
func ParseDateOrder(s string) (DateOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "DMY":
		return DayFirst, nil
	case "MDY":
		return MonthFirst, nil
	default:
		return DayFirst, fmt.Errorf("temporal: unknown date order %q (want DMY or MDY)", s)
	}
}

// Resolver turns free text into an explicit timestamp. A Resolver holds only
// immutable configuration; it is safe for concurrent use and Resolve is a
// pure function of its inputs.
type Resolver struct {
	order DateOrder
}

// New returns a Resolver reading numeric dates in the given order.
func New(order DateOrder) *Resolver {
	return &Resolver{order: order}
}

// Order reports the configured numeric date order.
func (r *Resolver) Order() DateOrder { return r.order }

var defaultResolver = New(DayFirst)

// Resolve is shorthand for a day-first Resolver.
func Resolve(text string, now time.Time) (time.Time, bool) {
	return defaultResolver.Resolve(text, now)
}

// Resolve returns the instant text refers to, interpreted in now's location.
// The boolean is false when the text carries no explicit date marker or no
// candidate survives validation; it never fails otherwise.
func (r *Resolver) Resolve(text string, now time.Time) (time.Time, bool) {
	norm := stripOrdinals(text)
	if !hasExplicitMarker(norm) {
		return time.Time{}, false
	}

	if t, ok := resolveRelative(norm, now); ok {
		return t, true
	}

	best, ok := r.latestCandidate(norm, now)
	if !ok {
		return time.Time{}, false
	}

	if hour, minute, found := timeOfDay(norm); found {
		y, m, d := best.at.Date()
		return time.Date(y, m, d, hour, minute, 0, 0, best.at.Location()), true
	}
	return best.at, true
}

// latestCandidate runs every matcher and keeps the candidate mentioned last
// in the text. Ties keep the earlier matcher's candidate.
func (r *Resolver) latestCandidate(text string, now time.Time) (candidate, bool) {
	var (
		best  candidate
		found bool
	)
	for _, match := range matchers {
		for _, c := range match(text, now, r.order) {
			if !found || c.offset > best.offset {
				best = c
				found = true
			}
		}
	}
	return best, found
}

var ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)

// stripOrdinals rewrites "31st" as "31" so the matchers only see digits.
func stripOrdinals(text string) string {
	return ordinalSuffix.ReplaceAllString(text, "$1")
}

var (
	fourDigitYear = regexp.MustCompile(`\b\d{4}\b`)
	relativeWord  = regexp.MustCompile(`(?i)\b(?:yesterday|today|tomorrow|last\s+week|last\s+month|ago)\b`)
	separatedDate = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
)

// hasExplicitMarker gates resolution on the presence of something that can
// only be a date expression.
func hasExplicitMarker(text string) bool {
	return fourDigitYear.MatchString(text) ||
		monthWord.MatchString(text) ||
		relativeWord.MatchString(text) ||
		separatedDate.MatchString(text)
}
