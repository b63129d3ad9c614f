package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxAgoAmount bounds "N units ago" so absurd counts are skipped instead of
// producing dates thousands of years away.
const maxAgoAmount = 100000

var (
	yesterdayWord = regexp.MustCompile(`(?i)\byesterday\b`)
	todayWord     = regexp.MustCompile(`(?i)\btoday\b`)
	tomorrowWord  = regexp.MustCompile(`(?i)\btomorrow\b`)
	lastWeek      = regexp.MustCompile(`(?i)\blast\s+week\b`)
	lastMonth     = regexp.MustCompile(`(?i)\blast\s+month\b`)
	unitsAgo      = regexp.MustCompile(`(?i)\b(\d+|an?|one)\s+(day|week|month|year)s?\s+ago\b`)
)

// resolveRelative handles the keyword forms. They are checked in a fixed
// order and the first hit wins; the result is midnight of the target day.
func resolveRelative(text string, now time.Time) (time.Time, bool) {
	switch {
	case yesterdayWord.MatchString(text):
		return addDays(now, -1), true
	case todayWord.MatchString(text):
		return addDays(now, 0), true
	case tomorrowWord.MatchString(text):
		// now - (-1 day)
		return addDays(now, 1), true
	case lastWeek.MatchString(text):
		return addDays(now, -7), true
	case lastMonth.MatchString(text):
		return addMonths(now, -1), true
	}

	for _, m := range unitsAgo.FindAllStringSubmatch(text, -1) {
		n, ok := parseAmount(m[1])
		if !ok {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "day":
			return addDays(now, -n), true
		case "week":
			return addDays(now, -7*n), true
		case "month":
			return addMonths(now, -n), true
		case "year":
			return addMonths(now, -12*n), true
		}
	}
	return time.Time{}, false
}

func parseAmount(s string) (int, bool) {
	switch strings.ToLower(s) {
	case "a", "an", "one":
		return 1, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > maxAgoAmount {
		return 0, false
	}
	return n, true
}

// addDays moves by calendar days, so DST changes never shift the date.
func addDays(t time.Time, days int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, t.Location())
}

// addMonths moves by calendar months and clamps the day to the length of
// the target month (31 March minus one month is 28 or 29 February).
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + months
	ty := y + floorDiv(total, 12)
	tm := time.Month(total - floorDiv(total, 12)*12 + 1)
	if last := daysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, 0, 0, 0, 0, t.Location())
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
