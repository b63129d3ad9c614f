package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// candidate is an absolute date found in the text together with the byte
// offset where its expression starts.
type candidate struct {
	at     time.Time
	offset int
}

// matcher scans text for one family of absolute date expressions. Matchers
// are pure and skip malformed sub-matches silently.
type matcher func(text string, now time.Time, order DateOrder) []candidate

// matchers is the fixed scan order. New formats are added here; tie-breaking
// lives in Resolver.latestCandidate and does not care how many there are.
var matchers = [...]matcher{
	matchISO,
	matchNumeric,
	matchMonthName,
}

const monthAlternation = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

var (
	monthWord = regexp.MustCompile(`(?i)\b(?:` + monthAlternation + `)\b`)

	isoDate     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	numericDate = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4}|\d{2})\b`)

	monthThenDay = regexp.MustCompile(`(?i)\b(` + monthAlternation + `)\.?\s+(\d{1,2})\b(?:,?\s+(\d{4})\b)?`)
	dayThenMonth = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:of\s+)?(` + monthAlternation + `)\b\.?(?:,?\s+(\d{4})\b)?`)
)

func matchISO(text string, now time.Time, _ DateOrder) []candidate {
	var out []candidate
	for _, idx := range isoDate.FindAllStringSubmatchIndex(text, -1) {
		y := atoi(text[idx[2]:idx[3]])
		m := atoi(text[idx[4]:idx[5]])
		d := atoi(text[idx[6]:idx[7]])
		if t, ok := civilDate(y, m, d, now.Location()); ok {
			out = append(out, candidate{at: t, offset: idx[0]})
		}
	}
	return out
}

// matchNumeric reads D/M/Y or M/D/Y depending on order. When the configured
// reading is not a real date the other reading is tried, so 05/25/2020 still
// resolves under DayFirst.
func matchNumeric(text string, now time.Time, order DateOrder) []candidate {
	var out []candidate
	for _, idx := range numericDate.FindAllStringSubmatchIndex(text, -1) {
		a := atoi(text[idx[2]:idx[3]])
		b := atoi(text[idx[4]:idx[5]])
		yearText := text[idx[6]:idx[7]]
		y := atoi(yearText)
		if len(yearText) == 2 {
			y = expandYear(y, now)
		}

		day, month := a, b
		if order == MonthFirst {
			day, month = b, a
		}
		t, ok := civilDate(y, month, day, now.Location())
		if !ok {
			t, ok = civilDate(y, day, month, now.Location())
		}
		if ok {
			out = append(out, candidate{at: t, offset: idx[0]})
		}
	}
	return out
}

// matchMonthName handles "March 5[, 2021]" and "5 [of] March [2021]". A
// missing year means the current year.
func matchMonthName(text string, now time.Time, _ DateOrder) []candidate {
	var out []candidate
	for _, idx := range monthThenDay.FindAllStringSubmatchIndex(text, -1) {
		month := monthNumber(text[idx[2]:idx[3]])
		day := atoi(text[idx[4]:idx[5]])
		if c, ok := monthNameCandidate(text, idx, idx[6], idx[7], month, day, now); ok {
			out = append(out, c)
		}
	}
	for _, idx := range dayThenMonth.FindAllStringSubmatchIndex(text, -1) {
		day := atoi(text[idx[2]:idx[3]])
		month := monthNumber(text[idx[4]:idx[5]])
		if c, ok := monthNameCandidate(text, idx, idx[6], idx[7], month, day, now); ok {
			out = append(out, c)
		}
	}
	return out
}

func monthNameCandidate(text string, idx []int, ys, ye, month, day int, now time.Time) (candidate, bool) {
	year := now.Year()
	if ys >= 0 {
		year = atoi(text[ys:ye])
	}
	t, ok := civilDate(year, month, day, now.Location())
	if !ok {
		return candidate{}, false
	}
	return candidate{at: t, offset: idx[0]}, true
}

// expandYear maps a two-digit year onto a century: years up to the current
// two-digit year are 20xx, later ones 19xx.
func expandYear(yy int, now time.Time) int {
	cutoff := now.Year() % 100
	if yy <= cutoff {
		return 2000 + yy
	}
	return 1900 + yy
}

// civilDate builds midnight of y-m-d in loc, rejecting impossible dates
// instead of letting time.Date normalise them (31 April is not 1 May).
func civilDate(y, m, d int, loc *time.Location) (time.Time, bool) {
	if y <= 0 || m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	if d > daysIn(y, time.Month(m)) {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc), true
}

func monthNumber(name string) int {
	switch strings.ToLower(name)[:3] {
	case "jan":
		return 1
	case "feb":
		return 2
	case "mar":
		return 3
	case "apr":
		return 4
	case "may":
		return 5
	case "jun":
		return 6
	case "jul":
		return 7
	case "aug":
		return 8
	case "sep":
		return 9
	case "oct":
		return 10
	case "nov":
		return 11
	case "dec":
		return 12
	}
	return 0
}

// atoi returns -1 for anything that is not a small decimal number; callers
// reject it through civilDate.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
