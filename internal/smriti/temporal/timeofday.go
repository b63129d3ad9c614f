package temporal

import (
	"regexp"
	"strings"
)

var (
	atClock   = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?:[:.](\d{2}))?(?:\s*([ap])\.?m\b)?`)
	bareClock = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})(?:\s*([ap])\.?m\b)?`)
	// leadingMonth matches a month name right after a bare "at N": the N is
	// a day ("at 5 March").
	leadingMonth = regexp.MustCompile(`(?i)^\s+(?:of\s+)?(?:` + monthAlternation + `)\b`)
)

// timeOfDay finds the first usable "at H[:MM] [am|pm]" phrase, falling back
// to the first bare "H:MM [am|pm]". Matches that run into more digits or a
// date separator ("at 2020", "at 12/05/80") are not clock times, nor is a
// bare hour followed by a month name ("at 5 March 2021").
func timeOfDay(text string) (hour, minute int, ok bool) {
	for _, re := range []*regexp.Regexp{atClock, bareClock} {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			if runsIntoNumber(text, idx[1]) {
				continue
			}
			if idx[4] < 0 && idx[6] < 0 && leadingMonth.MatchString(text[idx[1]:]) {
				continue
			}
			h := atoi(text[idx[2]:idx[3]])
			m := 0
			if idx[4] >= 0 {
				m = atoi(text[idx[4]:idx[5]])
			}
			meridiem := ""
			if idx[6] >= 0 {
				meridiem = strings.ToLower(text[idx[6]:idx[7]])
			}
			if hh, mm, valid := to24h(h, m, meridiem); valid {
				return hh, mm, true
			}
		}
	}
	return 0, 0, false
}

func runsIntoNumber(text string, end int) bool {
	if end >= len(text) {
		return false
	}
	switch c := text[end]; {
	case c >= '0' && c <= '9', c == '/', c == '-':
		return true
	case c == ':' || c == '.':
		return end+1 < len(text) && text[end+1] >= '0' && text[end+1] <= '9'
	}
	return false
}

// to24h converts a 12-hour reading: 12am is 0, 12pm stays 12.
func to24h(h, m int, meridiem string) (int, int, bool) {
	if m < 0 || m > 59 || h < 0 {
		return 0, 0, false
	}
	switch meridiem {
	case "a":
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if h == 12 {
			h = 0
		}
	case "p":
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if h != 12 {
			h += 12
		}
	default:
		if h > 23 {
			return 0, 0, false
		}
	}
	return h, m, true
}
