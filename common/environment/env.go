// Package environment reads the settings of the smriti and recalld binaries
// from environment variables.
//
// The *Or helpers fall back to a default when a variable is unset, blank or
// unparsable. The Override helpers layer variables over values loaded from
// a config file and leave the file value alone when the variable is unset.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// lookup returns the trimmed value of name and whether it is non-blank.
func lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func parseOr[T any](name string, def T, parse func(string) (T, error)) T {
	v, ok := lookup(name)
	if !ok {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

// StringOr returns the variable, or def when it is unset or blank.
func StringOr(name, def string) string {
	if v, ok := lookup(name); ok {
		return v
	}
	return def
}

// IntOr parses the variable as a decimal integer (RECALL_TOP_K).
func IntOr(name string, def int) int {
	return parseOr(name, def, strconv.Atoi)
}

// DurationOr parses the variable with time.ParseDuration, e.g. "90s".
func DurationOr(name string, def time.Duration) time.Duration {
	return parseOr(name, def, time.ParseDuration)
}

// StringSliceOr splits a comma-separated variable such as MATRIX_ROOMS,
// dropping blank elements. def is returned when nothing is left.
func StringSliceOr(name string, def []string) []string {
	v, ok := lookup(name)
	if !ok {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// OneOfOr returns the variable lower-cased, or def when unset. A value
// outside allowed is an error rather than a silent fallback, so a typo in
// LOG_LEVEL or SMRITI_DATE_ORDER stops the binary at startup.
func OneOfOr(name, def string, allowed ...string) (string, error) {
	v, ok := lookup(name)
	if !ok {
		return def, nil
	}
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == strings.ToLower(a) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), v)
}

// OverrideString replaces *dst when the variable is set.
func OverrideString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

// OverrideStringSlice replaces *dst when the variable holds at least one
// element.
func OverrideStringSlice(dst *[]string, name string) {
	*dst = StringSliceOr(name, *dst)
}
