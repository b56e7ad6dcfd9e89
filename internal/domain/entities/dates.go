package entities

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the canonical stored form of a full date.
const DateLayout = "2006-01-02"

var reYearOnly = regexp.MustCompile(`^\d{4}$`)

// inputDateLayouts are the accepted spellings of a full date, tried in order.
var inputDateLayouts = []string{
	DateLayout,
	"02.01.2006",
	"2006/01/02",
	time.RFC3339,
}

// NormalizeDate converts an accepted date spelling to its canonical form.
// Year-only values stay as YYYY. Empty input stays empty.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if reYearOnly.MatchString(s) {
		return s, nil
	}
	for _, layout := range inputDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// IsCanonicalDate reports whether s is already in stored form.
func IsCanonicalDate(s string) bool {
	if reYearOnly.MatchString(s) {
		return true
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
