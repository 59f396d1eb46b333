package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrPlaceholder marks a cell that deliberately carries no value ("-", empty, ...)
var ErrPlaceholder = errors.New("placeholder value")

var (
	leadingComma      = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?,\d`)
	groupedNumber     = regexp.MustCompile(`^[-+]?\d{1,3}(?:,\d{3})+(?:\.\d+)?`)
	stationCodePrefix = regexp.MustCompile(`^[A-Za-z]{1,3}\.?\d+[A-Za-z]?\s*[:\-]?\s+`)
	leadingNumber     = regexp.MustCompile(`^([-+]?\d+(?:\.\d+)?)(.*)$`)
)

var placeholders = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"---":  true,
	"—":    true,
	"–":    true,
	"n/a":  true,
	"na":   true,
	"null": true,
}

// IsPlaceholder reports whether text is one of the "no data" markers used upstream
func IsPlaceholder(text string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(text))]
}

// ParseNumber converts a scraped numeric cell into a float.
//
// Station-code prefixes ("C.3 5.65"), thousands separators and trailing
// units ("5.65 ม.", "439.00/ 2840 cms") are stripped. Placeholders return
// ErrPlaceholder. Anything that is not a clean leading number is an error;
// nothing is ever defaulted to zero.
func ParseNumber(text string) (float64, error) {
	s := strings.TrimSpace(norm.NFKC.String(text))
	if IsPlaceholder(s) {
		return 0, ErrPlaceholder
	}

	s = strings.ReplaceAll(s, "−", "-")
	if loc := stationCodePrefix.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
	}
	// commas are only accepted as well-formed thousands groups; "5,65" is rejected
	if leadingComma.MatchString(s) {
		grouped := groupedNumber.FindString(s)
		rest := s[len(grouped):]
		if grouped == "" || startsWithDigit(rest) ||
			(strings.HasPrefix(rest, ",") && startsWithDigit(rest[1:])) {
			return 0, fmt.Errorf("ambiguous number: %q", text)
		}
		s = strings.ReplaceAll(grouped, ",", "") + rest
	}

	m := leadingNumber.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("not a number: %q", text)
	}
	tail := strings.TrimSpace(m[2])
	if tail != "" && (tail[0] == '.' || (tail[0] >= '0' && tail[0] <= '9')) {
		return 0, fmt.Errorf("ambiguous number: %q", text)
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q: %w", text, err)
	}
	return v, nil
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
