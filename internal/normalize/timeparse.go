package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layouts tried in order for source-local timestamps without an offset
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006/01/02 15:04",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2-1-2006 15:04",
	"2.1.2006 15:04",
}

var (
	buddhistYear = regexp.MustCompile(`\b(2[4-9]\d\d)\b`)
	thaiHourMark = regexp.MustCompile(`\s*น\.?\s*$`)
)

// ParseObservedAt turns a source timestamp into an absolute instant.
// Text with an explicit offset is honoured as-is; anything else is read as
// wall-clock time in loc. Thai Buddhist-era years are converted to CE.
func ParseObservedAt(text string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	s = thaiHourMark.ReplaceAllString(s, "")
	s = buddhistYear.ReplaceAllStringFunc(s, func(y string) string {
		n, _ := strconv.Atoi(y)
		return strconv.Itoa(n - 543)
	})
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", text)
}

// LoadLocation resolves a zone name, falling back to a fixed offset for
// Asia/Bangkok when the host has no tz database.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = "Asia/Bangkok"
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == "Asia/Bangkok" {
		return time.FixedZone("ICT", 7*60*60), nil
	}
	return nil, fmt.Errorf("failed to load time zone %q: %w", name, err)
}
