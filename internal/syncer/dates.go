package syncer

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// canonicalDate is the form the catalog stores for date attributes.
const canonicalDate = "2006-01-02"

// strictLayouts are the date forms accepted without natural-language
// parsing. Day-first layouts come after ISO so "2024-03-04" is never read
// as day 2024.
var strictLayouts = []string{
	canonicalDate,
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// parseStrictDate parses a date in one of the known layouts.
func parseStrictDate(value string) (time.Time, error) {
	for _, layout := range strictLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// NormalizeDate converts a date in any accepted form to the canonical
// YYYY-MM-DD form. Known layouts are tried first; anything else falls
// through to natural-language parsing ("last tuesday", "3 weeks ago") so
// operators can paste dates straight from procurement emails.
func NormalizeDate(value string, now time.Time) (string, error) {
	if t, err := parseStrictDate(value); err == nil {
		return t.Format(canonicalDate), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(value, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", value, err)
	}
	if result == nil {
		return "", fmt.Errorf("unrecognized date %q", value)
	}
	return result.Time.Format(canonicalDate), nil
}
