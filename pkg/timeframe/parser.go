package timeframe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// exprPattern pairs a regexp recognizing one grammar phrase with the parser
// that turns a match into a Range. Patterns are tried longest-phrase-first
// so "last weekend" is not shadowed by a looser "last week" match.
type exprPattern struct {
	re    *regexp.Regexp
	parse func(match []string, weekStart WeekStart, now time.Time) (Range, error)
}

var patterns = []exprPattern{
	{regexp.MustCompile(`(?i)\blast weekend\b`), func(_ []string, _ WeekStart, now time.Time) (Range, error) {
		return weekendContaining(now.AddDate(0, 0, -7)), nil
	}},
	{regexp.MustCompile(`(?i)\bthis weekend\b`), func(_ []string, _ WeekStart, now time.Time) (Range, error) {
		return weekendContaining(now), nil
	}},
	{regexp.MustCompile(`(?i)\b(\d+|a|an|few)\s+weekends?\s+ago\b`), func(m []string, _ WeekStart, now time.Time) (Range, error) {
		n, err := parseCount(m[1])
		if err != nil {
			return Range{}, err
		}
		return weekendContaining(now.AddDate(0, 0, -7*n)), nil
	}},
	{regexp.MustCompile(`(?i)\blast week\b`), func(_ []string, weekStart WeekStart, now time.Time) (Range, error) {
		return weekRange(now.AddDate(0, 0, -7), weekStart), nil
	}},
	{regexp.MustCompile(`(?i)\bthis week\b`), func(_ []string, weekStart WeekStart, now time.Time) (Range, error) {
		return weekRange(now, weekStart), nil
	}},
	{regexp.MustCompile(`(?i)\b(\d+|a|an|few)\s+weeks?\s+ago\b`), func(m []string, weekStart WeekStart, now time.Time) (Range, error) {
		n, err := parseCount(m[1])
		if err != nil {
			return Range{}, err
		}
		return weekRange(now.AddDate(0, 0, -7*n), weekStart), nil
	}},
	{regexp.MustCompile(`(?i)\byesterday\b`), func(_ []string, _ WeekStart, now time.Time) (Range, error) {
		return dayRange(now.AddDate(0, 0, -1)), nil
	}},
	{regexp.MustCompile(`(?i)\b(\d+|a|an|few)\s+days?\s+ago\b`), func(m []string, _ WeekStart, now time.Time) (Range, error) {
		n, err := parseCount(m[1])
		if err != nil {
			return Range{}, err
		}
		return dayRange(now.AddDate(0, 0, -n)), nil
	}},
	{regexp.MustCompile(`(?i)\btoday\b`), func(_ []string, _ WeekStart, now time.Time) (Range, error) {
		return dayRange(now), nil
	}},
}

// ParseExpression resolves a single natural-language timeframe expression
// (spec.md §6: "yesterday", "last week", "few days ago", "last weekend",
// "N weekends ago", ...) to a concrete Range.
func ParseExpression(expr string, weekStart WeekStart, now time.Time) (Range, error) {
	for _, p := range patterns {
		if loc := p.re.FindStringSubmatchIndex(expr); loc != nil {
			match := submatches(expr, loc)
			return p.parse(match, weekStart, now)
		}
	}
	return Range{}, fmt.Errorf("timeframe: unrecognized expression %q", expr)
}

// ParseAuto implements the ":auto" form (spec.md §6): it extracts the first
// recognized time expression from query, returning the range it denotes and
// the query text with that expression removed and whitespace collapsed.
func ParseAuto(query string, weekStart WeekStart, now time.Time) (cleanedQuery string, ranges []Range, err error) {
	for _, p := range patterns {
		loc := p.re.FindStringSubmatchIndex(query)
		if loc == nil {
			continue
		}
		match := submatches(query, loc)
		r, err := p.parse(match, weekStart, now)
		if err != nil {
			return query, nil, err
		}
		cleaned := query[:loc[0]] + " " + query[loc[1]:]
		cleaned = collapseWhitespace(cleaned)
		return cleaned, []Range{r}, nil
	}
	// No recognized expression: the full query stands, no filter applied.
	return query, nil, nil
}

func submatches(s string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			continue
		}
		out[i] = s[start:end]
	}
	return out
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func parseCount(word string) (int, error) {
	switch strings.ToLower(word) {
	case "a", "an":
		return 1, nil
	case "few":
		return fewDays, nil
	default:
		n, err := strconv.Atoi(word)
		if err != nil {
			return 0, fmt.Errorf("timeframe: invalid count %q: %w", word, err)
		}
		return n, nil
	}
}

// weekRange returns the [start, end) range of the calendar week containing
// t, per weekStart.
func weekRange(t time.Time, weekStart WeekStart) Range {
	start := startOfWeek(t, weekStart)
	return Range{Start: start, End: start.AddDate(0, 0, 7)}
}

// startOfWeek returns midnight on the first day of the week containing t.
func startOfWeek(t time.Time, weekStart WeekStart) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())

	wd := int(midnight.Weekday()) // Sunday=0 ... Saturday=6
	var offset int
	if weekStart == Monday {
		offset = (wd + 6) % 7 // days since Monday
	} else {
		offset = wd // days since Sunday
	}
	return midnight.AddDate(0, 0, -offset)
}

// weekendContaining returns the [Saturday 00:00, Monday 00:00) range for the
// weekend nearest to, and not after, t.
func weekendContaining(t time.Time) Range {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())

	wd := int(midnight.Weekday()) // Sunday=0 ... Saturday=6
	daysSinceSaturday := (wd - 6 + 7) % 7
	saturday := midnight.AddDate(0, 0, -daysSinceSaturday)
	return Range{Start: saturday, End: saturday.AddDate(0, 0, 2)}
}
