// Package timeframe implements a hand-written parser, an ordered table of
// regular expressions, for the
// timeframe grammar named in spec.md §6 and §9: a closed set of units,
// modifiers, and idioms ("few", "weekend") rather than a general NLP
// library, following the teacher's own preference for hand-written parsers
// over generic dependencies where the domain is this narrow.
package timeframe

import (
	"fmt"
	"time"
)

// WeekStart names which day a calendar week begins on, controlling how
// "last week" and weekend expressions are resolved.
type WeekStart string

const (
	Sunday WeekStart = "sunday"
	Monday WeekStart = "monday"
)

// Range is a half-open [Start, End) interval.
type Range struct {
	Start time.Time
	End   time.Time
}

// Interval is the caller-supplied (start, end) form of the timeframe
// grammar (spec.md §6 "(start, end) interval").
type Interval struct {
	Start time.Time
	End   time.Time
}

// fewDays is the constant the grammar assigns to the word "few" (spec.md §6:
// `"few days ago" where "few" = 3`).
const fewDays = 3

// Parse converts a caller-supplied timeframe value into zero or more
// half-open ranges, OR'd together by the caller. Accepted input shapes
// (spec.md §6):
//
//   - nil: no filter, returns (nil, nil).
//   - time.Time: that calendar day.
//   - Interval: the given (start, end) pair, used verbatim.
//   - string: a natural-language expression, parsed via ParseExpression.
//   - []any: a list of any of the above, OR'd together.
//
// ":auto" is NOT accepted here — it is resolved by ParseAuto, which also
// extracts the timeframe from free text and returns the remaining query.
func Parse(input any, weekStart WeekStart, now time.Time) ([]Range, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return []Range{dayRange(v)}, nil
	case Interval:
		return []Range{{Start: v.Start, End: v.End}}, nil
	case string:
		if v == ":auto" {
			return nil, fmt.Errorf("timeframe: %q must be resolved via ParseAuto, not Parse", v)
		}
		r, err := ParseExpression(v, weekStart, now)
		if err != nil {
			return nil, err
		}
		return []Range{r}, nil
	case []any:
		var out []Range
		for _, item := range v {
			rs, err := Parse(item, weekStart, now)
			if err != nil {
				return nil, err
			}
			out = append(out, rs...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("timeframe: unsupported input type %T", input)
	}
}

// dayRange returns the half-open [00:00, next 00:00) range covering the
// calendar day of t, in t's own location.
func dayRange(t time.Time) Range {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return Range{Start: start, End: start.AddDate(0, 0, 1)}
}
