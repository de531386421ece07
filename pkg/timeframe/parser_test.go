package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseExpression_Today(t *testing.T) {
	r, err := ParseExpression("today", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 31), End: day(2026, time.August, 1)}, r)
}

func TestParseExpression_Yesterday(t *testing.T) {
	r, err := ParseExpression("yesterday", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 30), End: day(2026, time.July, 31)}, r)
}

func TestParseExpression_DaysAgo(t *testing.T) {
	r, err := ParseExpression("3 days ago", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 28), End: day(2026, time.July, 29)}, r)
}

func TestParseExpression_FewDaysAgoIsThree(t *testing.T) {
	withCount, err := ParseExpression("few days ago", Sunday, fixedNow)
	require.NoError(t, err)
	explicit, err := ParseExpression("3 days ago", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, explicit, withCount)
}

func TestParseExpression_AnDayAgo(t *testing.T) {
	r, err := ParseExpression("a day ago", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 30), End: day(2026, time.July, 31)}, r)
}

func TestParseExpression_ThisWeekend(t *testing.T) {
	r, err := ParseExpression("this weekend", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 25), End: day(2026, time.July, 27)}, r)
}

func TestParseExpression_LastWeekend(t *testing.T) {
	r, err := ParseExpression("last weekend", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 18), End: day(2026, time.July, 20)}, r)
}

func TestParseExpression_WeekendsAgo(t *testing.T) {
	r, err := ParseExpression("2 weekends ago", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 11), End: day(2026, time.July, 13)}, r)
}

func TestParseExpression_ThisWeek_SundayStart(t *testing.T) {
	r, err := ParseExpression("this week", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 26), End: day(2026, time.August, 2)}, r)
}

func TestParseExpression_ThisWeek_MondayStart(t *testing.T) {
	r, err := ParseExpression("this week", Monday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 27), End: day(2026, time.August, 3)}, r)
}

func TestParseExpression_LastWeek_SundayStart(t *testing.T) {
	r, err := ParseExpression("last week", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 19), End: day(2026, time.July, 26)}, r)
}

func TestParseExpression_WeeksAgo_SundayStart(t *testing.T) {
	r, err := ParseExpression("2 weeks ago", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, Range{Start: day(2026, time.July, 12), End: day(2026, time.July, 19)}, r)
}

func TestParseExpression_Unrecognized(t *testing.T) {
	_, err := ParseExpression("sometime in the spring", Sunday, fixedNow)
	require.Error(t, err)
}

func TestParseExpression_PrefersLongestPhraseOverShadowingMatch(t *testing.T) {
	// "last weekend" must not be shadowed by the looser "last week" pattern.
	r, err := ParseExpression("last weekend", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, day(2026, time.July, 18), r.Start)
	require.Equal(t, day(2026, time.July, 20), r.End)
}

func TestParseAuto_ExtractsExpressionAndCleansQuery(t *testing.T) {
	cleaned, ranges, err := ParseAuto("remind me what I did last week please", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, "remind me what I did please", cleaned)
	require.Equal(t, []Range{{Start: day(2026, time.July, 19), End: day(2026, time.July, 26)}}, ranges)
}

func TestParseAuto_LeadingExpression(t *testing.T) {
	cleaned, ranges, err := ParseAuto("yesterday what did we discuss", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, "what did we discuss", cleaned)
	require.Len(t, ranges, 1)
}

func TestParseAuto_NoRecognizedExpression(t *testing.T) {
	cleaned, ranges, err := ParseAuto("what did we discuss about databases", Sunday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, "what did we discuss about databases", cleaned)
	require.Nil(t, ranges)
}
