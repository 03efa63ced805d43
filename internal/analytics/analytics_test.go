package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestTruncate(t *testing.T) {
	// 2026-03-05 is a Thursday.
	ts := time.Date(2026, 3, 5, 17, 45, 0, 0, time.UTC)
	assert.Equal(t, day(2026, 3, 5), Truncate(ts, Day))
	assert.Equal(t, day(2026, 3, 2), Truncate(ts, Week))
	assert.Equal(t, day(2026, 3, 1), Truncate(ts, Month))

	sunday := time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, day(2026, 3, 2), Truncate(sunday, Week))

	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, day(2026, 3, 4), Truncate(time.Date(2026, 3, 5, 3, 0, 0, 0, tokyo), Day))
}

func TestBucketZeroFills(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC),
	}
	points, err := Bucket(times, Day, day(2026, 3, 1), time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 4)
	counts := []int{points[0].Count, points[1].Count, points[2].Count, points[3].Count}
	assert.Equal(t, []int{2, 0, 1, 0}, counts)
}

func TestBucketWeeksAndMonths(t *testing.T) {
	times := []time.Time{day(2026, 1, 5), day(2026, 1, 11), day(2026, 1, 12), day(2026, 2, 14)}

	weeks, err := Bucket(times, Week, day(2026, 1, 5), day(2026, 1, 25))
	require.NoError(t, err)
	require.Len(t, weeks, 3)
	assert.Equal(t, day(2026, 1, 12), weeks[1].Start)
	assert.Equal(t, 2, weeks[0].Count)
	assert.Equal(t, 1, weeks[1].Count)

	months, err := Bucket(times, Month, day(2026, 1, 1), day(2026, 3, 31))
	require.NoError(t, err)
	require.Len(t, months, 3)
	assert.Equal(t, []int{3, 1, 0}, []int{months[0].Count, months[1].Count, months[2].Count})
}

func TestBucketErrors(t *testing.T) {
	_, err := Bucket(nil, "year", day(2026, 1, 1), day(2026, 2, 1))
	assert.ErrorIs(t, err, ErrGranularity)

	_, err = Bucket(nil, Day, day(2026, 2, 1), day(2026, 1, 1))
	assert.Error(t, err)

	_, err = Bucket(nil, Day, day(2020, 1, 1), day(2026, 1, 1))
	assert.Error(t, err)
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, Day, g)
	g, err = ParseGranularity("month")
	require.NoError(t, err)
	assert.Equal(t, Month, g)
	_, err = ParseGranularity("hour")
	assert.Error(t, err)
}

func TestRatingAggregates(t *testing.T) {
	ratings := []int{5, 4, 4, 1, 0, 7}
	assert.Equal(t, map[int]int{1: 1, 2: 0, 3: 0, 4: 2, 5: 1}, RatingDistribution(ratings))
	assert.Equal(t, 3.33, AverageRating([]int{5, 4, 1}))
	assert.Equal(t, 0.0, AverageRating(nil))
	assert.Equal(t, 66.67, ResponseRate(2, 3))
	assert.Equal(t, 0.0, ResponseRate(0, 0))
}

func TestSentimentFor(t *testing.T) {
	tests := map[int]string{5: Positive, 4: Positive, 3: Neutral, 2: Negative, 1: Negative, 0: Neutral}
	for rating, want := range tests {
		assert.Equal(t, want, SentimentFor(rating), "rating %d", rating)
	}
	assert.True(t, IsNegative(2))
	assert.False(t, IsNegative(3))
}

func TestSumSeries(t *testing.T) {
	out := SumSeries(map[string][]SeriesPoint{
		"WEBSITE_CLICKS": {{Date: day(2026, 3, 2), Value: 3}, {Date: day(2026, 3, 1), Value: 4}},
		"CALL_CLICKS":    {{Date: day(2026, 3, 1), Value: 1}},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "CALL_CLICKS", out[0].Metric)
	assert.Equal(t, int64(7), out[1].Total)
	assert.Equal(t, day(2026, 3, 1), out[1].Series[0].Date)
}
