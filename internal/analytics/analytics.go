// Package analytics turns stored reviews and performance series into the
// bucketed shapes the dashboard charts draw.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/go-faster/errors"
)

// Granularity of a time bucket.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ErrGranularity is returned for anything other than day, week or month.
var ErrGranularity = errors.New("granularity must be day, week or month")

// maxBuckets bounds the zero-filled range.
const maxBuckets = 1000

func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Day, Week, Month:
		return g, nil
	case "":
		return Day, nil
	}
	return "", ErrGranularity
}

// Point is one chart bucket.
type Point struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// Truncate returns the UTC start of the bucket containing t. Weeks start on
// Monday.
func Truncate(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case Week:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

func next(t time.Time, g Granularity) time.Time {
	switch g {
	case Week:
		return t.AddDate(0, 0, 7)
	case Month:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Bucket counts times into consecutive buckets covering [from, to], every
// bucket present even when empty. Times outside the range are ignored.
func Bucket(times []time.Time, g Granularity, from, to time.Time) ([]Point, error) {
	if _, err := ParseGranularity(string(g)); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, errors.New("range end before start")
	}
	start, end := Truncate(from, g), Truncate(to, g)

	var points []Point
	index := map[time.Time]int{}
	for b := start; !b.After(end); b = next(b, g) {
		if len(points) == maxBuckets {
			return nil, errors.Errorf("range spans more than %d %s buckets", maxBuckets, g)
		}
		index[b] = len(points)
		points = append(points, Point{Start: b})
	}

	for _, t := range times {
		if t.Before(from) || t.After(to) {
			continue
		}
		if i, ok := index[Truncate(t, g)]; ok {
			points[i].Count++
		}
	}
	return points, nil
}

// RatingDistribution counts ratings 1 through 5; out-of-range values are
// dropped.
func RatingDistribution(ratings []int) map[int]int {
	dist := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	for _, r := range ratings {
		if r >= 1 && r <= 5 {
			dist[r]++
		}
	}
	return dist
}

// AverageRating rounds to two decimals; 0 for no ratings.
func AverageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return Round2(float64(sum) / float64(len(ratings)))
}

// ResponseRate is replied/total as a percentage with two decimals.
func ResponseRate(replied, total int) float64 {
	if total <= 0 {
		return 0
	}
	return Round2(float64(replied) * 100 / float64(total))
}

// Round2 rounds to two decimal places.
func Round2(f float64) float64 { return math.Round(f*100) / 100 }

// Sentiments derived from star ratings.
const (
	Positive = "positive"
	Neutral  = "neutral"
	Negative = "negative"
)

// SentimentFor maps 4–5 stars to positive, 3 to neutral and 1–2 to negative.
func SentimentFor(rating int) string {
	switch {
	case rating >= 4:
		return Positive
	case rating == 3:
		return Neutral
	case rating >= 1:
		return Negative
	}
	return Neutral
}

// IsNegative reports whether a rating should raise an alert.
func IsNegative(rating int) bool { return SentimentFor(rating) == Negative }

// SeriesPoint is one dated value of a metric.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value int64     `json:"value"`
}

// MetricSummary totals a metric series and keeps it sorted by date.
type MetricSummary struct {
	Metric string        `json:"metric"`
	Total  int64         `json:"total"`
	Series []SeriesPoint `json:"series"`
}

// SumSeries summarises each metric, ordering the result by metric name.
func SumSeries(series map[string][]SeriesPoint) []MetricSummary {
	out := make([]MetricSummary, 0, len(series))
	for metric, points := range series {
		sorted := append([]SeriesPoint(nil), points...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
		var total int64
		for _, p := range sorted {
			total += p.Value
		}
		out = append(out, MetricSummary{Metric: metric, Total: total, Series: sorted})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}
