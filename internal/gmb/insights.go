package gmb

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"gmbdash/server/internal/analytics"
	"gmbdash/server/internal/db"
	"gmbdash/server/pkg/gbpapi"
)

// ReviewAnalytics is the chart data for a set of reviews.
type ReviewAnalytics struct {
	Granularity   analytics.Granularity `json:"granularity"`
	From          time.Time             `json:"from"`
	To            time.Time             `json:"to"`
	Total         int                   `json:"total"`
	AverageRating float64               `json:"average_rating"`
	ResponseRate  float64               `json:"response_rate"`
	Distribution  map[int]int           `json:"distribution"`
	Sentiment     map[string]int        `json:"sentiment"`
	Buckets       []analytics.Point     `json:"buckets"`
}

// LocationMetrics combines Google's performance series with review analytics.
type LocationMetrics struct {
	LocationID       string                    `json:"location_id"`
	Days             int                       `json:"days"`
	Performance      []analytics.MetricSummary `json:"performance"`
	PerformanceError string                    `json:"performance_error,omitempty"`
	Reviews          *ReviewAnalytics          `json:"reviews"`
}

func buildReviewAnalytics(reviews []db.GMBReview, g analytics.Granularity, from, to time.Time) (*ReviewAnalytics, error) {
	times := make([]time.Time, 0, len(reviews))
	ratings := make([]int, 0, len(reviews))
	sentiment := map[string]int{analytics.Positive: 0, analytics.Neutral: 0, analytics.Negative: 0}
	replied := 0
	for _, r := range reviews {
		times = append(times, r.ReviewTime)
		ratings = append(ratings, r.Rating)
		sentiment[analytics.SentimentFor(r.Rating)]++
		if r.Status == db.ReviewReplied {
			replied++
		}
	}
	buckets, err := analytics.Bucket(times, g, from, to)
	if err != nil {
		return nil, err
	}
	return &ReviewAnalytics{
		Granularity:   g,
		From:          from,
		To:            to,
		Total:         len(reviews),
		AverageRating: analytics.AverageRating(ratings),
		ResponseRate:  analytics.ResponseRate(replied, len(reviews)),
		Distribution:  analytics.RatingDistribution(ratings),
		Sentiment:     sentiment,
		Buckets:       buckets,
	}, nil
}

// ReviewAnalytics buckets the user's reviews of the last days days. An empty
// locationID covers every location.
func (s *Service) ReviewAnalytics(userID, locationID string, g analytics.Granularity, days int) (*ReviewAnalytics, error) {
	if locationID != "" {
		if _, err := s.store.GetLocation(userID, locationID); err != nil {
			return nil, err
		}
	}
	to := s.now().UTC()
	from := to.AddDate(0, 0, -days)
	reviews, err := s.store.ReviewsSince(userID, locationID, from)
	if err != nil {
		return nil, err
	}
	return buildReviewAnalytics(reviews, g, from, to)
}

// LocationMetrics returns daily performance for the last days days plus the
// review analytics of the same window. When Google's performance API fails
// the review half is still returned with PerformanceError set.
func (s *Service) LocationMetrics(ctx context.Context, userID, locationID string, days int) (*LocationMetrics, error) {
	ctx, span := otel.Tracer("gmbdash/gmb").Start(ctx, "gmb.LocationMetrics")
	defer span.End()

	t, err := s.resolve(ctx, userID, locationID)
	if err != nil {
		return nil, err
	}
	to := s.now().UTC()
	from := to.AddDate(0, 0, -days)

	out := &LocationMetrics{LocationID: locationID, Days: days, Performance: []analytics.MetricSummary{}}
	series, err := s.gbp.FetchDailyMetrics(ctx, t.token, t.location.LocationName, gbpapi.DefaultDailyMetrics, from, to)
	if err != nil {
		log.Printf("[gmb] performance metrics for %s: %v", t.location.LocationName, err)
		out.PerformanceError = err.Error()
	} else {
		points := make(map[string][]analytics.SeriesPoint, len(series))
		for metric, values := range series {
			for _, v := range values {
				points[metric] = append(points[metric], analytics.SeriesPoint{Date: v.Date, Value: v.Value})
			}
		}
		out.Performance = analytics.SumSeries(points)
	}

	reviews, err := s.store.ReviewsSince(userID, t.location.ID, from)
	if err != nil {
		return nil, err
	}
	if out.Reviews, err = buildReviewAnalytics(reviews, analytics.Day, from, to); err != nil {
		return nil, err
	}
	return out, nil
}
