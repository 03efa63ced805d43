// Package recommend turns the state of each location into a short list of
// tasks for the week.
package recommend

import (
	"fmt"
	"sort"
	"time"

	"gmbdash/server/internal/analytics"
)

// Task types.
const (
	ReplyReviews    = "reply_reviews"
	CreatePost      = "create_post"
	AnswerQuestions = "answer_questions"
	AddPhotos       = "add_photos"
	ImproveRating   = "improve_rating"
)

// Priorities.
const (
	High   = "high"
	Medium = "medium"
	Low    = "low"
)

const (
	staleReviewAge  = 48 * time.Hour
	postInterval    = 7 * 24 * time.Hour
	mediaWindow     = 30 * 24 * time.Hour
	minRecentMedia  = 5
	ratingFloor     = 4.0
	minRatedReviews = 5
)

// LocationSnapshot is what the rules look at for one location.
type LocationSnapshot struct {
	LocationID    string
	Title         string
	AverageRating float64
	ReviewCount   int

	PendingReviews  int
	PendingNegative int
	OldestPending   time.Time

	LastPostAt          *time.Time
	UnansweredQuestions int
	RecentMedia         int
}

type Task struct {
	LocationID    string
	LocationTitle string
	Type          string
	Title         string
	Description   string
	Priority      string
}

var priorityRank = map[string]int{High: 0, Medium: 1, Low: 2}

// WeekStart is the Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	return analytics.Truncate(t, analytics.Week)
}

// Generate applies the weekly rules to every location as of now. Tasks are
// ordered by priority, then location.
func Generate(now time.Time, locations []LocationSnapshot) []Task {
	var tasks []Task
	for _, loc := range locations {
		add := func(kind, priority, title, description string) {
			tasks = append(tasks, Task{
				LocationID:    loc.LocationID,
				LocationTitle: loc.Title,
				Type:          kind,
				Title:         title,
				Description:   description,
				Priority:      priority,
			})
		}

		if loc.PendingReviews > 0 {
			priority := Medium
			if loc.PendingNegative > 0 || (!loc.OldestPending.IsZero() && now.Sub(loc.OldestPending) > staleReviewAge) {
				priority = High
			}
			desc := fmt.Sprintf("%d review(s) at %s are waiting for a reply.", loc.PendingReviews, loc.Title)
			if loc.PendingNegative > 0 {
				desc += fmt.Sprintf(" %d of them are negative.", loc.PendingNegative)
			}
			add(ReplyReviews, priority, "Reply to pending reviews", desc)
		}

		if loc.LastPostAt == nil || now.Sub(*loc.LastPostAt) > postInterval {
			add(CreatePost, Medium, "Publish a new post",
				fmt.Sprintf("%s has not published a post in the last 7 days.", loc.Title))
		}

		if loc.UnansweredQuestions > 0 {
			add(AnswerQuestions, Medium, "Answer customer questions",
				fmt.Sprintf("%d question(s) at %s have no owner answer.", loc.UnansweredQuestions, loc.Title))
		}

		if loc.RecentMedia < minRecentMedia {
			add(AddPhotos, Low, "Add new photos",
				fmt.Sprintf("%s added %d photo(s) or video(s) in the last 30 days. Aim for at least %d.", loc.Title, loc.RecentMedia, minRecentMedia))
		}

		if loc.ReviewCount >= minRatedReviews && loc.AverageRating < ratingFloor {
			add(ImproveRating, High, "Work on your rating",
				fmt.Sprintf("%s averages %.1f stars across %d reviews.", loc.Title, loc.AverageRating, loc.ReviewCount))
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if pi, pj := priorityRank[tasks[i].Priority], priorityRank[tasks[j].Priority]; pi != pj {
			return pi < pj
		}
		return tasks[i].LocationTitle < tasks[j].LocationTitle
	})
	return tasks
}
