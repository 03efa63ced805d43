package recommend

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"gmbdash/server/internal/analytics"
	"gmbdash/server/internal/db"
	"gmbdash/server/internal/notify"
)

// Store is the data the recommender reads and writes; *db.Repository
// satisfies it.
type Store interface {
	ListUsersWithActiveAccounts() ([]string, error)
	ListAccounts(userID string) ([]db.GMBAccount, error)
	ListLocations(userID, accountID string) ([]db.GMBLocation, error)
	PendingReviews(userID, locationID string) ([]db.GMBReview, error)
	LastPublishedAt(userID, locationID string) (*time.Time, error)
	ListQuestions(userID, locationID, status string, page db.Page) ([]db.GMBQuestion, error)
	CountMediaSince(userID, locationID string, since time.Time) (int64, error)
	ReplaceWeekTasks(userID string, week time.Time, tasks []db.WeeklyTaskRecommendation) error
	ListTasks(userID string, week time.Time) ([]db.WeeklyTaskRecommendation, error)
	UpdateTaskStatus(userID, id, status string, at time.Time) (*db.WeeklyTaskRecommendation, error)
	GetProfile(userID string) (*db.ClientProfile, error)
	RecordActivity(userID, activityType, message string, metadata any) error
}

type Service struct {
	store        Store
	mailer       notify.Mailer
	dashboardURL string
	now          func() time.Time
}

func NewService(store Store, mailer notify.Mailer, dashboardURL string) *Service {
	return &Service{store: store, mailer: mailer, dashboardURL: dashboardURL, now: time.Now}
}

func (s *Service) snapshot(userID string, loc db.GMBLocation, now time.Time) (LocationSnapshot, error) {
	snap := LocationSnapshot{
		LocationID:    loc.ID,
		Title:         loc.Title,
		AverageRating: loc.Rating,
		ReviewCount:   loc.ReviewCount,
	}

	pending, err := s.store.PendingReviews(userID, loc.ID)
	if err != nil {
		return snap, errors.Wrap(err, "pending reviews")
	}
	snap.PendingReviews = len(pending)
	for _, r := range pending {
		if analytics.IsNegative(r.Rating) {
			snap.PendingNegative++
		}
		if snap.OldestPending.IsZero() || r.ReviewTime.Before(snap.OldestPending) {
			snap.OldestPending = r.ReviewTime
		}
	}

	if snap.LastPostAt, err = s.store.LastPublishedAt(userID, loc.ID); err != nil {
		return snap, errors.Wrap(err, "last post")
	}

	questions, err := s.store.ListQuestions(userID, loc.ID, db.AnswerPending, db.Page{Limit: 200})
	if err != nil {
		return snap, errors.Wrap(err, "questions")
	}
	snap.UnansweredQuestions = len(questions)

	media, err := s.store.CountMediaSince(userID, loc.ID, now.Add(-mediaWindow))
	if err != nil {
		return snap, errors.Wrap(err, "media")
	}
	snap.RecentMedia = int(media)
	return snap, nil
}

// GenerateForUser recomputes this week's pending tasks and returns the
// week's full list, including tasks already completed or dismissed.
func (s *Service) GenerateForUser(_ context.Context, userID string) ([]db.WeeklyTaskRecommendation, error) {
	now := s.now().UTC()
	week := WeekStart(now)

	locations, err := s.store.ListLocations(userID, "")
	if err != nil {
		return nil, errors.Wrap(err, "list locations")
	}
	snaps := make([]LocationSnapshot, 0, len(locations))
	for _, loc := range locations {
		snap, err := s.snapshot(userID, loc, now)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot %s", loc.Title)
		}
		snaps = append(snaps, snap)
	}

	tasks := Generate(now, snaps)
	rows := make([]db.WeeklyTaskRecommendation, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, db.WeeklyTaskRecommendation{
			LocationID:  t.LocationID,
			TaskType:    t.Type,
			Title:       t.Title,
			Description: t.Description,
			Priority:    t.Priority,
		})
	}
	if err := s.store.ReplaceWeekTasks(userID, week, rows); err != nil {
		return nil, errors.Wrap(err, "store tasks")
	}
	return s.store.ListTasks(userID, week)
}

// RunSummary reports a scheduled run over every user.
type RunSummary struct {
	Users   int
	Failed  int
	Emailed int
}

// GenerateAll refreshes every user with an active account and mails the
// digest to those who opted in.
func (s *Service) GenerateAll(ctx context.Context) (RunSummary, error) {
	users, err := s.store.ListUsersWithActiveAccounts()
	if err != nil {
		return RunSummary{}, errors.Wrap(err, "list users")
	}
	var sum RunSummary
	for _, userID := range users {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Users++
		tasks, err := s.GenerateForUser(ctx, userID)
		if err != nil {
			sum.Failed++
			log.Printf("[recommend] %s: %v", userID, err)
			continue
		}
		sent, err := s.sendDigest(ctx, userID, tasks)
		if err != nil {
			log.Printf("[recommend] digest for %s: %v", userID, err)
			continue
		}
		if sent {
			sum.Emailed++
		}
	}
	return sum, nil
}

func (s *Service) sendDigest(ctx context.Context, userID string, tasks []db.WeeklyTaskRecommendation) (bool, error) {
	if s.mailer == nil {
		return false, nil
	}
	var open []db.WeeklyTaskRecommendation
	for _, t := range tasks {
		if t.Status == db.TaskPending {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return false, nil
	}

	profile, err := s.store.GetProfile(userID)
	if errors.Is(err, db.ErrNotFound) {
		p := db.DefaultProfile(userID)
		profile, err = &p, nil
	}
	if err != nil {
		return false, err
	}
	if !profile.WeeklyDigest {
		return false, nil
	}
	to := profile.ContactEmail
	if to == "" {
		accounts, err := s.store.ListAccounts(userID)
		if err != nil {
			return false, err
		}
		for _, a := range accounts {
			if a.IsActive && a.Email != "" {
				to = a.Email
				break
			}
		}
	}
	if to == "" {
		return false, nil
	}

	titles := map[string]string{}
	if locations, err := s.store.ListLocations(userID, ""); err == nil {
		for _, l := range locations {
			titles[l.ID] = l.Title
		}
	}
	digest := notify.WeeklyDigest{
		BusinessName: profile.BusinessName,
		WeekStart:    open[0].WeekStart,
		DashboardURL: s.dashboardURL + "/recommendations",
	}
	for _, t := range open {
		digest.Tasks = append(digest.Tasks, notify.DigestTask{
			Location:    titles[t.LocationID],
			Title:       t.Title,
			Description: t.Description,
			Priority:    t.Priority,
		})
	}
	msg, err := notify.WeeklyDigestMessage(to, digest)
	if err != nil {
		return false, err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return false, err
	}
	if err := s.store.RecordActivity(userID, "weekly_digest_sent",
		fmt.Sprintf("Sent %d tasks to %s", len(open), to), nil); err != nil {
		log.Printf("[recommend] activity: %v", err)
	}
	return true, nil
}

// Tasks lists the tasks of the week containing week (zero means now).
func (s *Service) Tasks(userID string, week time.Time) ([]db.WeeklyTaskRecommendation, error) {
	if week.IsZero() {
		week = s.now()
	}
	return s.store.ListTasks(userID, WeekStart(week))
}

// SetStatus marks a task completed, dismissed or pending again.
func (s *Service) SetStatus(userID, taskID, status string) (*db.WeeklyTaskRecommendation, error) {
	err := validation.Errors{
		"status": validation.Validate(status, validation.Required, validation.In(db.TaskPending, db.TaskCompleted, db.TaskDismissed)),
	}.Filter()
	if err != nil {
		return nil, err
	}
	return s.store.UpdateTaskStatus(userID, taskID, status, s.now())
}
