package gmb

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"gmbdash/server/internal/analytics"
	"gmbdash/server/internal/db"
	"gmbdash/server/internal/notify"
	"gmbdash/server/internal/observability"
	"gmbdash/server/pkg/gbpapi"
)

// maxAlertsPerSync caps negative review emails from a single sync.
const maxAlertsPerSync = 10

// SyncResult summarises one account sync. Per-location failures are listed
// in Errors rather than failing the whole run.
type SyncResult struct {
	AccountID  string    `json:"account_id"`
	Locations  int       `json:"locations"`
	Reviews    int       `json:"reviews"`
	NewReviews int       `json:"new_reviews"`
	Posts      int       `json:"posts"`
	Questions  int       `json:"questions"`
	Media      int       `json:"media"`
	Errors     []string  `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r *SyncResult) counts() map[string]int {
	return map[string]int{
		"locations":   r.Locations,
		"reviews":     r.Reviews,
		"new_reviews": r.NewReviews,
		"posts":       r.Posts,
		"questions":   r.Questions,
		"media":       r.Media,
	}
}

type alert struct {
	location string
	review   db.GMBReview
}

// SyncAccount pulls locations and their reviews, posts, questions and media
// for one account.
func (s *Service) SyncAccount(ctx context.Context, userID, accountID string) (*SyncResult, error) {
	ctx, span := otel.Tracer("gmbdash/gmb").Start(ctx, "gmb.SyncAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	start := s.now()
	result := &SyncResult{AccountID: accountID, Errors: []string{}, StartedAt: start}

	acct, err := s.store.GetAccount(userID, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, ErrAccountDisabled
	}
	tok, err := s.tokens.Token(ctx, userID, db.ProviderGoogle)
	if err != nil {
		observability.RecordSyncFailure()
		return nil, err
	}

	locations, err := s.gbp.ListLocations(ctx, tok.AccessToken, acct.AccountName)
	if err != nil {
		observability.RecordSyncFailure()
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "list locations")
	}

	var (
		mu     sync.Mutex
		alerts []alert
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.syncParallel)
	for _, l := range locations {
		g.Go(func() error {
			loc := locationFromAPI(userID, acct.ID, l)
			if err := s.store.UpsertLocation(loc); err != nil {
				mu.Lock()
				result.Errors = append(result.Errors, fmt.Sprintf("%s: store location: %v", l.Title, err))
				mu.Unlock()
				return nil
			}
			ls := s.syncLocation(gctx, tok.AccessToken, acct, loc)

			mu.Lock()
			defer mu.Unlock()
			result.Locations++
			result.Reviews += ls.reviews
			result.NewReviews += ls.newReviews
			result.Posts += ls.posts
			result.Questions += ls.questions
			result.Media += ls.media
			for _, e := range ls.errs {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", loc.Title, e))
			}
			for _, r := range ls.negative {
				alerts = append(alerts, alert{location: loc.Title, review: r})
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		observability.RecordSyncFailure()
		return nil, err
	}

	finished := s.now()
	result.FinishedAt = finished
	if err := s.store.TouchAccountSync(userID, accountID, finished); err != nil {
		log.Printf("[gmb] touch account sync: %v", err)
	}
	s.sendAlerts(ctx, userID, acct, alerts)

	duration := finished.Sub(start)
	observability.RecordSync(len(result.Errors) > 0, duration)
	observability.LogSync(userID, accountID, result.counts(), result.Errors, duration)
	s.activity(userID, "gmb_synced",
		fmt.Sprintf("Synced %d locations, %d reviews (%d new)", result.Locations, result.Reviews, result.NewReviews),
		result.counts())
	if len(result.Errors) > 0 {
		span.SetStatus(codes.Error, "partial sync")
	}
	return result, nil
}

type locationSync struct {
	reviews, newReviews, posts, questions, media int

	negative []db.GMBReview
	errs     []error
}

// syncLocation runs each step independently so one disabled API does not
// hide the others.
func (s *Service) syncLocation(ctx context.Context, token string, acct *db.GMBAccount, loc *db.GMBLocation) locationSync {
	ctx, span := otel.Tracer("gmbdash/gmb").Start(ctx, "gmb.syncLocation")
	defer span.End()
	span.SetAttributes(attribute.String("location.name", loc.LocationName))

	var out locationSync
	fail := func(step string, err error) {
		out.errs = append(out.errs, errors.Wrap(err, step))
	}

	if list, err := s.gbp.ListReviews(ctx, token, acct.AccountName, loc.LocationName); err != nil {
		fail("reviews", err)
	} else if err := s.storeReviews(loc, list.Reviews, list.AverageRating, list.TotalReviewCount, &out); err != nil {
		fail("store reviews", err)
	}

	if posts, err := s.gbp.ListLocalPosts(ctx, token, acct.AccountName, loc.LocationName); err != nil {
		fail("posts", err)
	} else {
		rows := make([]db.GMBPost, 0, len(posts))
		for _, p := range posts {
			rows = append(rows, postFromAPI(loc.UserID, loc.ID, p))
		}
		if err := s.store.UpsertRemotePosts(rows); err != nil {
			fail("store posts", err)
		} else {
			out.posts = len(rows)
		}
	}

	if questions, err := s.gbp.ListQuestions(ctx, token, loc.LocationName); err != nil {
		fail("questions", err)
	} else {
		rows := make([]db.GMBQuestion, 0, len(questions))
		for _, q := range questions {
			rows = append(rows, questionFromAPI(loc.UserID, loc.ID, q))
		}
		if err := s.store.UpsertQuestions(rows); err != nil {
			fail("store questions", err)
		} else {
			out.questions = len(rows)
		}
	}

	if media, err := s.gbp.ListMedia(ctx, token, acct.AccountName, loc.LocationName); err != nil {
		fail("media", err)
	} else {
		rows := make([]db.GMBMedia, 0, len(media))
		for _, m := range media {
			rows = append(rows, mediaFromAPI(loc.UserID, loc.ID, m))
		}
		if err := s.store.UpsertMedia(rows); err != nil {
			fail("store media", err)
		} else {
			out.media = len(rows)
		}
	}

	if len(out.errs) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d steps failed", len(out.errs)))
	}
	return out
}

// storeReviews upserts reviews and the location's rating summary. New
// negative reviews are reported only when the location already has stored
// reviews, so the first import does not flood the owner.
func (s *Service) storeReviews(loc *db.GMBLocation, reviews []gbpapi.Review, average float64, total int, out *locationSync) error {
	seen, err := s.store.ExistingReviewIDs(loc.UserID, loc.ID)
	if err != nil {
		return err
	}
	rows := make([]db.GMBReview, 0, len(reviews))
	ratings := make([]int, 0, len(reviews))
	for _, r := range reviews {
		row := reviewFromAPI(loc.UserID, loc.ID, r)
		rows = append(rows, row)
		ratings = append(ratings, row.Rating)
		if seen[row.ReviewID] {
			continue
		}
		out.newReviews++
		if len(seen) > 0 && analytics.IsNegative(row.Rating) {
			out.negative = append(out.negative, row)
		}
	}
	if err := s.store.UpsertReviews(rows); err != nil {
		return err
	}
	out.reviews = len(rows)

	if total == 0 {
		total, average = len(ratings), analytics.AverageRating(ratings)
	}
	return s.store.UpdateLocationStats(loc.UserID, loc.ID, average, total, s.now())
}

func (s *Service) sendAlerts(ctx context.Context, userID string, acct *db.GMBAccount, alerts []alert) {
	if len(alerts) == 0 || s.mailer == nil {
		return
	}
	profile, err := s.store.GetProfile(userID)
	if errors.Is(err, db.ErrNotFound) {
		p := db.DefaultProfile(userID)
		profile, err = &p, nil
	}
	if err != nil {
		log.Printf("[gmb] load profile for alerts: %v", err)
		return
	}
	if !profile.NotifyNegativeReviews {
		return
	}
	to := profile.ContactEmail
	if to == "" {
		to = acct.Email
	}
	if to == "" {
		return
	}

	if len(alerts) > maxAlertsPerSync {
		alerts = alerts[:maxAlertsPerSync]
	}
	for _, a := range alerts {
		msg, err := notify.NegativeReviewAlert(to, notify.NegativeReview{
			BusinessName:  profile.BusinessName,
			LocationTitle: a.location,
			Reviewer:      a.review.ReviewerName,
			Rating:        a.review.Rating,
			Comment:       a.review.Comment,
			ReviewTime:    a.review.ReviewTime,
			DashboardURL:  s.dashboardURL + "/reviews",
		})
		if err == nil {
			err = s.mailer.Send(ctx, msg)
		}
		if err != nil {
			log.Printf("[gmb] negative review alert: %v", err)
			continue
		}
		s.activity(userID, "review_alert_sent",
			fmt.Sprintf("Alerted %s about a %d-star review at %s", to, a.review.Rating, a.location), nil)
	}
}

// SyncSummary reports a scheduled sync over every active account.
type SyncSummary struct {
	Accounts int
	Failed   int
}

// SyncAll syncs every active account in turn. Individual failures are logged
// and counted.
func (s *Service) SyncAll(ctx context.Context) (SyncSummary, error) {
	accounts, err := s.store.ListActiveAccounts()
	if err != nil {
		return SyncSummary{}, errors.Wrap(err, "list active accounts")
	}
	var sum SyncSummary
	for _, a := range accounts {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Accounts++
		res, err := s.SyncAccount(ctx, a.UserID, a.ID)
		if err != nil {
			sum.Failed++
			log.Printf("[gmb] sync %s failed: %v", a.ID, err)
			continue
		}
		if len(res.Errors) > 0 {
			log.Printf("[gmb] sync %s partial: %d errors", a.ID, len(res.Errors))
		}
	}
	return sum, nil
}
