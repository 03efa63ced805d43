// Package scheduler runs the background jobs: account sync, scheduled post
// publishing, weekly recommendations and table cleanup.
package scheduler

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"

	"gmbdash/server/internal/gmb"
	"gmbdash/server/internal/observability"
	"gmbdash/server/internal/recommend"
)

// Job names, also used as the metric label.
const (
	JobSync      = "sync_accounts"
	JobPosts     = "publish_due_posts"
	JobRecommend = "weekly_recommendations"
	JobCleanup   = "cleanup"
)

const (
	cleanupSchedule = "0 * * * *"
	jobTimeout      = 30 * time.Minute
	counterMaxAge   = 24 * time.Hour
)

type Syncer interface {
	SyncAll(ctx context.Context) (gmb.SyncSummary, error)
}

type Publisher interface {
	PublishDuePosts(ctx context.Context) (published, failed int, err error)
}

type Recommender interface {
	GenerateAll(ctx context.Context) (recommend.RunSummary, error)
}

// Cleaner prunes short-lived rows; *db.Repository satisfies it.
type Cleaner interface {
	DeleteExpiredStates(now time.Time) (int64, error)
	DeleteCountersBefore(t time.Time) (int64, error)
}

// Schedules are standard five-field cron expressions.
type Schedules struct {
	Sync      string
	Posts     string
	Recommend string
}

type Deps struct {
	Syncer      Syncer
	Publisher   Publisher
	Recommender Recommender
	Cleaner     Cleaner
}

type Scheduler struct {
	cron *cron.Cron
	jobs map[string]func(context.Context) error
	now  func() time.Time

	// ctx is cancelled by Stop so in-flight jobs wind down.
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers every job. Overlapping runs of the same job are skipped.
func New(s Schedules, d Deps) (*Scheduler, error) {
	logger := cron.PrintfLogger(log.New(os.Stdout, "[scheduler] ", log.LstdFlags))
	ctx, cancel := context.WithCancel(context.Background())
	sch := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		jobs:   map[string]func(context.Context) error{},
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}

	sch.jobs[JobSync] = func(ctx context.Context) error {
		sum, err := d.Syncer.SyncAll(ctx)
		log.Printf("[scheduler] synced %d accounts, %d failed", sum.Accounts, sum.Failed)
		return err
	}
	sch.jobs[JobPosts] = func(ctx context.Context) error {
		published, failed, err := d.Publisher.PublishDuePosts(ctx)
		if published+failed > 0 {
			log.Printf("[scheduler] scheduled posts: %d published, %d failed", published, failed)
		}
		return err
	}
	sch.jobs[JobRecommend] = func(ctx context.Context) error {
		sum, err := d.Recommender.GenerateAll(ctx)
		log.Printf("[scheduler] recommendations for %d users, %d failed, %d emailed", sum.Users, sum.Failed, sum.Emailed)
		return err
	}
	sch.jobs[JobCleanup] = func(context.Context) error {
		now := sch.now()
		states, err := d.Cleaner.DeleteExpiredStates(now)
		if err != nil {
			return errors.Wrap(err, "expired states")
		}
		counters, err := d.Cleaner.DeleteCountersBefore(now.Add(-counterMaxAge))
		if err != nil {
			return errors.Wrap(err, "rate limit counters")
		}
		if states+counters > 0 {
			log.Printf("[scheduler] cleanup removed %d states, %d counters", states, counters)
		}
		return nil
	}

	specs := map[string]string{
		JobSync:      s.Sync,
		JobPosts:     s.Posts,
		JobRecommend: s.Recommend,
		JobCleanup:   cleanupSchedule,
	}
	for name, spec := range specs {
		if _, err := sch.cron.AddFunc(spec, func() { _ = sch.Run(name) }); err != nil {
			return nil, errors.Wrapf(err, "schedule %s %q", name, spec)
		}
	}
	return sch, nil
}

// Run executes one job immediately and records its outcome.
func (s *Scheduler) Run(name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return errors.Errorf("unknown job %q", name)
	}
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	start := s.now()
	err := job(ctx)
	observability.RecordJob(name, err)
	if err != nil {
		log.Printf("[scheduler] %s failed after %s: %v", name, s.now().Sub(start).Round(time.Millisecond), err)
		observability.LogError("scheduler."+name, err)
	}
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("[scheduler] started %d jobs", len(s.cron.Entries()))
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Printf("[scheduler] stop timed out with jobs still running")
	}
}
