package main

import (
	"context"
	"log"
	"time"

	"github.com/go-faster/errors"
	"gorm.io/gorm"

	"gmbdash/server/internal/api"
	"gmbdash/server/internal/auth"
	"gmbdash/server/internal/broker"
	"gmbdash/server/internal/config"
	"gmbdash/server/internal/db"
	"gmbdash/server/internal/gmb"
	"gmbdash/server/internal/google"
	"gmbdash/server/internal/middleware"
	"gmbdash/server/internal/notify"
	"gmbdash/server/internal/observability"
	"gmbdash/server/internal/recommend"
	"gmbdash/server/internal/scheduler"
	"gmbdash/server/internal/storage"
	"gmbdash/server/internal/youtube"
	"gmbdash/server/pkg/gbpapi"
	"gmbdash/server/pkg/googleapi"
	"gmbdash/server/pkg/youtubeapi"
)

// app holds every long-lived component of the process.
type app struct {
	cfg       *config.Config
	database  *gorm.DB
	scheduler *scheduler.Scheduler
	handler   *api.Handler
	limiter   middleware.Limiter
}

// bootstrap loads configuration and connects to the database. It is the
// common prefix of every command.
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load config")
	}
	observability.Init(observability.LokiConfig{
		URL:    cfg.LokiURL,
		User:   cfg.LokiUser,
		APIKey: cfg.LokiAPIKey,
	})
	if err := db.SetEncryptionKey(cfg.EncryptionKey); err != nil {
		return nil, nil, errors.Wrap(err, "credential encryption")
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Database connected")
	return cfg, database, nil
}

func newApp() (*app, error) {
	cfg, database, err := bootstrap()
	if err != nil {
		return nil, err
	}
	repo := db.NewRepository(database)

	oauth := google.NewOAuth(cfg)
	connector := google.NewConnector(repo, oauth)
	tokens := broker.NewTokenBroker(repo, oauth)
	profiles := broker.NewProfileBroker(repo)

	gbp := gbpapi.New(googleapi.NewTransport("gbp", googleapi.WithObserver(observability.RecordAPICall)), gbpapi.DefaultEndpoints)
	yt := youtubeapi.New(googleapi.NewTransport("youtube", googleapi.WithObserver(observability.RecordAPICall)), youtubeapi.DefaultBaseURL)

	media, err := storage.NewMediaStore(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.MediaBucket)
	if err != nil {
		return nil, err
	}
	mailer, err := notify.New(cfg)
	if err != nil {
		return nil, err
	}

	gmbService := gmb.NewService(gmb.Deps{
		Store:        repo,
		GBP:          gbp,
		Tokens:       tokens,
		Connector:    connector,
		Media:        media,
		Mailer:       mailer,
		Profiles:     profiles,
		DashboardURL: cfg.DashboardURL,
	})
	ytService := youtube.NewService(yt, tokens, connector, repo, profiles)
	recommender := recommend.NewService(repo, mailer, cfg.DashboardURL)

	sch, err := scheduler.New(scheduler.Schedules{
		Sync:      cfg.SyncSchedule,
		Posts:     cfg.ScheduledPostsSchedule,
		Recommend: cfg.RecommendSchedule,
	}, scheduler.Deps{
		Syncer:      gmbService,
		Publisher:   gmbService,
		Recommender: recommender,
		Cleaner:     repo,
	})
	if err != nil {
		return nil, err
	}

	var limiter middleware.Limiter
	switch cfg.RateLimitBackend {
	case "postgres":
		limiter = middleware.NewPostgresLimiter(repo, cfg.RateLimitPerMinute, time.Minute)
	default:
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	authorizer := middleware.NewAuthorizer(auth.NewSessionVerifier(cfg.SupabaseJWTSecret, cfg.SupabaseJWKSURL))
	handler := api.NewHandler(api.Deps{
		Store:          repo,
		GMB:            gmbService,
		YouTube:        ytService,
		Recommender:    recommender,
		OAuth:          connector,
		Profiles:       profiles,
		Authorize:      authorizer.Authorize,
		Limiter:        limiter,
		Health:         func(ctx context.Context) error { return db.HealthCheck(ctx, database) },
		DashboardURL:   cfg.DashboardURL,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	return &app{
		cfg:       cfg,
		database:  database,
		scheduler: sch,
		handler:   handler,
		limiter:   limiter,
	}, nil
}

// close releases background resources once the server has drained.
func (a *app) close(ctx context.Context) {
	a.scheduler.Stop(ctx)
	if rl, ok := a.limiter.(*middleware.RateLimiter); ok {
		rl.Stop()
	}
	if sqlDB, err := a.database.DB(); err == nil {
		sqlDB.Close()
	}
}
