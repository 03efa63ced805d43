package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gmbdash/server/internal/db"
	"gmbdash/server/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%s", a.cfg.Port),
				Handler:           a.handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				log.Printf("Starting dashboard API on port %s (%s)", a.cfg.Port, a.cfg.AppEnv)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			if !noScheduler {
				a.scheduler.Start()
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			sig := <-quit
			log.Printf("Received signal %s, shutting down gracefully...", sig)

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Printf("Server forced to shutdown: %v", err)
			}
			a.close(ctx)

			log.Printf("Server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without running background jobs")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, database, err := bootstrap()
			if err != nil {
				return err
			}
			if err := db.Migrate(database); err != nil {
				return err
			}
			log.Printf("Migrations applied")
			return nil
		},
	}
}

// newRunJobCmd wraps a single job as its own command.
func newRunJobCmd(use, short, job string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(job)
		},
	}
}

func runJob(name string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	return a.scheduler.Run(name)
}

func newJobCmd() *cobra.Command {
	jobs := []string{scheduler.JobSync, scheduler.JobPosts, scheduler.JobRecommend, scheduler.JobCleanup}
	return &cobra.Command{
		Use:       "job <name>",
		Short:     "Run one background job immediately",
		Long:      fmt.Sprintf("Run one background job immediately. Jobs: %v", jobs),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: jobs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(args[0])
		},
	}
}
