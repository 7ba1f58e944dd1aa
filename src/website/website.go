package website

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"git.handmade.network/hmn/forum/src/auth"
	"git.handmade.network/hmn/forum/src/config"
	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/jobs"
	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/perf"
	"git.handmade.network/hmn/forum/src/search"
	"git.handmade.network/hmn/forum/src/templates"
	"github.com/spf13/cobra"
)

const reindexInterval = 30 * time.Second

var WebsiteCommand = &cobra.Command{
	Short: "Run the forum",
	Run: func(cmd *cobra.Command, args []string) {
		defer logging.LogPanics(nil)
		logging.Info().Msg("Starting the forum")

		templates.Init()

		var wg sync.WaitGroup

		conn := db.NewConnPool()
		perfCollector := perf.RunPerfCollector()

		startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
		services, redisClient, err := NewServices(startupCtx, config.Config, forumdata.DBSettings{Conn: conn})
		cancelStartup()
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to set up services")
		}

		// Start background jobs
		wg.Add(1)
		backgroundJobs := jobs.Jobs{
			auth.PeriodicallyDeleteExpiredSessions(conn),
			perfCollector.Job,
			search.RunReindexer(conn, services.Search, reindexInterval),
		}

		// Create HTTP server
		wg.Add(1)
		server := http.Server{
			Addr:    config.Config.Addr,
			Handler: NewWebsiteRoutes(conn, perfCollector, services),
		}
		go func() {
			logging.Info().Str("addr", config.Config.Addr).Msg("Serving the forum")
			serverErr := server.ListenAndServe()
			if !errors.Is(serverErr, http.ErrServerClosed) {
				logging.Error().Err(serverErr).Msg("Server shut down unexpectedly")
			}
			// The wg.Done() happens in the shutdown logic below.
		}()

		// Wait for SIGINT in the background and trigger graceful shutdown
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt)
		go func() {
			<-signals // First SIGINT (start shutdown)
			logging.Info().Msg("Shutting down the forum")

			const timeout = 10 * time.Second

			go func() {
				logging.Info().Msg("Shutting down background jobs...")
				unfinished := backgroundJobs.CancelAndWait(timeout)
				if len(unfinished) == 0 {
					logging.Info().Msg("Background jobs closed gracefully")
				} else {
					logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
				}
				wg.Done()
			}()

			// Gracefully shut down the HTTP server
			go func() {
				timeoutCtx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				err := server.Shutdown(timeoutCtx)
				if err != nil {
					logging.Warn().Err(err).Msg("Server did not shut down gracefully")
				}
				wg.Done()
			}()

			<-signals // Second SIGINT (force quit)
			logging.Warn().Strs("Unfinished background jobs", backgroundJobs.ListUnfinished()).Msg("Forcibly killed the forum")
			os.Exit(1)
		}()

		// Wait for all of the above to finish, then exit
		wg.Wait()

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logging.Warn().Err(err).Msg("failed to close redis client")
			}
		}
		conn.Close()
	},
}
