package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dailyworker/newsroom/internal/api"
	"github.com/dailyworker/newsroom/internal/billing"
	"github.com/dailyworker/newsroom/internal/monitoring"
	"github.com/dailyworker/newsroom/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the editorial API and payment webhook",
	Long: "Starts the HTTP API. When enabled in config it also runs the daily batch on a schedule " +
		"and the health checker that alerts on editorial backlogs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		tiers, err := billing.LoadTiers(cfg.Billing.TiersPath)
		if err != nil {
			return err
		}
		mailer := e.mailer()
		auth := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		server := api.NewServer(e.Newsroom, e.billingHandler(tiers, mailer), tiers, auth, cfg)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if cfg.Schedule.Enabled {
			g.Go(func() error {
				runSchedule(gctx, e.Newsroom, time.Duration(cfg.Schedule.IntervalHours)*time.Hour, cfg.Schedule.BatchLimit)
				return nil
			})
		}

		var quota monitoring.QuotaReader
		if mailer != nil {
			quota = mailer
		}
		checker := monitoring.NewChecker(
			monitoring.NewCollector(e.Store, quota),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})

		return g.Wait()
	},
}

// runSchedule runs the daily batch once per interval until ctx is done.
// A failed run is logged and the next tick tries again.
func runSchedule(ctx context.Context, n *pipeline.Newsroom, interval time.Duration, limit int) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	log := zap.L().With(zap.String("component", "scheduler"))
	log.Info("starting daily scheduler", zap.Duration("interval", interval), zap.Int("batch_limit", limit))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("daily scheduler stopped")
			return
		case <-ticker.C:
			res, err := n.RunDaily(ctx, limit)
			if err != nil {
				log.Error("scheduled daily run failed", zap.Error(err))
				continue
			}
			log.Info("scheduled daily run complete", zap.Int("stages", len(res.Stages)))
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
