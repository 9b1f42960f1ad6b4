package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fits/internal/config"
	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/harness"
	"github.com/ehr/fits/internal/platform/connector"
	"github.com/ehr/fits/internal/platform/db"
	"github.com/ehr/fits/internal/platform/middleware"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the harness API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			software, err := forecast.LoadSoftwareFile(cfg.SoftwareFile)
			if err != nil {
				return err
			}

			var pool *pgxpool.Pool
			repo := forecast.NewResultRepoMemory()
			if cfg.DatabaseURL != "" {
				pool, err = db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
				if err != nil {
					return err
				}
				defer pool.Close()
				repo = forecast.NewResultRepoPG(pool)
				logger.Info().Msg("connected to database")
			} else {
				logger.Warn().Msg("DATABASE_URL not set, results are kept in memory")
			}

			e := newServer(cfg, software, repo, pool, prometheus.NewRegistry(), logger)
			return listen(e, ":"+cfg.Port, logger)
		},
	}
}

// newServer builds the harness API. pool may be nil.
func newServer(cfg *config.Config, software []forecast.Software, repo forecast.ResultRepository,
	pool *pgxpool.Pool, reg *prometheus.Registry, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit("1M"))

	runner := newRunner(cfg, repo, connector.NewMetrics(reg), logger)
	harness.NewHandler(runner, software, repo).RegisterRoutes(e.Group("/api/v1"))

	e.GET("/health", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	return e
}
