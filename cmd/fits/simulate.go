package main

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fits/internal/platform/hl7v2"
	"github.com/ehr/fits/internal/platform/middleware"
	"github.com/ehr/fits/internal/platform/simulator"
	"github.com/ehr/fits/internal/platform/textreport"
)

func simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Start the reference forecasting systems (SOAP, MLLP and TCH)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			store, err := simulator.NewStoreFromURL(cmd.Context(), cfg.SimulatorRedisURL, cfg.SimulatorStoreTTL)
			if err != nil {
				return err
			}
			iis := hl7v2.NewIISSimulator(store, logger)

			mllp := hl7v2.NewMLLPServer(cfg.SimulatorMLLPAddr, iis.MLLPHandler(), logger)
			if err := mllp.Start(); err != nil {
				return err
			}
			defer mllp.Stop()

			return listen(newSimulator(iis, logger), ":"+cfg.SimulatorPort, logger)
		},
	}
}

// newSimulator serves the SOAP IIS and the TCH text forecaster.
func newSimulator(iis *hl7v2.IISSimulator, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	g := e.Group("")
	hl7v2.NewHandler(iis).RegisterRoutes(g)
	textreport.NewHandler(logger).RegisterRoutes(g)
	return e
}
