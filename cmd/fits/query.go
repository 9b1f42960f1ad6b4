package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fits/internal/config"
	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/harness"
	"github.com/ehr/fits/internal/domain/testcase"
	"github.com/ehr/fits/internal/platform/connector"
)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run test cases against target forecasting systems",
		RunE: func(cmd *cobra.Command, args []string) error {
			casesPath, _ := cmd.Flags().GetString("cases")
			softwareFile, _ := cmd.Flags().GetString("software-file")
			names, _ := cmd.Flags().GetStringSlice("software")
			logText, _ := cmd.Flags().GetBool("log-text")
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if softwareFile != "" {
				cfg.SoftwareFile = softwareFile
			}
			if cmd.Flags().Changed("log-text") {
				cfg.LogText = logText
			}

			cases, err := testcase.LoadPath(casesPath)
			if err != nil {
				return err
			}
			all, err := forecast.LoadSoftwareFile(cfg.SoftwareFile)
			if err != nil {
				return err
			}
			selected, err := forecast.SelectSoftware(all, names)
			if err != nil {
				return err
			}

			results, err := newRunner(cfg, nil, nil, logger).Run(cmd.Context(), cases, selected)
			if err != nil {
				return err
			}
			return writeReport(os.Stdout, results, asJSON)
		},
	}
	cmd.Flags().String("cases", "./testcases", "Test case file or directory (YAML or JSON)")
	cmd.Flags().String("software-file", "", "Target systems file (defaults to SOFTWARE_FILE)")
	cmd.Flags().StringSlice("software", nil, "Only query these systems")
	cmd.Flags().Bool("log-text", false, "Keep the exchange transcript in each result")
	cmd.Flags().Bool("json", false, "Print results as JSON")
	return cmd
}

// newRunner wires the connector set from cfg. repo and metrics may be nil.
func newRunner(cfg *config.Config, repo forecast.ResultRepository, metrics *connector.Metrics, logger zerolog.Logger) *harness.Runner {
	set := connector.NewSet(connector.Options{
		Logger:  logger,
		LogText: cfg.LogText,
		Timeout: cfg.HTTPTimeout,
		Policy: connector.PolicyConfig{
			Timeout:          cfg.HTTPTimeout,
			RateLimit:        cfg.RateLimitRPS,
			Burst:            cfg.RateLimitBurst,
			FailureThreshold: cfg.BreakerFailureThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout,
		},
		Metrics: metrics,
	})
	return harness.NewRunner(set, repo, cfg.QueryParallelism, logger)
}

func writeReport(w io.Writer, results []harness.RunResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Summary harness.Summary     `json:"summary"`
			Results []harness.RunResult `json:"results"`
		}{harness.Summarize(results), results})
	}

	for _, rr := range results {
		res := rr.Result
		fmt.Fprintf(w, "%s / %s\n", res.TestCaseID, res.Software.Name)
		if res.Failed() {
			fmt.Fprintf(w, "  error: %s\n", res.Error)
		}
		for _, fc := range res.Forecasts {
			fmt.Fprintf(w, "  %-10s dose %-2s %s\n", fc.VaccineGroup.Label, fc.DoseNumber, forecastDates(fc))
		}
		for _, ev := range res.Evaluations {
			fmt.Fprintf(w, "  %-10s dose %-2s %s\n", ev.EventID, ev.DoseNumber, ev.Validity)
		}
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "  line %d: %s\n", d.Line, d.Reason)
		}
		if res.LogText != "" {
			fmt.Fprintln(w, indent(res.LogText, "    "))
		}
	}

	s := harness.Summarize(results)
	_, err := fmt.Fprintf(w, "%d queries, %d failed, %d forecasts, %d evaluations, %d diagnostics, %d unmatched lines\n",
		s.Queries, s.Failed, s.Forecasts, s.Evaluations, s.Diagnostics, s.Unmatched)
	return err
}

func forecastDates(fc forecast.ForecastActual) string {
	if fc.Complete {
		return "complete"
	}
	var parts []string
	add := func(name string, d *time.Time) {
		if d != nil {
			parts = append(parts, name+" "+d.Format(testcase.DateLayout))
		}
	}
	add("valid", fc.ValidDate)
	add("due", fc.DueDate)
	add("overdue", fc.OverdueDate)
	add("finished", fc.FinishedDate)
	if len(parts) == 0 {
		return fc.AdminStatus
	}
	return strings.Join(parts, " ")
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
