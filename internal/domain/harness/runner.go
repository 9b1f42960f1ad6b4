// Package harness runs test cases against target forecasting systems and
// archives what they answered.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
	"github.com/ehr/fits/internal/platform/connector"
)

// Provider returns the connector for a target system.
type Provider interface {
	For(sw forecast.Software) (connector.Connector, error)
}

// RunResult is the outcome of one test case against one system. TestCase is
// the resolved copy the connector worked on, carrying its evaluations.
type RunResult struct {
	TestCase *testcase.TestCase      `json:"test_case"`
	Result   *forecast.SoftwareResult `json:"result"`
}

// Runner executes batches of queries with bounded parallelism.
type Runner struct {
	connectors  Provider
	repo        forecast.ResultRepository
	parallelism int
	logger      zerolog.Logger
	now         func() time.Time
}

// NewRunner returns a runner. repo may be nil to skip archiving.
func NewRunner(connectors Provider, repo forecast.ResultRepository, parallelism int, logger zerolog.Logger) *Runner {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Runner{
		connectors:  connectors,
		repo:        repo,
		parallelism: parallelism,
		logger:      logger.With().Str("component", "runner").Logger(),
		now:         time.Now,
	}
}

// Run queries every system for every case. Results are ordered case by case,
// then by system, as given. A failed query is recorded on its result and
// does not stop the batch; only archive failures and cancellation do.
func (r *Runner) Run(ctx context.Context, cases []*testcase.TestCase, softwares []forecast.Software) ([]RunResult, error) {
	out := make([]RunResult, len(cases)*len(softwares))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, tc := range cases {
		for j, sw := range softwares {
			slot := i*len(softwares) + j
			tc, sw := tc, sw
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				rr := r.runOne(gctx, tc, sw)
				out[slot] = rr
				if r.repo != nil {
					if err := r.repo.Save(gctx, rr.Result); err != nil {
						return fmt.Errorf("archive result for %s/%s: %w", tc.ID, sw.Name, err)
					}
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) runOne(ctx context.Context, base *testcase.TestCase, sw forecast.Software) RunResult {
	tc := base.Clone()
	res := forecast.NewSoftwareResult(sw)
	res.TestCaseID = tc.ID
	log := r.logger.With().Str("test_case", tc.ID).Str("software", sw.Name).Logger()

	if err := r.query(ctx, tc, sw, res); err != nil {
		res.Error = err.Error()
		log.Warn().Err(err).Msg("query failed")
	}
	res.CollectEvaluations(tc)
	res.FinishedAt = r.now().UTC()

	log.Info().
		Int("forecasts", len(res.Forecasts)).
		Int("evaluations", len(res.Evaluations)).
		Int("diagnostics", len(res.Diagnostics)).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("query finished")
	return RunResult{TestCase: tc, Result: res}
}

func (r *Runner) query(ctx context.Context, tc *testcase.TestCase, sw forecast.Software, res *forecast.SoftwareResult) error {
	if err := tc.ResolveDates(); err != nil {
		return fmt.Errorf("resolve dates: %w", err)
	}
	c, err := r.connectors.For(sw)
	if err != nil {
		return err
	}
	_, err = c.QueryForecast(ctx, tc, res)
	return err
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Queries     int `json:"queries"`
	Failed      int `json:"failed"`
	Forecasts   int `json:"forecasts"`
	Evaluations int `json:"evaluations"`
	Diagnostics int `json:"diagnostics"`
	Unmatched   int `json:"unmatched_lines"`
}

// Summarize totals results.
func Summarize(results []RunResult) Summary {
	var s Summary
	for _, rr := range results {
		res := rr.Result
		if res == nil {
			continue
		}
		s.Queries++
		if res.Failed() {
			s.Failed++
		}
		s.Forecasts += len(res.Forecasts)
		s.Evaluations += len(res.Evaluations)
		s.Diagnostics += len(res.Diagnostics)
		s.Unmatched += res.UnmatchedLines
	}
	return s
}
