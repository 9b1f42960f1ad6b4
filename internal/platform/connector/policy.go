package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
)

var tracer = otel.Tracer("fits.internal.platform.connector")

// Query outcomes used as the status label.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusOpen    = "circuit_open"
	StatusLimited = "rate_limited"
)

// PolicyConfig bounds the queries sent to one system. Zero values disable
// the corresponding limit.
type PolicyConfig struct {
	Timeout          time.Duration
	RateLimit        float64
	Burst            int
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Policy is a Connector that applies a timeout, a rate limit and a circuit
// breaker around another Connector. Each query is attempted once.
type Policy struct {
	next    Connector
	sw      forecast.Software
	cfg     PolicyConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics
	logger  zerolog.Logger
}

// NewPolicy wraps next. metrics may be nil.
func NewPolicy(next Connector, sw forecast.Software, cfg PolicyConfig, metrics *Metrics, logger zerolog.Logger) *Policy {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	p := &Policy{
		next:    next,
		sw:      sw,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		metrics: metrics,
		logger:  logger.With().Str("component", "connector-policy").Str("software", sw.Name).Logger(),
	}

	threshold := cfg.FailureThreshold
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    sw.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			p.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return p
}

// State reports the breaker state, for health output.
func (p *Policy) State() gobreaker.State { return p.breaker.State() }

// QueryForecast runs the wrapped query under the policy. Rejections by the
// breaker or limiter are returned as transport errors.
func (p *Policy) QueryForecast(ctx context.Context, tc *testcase.TestCase, res *forecast.SoftwareResult) ([]forecast.ForecastActual, error) {
	ctx, span := tracer.Start(ctx, "connector.query_forecast")
	defer span.End()
	span.SetAttributes(
		attribute.String("fits.software", p.sw.Name),
		attribute.String("fits.service_type", p.sw.ServiceType),
		attribute.String("fits.test_case", tc.ID),
	)

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	list, status, err := p.run(ctx, tc, res)
	p.metrics.ObserveQuery(p.sw, status, time.Since(start).Seconds())
	p.metrics.ObserveUnmatched(p.sw, res.UnmatchedLines)

	span.SetAttributes(
		attribute.String("fits.status", status),
		attribute.Int("fits.forecasts", len(list)),
		attribute.Int("fits.diagnostics", len(res.Diagnostics)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return nil, err
	}
	return list, nil
}

func (p *Policy) run(ctx context.Context, tc *testcase.TestCase, res *forecast.SoftwareResult) ([]forecast.ForecastActual, string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, StatusLimited, fmt.Errorf("unable to get forecast results: rate limit: %w", err)
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.next.QueryForecast(ctx, tc, res)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, StatusOpen, fmt.Errorf("unable to get forecast results: %s unavailable: %w", p.sw.Name, err)
	}
	if err != nil {
		return nil, StatusError, err
	}
	list, _ := out.([]forecast.ForecastActual)
	return list, StatusOK, nil
}
