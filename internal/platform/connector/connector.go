// Package connector selects the wire strategy for a target forecasting
// system and wraps it with the limits every query runs under.
package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
	"github.com/ehr/fits/internal/platform/hl7v2"
	"github.com/ehr/fits/internal/platform/textreport"
)

// ErrUnknownServiceType is returned for a Software whose ServiceType has no
// connector.
var ErrUnknownServiceType = errors.New("unknown service type")

// Service types understood by New.
const (
	TypeHL7     = "hl7"
	TypeIIS     = "iis"
	TypeHL7MLLP = "hl7-mllp"
	TypeTCH     = "tch"
	TypeText    = "text"
)

// Connector obtains a forecast for one test case from one target system.
// Evaluations are attached to the events of tc, so tc must not be shared
// between concurrent queries.
type Connector interface {
	QueryForecast(ctx context.Context, tc *testcase.TestCase, res *forecast.SoftwareResult) ([]forecast.ForecastActual, error)
}

// Options are shared by every connector built from them.
type Options struct {
	Logger     zerolog.Logger
	LogText    bool
	HTTPClient *http.Client
	Timeout    time.Duration
	Policy     PolicyConfig
	Metrics    *Metrics
}

// New returns the bare connector for sw's service type.
func New(sw forecast.Software, o Options) (Connector, error) {
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	logger := o.Logger.With().Str("service_type", sw.ServiceType).Logger()

	switch strings.ToLower(sw.ServiceType) {
	case TypeHL7, TypeIIS:
		return hl7v2.NewConnector(sw,
			hl7v2.WithHTTPClient(client),
			hl7v2.WithLogger(logger),
			hl7v2.WithLogText(o.LogText),
		), nil
	case TypeHL7MLLP:
		return hl7v2.NewConnector(sw,
			hl7v2.WithTransport(hl7v2.NewMLLPTransport(o.Timeout)),
			hl7v2.WithLogger(logger),
			hl7v2.WithLogText(o.LogText),
		), nil
	case TypeTCH, TypeText:
		return textreport.NewConnector(sw,
			textreport.WithHTTPClient(client),
			textreport.WithLogger(logger),
			textreport.WithLogText(o.LogText),
		), nil
	default:
		return nil, fmt.Errorf("%w %q for software %q", ErrUnknownServiceType, sw.ServiceType, sw.Name)
	}
}

// Set hands out one policy-wrapped connector per software name so the
// breaker and limiter of a system are shared by all of its queries.
type Set struct {
	opts Options

	mu     sync.Mutex
	byName map[string]Connector
}

// NewSet returns an empty set.
func NewSet(o Options) *Set {
	return &Set{opts: o, byName: make(map[string]Connector)}
}

// For returns the connector for sw, building it on first use.
func (s *Set) For(sw forecast.Software) (Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.byName[sw.Name]; ok {
		return c, nil
	}
	inner, err := New(sw, s.opts)
	if err != nil {
		return nil, err
	}
	c := NewPolicy(inner, sw, s.opts.Policy, s.opts.Metrics, s.opts.Logger)
	s.byName[sw.Name] = c
	return c, nil
}
