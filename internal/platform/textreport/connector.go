package textreport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
)

const maxReportSize = 4 << 20

// Connector queries a forecaster over HTTP GET and decodes its text report.
type Connector struct {
	sw      forecast.Software
	client  *http.Client
	logger  zerolog.Logger
	logText bool
	now     func() time.Time
}

// Option configures a Connector.
type Option func(*Connector)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.client = client }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// WithLogText captures the request and the raw report on SoftwareResult.LogText.
func WithLogText(on bool) Option {
	return func(c *Connector) { c.logText = on }
}

// NewConnector returns a text report connector for sw.
func NewConnector(sw forecast.Software, opts ...Option) *Connector {
	c := &Connector{
		sw:     sw,
		client: http.DefaultClient,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	return c
}

// Software returns the target descriptor.
func (c *Connector) Software() forecast.Software { return c.sw }

// QueryForecast sends tc as query parameters and reads the report. Forecasts,
// diagnostics and the unmatched line count are stored on res; evaluations are
// attached to the vaccine events of tc.
func (c *Connector) QueryForecast(ctx context.Context, tc *testcase.TestCase, res *forecast.SoftwareResult) (list []forecast.ForecastActual, err error) {
	var transcript strings.Builder
	logf := func(format string, args ...any) {
		if c.logText {
			fmt.Fprintf(&transcript, format, args...)
			transcript.WriteByte('\n')
		}
	}
	log := c.logger.With().Str("software", c.sw.Name).Str("test_case", tc.ID).Logger()

	defer func() {
		if err != nil {
			logf("Unable to get forecast results")
			logf("%v", err)
			log.Warn().Err(err).Msg("forecast query failed")
			err = fmt.Errorf("unable to get forecast results: %w", err)
		}
		if c.logText {
			res.LogText = transcript.String()
		}
	}()

	logf("TCH Forecaster")
	logf("Current time %s", c.now().Format(time.RFC1123))
	logf("Connecting to %s", c.sw.ServiceURL)

	query, sent := BuildQuery(tc, c.sw, FormatText)
	target := RequestURL(c.sw.ServiceURL, query)
	logf("Query %s", target)
	log.Debug().Int("doses", len(sent)).Msg("sending query")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.sw.ServiceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxReportSize))
		return nil, fmt.Errorf("forecaster returned status %d", resp.StatusCode)
	}

	logf("Results:")
	body := &capReader{r: resp.Body, left: maxReportSize}
	report, err := ParseReport(body, sent, func(line string) { logf("%s", line) })
	if err != nil {
		return nil, err
	}
	if body.over {
		report.Diagnostics = append(report.Diagnostics, forecast.Diagnostic{
			Reason: fmt.Sprintf("report truncated after %d bytes", maxReportSize),
		})
		log.Warn().Int("limit", maxReportSize).Msg("report truncated")
	}

	res.Forecasts = report.Forecasts
	res.Diagnostics = append(res.Diagnostics, report.Diagnostics...)
	res.UnmatchedLines += report.Unmatched
	log.Debug().
		Int("forecasts", len(report.Forecasts)).
		Int("evaluations", report.Evaluations).
		Int("unmatched", report.Unmatched).
		Msg("report decoded")
	return report.Forecasts, nil
}

// capReader stops after left bytes and records whether the source had more.
type capReader struct {
	r    io.Reader
	left int64
	over bool
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.left <= 0 {
		var one [1]byte
		if n, _ := io.ReadFull(c.r, one[:]); n > 0 {
			c.over = true
		}
		return 0, io.EOF
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	return n, err
}
