package hl7v2

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
	"github.com/ehr/fits/internal/platform/patient"
)

// Connector asks an immunization information system for a forecast by
// sending the history as a VXU and then querying it with a QBP.
type Connector struct {
	sw        forecast.Software
	transport Transport
	ids       *IDGenerator
	logger    zerolog.Logger
	logText   bool
	now       func() time.Time
}

// Option configures a Connector.
type Option func(*Connector)

// WithTransport replaces the default transport chosen from the service URL.
func WithTransport(t Transport) Option {
	return func(c *Connector) { c.transport = t }
}

// WithHTTPClient sets the client used by the SOAP transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.transport = NewSOAPTransport(client) }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// WithLogText captures every request and reply on SoftwareResult.LogText.
func WithLogText(on bool) Option {
	return func(c *Connector) { c.logText = on }
}

// WithIDGenerator replaces the process-wide control ID generator.
func WithIDGenerator(g *IDGenerator) Option {
	return func(c *Connector) { c.ids = g }
}

// NewConnector returns a connector for sw. A mllp:// service URL selects the
// MLLP transport, anything else is posted as SOAP.
func NewConnector(sw forecast.Software, opts ...Option) *Connector {
	c := &Connector{
		sw:     sw,
		ids:    controlIDs,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		if strings.HasPrefix(sw.ServiceURL, "mllp://") {
			c.transport = NewMLLPTransport(0)
		} else {
			c.transport = NewSOAPTransport(nil)
		}
	}
	return c
}

// Software returns the target descriptor.
func (c *Connector) Software() forecast.Software { return c.sw }

// QueryForecast sends the vaccination history of tc, then asks for the
// forecast. The decoded forecasts are returned and stored on res together
// with any diagnostics. Any transport failure aborts the query.
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
			logf("Unable to get forecast results from IIS")
			logf("%v", err)
			log.Warn().Err(err).Msg("forecast query failed")
			err = fmt.Errorf("unable to get forecast results: %w", err)
		}
		if c.logText {
			res.LogText = transcript.String()
		}
	}()

	vxuID := c.ids.Next()
	p := patient.New(tc, vxuID)

	vxu, sent := BuildVXU(tc, p, c.sw, vxuID, c.now())
	logf("VXU SENT:\n%s", printable(vxu))
	log.Debug().Str("message_type", "VXU").Str("control_id", vxuID).Int("doses", len(sent)).Msg("sending history")

	ack, err := c.transport.Send(ctx, c.sw, vxu)
	if err != nil {
		return nil, fmt.Errorf("send VXU: %w", err)
	}
	logf("ACK received back:\n%s", printable(ack))
	if r := DecodeRSP(ack); len(r.Diagnostics) > 0 {
		res.Diagnostics = append(res.Diagnostics, r.Diagnostics...)
	}

	qbpID := c.ids.Next()
	qbp := BuildQBP(p, c.sw, qbpID, c.now())
	logf("Sending QBP:\n%s", printable(qbp))
	log.Debug().Str("message_type", "QBP").Str("control_id", qbpID).Msg("sending query")

	rsp, err := c.transport.Send(ctx, c.sw, qbp)
	if err != nil {
		return nil, fmt.Errorf("send QBP: %w", err)
	}
	logf("RSP received back:\n%s", printable(rsp))

	reply := DecodeRSP(rsp)
	res.Diagnostics = append(res.Diagnostics, reply.Diagnostics...)
	res.Forecasts = reply.Forecasts
	return reply.Forecasts, nil
}

// printable turns segment terminators into newlines for the transcript.
func printable(msg string) string {
	return strings.TrimRight(strings.ReplaceAll(msg, "\r", "\n"), "\n")
}
