package hl7v2

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/fits/internal/platform/simulator"
)

const simulatorApp = "FITSSIM"

// IISSimulator answers VXU and QBP messages like a small immunization
// information system. Histories are kept per MRN in a DoseStore.
type IISSimulator struct {
	store  simulator.DoseStore
	series simulator.Series
	logger zerolog.Logger
	now    func() time.Time
}

// NewIISSimulator returns a simulator backed by store.
func NewIISSimulator(store simulator.DoseStore, logger zerolog.Logger) *IISSimulator {
	return &IISSimulator{
		store:  store,
		series: simulator.DefaultSeries,
		logger: logger.With().Str("component", "iis-simulator").Logger(),
		now:    time.Now,
	}
}

// Handle processes one message. Unsupported message types are rejected with
// an AR acknowledgement.
func (s *IISSimulator) Handle(ctx context.Context, msg *Message) *Message {
	switch msg.MessageCode() {
	case "VXU":
		return s.handleVXU(ctx, msg)
	case "QBP":
		return s.handleQBP(ctx, msg)
	default:
		s.logger.Warn().Str("type", msg.Type).Msg("unsupported message type")
		return GenerateACK(msg, "AR")
	}
}

// MLLPHandler adapts the simulator to an MLLPServer.
func (s *IISSimulator) MLLPHandler() MessageHandler {
	return func(msg *Message) *Message {
		return s.Handle(context.Background(), msg)
	}
}

func (s *IISSimulator) handleVXU(ctx context.Context, msg *Message) *Message {
	mrn := msg.PatientID()
	if mrn == "" {
		return GenerateACK(msg, "AE")
	}

	var doses []simulator.Dose
	for _, rxa := range msg.GetSegments("RXA") {
		date, err := time.Parse(DateLayout, firstN(rxa.GetField(3), len(DateLayout)))
		if err != nil {
			s.logger.Warn().Str("mrn", mrn).Str("rxa_3", rxa.GetField(3)).Msg("skipping dose with bad date")
			continue
		}
		doses = append(doses, simulator.Dose{
			Cvx:  rxa.GetComponent(5, 1),
			Mvx:  rxa.GetComponent(17, 1),
			Date: date,
		})
	}

	if err := s.store.Record(ctx, mrn, doses); err != nil {
		s.logger.Error().Err(err).Str("mrn", mrn).Msg("record doses failed")
		return GenerateACK(msg, "AE")
	}
	s.logger.Debug().Str("mrn", mrn).Int("doses", len(doses)).Msg("history recorded")
	return GenerateACK(msg, "AA")
}

func (s *IISSimulator) handleQBP(ctx context.Context, msg *Message) *Message {
	qpd := msg.GetSegment("QPD")
	if qpd == nil {
		return GenerateACK(msg, "AE")
	}
	mrn := qpd.GetComponent(3, 1)
	doses, err := s.store.Doses(ctx, mrn)
	if err != nil {
		s.logger.Error().Err(err).Str("mrn", mrn).Msg("load doses failed")
		return GenerateACK(msg, "AE")
	}

	now := s.now()
	eval := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	segs := []string{
		fmt.Sprintf("MSH|^~\\&|%s|%s|%s|%s|%s||RSP^K11^RSP_K11|%s|P|2.5.1|||NE|NE|||||Z42^CDCPHINVS",
			simulatorApp, simulatorApp, msg.SendingApp, msg.SendingFac,
			now.Format(TimestampLayout), controlIDs.Next()),
		"MSA|AA|" + msg.ControlID,
		fmt.Sprintf("QAK|%s|OK|%s", qpd.GetField(2), qpd.GetField(1)),
		serializeSegment(*qpd),
		fmt.Sprintf("PID|1||%s^^^%s^MR", mrn, assigningAuthority),
	}

	// Evaluated history comes before the echo marker.
	for i, ev := range simulator.Evaluate(doses) {
		status := "Y"
		if !ev.Valid {
			status = "N"
		}
		segs = append(segs,
			fmt.Sprintf("ORC|RE||%d^%s", i+1, simulatorApp),
			fmt.Sprintf("RXA|0|1|%s||%s^^CVX|999|||01", ev.Dose.Date.Format(DateLayout), ev.Dose.Cvx),
			fmt.Sprintf("OBX|1|CE|30956-7^Vaccine Type^LN|1|%s^%s^CVX||||||F", ev.Group.VaccineCvx, ev.Group.Label),
			fmt.Sprintf("OBX|2|ID|59781-5^Dose validity^LN|1|%s||||||F", status),
		)
	}

	segs = append(segs,
		"ORC|RE||9999^"+simulatorApp,
		fmt.Sprintf("RXA|0|1|%s|%s|998^No Vaccine Administered^CVX|999", eval.Format(DateLayout), eval.Format(DateLayout)),
	)

	obx := 0
	add := func(kind, code, value string) {
		obx++
		segs = append(segs, fmt.Sprintf("OBX|%d|%s|%s|%d|%s||||||F", obx, kind, code, obx, value))
	}
	for _, p := range simulator.Plan(doses, eval, s.series) {
		add("CE", ObsVaccineGroup+"^Vaccine Type^LN", p.Group.VaccineCvx+"^"+p.Group.Label+"^CVX")
		if p.Complete {
			add("CE", ObsAdminStatus+"^Status in immunization series^LN", "complete^Complete")
			continue
		}
		add("CE", ObsAdminStatus+"^Status in immunization series^LN", "due^Due")
		add("NM", ObsDoseNumber+"^Dose number in series^LN", strconv.Itoa(p.DoseNumber))
		add("DT", ObsValidDate+"^Earliest date to give^LN", p.Valid.Format(DateLayout))
		add("DT", ObsDueDate+"^Date vaccine due^LN", p.Due.Format(DateLayout))
		add("DT", ObsOverdueDate+"^Date dose is overdue^LN", p.Overdue.Format(DateLayout))
		add("DT", ObsFinishedDate+"^Latest date to give^LN", p.Finished.Format(DateLayout))
	}

	rsp, err := Parse([]byte(joinSegments(segs)))
	if err != nil {
		s.logger.Error().Err(err).Msg("build RSP failed")
		return GenerateACK(msg, "AE")
	}
	return rsp
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
