package testcase

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a historical clinical event.
type EventType string

const (
	EventVaccine     EventType = "vaccine"
	EventObservation EventType = "observation"
)

// Validity values reported for an evaluated dose.
type Validity string

const (
	ValidityValid   Validity = "valid"
	ValidityInvalid Validity = "invalid"
)

// Event is the administered or observed item a TestEvent refers to.
type Event struct {
	Label      string    `json:"label" yaml:"label"`
	Type       EventType `json:"type" yaml:"type"`
	VaccineCvx string    `json:"vaccine_cvx,omitempty" yaml:"vaccineCvx,omitempty"`
	VaccineMvx string    `json:"vaccine_mvx,omitempty" yaml:"vaccineMvx,omitempty"`
	Code       string    `json:"code,omitempty" yaml:"code,omitempty"`
}

// EvaluationActual is one target system's judgement of a historical dose.
type EvaluationActual struct {
	VaccineCvx     string   `json:"vaccine_cvx"`
	DoseNumber     string   `json:"dose_number"`
	Validity       Validity `json:"validity"`
	ReasonCode     string   `json:"reason_code,omitempty"`
	ReasonText     string   `json:"reason_text,omitempty"`
	SeriesUsedCode string   `json:"series_used_code"`
	SeriesUsedText string   `json:"series_used_text"`
}

// TestEvent is one dated entry in a test case history. Date is nil until
// resolved from Rule by TestCase.ResolveDates.
type TestEvent struct {
	ID          string             `json:"id"`
	Event       Event              `json:"event"`
	Date        *time.Time         `json:"date,omitempty"`
	Rule        *RelativeRule      `json:"rule,omitempty"`
	Evaluations []EvaluationActual `json:"evaluations,omitempty"`
}

// IsVaccine reports whether the event is a vaccine administration.
func (e *TestEvent) IsVaccine() bool {
	return e.Event.Type == EventVaccine
}

// AddEvaluation attaches an evaluation produced by a connector.
func (e *TestEvent) AddEvaluation(ev EvaluationActual) {
	e.Evaluations = append(e.Evaluations, ev)
}

// TestCase is a synthetic patient plus the history a forecaster is asked about.
type TestCase struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Category   string            `json:"category,omitempty"`
	PatientDob time.Time         `json:"patient_dob"`
	PatientSex string            `json:"patient_sex"`
	EvalDate   time.Time         `json:"eval_date"`
	Events     []*TestEvent      `json:"events"`
	Settings   map[string]string `json:"settings,omitempty"`
}

// New returns a test case with a generated ID.
func New(label string, dob, evalDate time.Time, sex string) *TestCase {
	return &TestCase{
		ID:         uuid.New().String(),
		Label:      label,
		PatientDob: dob,
		PatientSex: sex,
		EvalDate:   evalDate,
	}
}

// AddEvent appends ev and returns it for chaining in fixtures.
func (tc *TestCase) AddEvent(ev *TestEvent) *TestEvent {
	tc.Events = append(tc.Events, ev)
	return ev
}

// EventByID returns the event with the given ID, or nil.
func (tc *TestCase) EventByID(id string) *TestEvent {
	for _, ev := range tc.Events {
		if ev.ID == id {
			return ev
		}
	}
	return nil
}

// VaccineEvents returns the vaccine administrations in history order.
func (tc *TestCase) VaccineEvents() []*TestEvent {
	var out []*TestEvent
	for _, ev := range tc.Events {
		if ev.IsVaccine() {
			out = append(out, ev)
		}
	}
	return out
}

// Clone returns a deep copy. Connectors attach evaluations to events, so
// concurrent queries against different systems each need their own copy.
func (tc *TestCase) Clone() *TestCase {
	out := *tc
	out.Events = make([]*TestEvent, len(tc.Events))
	for i, ev := range tc.Events {
		cp := *ev
		if ev.Date != nil {
			d := *ev.Date
			cp.Date = &d
		}
		cp.Rule = ev.Rule.clone()
		cp.Evaluations = append([]EvaluationActual(nil), ev.Evaluations...)
		out.Events[i] = &cp
	}
	if tc.Settings != nil {
		out.Settings = make(map[string]string, len(tc.Settings))
		for k, v := range tc.Settings {
			out.Settings[k] = v
		}
	}
	return &out
}
