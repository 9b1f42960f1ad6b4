package forecast

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fits/internal/domain/testcase"
)

// ErrNotFound is returned by result stores for unknown IDs.
var ErrNotFound = errors.New("forecast result not found")

// Software describes a target forecasting system.
type Software struct {
	Name        string            `json:"name" yaml:"name"`
	ServiceType string            `json:"service_type" yaml:"serviceType"`
	ServiceURL  string            `json:"service_url" yaml:"serviceUrl"`
	UserID      string            `json:"user_id,omitempty" yaml:"userId"`
	Password    string            `json:"-" yaml:"password"`
	FacilityID  string            `json:"facility_id,omitempty" yaml:"facilityId"`
	Options     map[string]string `json:"options,omitempty" yaml:"options"`
}

// MergedOptions returns the software options with test case overrides
// applied on top.
func (s Software) MergedOptions(overrides map[string]string) map[string]string {
	out := make(map[string]string, len(s.Options)+len(overrides))
	for k, v := range s.Options {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// AdminStatus values reported by target systems.
const (
	AdminStatusDue      = "due"
	AdminStatusOverdue  = "overdue"
	AdminStatusComplete = "complete"
)

// ForecastActual is one predicted dose returned by a target system.
type ForecastActual struct {
	VaccineGroup VaccineGroup `json:"vaccine_group"`
	VaccineCvx   string       `json:"vaccine_cvx,omitempty"`
	AdminStatus  string       `json:"admin_status,omitempty"`
	DoseNumber   string       `json:"dose_number,omitempty"`
	Complete     bool         `json:"complete,omitempty"`
	ValidDate    *time.Time   `json:"valid_date,omitempty"`
	DueDate      *time.Time   `json:"due_date,omitempty"`
	OverdueDate  *time.Time   `json:"overdue_date,omitempty"`
	FinishedDate *time.Time   `json:"finished_date,omitempty"`
}

// EventEvaluation pairs an evaluation with the test event it judged.
type EventEvaluation struct {
	EventID string `json:"event_id"`
	testcase.EvaluationActual
}

// Diagnostic records one reply line or segment that could not be used.
type Diagnostic struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// SoftwareResult is the outcome of one connector invocation.
type SoftwareResult struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	TestCaseID     string            `db:"test_case_id" json:"test_case_id"`
	Software       Software          `db:"software" json:"software"`
	LogText        string            `db:"log_text" json:"log_text,omitempty"`
	Forecasts      []ForecastActual  `db:"forecasts" json:"forecasts"`
	Evaluations    []EventEvaluation `db:"evaluations" json:"evaluations,omitempty"`
	Diagnostics    []Diagnostic      `db:"diagnostics" json:"diagnostics,omitempty"`
	UnmatchedLines int               `db:"unmatched_lines" json:"unmatched_lines"`
	Error          string            `db:"error" json:"error,omitempty"`
	StartedAt      time.Time         `db:"started_at" json:"started_at"`
	FinishedAt     time.Time         `db:"finished_at" json:"finished_at"`
}

// NewSoftwareResult starts a result envelope for one query.
func NewSoftwareResult(sw Software) *SoftwareResult {
	return &SoftwareResult{
		ID:        uuid.New(),
		Software:  sw,
		StartedAt: time.Now().UTC(),
	}
}

// AddDiagnostic records a degraded line or segment.
func (r *SoftwareResult) AddDiagnostic(line int, text, reason string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Line: line, Text: text, Reason: reason})
}

// CollectEvaluations copies the evaluations attached to tc's events.
func (r *SoftwareResult) CollectEvaluations(tc *testcase.TestCase) {
	r.TestCaseID = tc.ID
	r.Evaluations = r.Evaluations[:0]
	for _, ev := range tc.Events {
		for _, e := range ev.Evaluations {
			r.Evaluations = append(r.Evaluations, EventEvaluation{EventID: ev.ID, EvaluationActual: e})
		}
	}
}

// Failed reports whether the query ended with a transport error.
func (r *SoftwareResult) Failed() bool { return r.Error != "" }
