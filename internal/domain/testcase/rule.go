package testcase

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAnchorCycle is returned when event anchors refer back to themselves.
	ErrAnchorCycle = errors.New("relative rule anchor cycle")
	// ErrUnknownAnchor is returned when a rule names an event the test case lacks.
	ErrUnknownAnchor = errors.New("relative rule anchor event not found")
	// ErrInvalidAnchor is returned when a rule has no usable anchor source.
	ErrInvalidAnchor = errors.New("relative rule has no anchor")
)

// Direction says which side of the anchor a rule lands on.
type Direction string

const (
	DirectionBefore Direction = "before"
	DirectionAfter  Direction = "after"
	DirectionOn     Direction = "on"
)

// AnchorKind selects the reference date of a rule.
type AnchorKind string

const (
	AnchorBirth      AnchorKind = "birth"
	AnchorEvaluation AnchorKind = "evaluation"
	AnchorEvent      AnchorKind = "event"
)

// Anchor is the reference point of a RelativeRule. EventID is set only for
// AnchorEvent.
type Anchor struct {
	Kind    AnchorKind
	EventID string
}

// BirthAnchor, EvaluationAnchor and EventAnchor build anchors.
func BirthAnchor() Anchor      { return Anchor{Kind: AnchorBirth} }
func EvaluationAnchor() Anchor { return Anchor{Kind: AnchorEvaluation} }
func EventAnchor(id string) Anchor {
	return Anchor{Kind: AnchorEvent, EventID: id}
}

func (a Anchor) String() string {
	if a.Kind == AnchorEvent {
		return "event:" + a.EventID
	}
	return string(a.Kind)
}

// MarshalText renders "birth", "evaluation" or "event:<id>".
func (a Anchor) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the forms produced by MarshalText.
func (a *Anchor) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == string(AnchorBirth):
		*a = BirthAnchor()
	case s == string(AnchorEvaluation):
		*a = EvaluationAnchor()
	case strings.HasPrefix(s, "event:") && len(s) > len("event:"):
		*a = EventAnchor(strings.TrimPrefix(s, "event:"))
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAnchor, s)
	}
	return nil
}

// RelativeRule produces an event date from an anchor plus a signed period.
// An optional And rule is a lower bound: the result is the later of the two.
type RelativeRule struct {
	Period    TimePeriod    `json:"period" yaml:"period"`
	Direction Direction     `json:"direction" yaml:"direction"`
	Anchor    Anchor        `json:"anchor" yaml:"anchor"`
	And       *RelativeRule `json:"and,omitempty" yaml:"and,omitempty"`
}

// After is a convenience constructor for the common AFTER rule.
func After(period string, anchor Anchor) *RelativeRule {
	return &RelativeRule{Period: MustParseTimePeriod(period), Direction: DirectionAfter, Anchor: anchor}
}

// Before is a convenience constructor for a BEFORE rule with a positive period.
func Before(period string, anchor Anchor) *RelativeRule {
	return &RelativeRule{Period: MustParseTimePeriod(period), Direction: DirectionBefore, Anchor: anchor}
}

// IsZero reports whether the rule means "exactly on the anchor date".
func (r *RelativeRule) IsZero() bool {
	return r != nil && r.Period.IsZero()
}

// AfterForm returns a copy with BEFORE rules rewritten as AFTER rules holding
// the negated period. The chained rule is converted too.
func (r *RelativeRule) AfterForm() *RelativeRule {
	if r == nil {
		return nil
	}
	out := r.clone()
	for cur := out; cur != nil; cur = cur.And {
		if cur.Direction == DirectionBefore {
			cur.Period = cur.Period.Negate()
			cur.Direction = DirectionAfter
		}
	}
	return out
}

// Canonical returns a copy in which negative periods are made positive by
// flipping the direction. The chained rule is converted too.
func (r *RelativeRule) Canonical() *RelativeRule {
	if r == nil {
		return nil
	}
	out := r.clone()
	for cur := out; cur != nil; cur = cur.And {
		if cur.Period.IsNegative() {
			cur.Period = cur.Period.Negate()
			if cur.Direction == DirectionBefore {
				cur.Direction = DirectionAfter
			} else {
				cur.Direction = DirectionBefore
			}
		}
	}
	return out
}

// offset is the period as applied to the anchor.
func (r *RelativeRule) offset() TimePeriod {
	if r.Direction == DirectionBefore {
		return r.Period.Negate()
	}
	return r.Period
}

// Label renders the rule for diagnostics, e.g. "6 months after birth".
func (r *RelativeRule) Label() string {
	if r == nil {
		return ""
	}
	var s string
	if r.IsZero() {
		s = "on " + r.Anchor.String()
	} else {
		dir := r.Direction
		if dir == "" || dir == DirectionOn {
			dir = DirectionAfter
		}
		s = fmt.Sprintf("%s %s %s", r.Period, dir, r.Anchor)
	}
	if r.And != nil {
		s += " and " + r.And.Label()
	}
	return s
}

func (r *RelativeRule) clone() *RelativeRule {
	if r == nil {
		return nil
	}
	cp := *r
	cp.And = r.And.clone()
	return &cp
}

// Resolve computes the date produced by rule against this test case. The
// boolean is false when no anchor date is available.
func (tc *TestCase) Resolve(rule *RelativeRule) (time.Time, bool, error) {
	return newResolver(tc).resolve(rule)
}

// ResolveDates materializes Date on every event that has a rule but no fixed
// date. Events whose anchors cannot be dated are left undated.
func (tc *TestCase) ResolveDates() error {
	rs := newResolver(tc)
	for _, ev := range tc.Events {
		if ev.Date != nil || ev.Rule == nil {
			continue
		}
		d, ok, err := rs.eventDate(ev)
		if err != nil {
			return fmt.Errorf("resolve event %s: %w", ev.ID, err)
		}
		if ok {
			ev.Date = &d
		}
	}
	return nil
}

type resolved struct {
	date time.Time
	ok   bool
}

type resolver struct {
	tc       *TestCase
	visiting map[string]bool
	path     []string
	done     map[string]resolved
}

func newResolver(tc *TestCase) *resolver {
	return &resolver{
		tc:       tc,
		visiting: make(map[string]bool),
		done:     make(map[string]resolved),
	}
}

func (rs *resolver) resolve(r *RelativeRule) (time.Time, bool, error) {
	if r == nil {
		return time.Time{}, false, nil
	}
	var date time.Time
	have := false

	anchor, ok, err := rs.anchorDate(r.Anchor)
	if err != nil {
		return time.Time{}, false, err
	}
	if ok {
		date = r.offset().DateFrom(anchor)
		have = true
	}

	if r.And != nil {
		alt, altOK, err := rs.resolve(r.And)
		if err != nil {
			return time.Time{}, false, err
		}
		if altOK && (!have || alt.After(date)) {
			date = alt
			have = true
		}
	}
	return date, have, nil
}

func (rs *resolver) anchorDate(a Anchor) (time.Time, bool, error) {
	switch a.Kind {
	case AnchorBirth:
		return rs.tc.PatientDob, !rs.tc.PatientDob.IsZero(), nil
	case AnchorEvaluation:
		return rs.tc.EvalDate, !rs.tc.EvalDate.IsZero(), nil
	case AnchorEvent:
		ev := rs.tc.EventByID(a.EventID)
		if ev == nil {
			return time.Time{}, false, fmt.Errorf("%w: %q", ErrUnknownAnchor, a.EventID)
		}
		return rs.eventDate(ev)
	default:
		return time.Time{}, false, fmt.Errorf("%w: kind %q", ErrInvalidAnchor, a.Kind)
	}
}

func (rs *resolver) eventDate(ev *TestEvent) (time.Time, bool, error) {
	if ev.Date != nil {
		return *ev.Date, true, nil
	}
	if ev.Rule == nil {
		return time.Time{}, false, nil
	}
	if r, ok := rs.done[ev.ID]; ok {
		return r.date, r.ok, nil
	}
	if rs.visiting[ev.ID] {
		chain := append(append([]string(nil), rs.path...), ev.ID)
		return time.Time{}, false, fmt.Errorf("%w: %s", ErrAnchorCycle, strings.Join(chain, " -> "))
	}

	rs.visiting[ev.ID] = true
	rs.path = append(rs.path, ev.ID)
	d, ok, err := rs.resolve(ev.Rule)
	rs.path = rs.path[:len(rs.path)-1]
	delete(rs.visiting, ev.ID)
	if err != nil {
		return time.Time{}, false, err
	}

	rs.done[ev.ID] = resolved{date: d, ok: ok}
	return d, ok, nil
}
