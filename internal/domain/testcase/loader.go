package testcase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the date format used in fixture files.
const DateLayout = "2006-01-02"

type ruleFile struct {
	Period    string    `yaml:"period"`
	Direction string    `yaml:"direction"`
	Anchor    string    `yaml:"anchor"`
	And       *ruleFile `yaml:"and"`
}

type eventFile struct {
	ID         string    `yaml:"id"`
	Label      string    `yaml:"label"`
	Type       string    `yaml:"type"`
	VaccineCvx string    `yaml:"vaccineCvx"`
	VaccineMvx string    `yaml:"vaccineMvx"`
	Code       string    `yaml:"code"`
	Date       string    `yaml:"date"`
	Rule       *ruleFile `yaml:"rule"`
}

type caseFile struct {
	ID         string            `yaml:"id"`
	Label      string            `yaml:"label"`
	Category   string            `yaml:"category"`
	PatientDob string            `yaml:"patientDob"`
	PatientSex string            `yaml:"patientSex"`
	EvalDate   string            `yaml:"evalDate"`
	Settings   map[string]string `yaml:"settings"`
	Events     []eventFile       `yaml:"events"`
}

type fixtureFile struct {
	Cases []caseFile `yaml:"cases"`
}

// LoadPath loads test cases from a fixture file, or from every .yaml/.yml
// file in a directory in name order.
func LoadPath(path string) ([]*TestCase, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat fixtures: %w", err)
	}
	if !info.IsDir() {
		return LoadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []*TestCase
	for _, name := range names {
		cases, err := LoadFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		out = append(out, cases...)
	}
	return out, nil
}

// LoadFile reads one fixture file.
func LoadFile(path string) ([]*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	cases, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// Load parses fixture YAML. A document holds either a single case or a
// "cases:" list.
func Load(data []byte) ([]*TestCase, error) {
	var doc fixtureFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fixture yaml: %w", err)
	}
	if len(doc.Cases) == 0 {
		var single caseFile
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("parse fixture yaml: %w", err)
		}
		doc.Cases = []caseFile{single}
	}

	out := make([]*TestCase, 0, len(doc.Cases))
	for i, cf := range doc.Cases {
		tc, err := cf.toTestCase()
		if err != nil {
			return nil, fmt.Errorf("case %d (%s): %w", i+1, cf.Label, err)
		}
		out = append(out, tc)
	}
	return out, nil
}

func (cf caseFile) toTestCase() (*TestCase, error) {
	dob, err := parseDate("patientDob", cf.PatientDob, true)
	if err != nil {
		return nil, err
	}
	evalDate, err := parseDate("evalDate", cf.EvalDate, true)
	if err != nil {
		return nil, err
	}

	tc := New(cf.Label, dob, evalDate, strings.ToUpper(cf.PatientSex))
	if cf.ID != "" {
		tc.ID = cf.ID
	}
	tc.Category = cf.Category
	tc.Settings = cf.Settings

	seen := make(map[string]bool, len(cf.Events))
	for i, ef := range cf.Events {
		if ef.ID == "" {
			ef.ID = fmt.Sprintf("event%d", i+1)
		}
		if seen[ef.ID] {
			return nil, fmt.Errorf("duplicate event id %q", ef.ID)
		}
		seen[ef.ID] = true

		ev := &TestEvent{
			ID: ef.ID,
			Event: Event{
				Label:      ef.Label,
				Type:       EventType(strings.ToLower(ef.Type)),
				VaccineCvx: ef.VaccineCvx,
				VaccineMvx: ef.VaccineMvx,
				Code:       ef.Code,
			},
		}
		if ev.Event.Type == "" {
			ev.Event.Type = EventVaccine
		}
		if ef.Date != "" {
			d, err := parseDate("date", ef.Date, false)
			if err != nil {
				return nil, fmt.Errorf("event %s: %w", ef.ID, err)
			}
			ev.Date = &d
		}
		if ef.Rule != nil {
			r, err := ef.Rule.toRule()
			if err != nil {
				return nil, fmt.Errorf("event %s: %w", ef.ID, err)
			}
			ev.Rule = r
		}
		tc.AddEvent(ev)
	}
	return tc, nil
}

func (rf *ruleFile) toRule() (*RelativeRule, error) {
	period, err := ParseTimePeriod(rf.Period)
	if err != nil {
		return nil, err
	}
	r := &RelativeRule{Period: period}

	switch Direction(strings.ToLower(rf.Direction)) {
	case DirectionBefore:
		r.Direction = DirectionBefore
	case DirectionAfter, "":
		r.Direction = DirectionAfter
	case DirectionOn:
		r.Direction = DirectionOn
	default:
		return nil, fmt.Errorf("unknown rule direction %q", rf.Direction)
	}

	if err := r.Anchor.UnmarshalText([]byte(rf.Anchor)); err != nil {
		return nil, err
	}
	if rf.And != nil {
		and, err := rf.And.toRule()
		if err != nil {
			return nil, fmt.Errorf("and rule: %w", err)
		}
		r.And = and
	}
	return r, nil
}

func parseDate(field, s string, required bool) (time.Time, error) {
	if s == "" {
		if required {
			return time.Time{}, fmt.Errorf("%s is required", field)
		}
		return time.Time{}, nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", field, s)
	}
	return d, nil
}
