package textreport

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
)

func dt(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func sampleCase() *testcase.TestCase {
	tc := testcase.New("Two doses", *dt(2020, 1, 15), *dt(2024, 6, 1), "F")
	tc.ID = "tc-1"
	tc.AddEvent(&testcase.TestEvent{
		ID:    "dose1",
		Event: testcase.Event{Label: "Hib", Type: testcase.EventVaccine, VaccineCvx: "17", VaccineMvx: "PMC"},
		Date:  dt(2020, 3, 15),
	})
	tc.AddEvent(&testcase.TestEvent{
		ID:    "obs1",
		Event: testcase.Event{Label: "History of varicella", Type: testcase.EventObservation, Code: "38907003"},
		Date:  dt(2021, 2, 1),
	})
	tc.AddEvent(&testcase.TestEvent{
		ID:    "dose2",
		Event: testcase.Event{Label: "MMR", Type: testcase.EventVaccine, VaccineCvx: "03", VaccineMvx: "MSD"},
		Date:  dt(2021, 1, 20),
	})
	return tc
}

var testSoftware = forecast.Software{
	Name:        "Test TCH",
	ServiceType: "tch",
	Options:     map[string]string{"zeta": "1", "alpha": "a b"},
}

func TestBuildQuery(t *testing.T) {
	q, sent := BuildQuery(sampleCase(), testSoftware, FormatText)

	if !strings.HasPrefix(q, "?evalDate=20240601&evalSchedule=&resultFormat=text&patientDob=20200115&patientSex=F") {
		t.Errorf("unexpected query head %q", q)
	}
	if len(sent) != 2 || sent[0].ID != "dose1" || sent[1].ID != "dose2" {
		t.Fatalf("expected dose1,dose2 sent, got %+v", sent)
	}

	values, err := url.ParseQuery(q[1:])
	if err != nil {
		t.Fatalf("query does not parse: %v", err)
	}
	want := map[string]string{
		"vaccineDate1": "20200315",
		"vaccineCvx1":  "17",
		"vaccineMvx1":  "PMC",
		"vaccineDate2": "20210120",
		"vaccineCvx2":  "03",
		"vaccineMvx2":  "MSD",
		"alpha":        "a b",
		"zeta":         "1",
	}
	for k, v := range want {
		if got := values.Get(k); got != v {
			t.Errorf("%s: expected %q, got %q", k, v, got)
		}
	}
	if values.Has("vaccineDate3") {
		t.Error("observation must not be sent as a vaccine")
	}
	if strings.Index(q, "alpha=") > strings.Index(q, "zeta=") {
		t.Error("expected options sorted by name")
	}
}

func TestBuildQuery_SettingsOverrideOptions(t *testing.T) {
	tc := sampleCase()
	tc.Settings = map[string]string{"zeta": "2"}
	q, _ := BuildQuery(tc, testSoftware, FormatText)
	values, _ := url.ParseQuery(q[1:])
	if got := values.Get("zeta"); got != "2" {
		t.Errorf("expected override 2, got %q", got)
	}
}

func TestBuildQuery_SkipsUndatedEvents(t *testing.T) {
	tc := sampleCase()
	tc.Events[0].Date = nil
	q, sent := BuildQuery(tc, testSoftware, FormatText)
	if len(sent) != 1 || sent[0].ID != "dose2" {
		t.Fatalf("expected only dose2 sent, got %d", len(sent))
	}
	values, _ := url.ParseQuery(q[1:])
	if got := values.Get("vaccineCvx1"); got != "03" {
		t.Errorf("expected numbering to start at the first dated dose, got %q", got)
	}
}

func TestBuildQuery_EscapesValues(t *testing.T) {
	sw := forecast.Software{Options: map[string]string{"note": "a&b=c"}}
	q, _ := BuildQuery(sampleCase(), sw, FormatText)
	values, _ := url.ParseQuery(q[1:])
	if diff := cmp.Diff("a&b=c", values.Get("note")); diff != "" {
		t.Errorf("option did not survive encoding (-want +got):\n%s", diff)
	}
}

func TestRequestURL(t *testing.T) {
	tests := []struct {
		base, query, want string
	}{
		{"http://h/fc", "?a=1", "http://h/fc?a=1"},
		{"http://h/fc?key=x", "?a=1", "http://h/fc?key=x&a=1"},
	}
	for _, tt := range tests {
		if got := RequestURL(tt.base, tt.query); got != tt.want {
			t.Errorf("RequestURL(%q, %q): expected %q, got %q", tt.base, tt.query, tt.want, got)
		}
	}
}
