package hl7v2

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
	"github.com/ehr/fits/internal/platform/patient"
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
		Event: testcase.Event{Label: "HepB", Type: testcase.EventVaccine, VaccineCvx: "08", VaccineMvx: "MSD"},
		Date:  dt(2020, 1, 15),
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
	Name:        "Test IIS",
	ServiceType: "hl7",
	UserID:      "user",
	Password:    "secret",
	FacilityID:  "FAC1",
}

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func TestBuildVXU_OneOrderPerVaccineEvent(t *testing.T) {
	tc := sampleCase()
	p := patient.New(tc, "MRN1")

	raw, sent := BuildVXU(tc, p, testSoftware, "CTRL1", fixedNow)
	if len(sent) != 2 {
		t.Fatalf("expected 2 encoded events, got %d", len(sent))
	}
	if sent[0].ID != "dose1" || sent[1].ID != "dose2" {
		t.Errorf("expected dose1,dose2 in order, got %s,%s", sent[0].ID, sent[1].ID)
	}

	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("built VXU does not parse: %v", err)
	}
	orcs := msg.GetSegments("ORC")
	rxas := msg.GetSegments("RXA")
	if len(orcs) != 2 || len(rxas) != 2 {
		t.Fatalf("expected 2 ORC/RXA pairs, got %d/%d", len(orcs), len(rxas))
	}

	if got := rxas[0].GetField(3); got != "20200115" {
		t.Errorf("expected RXA-3 '20200115', got %q", got)
	}
	if got := rxas[1].GetField(3); got != "20210120" {
		t.Errorf("expected RXA-3 '20210120', got %q", got)
	}
	if got := rxas[1].GetComponent(5, 1); got != "03" {
		t.Errorf("expected CVX '03' verbatim, got %q", got)
	}
	if got := rxas[1].GetComponent(17, 1); got != "MSD" {
		t.Errorf("expected MVX 'MSD', got %q", got)
	}
	if got := rxas[0].GetField(21); got != "A" {
		t.Errorf("expected completed status 'A', got %q", got)
	}
	if got := orcs[1].GetComponent(3, 1); got != "CTRL1.2" {
		t.Errorf("expected ORC-3 'CTRL1.2', got %q", got)
	}
	if !strings.HasSuffix(raw, "\r") {
		t.Error("expected segments terminated by \\r")
	}
}

func TestBuildVXU_Header(t *testing.T) {
	tc := sampleCase()
	raw, _ := BuildVXU(tc, patient.New(tc, "MRN1"), testSoftware, "CTRL1", fixedNow)
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.SendingApp != "FAC1" || msg.SendingFac != "FAC1" {
		t.Errorf("expected facility in MSH-3/4, got %q/%q", msg.SendingApp, msg.SendingFac)
	}
	if msg.Type != "VXU^V04^VXU_V04" {
		t.Errorf("expected VXU^V04^VXU_V04, got %q", msg.Type)
	}
	if msg.ControlID != "CTRL1" {
		t.Errorf("expected control ID CTRL1, got %q", msg.ControlID)
	}
	if msg.Version != "2.5.1" {
		t.Errorf("expected 2.5.1, got %q", msg.Version)
	}
	if !msg.Timestamp.Equal(fixedNow) {
		t.Errorf("expected timestamp %v, got %v", fixedNow, msg.Timestamp)
	}
}

func TestBuildVXU_PatientSegments(t *testing.T) {
	tc := sampleCase()
	p := patient.New(tc, "MRN1")
	raw, _ := BuildVXU(tc, p, testSoftware, "CTRL1", fixedNow)
	msg, _ := Parse([]byte(raw))

	pid := msg.GetSegment("PID")
	if pid == nil {
		t.Fatal("expected PID")
	}
	if got := pid.GetComponent(3, 1); got != "MRN1" {
		t.Errorf("expected MRN1, got %q", got)
	}
	if got := pid.GetComponent(5, 1); got != p.LastName {
		t.Errorf("expected last name %q, got %q", p.LastName, got)
	}
	if got := pid.GetField(7); got != "20200115" {
		t.Errorf("expected DOB 20200115, got %q", got)
	}
	if got := pid.GetField(8); got != "F" {
		t.Errorf("expected sex F, got %q", got)
	}
	if got := pid.GetComponent(11, 5); got != p.Zip {
		t.Errorf("expected zip %q, got %q", p.Zip, got)
	}
	if got := pid.GetComponent(13, 6); got != p.PhoneArea() {
		t.Errorf("expected area code %q in PID-13, got %q", p.PhoneArea(), got)
	}

	nk1 := msg.GetSegment("NK1")
	if nk1 == nil {
		t.Fatal("expected NK1")
	}
	if got := nk1.GetComponent(3, 1); got != "MTH" {
		t.Errorf("expected relationship MTH, got %q", got)
	}
	if got := nk1.GetComponent(2, 2); got != p.MotherFirst {
		t.Errorf("expected mother %q, got %q", p.MotherFirst, got)
	}
}

func TestBuildVXU_SkipsUndatedEvents(t *testing.T) {
	tc := sampleCase()
	tc.Events[0].Date = nil
	_, sent := BuildVXU(tc, patient.New(tc, "MRN1"), testSoftware, "C", fixedNow)
	if len(sent) != 1 || sent[0].ID != "dose2" {
		t.Errorf("expected only dose2 encoded, got %d events", len(sent))
	}
}

func TestBuildQBP(t *testing.T) {
	tc := sampleCase()
	p := patient.New(tc, "MRN1")
	raw := BuildQBP(p, testSoftware, "CTRL2", fixedNow)

	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("built QBP does not parse: %v", err)
	}
	if msg.Type != "QBP^Q11^QBP_Q11" {
		t.Errorf("expected QBP^Q11^QBP_Q11, got %q", msg.Type)
	}
	qpd := msg.GetSegment("QPD")
	if qpd == nil {
		t.Fatal("expected QPD")
	}
	if got := qpd.GetComponent(1, 1); got != "Z44" {
		t.Errorf("expected query Z44, got %q", got)
	}
	if got := qpd.GetField(2); got != "CTRL2" {
		t.Errorf("expected query tag CTRL2, got %q", got)
	}
	if got := qpd.GetComponent(3, 1); got != "MRN1" {
		t.Errorf("expected MRN1, got %q", got)
	}
	if got := qpd.GetField(6); got != "20200115" {
		t.Errorf("expected DOB, got %q", got)
	}
	rcp := msg.GetSegment("RCP")
	if rcp == nil || rcp.GetField(1) != "I" {
		t.Error("expected RCP|I response control")
	}
	if len(msg.Segments) != 3 {
		t.Errorf("expected MSH, QPD, RCP, got %d segments", len(msg.Segments))
	}
}

func TestEscapeHL7(t *testing.T) {
	got := escapeHL7(`O'Brien|Jr^~\&`)
	want := `O'Brien\F\Jr\S\\R\\E\\T\`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestIDGenerator_Unique(t *testing.T) {
	g := NewIDGenerator()
	g.now = func() time.Time { return fixedNow }

	const n = 200
	var mu sync.Mutex
	seen := make(map[string]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Next()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Errorf("expected %d unique IDs, got %d", n, len(seen))
	}
}

func TestIDGenerator_Format(t *testing.T) {
	g := NewIDGenerator()
	g.now = func() time.Time { return fixedNow }
	millis := "1717234200000"
	if got := g.Next(); got != millis+"2" {
		t.Errorf("expected %q, got %q", millis+"2", got)
	}
	if got := g.Next(); got != millis+"3" {
		t.Errorf("expected %q, got %q", millis+"3", got)
	}
}

func TestIDGenerator_Wraps(t *testing.T) {
	g := NewIDGenerator()
	g.counter.Store(1<<31 - 1)
	if n := g.increment(); n != 1 {
		t.Errorf("expected counter to wrap to 1, got %d", n)
	}
}
