package hl7v2

import (
	"testing"
)

// =========== Sample Messages ===========

const sampleVXU = "MSH|^~\\&|FAC1|FAC1|||20240115143025-0500||VXU^V04^VXU_V04|MSG00001|P|2.5.1|||ER|AL|||||Z22^CDCPHINVS\rPID|1||MRN12345^^^FITS^MR||Doe^John^A^^^^L|Smith^Mary^^^^^M|20200115|M|||12 Main St^^Springfield^MI^49001^USA||^PRN^PH^^^616^5551234\rNK1|1|Doe^Jane^^^^^L|MTH^Mother^HL70063\rORC|RE||MSG00001.1^FITS\rRXA|0|1|20200315||08^HepB^CVX|999|||01||||||||MSD^MSD^MVX||||A\rORC|RE||MSG00001.2^FITS\rRXA|0|1|20200415||03^MMR^CVX|999|||01||||||||MSD^MSD^MVX||||A"

const sampleQBP = "MSH|^~\\&|FAC1|FAC1|||20240115143026||QBP^Q11^QBP_Q11|MSG00002|P|2.5.1|||ER|AL|||||Z44^CDCPHINVS\rQPD|Z44^Request Evaluated History and Forecast^CDCPHINVS|MSG00002|MRN12345^^^FITS^MR|Doe^John^A^^^^L|Smith^Mary^^^^^M|20200115|M|12 Main St^^Springfield^MI^49001^USA^P\rRCP|I|1^RD&Records&HL70126"

// =========== Parser Tests ===========

func TestParse_VXU(t *testing.T) {
	msg, err := Parse([]byte(sampleVXU))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Type != "VXU^V04^VXU_V04" {
		t.Errorf("expected Type 'VXU^V04^VXU_V04', got %q", msg.Type)
	}
	if msg.MessageCode() != "VXU" {
		t.Errorf("expected MessageCode 'VXU', got %q", msg.MessageCode())
	}
	if msg.ControlID != "MSG00001" {
		t.Errorf("expected ControlID 'MSG00001', got %q", msg.ControlID)
	}
	if msg.Version != "2.5.1" {
		t.Errorf("expected Version '2.5.1', got %q", msg.Version)
	}
	if msg.SendingApp != "FAC1" || msg.SendingFac != "FAC1" {
		t.Errorf("expected sending FAC1/FAC1, got %q/%q", msg.SendingApp, msg.SendingFac)
	}
	if msg.ReceivingApp != "" {
		t.Errorf("expected empty ReceivingApp, got %q", msg.ReceivingApp)
	}
	if msg.Timestamp.Year() != 2024 || msg.Timestamp.Month() != 1 || msg.Timestamp.Day() != 15 {
		t.Errorf("unexpected timestamp: %v", msg.Timestamp)
	}
	if _, offset := msg.Timestamp.Zone(); offset != -5*3600 {
		t.Errorf("expected -0500 offset, got %d", offset)
	}
}

func TestParse_MultipleSegments(t *testing.T) {
	msg, err := Parse([]byte(sampleVXU))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := []string{"MSH", "PID", "NK1", "ORC", "RXA", "ORC", "RXA"}
	if len(msg.Segments) != len(names) {
		t.Fatalf("expected %d segments, got %d", len(names), len(msg.Segments))
	}
	for i, name := range names {
		if msg.Segments[i].Name != name {
			t.Errorf("expected segment %d to be %q, got %q", i, name, msg.Segments[i].Name)
		}
	}
}

func TestParse_MSHFieldNumbering(t *testing.T) {
	msg, err := Parse([]byte(sampleVXU))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msh := msg.GetSegment("MSH")
	if msh.GetField(1) != "|" {
		t.Errorf("expected MSH-1 '|', got %q", msh.GetField(1))
	}
	if msh.GetField(2) != "^~\\&" {
		t.Errorf("expected MSH-2 encoding characters, got %q", msh.GetField(2))
	}
	if msh.GetField(15) != "ER" || msh.GetField(16) != "AL" {
		t.Errorf("expected MSH-15/16 ER/AL, got %q/%q", msh.GetField(15), msh.GetField(16))
	}
	if msh.GetComponent(21, 1) != "Z22" {
		t.Errorf("expected MSH-21 profile Z22, got %q", msh.GetComponent(21, 1))
	}
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse([]byte{})
	if err == nil {
		t.Error("expected error for empty input")
	}
}

func TestParse_NilInput(t *testing.T) {
	_, err := Parse(nil)
	if err == nil {
		t.Error("expected error for nil input")
	}
}

func TestParse_NoMSH(t *testing.T) {
	_, err := Parse([]byte("PID|1||MRN12345\rRXA|0|1"))
	if err == nil {
		t.Error("expected error for message without MSH")
	}
}

func TestParse_BlankLinesOnly(t *testing.T) {
	_, err := Parse([]byte("\r\n\r\n"))
	if err == nil {
		t.Error("expected error for input without segments")
	}
}

func TestParse_Repetitions(t *testing.T) {
	raw := "MSH|^~\\&|A|B|||20240115||VXU^V04|1|P|2.5.1\rPID|1||MRN1^^^FITS^MR~ALT9^^^SSA^SS||Doe^John"
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pid := msg.GetSegment("PID")
	f := pid.Fields[2]
	if len(f.Repeats) != 2 {
		t.Fatalf("expected 2 repetitions, got %d", len(f.Repeats))
	}
	if f.Repeats[1][0] != "ALT9" {
		t.Errorf("expected second repetition 'ALT9', got %q", f.Repeats[1][0])
	}
	if pid.GetComponent(3, 1) != "MRN1" {
		t.Errorf("expected first repetition to drive components, got %q", pid.GetComponent(3, 1))
	}
}

func TestParse_WindowsLineEndings(t *testing.T) {
	raw := "MSH|^~\\&|A|B|||20240115||VXU^V04|1|P|2.5.1\r\nPID|1||MRN1\r\n"
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.Segments) != 2 {
		t.Errorf("expected 2 segments with \\r\\n line endings, got %d", len(msg.Segments))
	}
}

func TestParse_UnixLineEndings(t *testing.T) {
	raw := "MSH|^~\\&|A|B|||20240115||VXU^V04|1|P|2.5.1\nPID|1||MRN1\n"
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.GetSegment("PID") == nil {
		t.Fatal("expected PID segment with \\n line endings")
	}
}

func TestMessage_PatientID(t *testing.T) {
	vxu, err := Parse([]byte(sampleVXU))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := vxu.PatientID(); got != "MRN12345" {
		t.Errorf("expected PatientID 'MRN12345' from PID, got %q", got)
	}

	qbp, err := Parse([]byte(sampleQBP))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := qbp.PatientID(); got != "MRN12345" {
		t.Errorf("expected PatientID 'MRN12345' from QPD, got %q", got)
	}
}

func TestMessage_GetSegments(t *testing.T) {
	msg, err := Parse([]byte(sampleVXU))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rxa := msg.GetSegments("RXA"); len(rxa) != 2 {
		t.Errorf("expected 2 RXA segments, got %d", len(rxa))
	}
	if zzz := msg.GetSegments("ZZZ"); len(zzz) != 0 {
		t.Errorf("expected 0 ZZZ segments, got %d", len(zzz))
	}
	if msg.GetSegment("ZZZ") != nil {
		t.Error("expected nil for missing segment")
	}
}

func TestSegment_GetComponent(t *testing.T) {
	msg, err := Parse([]byte(sampleVXU))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rxa := msg.GetSegments("RXA")[1]
	if got := rxa.GetComponent(5, 1); got != "03" {
		t.Errorf("expected RXA-5.1 '03', got %q", got)
	}
	if got := rxa.GetComponent(5, 3); got != "CVX" {
		t.Errorf("expected RXA-5.3 'CVX', got %q", got)
	}
	if got := rxa.GetComponent(17, 1); got != "MSD" {
		t.Errorf("expected RXA-17.1 'MSD', got %q", got)
	}
	if got := rxa.GetField(21); got != "A" {
		t.Errorf("expected RXA-21 'A', got %q", got)
	}
	if got := rxa.GetComponent(5, 99); got != "" {
		t.Errorf("expected empty string for out-of-range component, got %q", got)
	}
	if got := rxa.GetComponent(99, 1); got != "" {
		t.Errorf("expected empty string for out-of-range field, got %q", got)
	}
	if got := rxa.GetField(0); got != "" {
		t.Errorf("expected empty string for field 0, got %q", got)
	}
}

func TestParseHL7Timestamp(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		hour    int
	}{
		{"20240115143025-0500", false, 14},
		{"20240115143025", false, 14},
		{"202401151430", false, 14},
		{"20240115", false, 0},
		{"2024", true, 0},
	}
	for _, tt := range tests {
		ts, err := parseHL7Timestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseHL7Timestamp(%q): expected error %v, got %v", tt.in, tt.wantErr, err)
			continue
		}
		if err == nil && ts.Hour() != tt.hour {
			t.Errorf("parseHL7Timestamp(%q): expected hour %d, got %d", tt.in, tt.hour, ts.Hour())
		}
	}
}
