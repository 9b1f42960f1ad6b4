package hl7v2

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
	"github.com/ehr/fits/internal/platform/patient"
)

const (
	// DateLayout is the HL7 DT format used for DOB and administration dates.
	DateLayout = "20060102"
	// TimestampLayout is the MSH-7 format.
	TimestampLayout = "20060102150405-0700"

	// QueryForecast is the CDC query profile for evaluated history and forecast.
	QueryForecast = "Z44^Request Evaluated History and Forecast^CDCPHINVS"

	profileVXU = "Z22^CDCPHINVS"
	profileQBP = "Z44^CDCPHINVS"

	typeVXU = "VXU^V04^VXU_V04"
	typeQBP = "QBP^Q11^QBP_Q11"

	assigningAuthority = "FITS"
)

// IDGenerator hands out message control IDs of the form <unix millis><n>.
// The counter is shared by every query in the process and wraps to 1.
type IDGenerator struct {
	counter atomic.Int64
	now     func() time.Time
}

// NewIDGenerator returns a generator reading the wall clock.
func NewIDGenerator() *IDGenerator {
	g := &IDGenerator{now: time.Now}
	g.counter.Store(1)
	return g
}

var controlIDs = NewIDGenerator()

// Next returns a fresh control ID. Safe for concurrent use.
func (g *IDGenerator) Next() string {
	n := g.increment()
	return strconv.FormatInt(g.now().UnixMilli(), 10) + strconv.FormatInt(n, 10)
}

func (g *IDGenerator) increment() int64 {
	for {
		cur := g.counter.Load()
		next := cur + 1
		if cur >= math.MaxInt32 {
			next = 1
		}
		if g.counter.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// escapeHL7 escapes HL7 delimiters inside free-text values.
func escapeHL7(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\E\\")
	s = strings.ReplaceAll(s, "|", "\\F\\")
	s = strings.ReplaceAll(s, "^", "\\S\\")
	s = strings.ReplaceAll(s, "~", "\\R\\")
	s = strings.ReplaceAll(s, "&", "\\T\\")
	return s
}

// buildMSH writes a header. The facility identifier of the target is used
// as both sending application and sending facility.
func buildMSH(sw forecast.Software, msgType, controlID, profile string, now time.Time) string {
	fac := escapeHL7(sw.FacilityID)
	return fmt.Sprintf("MSH|^~\\&|%s|%s|||%s||%s|%s|P|2.5.1|||ER|AL|||||%s",
		fac, fac, now.Format(TimestampLayout), msgType, controlID, profile)
}

func xpn(last, first, middle, typeCode string) string {
	return fmt.Sprintf("%s^%s^%s^^^^%s", escapeHL7(last), escapeHL7(first), escapeHL7(middle), typeCode)
}

func maidenName(p patient.Patient) string {
	return fmt.Sprintf("%s^%s^^^^^M", escapeHL7(p.MaidenLast), escapeHL7(p.MaidenFirst))
}

func address(p patient.Patient) string {
	return fmt.Sprintf("%s^^%s^%s^%s^USA", escapeHL7(p.Street), escapeHL7(p.City), p.State, p.Zip)
}

func buildPID(p patient.Patient) string {
	phone := ""
	if area := p.PhoneArea(); area != "" {
		phone = "^PRN^PH^^^" + area + "^" + p.PhoneLocal()
	}
	return fmt.Sprintf("PID|1||%s^^^%s^MR||%s|%s|%s|%s|||%s||%s",
		p.MRN, assigningAuthority,
		xpn(p.LastName, p.FirstName, p.MiddleName, "L"),
		maidenName(p),
		p.Dob.Format(DateLayout), p.Sex,
		address(p), phone)
}

func buildNK1(p patient.Patient) string {
	return fmt.Sprintf("NK1|1|%s^%s^^^^^L|MTH^Mother^HL70063", escapeHL7(p.MotherLast), escapeHL7(p.MotherFirst))
}

// buildORC numbers each order <controlID>.<n> so the target keeps them apart.
func buildORC(controlID string, n int) string {
	return fmt.Sprintf("ORC|RE||%s.%d^%s", controlID, n, assigningAuthority)
}

// buildRXA writes a completed historical administration. Codes are copied
// verbatim; only the label is escaped.
func buildRXA(date time.Time, ev testcase.Event) string {
	return fmt.Sprintf("RXA|0|1|%s||%s^%s^CVX|999|||01||||||||%s^%s^MVX||||A",
		date.Format(DateLayout),
		ev.VaccineCvx, escapeHL7(ev.Label),
		ev.VaccineMvx, ev.VaccineMvx)
}

// BuildVXU encodes the vaccination history of tc. One ORC/RXA pair is written
// per dated vaccine event; the encoded events are returned in order.
func BuildVXU(tc *testcase.TestCase, p patient.Patient, sw forecast.Software, controlID string, now time.Time) (string, []*testcase.TestEvent) {
	segs := []string{
		buildMSH(sw, typeVXU, controlID, profileVXU, now),
		buildPID(p),
		buildNK1(p),
	}
	var sent []*testcase.TestEvent
	for _, ev := range tc.VaccineEvents() {
		if ev.Date == nil {
			continue
		}
		sent = append(sent, ev)
		segs = append(segs, buildORC(controlID, len(sent)), buildRXA(*ev.Date, ev.Event))
	}
	return joinSegments(segs), sent
}

// BuildQBP encodes the forecast query for the patient sent in the VXU.
func BuildQBP(p patient.Patient, sw forecast.Software, controlID string, now time.Time) string {
	qpd := fmt.Sprintf("QPD|%s|%s|%s^^^%s^MR|%s|%s|%s|%s|%s^P",
		QueryForecast, controlID,
		p.MRN, assigningAuthority,
		xpn(p.LastName, p.FirstName, p.MiddleName, "L"),
		maidenName(p),
		p.Dob.Format(DateLayout), p.Sex,
		address(p))
	return joinSegments([]string{
		buildMSH(sw, typeQBP, controlID, profileQBP, now),
		qpd,
		"RCP|I|1^RD&Records&HL70126",
	})
}

// joinSegments terminates every segment with \r.
func joinSegments(segs []string) string {
	return strings.Join(segs, "\r") + "\r"
}
