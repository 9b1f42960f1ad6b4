package textreport

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
)

// ReportDateLayout is the date format written inside the report.
const ReportDateLayout = "01/02/2006"

// reportDateParse also accepts months and days without a leading zero.
const reportDateParse = "1/2/2006"

// familyGroups maps report family names to every vaccine group they cover.
var familyGroups = map[string][]int{
	"Hib":       {forecast.IDHib},
	"HepB":      {forecast.IDHepB},
	"DTaP":      {forecast.IDDTaP, forecast.IDDTaPTdapTd},
	"Td":        {forecast.IDTdOnly, forecast.IDTdapTd, forecast.IDDTaPTdapTd},
	"Tdap":      {forecast.IDTdapOnly, forecast.IDTdapTd, forecast.IDDTaPTdapTd},
	"IPV":       {forecast.IDPolio},
	"HepA":      {forecast.IDHepA},
	"MMR":       {forecast.IDMMR},
	"Measles":   {forecast.IDMeaslesOnly},
	"Mumps":     {forecast.IDMumpsOnly},
	"Rubella":   {forecast.IDRubellaOnly},
	"Var":       {forecast.IDVar},
	"Influenza": {forecast.IDInfluenza},
	"MCV4":      {forecast.IDMening},
	"HPV":       {forecast.IDHPV},
	"Rota":      {forecast.IDRota},
	"PCV13":     {forecast.IDPneumo, forecast.IDPCV},
	"Zoster":    {forecast.IDZoster},
	"PPSV":      {forecast.IDPPSV},
}

// seriesCvx maps evaluation series names to the CVX code of the series.
var seriesCvx = map[string]string{
	"Varicella":  "21",
	"Rubella":    "06",
	"Measles":    "05",
	"Influenza":  "88",
	"Hib":        "17",
	"HPV":        "137",
	"HepB":       "45",
	"HepA":       "85",
	"Diphtheria": "107",
	"Mening":     "147",
	"Mumps":      "07",
	"Pertussis":  "11",
	"Pneumo":     "152",
	"Polio":      "89",
	"Rotavirus":  "122",
	"Zoster":     "121",
	"PPSV":       "33",
	"MMR":        "03",
}

// FamilyGroups returns the vaccine groups a report family stands for.
func FamilyGroups(family string) []forecast.VaccineGroup {
	var out []forecast.VaccineGroup
	for _, id := range familyGroups[family] {
		if g, ok := forecast.VaccineGroupByID(id); ok {
			out = append(out, g)
		}
	}
	return out
}

// SeriesCvx returns the CVX code for an evaluation series name, or "".
func SeriesCvx(series string) string { return seriesCvx[series] }

const (
	phraseValid   = " is a valid "
	phraseInvalid = " is an invalid "
	phraseDose    = " dose "
)

// A line shape recognizes one kind of report line. apply is only called for
// lines that match.
type lineShape struct {
	pattern *regexp.Regexp
	apply   func(d *decoder, n int, line string, m []string)
}

var shapes = []lineShape{
	{
		pattern: regexp.MustCompile(`^Forecasting\s+(\S+)(?:\s+(.*))?$`),
		apply:   (*decoder).forecastLine,
	},
	{
		pattern: regexp.MustCompile(`^Vaccination #([^:]*):\s*(.*)$`),
		apply:   (*decoder).evaluationLine,
	},
}

// Report is the structured content recovered from a text report.
type Report struct {
	Forecasts   []forecast.ForecastActual
	Evaluations int
	Diagnostics []forecast.Diagnostic
	Unmatched   int
}

type decoder struct {
	events []*testcase.TestEvent
	out    Report
}

// ParseReport reads the report line by line. events are the vaccine events
// in the order they were sent; "Vaccination #N" lines attach an evaluation
// to the Nth of them. Every raw line is passed to echo when it is not nil.
// Only a read failure is returned as an error.
func ParseReport(r io.Reader, events []*testcase.TestEvent, echo func(string)) (Report, error) {
	d := &decoder{events: events}

	br := bufio.NewReader(r)
	n := 0
	for {
		raw, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return d.out, fmt.Errorf("textreport: read report: %w", err)
		}
		if raw == "" && err == io.EOF {
			break
		}
		n++
		raw = strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
		d.line(n, raw, echo)
		if err == io.EOF {
			break
		}
	}
	return d.out, nil
}

func (d *decoder) line(n int, raw string, echo func(string)) {
	if echo != nil {
		echo(raw)
	}
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}
	for _, s := range shapes {
		if m := s.pattern.FindStringSubmatch(line); m != nil {
			s.apply(d, n, line, m)
			return
		}
	}
	d.out.Unmatched++
}

func (d *decoder) diag(n int, line, reason string) {
	d.out.Diagnostics = append(d.out.Diagnostics, forecast.Diagnostic{Line: n, Text: line, Reason: reason})
}

// forecastLine handles
//
//	Forecasting MMR dose 1 due 05/01/2006 valid 04/29/2006 overdue 06/01/2006 finished 10/05/2009
//	Forecasting Hib complete
//
// Fields are read positionally; the first missing or unexpected keyword ends
// extraction for the line.
func (d *decoder) forecastLine(n int, line string, m []string) {
	groups := FamilyGroups(m[1])
	if len(groups) == 0 {
		d.diag(n, line, "unknown vaccine family "+m[1])
		return
	}
	parts := strings.Fields(m[2])
	if len(parts) == 0 {
		d.diag(n, line, "forecast line has no status")
		return
	}

	var fa forecast.ForecastActual
	if strings.EqualFold(parts[0], "complete") {
		fa.Complete = true
		fa.AdminStatus = forecast.AdminStatusComplete
	} else {
		readPairs(parts, &fa)
	}
	for _, g := range groups {
		item := fa
		item.VaccineGroup = g
		item.VaccineCvx = g.VaccineCvx
		d.out.Forecasts = append(d.out.Forecasts, item)
	}
}

func readPairs(parts []string, fa *forecast.ForecastActual) {
	keys := []string{"dose", "due", "valid", "overdue", "finished"}
	for i, key := range keys {
		at := 2 * i
		if at+1 >= len(parts) || parts[at] != key {
			return
		}
		value := parts[at+1]
		switch key {
		case "dose":
			fa.DoseNumber = value
		case "due":
			fa.DueDate = parseDate(value)
		case "valid":
			fa.ValidDate = parseDate(value)
		case "overdue":
			fa.OverdueDate = parseDate(value)
		case "finished":
			fa.FinishedDate = parseDate(value)
		}
	}
}

// evaluationLine handles
//
//	Vaccination #2: MMR given 01/20/2021 is a valid MMR dose 1.
func (d *decoder) evaluationLine(n int, line string, m []string) {
	pos, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil {
		d.diag(n, line, "vaccination number is not numeric")
		return
	}
	if pos < 1 || pos > len(d.events) {
		d.diag(n, line, fmt.Sprintf("no vaccination #%d in test case", pos))
		return
	}
	rest := strings.TrimSpace(m[2])

	validity := testcase.ValidityValid
	start := strings.Index(rest, phraseValid)
	if inv := strings.Index(rest, phraseInvalid); inv > 0 {
		validity = testcase.ValidityInvalid
		start = inv + len(phraseInvalid)
	} else if start > 0 {
		start += len(phraseValid)
	} else {
		d.diag(n, line, "evaluation line has no validity phrase")
		return
	}

	var series, dose string
	if at := strings.Index(rest[start:], phraseDose); at >= 0 {
		at += start
		series = strings.TrimSpace(rest[start:at])
		numStart := at + len(phraseDose)
		if end := strings.Index(rest[numStart:], "."); end > 0 {
			dose = rest[numStart : numStart+end]
		}
	}

	cvx := SeriesCvx(series)
	d.events[pos-1].AddEvaluation(testcase.EvaluationActual{
		VaccineCvx:     cvx,
		DoseNumber:     dose,
		Validity:       validity,
		ReasonText:     rest,
		SeriesUsedCode: cvx,
		SeriesUsedText: series,
	})
	d.out.Evaluations++
}

// parseDate reads MM/dd/yyyy, leading zeros optional. Anything else is absent.
func parseDate(s string) *time.Time {
	t, err := time.Parse(reportDateParse, s)
	if err != nil {
		return nil
	}
	return &t
}
