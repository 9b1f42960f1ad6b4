// Package textreport talks to forecasters that take the test case as HTTP
// query parameters and answer with a plain-text report.
package textreport

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
)

const (
	// DateLayout is used for every date sent in the query string.
	DateLayout = "20060102"

	// FormatText asks for the line-oriented report.
	FormatText = "text"
)

// BuildQuery encodes tc as a query string starting with "?". Dated vaccine
// events become vaccineDateN, vaccineCvxN and vaccineMvxN, numbered from 1;
// they are returned in that order. Software options follow, overridden by
// the test case settings, sorted by name.
func BuildQuery(tc *testcase.TestCase, sw forecast.Software, format string) (string, []*testcase.TestEvent) {
	var b strings.Builder
	param := func(key, value string) {
		if b.Len() == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}

	param("evalDate", tc.EvalDate.Format(DateLayout))
	param("evalSchedule", "")
	param("resultFormat", format)
	param("patientDob", tc.PatientDob.Format(DateLayout))
	param("patientSex", tc.PatientSex)

	var sent []*testcase.TestEvent
	for _, ev := range tc.VaccineEvents() {
		if ev.Date == nil {
			continue
		}
		sent = append(sent, ev)
		n := strconv.Itoa(len(sent))
		param("vaccineDate"+n, ev.Date.Format(DateLayout))
		param("vaccineCvx"+n, ev.Event.VaccineCvx)
		param("vaccineMvx"+n, ev.Event.VaccineMvx)
	}

	opts := sw.MergedOptions(tc.Settings)
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		param(k, opts[k])
	}
	return b.String(), sent
}

// RequestURL appends query to base, switching the leading "?" to "&" when
// base already carries a query.
func RequestURL(base, query string) string {
	if strings.Contains(base, "?") && strings.HasPrefix(query, "?") {
		return base + "&" + query[1:]
	}
	return base + query
}
