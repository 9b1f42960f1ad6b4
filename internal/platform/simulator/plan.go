// Package simulator holds the forecasting rule and dose storage shared by
// the local stand-in target systems used for demos and end-to-end tests.
package simulator

import (
	"sort"
	"strconv"
	"time"

	"github.com/ehr/fits/internal/domain/forecast"
)

// DoseInterval separates consecutive doses of a series.
const DoseInterval = 28 * 24 * time.Hour

// Dose is one administration the simulator has been told about.
type Dose struct {
	Cvx  string    `json:"cvx"`
	Mvx  string    `json:"mvx,omitempty"`
	Date time.Time `json:"date"`
}

// Series gives the number of doses that completes a vaccine group.
type Series map[int]int

// DefaultSeries covers the routine childhood groups.
var DefaultSeries = Series{
	forecast.IDDTaP:  5,
	forecast.IDHepB:  3,
	forecast.IDHib:   4,
	forecast.IDPolio: 4,
	forecast.IDHepA:  2,
	forecast.IDMMR:   2,
	forecast.IDVar:   2,
	forecast.IDPCV:   4,
}

// Projection is the simulated forecast for one vaccine group.
type Projection struct {
	Group      forecast.VaccineGroup
	DoseNumber int
	Complete   bool
	Valid      time.Time
	Due        time.Time
	Overdue    time.Time
	Finished   time.Time
}

// Evaluation judges one dose in the order it was given.
type Evaluation struct {
	Position   int
	Dose       Dose
	Group      forecast.VaccineGroup
	DoseNumber int
	Valid      bool
}

// GroupOf maps a CVX code onto its vaccine group.
func GroupOf(cvx string) (forecast.VaccineGroup, bool) {
	n, err := strconv.Atoi(cvx)
	if err != nil {
		return forecast.VaccineGroup{}, false
	}
	return forecast.VaccineGroupByCode(n)
}

// Plan forecasts every group in series from the valid doses. The next dose
// is due four weeks after the latest one of the group, or on evalDate when
// none was given. A group with as many doses as its series length is complete.
func Plan(doses []Dose, evalDate time.Time, series Series) []Projection {
	byGroup := map[int][]Dose{}
	for _, ev := range Evaluate(doses) {
		if ev.Valid {
			byGroup[ev.Group.ID] = append(byGroup[ev.Group.ID], ev.Dose)
		}
	}

	ids := make([]int, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Projection, 0, len(ids))
	for _, id := range ids {
		group, ok := forecast.VaccineGroupByID(id)
		if !ok {
			continue
		}
		given := byGroup[id]
		p := Projection{Group: group, DoseNumber: len(given) + 1}
		if len(given) >= series[id] {
			p.Complete = true
			p.DoseNumber = 0
			out = append(out, p)
			continue
		}

		due := evalDate
		if last := latest(given); !last.IsZero() {
			due = last.Add(DoseInterval)
		}
		p.Valid = due
		p.Due = due
		p.Overdue = due.AddDate(0, 1, 0)
		p.Finished = due.AddDate(18, 0, 0)
		out = append(out, p)
	}
	return out
}

// Evaluate counts doses per group in date order. Doses given less than four
// weeks after the previous dose of the same group are invalid and do not
// advance the count.
func Evaluate(doses []Dose) []Evaluation {
	ordered := make([]int, len(doses))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return doses[ordered[a]].Date.Before(doses[ordered[b]].Date)
	})

	count := map[int]int{}
	last := map[int]time.Time{}
	evals := make([]Evaluation, len(doses))
	for _, i := range ordered {
		d := doses[i]
		ev := Evaluation{Position: i + 1, Dose: d}
		g, ok := GroupOf(d.Cvx)
		if ok {
			ev.Group = g
			prev, seen := last[g.ID]
			if !seen || !d.Date.Before(prev.Add(DoseInterval)) {
				count[g.ID]++
				last[g.ID] = d.Date
				ev.Valid = true
			}
			ev.DoseNumber = count[g.ID]
			if !ev.Valid {
				ev.DoseNumber = count[g.ID] + 1
			}
		}
		evals[i] = ev
	}
	return evals
}

func latest(doses []Dose) time.Time {
	var t time.Time
	for _, d := range doses {
		if d.Date.After(t) {
			t = d.Date
		}
	}
	return t
}
