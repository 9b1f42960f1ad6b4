package simulator

import (
	"testing"
	"time"

	"github.com/ehr/fits/internal/domain/forecast"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPlan_NoDoses(t *testing.T) {
	eval := day(2024, 6, 1)
	plan := Plan(nil, eval, Series{forecast.IDMMR: 2})
	if len(plan) != 1 {
		t.Fatalf("expected 1 projection, got %d", len(plan))
	}
	p := plan[0]
	if p.Group.Label != "MMR" {
		t.Errorf("expected MMR, got %q", p.Group.Label)
	}
	if p.DoseNumber != 1 {
		t.Errorf("expected dose 1, got %d", p.DoseNumber)
	}
	if !p.Due.Equal(eval) {
		t.Errorf("expected due %v, got %v", eval, p.Due)
	}
	if !p.Overdue.Equal(day(2024, 7, 1)) {
		t.Errorf("expected overdue 2024-07-01, got %v", p.Overdue)
	}
}

func TestPlan_NextDoseFourWeeksAfterLast(t *testing.T) {
	doses := []Dose{{Cvx: "03", Date: day(2024, 1, 10)}}
	plan := Plan(doses, day(2024, 6, 1), Series{forecast.IDMMR: 2})
	p := plan[0]
	if p.DoseNumber != 2 {
		t.Errorf("expected dose 2, got %d", p.DoseNumber)
	}
	if !p.Due.Equal(day(2024, 2, 7)) {
		t.Errorf("expected due 2024-02-07, got %v", p.Due)
	}
	if p.Complete {
		t.Error("expected series not complete")
	}
}

func TestPlan_Complete(t *testing.T) {
	doses := []Dose{
		{Cvx: "3", Date: day(2021, 1, 10)},
		{Cvx: "03", Date: day(2022, 1, 10)},
	}
	plan := Plan(doses, day(2024, 6, 1), Series{forecast.IDMMR: 2, forecast.IDVar: 2})
	if len(plan) != 2 {
		t.Fatalf("expected 2 projections, got %d", len(plan))
	}
	if !plan[0].Complete {
		t.Error("expected MMR complete")
	}
	if plan[0].DoseNumber != 0 {
		t.Errorf("expected no dose number on complete series, got %d", plan[0].DoseNumber)
	}
	if plan[1].Group.Label != "Var" || plan[1].Complete {
		t.Errorf("expected open Var projection, got %+v", plan[1])
	}
}

func TestEvaluate_ShortIntervalInvalid(t *testing.T) {
	doses := []Dose{
		{Cvx: "03", Date: day(2024, 1, 10)},
		{Cvx: "03", Date: day(2024, 1, 20)},
		{Cvx: "03", Date: day(2024, 3, 1)},
		{Cvx: "999", Date: day(2024, 3, 1)},
	}
	evals := Evaluate(doses)
	if len(evals) != 4 {
		t.Fatalf("expected 4 evaluations, got %d", len(evals))
	}
	if !evals[0].Valid || evals[0].DoseNumber != 1 {
		t.Errorf("expected first dose valid #1, got %+v", evals[0])
	}
	if evals[1].Valid || evals[1].DoseNumber != 2 {
		t.Errorf("expected second dose invalid #2, got %+v", evals[1])
	}
	if !evals[2].Valid || evals[2].DoseNumber != 2 {
		t.Errorf("expected third dose valid #2, got %+v", evals[2])
	}
	if evals[3].Group.ID != 0 {
		t.Errorf("expected unknown CVX to have no group, got %+v", evals[3].Group)
	}
	if evals[2].Position != 3 {
		t.Errorf("expected position 3, got %d", evals[2].Position)
	}
}
