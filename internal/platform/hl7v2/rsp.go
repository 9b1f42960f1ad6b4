package hl7v2

import (
	"strconv"
	"strings"
	"time"

	"github.com/ehr/fits/internal/domain/forecast"
)

// LOINC observation codes carried in a forecast RSP.
const (
	ObsVaccineGroup = "30956-7"
	ObsAdminStatus  = "59783-1"
	ObsValidDate    = "30981-5"
	ObsDueDate      = "30980-7"
	ObsDoseNumber   = "30973-2"
	ObsOverdueDate  = "59778-1"
	ObsFinishedDate = "59777-3"

	// echoMarker prefixes RXA-5 of the placeholder administration that
	// separates the echoed history from the forecast observations.
	echoMarker = "998"
)

// Reply is what DecodeRSP recovered from one response message.
type Reply struct {
	Forecasts   []forecast.ForecastActual
	Diagnostics []forecast.Diagnostic
	AckCode     string
}

// DecodeRSP scans an RSP line by line. Nothing is read until the echo-marked
// RXA; after it every OBX is interpreted by its observation code. Unusable
// segments are reported as diagnostics and skipped.
func DecodeRSP(reply string) Reply {
	var out Reply
	seeking := true
	// open indexes the current item; a pointer would not survive append.
	// An unusable group header closes it.
	open := -1

	for i, line := range splitSegments(reply) {
		n := i + 1
		name, _, ok := strings.Cut(line, "|")
		if !ok || len(name) != 3 {
			continue
		}
		seg, err := parseSegment(line)
		if err != nil {
			out.Diagnostics = append(out.Diagnostics, forecast.Diagnostic{Line: n, Text: line, Reason: err.Error()})
			continue
		}

		if name == "MSA" && out.AckCode == "" {
			out.AckCode = seg.GetField(1)
			if out.AckCode == "AE" || out.AckCode == "AR" {
				out.Diagnostics = append(out.Diagnostics, forecast.Diagnostic{Line: n, Text: line, Reason: "message rejected with " + out.AckCode})
			}
			continue
		}

		if seeking {
			if name == "RXA" && strings.HasPrefix(seg.GetField(5), echoMarker) {
				seeking = false
			}
			continue
		}
		if name != "OBX" || len(seg.Fields) < 5 {
			continue
		}

		code := seg.GetComponent(3, 1)
		value := seg.GetComponent(5, 1)

		if code == ObsVaccineGroup {
			id, err := strconv.Atoi(value)
			if err != nil {
				out.Diagnostics = append(out.Diagnostics, forecast.Diagnostic{Line: n, Text: line, Reason: "vaccine group code is not numeric"})
				open = -1
				continue
			}
			group, found := forecast.VaccineGroupByCode(id)
			if !found {
				out.Diagnostics = append(out.Diagnostics, forecast.Diagnostic{Line: n, Text: line, Reason: "unknown vaccine group code " + value})
				open = -1
				continue
			}
			out.Forecasts = append(out.Forecasts, forecast.ForecastActual{VaccineGroup: group, VaccineCvx: value})
			open = len(out.Forecasts) - 1
			continue
		}

		if !knownObservation(code) {
			continue
		}
		if open < 0 {
			out.Diagnostics = append(out.Diagnostics, forecast.Diagnostic{Line: n, Text: line, Reason: "observation before any forecast item"})
			continue
		}
		fa := &out.Forecasts[open]

		switch code {
		case ObsAdminStatus:
			fa.AdminStatus = value
			if strings.EqualFold(value, forecast.AdminStatusComplete) {
				fa.Complete = true
			}
		case ObsDoseNumber:
			fa.DoseNumber = value
		case ObsValidDate:
			fa.ValidDate = readDate(value, n, line, &out)
		case ObsDueDate:
			fa.DueDate = readDate(value, n, line, &out)
		case ObsOverdueDate:
			fa.OverdueDate = readDate(value, n, line, &out)
		case ObsFinishedDate:
			fa.FinishedDate = readDate(value, n, line, &out)
		}
	}
	return out
}

func knownObservation(code string) bool {
	switch code {
	case ObsAdminStatus, ObsDoseNumber, ObsValidDate, ObsDueDate, ObsOverdueDate, ObsFinishedDate:
		return true
	}
	return false
}

// readDate accepts exactly yyyyMMdd. Anything else yields nil.
func readDate(value string, n int, line string, out *Reply) *time.Time {
	if len(value) != len(DateLayout) {
		if value != "" {
			out.Diagnostics = append(out.Diagnostics, forecast.Diagnostic{Line: n, Text: line, Reason: "date is not yyyyMMdd"})
		}
		return nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		out.Diagnostics = append(out.Diagnostics, forecast.Diagnostic{Line: n, Text: line, Reason: "invalid date " + value})
		return nil
	}
	return &t
}
