package textreport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/platform/simulator"
)

// Report names for the groups the simulator forecasts.
var (
	simFamily = map[int]string{
		forecast.IDDTaP:  "DTaP",
		forecast.IDHepB:  "HepB",
		forecast.IDHib:   "Hib",
		forecast.IDPolio: "IPV",
		forecast.IDHepA:  "HepA",
		forecast.IDMMR:   "MMR",
		forecast.IDVar:   "Var",
		forecast.IDPCV:   "PCV13",
	}
	simSeries = map[int]string{
		forecast.IDDTaP:  "Diphtheria",
		forecast.IDHepB:  "HepB",
		forecast.IDHib:   "Hib",
		forecast.IDPolio: "Polio",
		forecast.IDHepA:  "HepA",
		forecast.IDMMR:   "MMR",
		forecast.IDVar:   "Varicella",
		forecast.IDPCV:   "Pneumo",
	}
)

// Handler serves a stand-in text report forecaster. It keeps no state: the
// whole history arrives on every request.
type Handler struct {
	series simulator.Series
	logger zerolog.Logger
}

// NewHandler creates the simulator handler.
func NewHandler(logger zerolog.Logger) *Handler {
	return &Handler{
		series: simulator.DefaultSeries,
		logger: logger.With().Str("component", "tch-simulator").Logger(),
	}
}

// RegisterRoutes registers the simulator endpoints on the provided group.
//
//	GET /tch/forecast - evaluate and forecast a history passed as query parameters
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/tch/forecast", h.Forecast)
}

// Forecast handles GET /tch/forecast.
func (h *Handler) Forecast(c echo.Context) error {
	evalDate, err := time.Parse(DateLayout, c.QueryParam("evalDate"))
	if err != nil {
		return c.String(http.StatusBadRequest, "evalDate must be yyyyMMdd")
	}
	if _, err := time.Parse(DateLayout, c.QueryParam("patientDob")); err != nil {
		return c.String(http.StatusBadRequest, "patientDob must be yyyyMMdd")
	}

	var doses []simulator.Dose
	for n := 1; ; n++ {
		raw := c.QueryParam("vaccineDate" + strconv.Itoa(n))
		if raw == "" {
			break
		}
		date, err := time.Parse(DateLayout, raw)
		if err != nil {
			return c.String(http.StatusBadRequest, fmt.Sprintf("vaccineDate%d must be yyyyMMdd", n))
		}
		doses = append(doses, simulator.Dose{
			Cvx:  c.QueryParam("vaccineCvx" + strconv.Itoa(n)),
			Mvx:  c.QueryParam("vaccineMvx" + strconv.Itoa(n)),
			Date: date,
		})
	}
	h.logger.Debug().Int("doses", len(doses)).Str("eval_date", evalDate.Format(DateLayout)).Msg("forecast requested")

	return c.String(http.StatusOK, h.render(doses, evalDate))
}

func (h *Handler) render(doses []simulator.Dose, evalDate time.Time) string {
	var b strings.Builder
	b.WriteString("FITS simulated forecaster\n")
	fmt.Fprintf(&b, "Evaluation date %s\n\n", evalDate.Format(ReportDateLayout))

	for _, ev := range simulator.Evaluate(doses) {
		series, ok := simSeries[ev.Group.ID]
		if !ok {
			continue
		}
		verdict := "is a valid"
		if !ev.Valid {
			verdict = "is an invalid"
		}
		fmt.Fprintf(&b, "Vaccination #%d: %s given %s %s %s dose %d.\n",
			ev.Position, ev.Dose.Cvx, ev.Dose.Date.Format(ReportDateLayout), verdict, series, ev.DoseNumber)
	}
	b.WriteByte('\n')

	for _, p := range simulator.Plan(doses, evalDate, h.series) {
		family, ok := simFamily[p.Group.ID]
		if !ok {
			continue
		}
		if p.Complete {
			fmt.Fprintf(&b, "Forecasting %s complete\n", family)
			continue
		}
		fmt.Fprintf(&b, "Forecasting %s dose %d due %s valid %s overdue %s finished %s\n",
			family, p.DoseNumber,
			p.Due.Format(ReportDateLayout), p.Valid.Format(ReportDateLayout),
			p.Overdue.Format(ReportDateLayout), p.Finished.Format(ReportDateLayout))
	}
	return b.String()
}
