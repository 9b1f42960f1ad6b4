package harness

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/fits/internal/domain/forecast"
	"github.com/ehr/fits/internal/domain/testcase"
	"github.com/ehr/fits/pkg/pagination"
)

const maxFixtureSize = 1 << 20

type Handler struct {
	runner   *Runner
	software []forecast.Software
	repo     forecast.ResultRepository
}

func NewHandler(runner *Runner, software []forecast.Software, repo forecast.ResultRepository) *Handler {
	return &Handler{runner: runner, software: software, repo: repo}
}

// RegisterRoutes registers the harness API on the provided group.
//
//	POST /forecasts                 - run a fixture (YAML or JSON) against ?software=a,b
//	GET  /software                  - list configured target systems
//	GET  /results/:id               - fetch one archived result
//	GET  /test-cases/:id/results    - list archived results of a test case
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/forecasts", h.RunForecasts)
	api.GET("/software", h.ListSoftware)
	api.GET("/results/:id", h.GetResult)
	api.GET("/test-cases/:id/results", h.ListResults)
}

type runResponse struct {
	Summary Summary     `json:"summary"`
	Results []RunResult `json:"results"`
}

func (h *Handler) RunForecasts(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxFixtureSize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is empty")
	}
	cases, err := testcase.Load(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var names []string
	if raw := c.QueryParam("software"); raw != "" {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	selected, err := forecast.SelectSoftware(h.software, names)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(selected) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no software configured")
	}

	results, err := h.runner.Run(c.Request().Context(), cases, selected)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runResponse{Summary: Summarize(results), Results: results})
}

func (h *Handler) ListSoftware(c echo.Context) error {
	return c.JSON(http.StatusOK, h.software)
}

func (h *Handler) GetResult(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.repo.GetByID(c.Request().Context(), id)
	if errors.Is(err, forecast.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "result not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListResults(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.repo.ListByTestCase(c.Request().Context(), c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
