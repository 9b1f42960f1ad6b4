package forecast

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/fits/internal/platform/db"
)

// Querier is the part of *pgxpool.Pool the archive needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type resultRepoPG struct{ pool Querier }

// NewResultRepoPG archives results in the forecast_result table.
func NewResultRepoPG(pool Querier) ResultRepository {
	return &resultRepoPG{pool: pool}
}

func (r *resultRepoPG) conn(ctx context.Context) Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const resultCols = `id, test_case_id, software, COALESCE(log_text, ''), forecasts, evaluations,
	diagnostics, unmatched_lines, COALESCE(error, ''), started_at, finished_at`

func (r *resultRepoPG) scanResult(row pgx.Row) (*SoftwareResult, error) {
	var res SoftwareResult
	err := row.Scan(&res.ID, &res.TestCaseID, &res.Software, &res.LogText, &res.Forecasts, &res.Evaluations,
		&res.Diagnostics, &res.UnmatchedLines, &res.Error, &res.StartedAt, &res.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *resultRepoPG) Save(ctx context.Context, res *SoftwareResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	forecasts := res.Forecasts
	if forecasts == nil {
		forecasts = []ForecastActual{}
	}
	evaluations := res.Evaluations
	if evaluations == nil {
		evaluations = []EventEvaluation{}
	}
	diagnostics := res.Diagnostics
	if diagnostics == nil {
		diagnostics = []Diagnostic{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO forecast_result (id, test_case_id, software_name, service_type, software,
			log_text, forecasts, evaluations, diagnostics, unmatched_lines, error,
			started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		res.ID, res.TestCaseID, res.Software.Name, res.Software.ServiceType, res.Software,
		res.LogText, forecasts, evaluations, diagnostics, res.UnmatchedLines, res.Error,
		res.StartedAt, res.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert forecast result: %w", err)
	}
	return nil
}

func (r *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*SoftwareResult, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx, `SELECT `+resultCols+` FROM forecast_result WHERE id = $1`, id))
}

func (r *resultRepoPG) ListByTestCase(ctx context.Context, testCaseID string, limit, offset int) ([]*SoftwareResult, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM forecast_result WHERE test_case_id = $1`, testCaseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM forecast_result WHERE test_case_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`, testCaseID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*SoftwareResult
	for rows.Next() {
		res, err := r.scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, rows.Err()
}
