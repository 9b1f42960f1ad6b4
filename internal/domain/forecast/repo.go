package forecast

import (
	"context"

	"github.com/google/uuid"
)

// ResultRepository archives SoftwareResults.
type ResultRepository interface {
	Save(ctx context.Context, r *SoftwareResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*SoftwareResult, error)
	ListByTestCase(ctx context.Context, testCaseID string, limit, offset int) ([]*SoftwareResult, int, error)
}
