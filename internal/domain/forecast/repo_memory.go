package forecast

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type resultRepoMemory struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*SoftwareResult
}

// NewResultRepoMemory keeps results in process memory. It is used when no
// database is configured.
func NewResultRepoMemory() ResultRepository {
	return &resultRepoMemory{items: make(map[uuid.UUID]*SoftwareResult)}
}

func (r *resultRepoMemory) Save(_ context.Context, res *SoftwareResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	cp := *res
	r.mu.Lock()
	r.items[res.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *resultRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*SoftwareResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *resultRepoMemory) ListByTestCase(_ context.Context, testCaseID string, limit, offset int) ([]*SoftwareResult, int, error) {
	r.mu.RLock()
	var matched []*SoftwareResult
	for _, res := range r.items {
		if res.TestCaseID == testCaseID {
			cp := *res
			matched = append(matched, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
