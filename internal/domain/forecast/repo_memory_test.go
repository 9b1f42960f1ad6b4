package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestResultRepoMemory_SaveAndGet(t *testing.T) {
	repo := NewResultRepoMemory()
	ctx := context.Background()

	res := &SoftwareResult{TestCaseID: "tc1", Software: Software{Name: "sim"}}
	if err := repo.Save(ctx, res); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.ID == uuid.Nil {
		t.Fatal("expected Save to assign an ID")
	}

	got, err := repo.GetByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Software.Name != "sim" {
		t.Errorf("expected software 'sim', got %q", got.Software.Name)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResultRepoMemory_ListByTestCase(t *testing.T) {
	repo := NewResultRepoMemory()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_ = repo.Save(ctx, &SoftwareResult{TestCaseID: "tc1", StartedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	_ = repo.Save(ctx, &SoftwareResult{TestCaseID: "other", StartedAt: base})

	items, total, err := repo.ListByTestCase(ctx, "tc1", 2, 0)
	if err != nil {
		t.Fatalf("ListByTestCase: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if !items[0].StartedAt.After(items[1].StartedAt) {
		t.Error("expected newest first")
	}

	items, _, _ = repo.ListByTestCase(ctx, "tc1", 10, 5)
	if len(items) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(items))
	}
}
