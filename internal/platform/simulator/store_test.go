package simulator

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func sampleDoses() []Dose {
	return []Dose{
		{Cvx: "03", Mvx: "MSD", Date: time.Date(2021, 1, 15, 0, 0, 0, 0, time.UTC)},
		{Cvx: "21", Mvx: "MSD", Date: time.Date(2021, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
}

func testStore(t *testing.T, store DoseStore) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Doses(ctx, "unknown")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no doses for unknown MRN, got %d", len(got))
	}

	if err := store.Record(ctx, "mrn-1", sampleDoses()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err = store.Doses(ctx, "mrn-1")
	if err != nil {
		t.Fatalf("Doses: %v", err)
	}
	if diff := cmp.Diff(sampleDoses(), got); diff != "" {
		t.Errorf("doses mismatch (-want +got):\n%s", diff)
	}

	if err := store.Record(ctx, "mrn-1", sampleDoses()[:1]); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, _ = store.Doses(ctx, "mrn-1")
	if len(got) != 1 {
		t.Errorf("expected history to be replaced, got %d doses", len(got))
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	testStore(t, NewRedisStore(client, time.Hour))

	if !mr.Exists("fits:simulator:doses:mrn-1") {
		t.Error("expected key fits:simulator:doses:mrn-1")
	}
	if ttl := mr.TTL("fits:simulator:doses:mrn-1"); ttl != time.Hour {
		t.Errorf("expected ttl 1h, got %v", ttl)
	}
}

func TestNewStoreFromURL(t *testing.T) {
	store, err := NewStoreFromURL(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore for empty url, got %T", store)
	}

	mr := miniredis.RunT(t)
	store, err = NewStoreFromURL(context.Background(), "redis://"+mr.Addr()+"/0", time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := store.(*RedisStore); !ok {
		t.Errorf("expected *RedisStore, got %T", store)
	}

	if _, err := NewStoreFromURL(context.Background(), "://bad", 0); err == nil {
		t.Error("expected error for malformed url")
	}
}
