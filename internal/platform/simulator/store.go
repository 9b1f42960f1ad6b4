package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DoseStore remembers the doses reported for each patient MRN.
type DoseStore interface {
	Record(ctx context.Context, mrn string, doses []Dose) error
	Doses(ctx context.Context, mrn string) ([]Dose, error)
}

// MemoryStore keeps doses in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	doses map[string][]Dose
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{doses: make(map[string][]Dose)}
}

// Record replaces the history for mrn.
func (s *MemoryStore) Record(_ context.Context, mrn string, doses []Dose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doses[mrn] = append([]Dose(nil), doses...)
	return nil
}

// Doses returns a copy of the history for mrn. Unknown MRNs have none.
func (s *MemoryStore) Doses(_ context.Context, mrn string) ([]Dose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Dose(nil), s.doses[mrn]...), nil
}

// RedisStore shares histories between simulator instances. Entries expire
// after ttl so abandoned test patients do not accumulate.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore wraps client. A non-positive ttl keeps entries forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{redis: client, ttl: ttl}
}

func (s *RedisStore) key(mrn string) string {
	return fmt.Sprintf("fits:simulator:doses:%s", mrn)
}

// Record replaces the history for mrn.
func (s *RedisStore) Record(ctx context.Context, mrn string, doses []Dose) error {
	data, err := json.Marshal(doses)
	if err != nil {
		return fmt.Errorf("simulator: marshal doses: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(mrn), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("simulator: set doses: %w", err)
	}
	return nil
}

// Doses returns the history for mrn. Unknown MRNs have none.
func (s *RedisStore) Doses(ctx context.Context, mrn string) ([]Dose, error) {
	data, err := s.redis.Get(ctx, s.key(mrn)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("simulator: get doses: %w", err)
	}
	var doses []Dose
	if err := json.Unmarshal(data, &doses); err != nil {
		return nil, fmt.Errorf("simulator: unmarshal doses: %w", err)
	}
	return doses, nil
}

// NewStoreFromURL returns a RedisStore for a redis:// URL, or a MemoryStore
// when url is empty.
func NewStoreFromURL(ctx context.Context, url string, ttl time.Duration) (DoseStore, error) {
	if url == "" {
		return NewMemoryStore(), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("simulator: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("simulator: redis not available: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}
