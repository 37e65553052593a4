package state

import (
	"context"
	"sync"

	"github.com/abdulachik/amplibot/internal/model"
)

// MemoryStore is a Store that forgets everything when the process exits.
type MemoryStore struct {
	mu        sync.Mutex
	ids       map[model.Kind][]string
	watermark string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[model.Kind][]string)}
}

func (s *MemoryStore) LoadIDs(ctx context.Context, kind model.Kind) ([]string, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids[kind]...), nil
}

func (s *MemoryStore) AppendID(ctx context.Context, kind model.Kind, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[kind] = append(s.ids[kind], id)
	return nil
}

func (s *MemoryStore) LoadWatermark(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark, nil
}

func (s *MemoryStore) SaveWatermark(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermark = id
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
