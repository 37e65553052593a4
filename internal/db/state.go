package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/abdulachik/amplibot/internal/model"
)

const watermarkKey = "last_searched_id"

// LoadIDs returns every subject id recorded for kind.
func (s *Store) LoadIDs(ctx context.Context, kind model.Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
	ids, err := s.ListActionIDs(ctx, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", kind, err)
	}
	return ids, nil
}

// AppendID records id for kind. Duplicates are ignored.
func (s *Store) AppendID(ctx context.Context, kind model.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown action kind %q", kind)
	}
	if err := s.InsertActionID(ctx, string(kind), id); err != nil {
		return fmt.Errorf("insert %s id: %w", kind, err)
	}
	return nil
}

// LoadWatermark returns the last searched id, or "" when none is stored.
func (s *Store) LoadWatermark(ctx context.Context) (string, error) {
	v, err := s.GetState(ctx, watermarkKey)
	if errors.Is(err, ErrStateNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get watermark: %w", err)
	}
	if !model.IsNumericID(v) {
		return "", nil
	}
	return v, nil
}

// SaveWatermark stores the last searched id.
func (s *Store) SaveWatermark(ctx context.Context, id string) error {
	if err := s.SetState(ctx, watermarkKey, id); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}
