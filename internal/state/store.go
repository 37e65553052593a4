package state

import (
	"context"
	"fmt"

	"github.com/abdulachik/amplibot/internal/model"
)

// Store persists the per-kind id sets and the search watermark.
// Id sets are append-only: nothing is ever removed.
type Store interface {
	// LoadIDs returns every id recorded for kind.
	LoadIDs(ctx context.Context, kind model.Kind) ([]string, error)

	// AppendID records id for kind.
	AppendID(ctx context.Context, kind model.Kind, id string) error

	// LoadWatermark returns the last searched id, or "" when none is stored.
	LoadWatermark(ctx context.Context) (string, error)

	// SaveWatermark replaces the last searched id.
	SaveWatermark(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}

func checkKind(kind model.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown action kind %q", kind)
	}
	return nil
}
