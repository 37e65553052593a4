package state

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abdulachik/amplibot/internal/model"
)

// Ledger is the in-memory view of the persisted id sets and watermark.
// Every set is loaded at startup; writes go to memory first, then the Store.
type Ledger struct {
	store     Store
	sets      map[model.Kind]map[string]struct{}
	watermark string
}

// Load reads every id set and the watermark from store.
func Load(ctx context.Context, store Store) (*Ledger, error) {
	l := &Ledger{
		store: store,
		sets:  make(map[model.Kind]map[string]struct{}, len(model.Kinds)),
	}

	for _, kind := range model.Kinds {
		ids, err := store.LoadIDs(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("load %s ids: %w", kind, err)
		}
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		l.sets[kind] = set
	}

	wm, err := store.LoadWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watermark: %w", err)
	}
	l.watermark = wm

	slog.Debug("ledger loaded",
		"retweeted", l.Len(model.KindRetweet),
		"liked", l.Len(model.KindLike),
		"followed", l.Len(model.KindFollow),
		"watermark", wm,
	)

	return l, nil
}

// Contains reports whether id was already recorded for kind.
func (l *Ledger) Contains(kind model.Kind, id string) bool {
	_, ok := l.sets[kind][id]
	return ok
}

// Record adds id to kind's set and appends it to the store. A persistence
// failure is returned but the id stays in memory for the rest of the run.
func (l *Ledger) Record(ctx context.Context, kind model.Kind, id string) error {
	if l.Contains(kind, id) {
		return nil
	}

	set, ok := l.sets[kind]
	if !ok {
		set = make(map[string]struct{})
		l.sets[kind] = set
	}
	set[id] = struct{}{}

	if err := l.store.AppendID(ctx, kind, id); err != nil {
		return fmt.Errorf("persist %s id %s: %w", kind, id, err)
	}
	return nil
}

// Len returns the size of kind's set.
func (l *Ledger) Len(kind model.Kind) int {
	return len(l.sets[kind])
}

// Watermark returns the highest post id seen so far, or "".
func (l *Ledger) Watermark() string {
	return l.watermark
}

// Advance raises the watermark to id when id is higher and persists it.
// It reports whether the watermark moved.
func (l *Ledger) Advance(ctx context.Context, id string) (bool, error) {
	if id == "" || model.CompareIDs(id, l.watermark) <= 0 {
		return false, nil
	}

	l.watermark = id
	if err := l.store.SaveWatermark(ctx, id); err != nil {
		return true, fmt.Errorf("persist watermark: %w", err)
	}
	return true, nil
}

// Flush persists the current watermark if one is set.
func (l *Ledger) Flush(ctx context.Context) error {
	if l.watermark == "" {
		return nil
	}
	if err := l.store.SaveWatermark(ctx, l.watermark); err != nil {
		return fmt.Errorf("persist watermark: %w", err)
	}
	return nil
}
