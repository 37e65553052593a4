package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/abdulachik/amplibot/internal/model"
)

const (
	levelIDsPrefix    = "ids/"
	levelWatermarkKey = "state/last_searched_id"
)

// LevelDBStore keeps id sets as ids/<kind>/<id> keys and the watermark under
// a single state key.
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens (or creates) a LevelDB database at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create leveldb directory: %w", err)
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}

	return &LevelDBStore{db: db}, nil
}

func levelIDKey(kind model.Kind, id string) []byte {
	return []byte(levelIDsPrefix + string(kind) + "/" + id)
}

// LoadIDs scans the kind's key prefix.
func (s *LevelDBStore) LoadIDs(ctx context.Context, kind model.Kind) ([]string, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}

	prefix := []byte(levelIDsPrefix + string(kind) + "/")
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var ids []string
	for iter.Next() {
		ids = append(ids, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s ids: %w", kind, err)
	}

	return ids, nil
}

// AppendID stores id for kind. Re-adding an id is harmless.
func (s *LevelDBStore) AppendID(ctx context.Context, kind model.Kind, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if err := s.db.Put(levelIDKey(kind, id), nil, nil); err != nil {
		return fmt.Errorf("put %s id: %w", kind, err)
	}
	return nil
}

// LoadWatermark returns the stored watermark, or "" when absent.
func (s *LevelDBStore) LoadWatermark(ctx context.Context) (string, error) {
	v, err := s.db.Get([]byte(levelWatermarkKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get watermark: %w", err)
	}
	if !model.IsNumericID(string(v)) {
		return "", nil
	}
	return string(v), nil
}

// SaveWatermark replaces the stored watermark.
func (s *LevelDBStore) SaveWatermark(ctx context.Context, id string) error {
	if err := s.db.Put([]byte(levelWatermarkKey), []byte(id), nil); err != nil {
		return fmt.Errorf("put watermark: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
