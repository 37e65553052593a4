package state

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdulachik/amplibot/internal/model"
)

// File names used by FileStore.
const (
	RetweetedIDsFile = "retweeted_tweet_ids.txt"
	LikedIDsFile     = "liked_tweet_ids.txt"
	FollowedIDsFile  = "followed_user_ids.txt"
	WatermarkFile    = "last_searched_id.txt"
)

// FileStore keeps each id set in a newline-delimited file and the watermark
// in a single-value file, all under one directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the state directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) idsPath(kind model.Kind) string {
	switch kind {
	case model.KindRetweet:
		return filepath.Join(s.dir, RetweetedIDsFile)
	case model.KindLike:
		return filepath.Join(s.dir, LikedIDsFile)
	default:
		return filepath.Join(s.dir, FollowedIDsFile)
	}
}

// LoadIDs reads every non-blank line of the kind's file. A missing file is
// an empty set.
func (s *FileStore) LoadIDs(ctx context.Context, kind model.Kind) ([]string, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}

	f, err := os.Open(s.idsPath(kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s ids: %w", kind, err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s ids: %w", kind, err)
	}

	return ids, nil
}

// AppendID appends id as a new line.
func (s *FileStore) AppendID(ctx context.Context, kind model.Kind, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}

	f, err := os.OpenFile(s.idsPath(kind), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s ids: %w", kind, err)
	}

	if _, err := f.WriteString(id + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append %s id: %w", kind, err)
	}

	return f.Close()
}

// LoadWatermark reads the watermark file. Missing, empty or non-numeric
// content means no watermark.
func (s *FileStore) LoadWatermark(ctx context.Context) (string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, WatermarkFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read watermark: %w", err)
	}

	id := strings.TrimSpace(string(b))
	if !model.IsNumericID(id) {
		return "", nil
	}
	return id, nil
}

// SaveWatermark overwrites the watermark file. An empty id writes an empty file.
func (s *FileStore) SaveWatermark(ctx context.Context, id string) error {
	if err := os.WriteFile(filepath.Join(s.dir, WatermarkFile), []byte(id), 0644); err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	return nil
}

// Close is a no-op; files are opened per call.
func (s *FileStore) Close() error {
	return nil
}
