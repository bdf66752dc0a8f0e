package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hupe1980/taskmesh/core"
)

// FileStore writes one JSON document per run into a directory. Files are
// written to a temporary name and renamed so readers never see partial
// documents.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a FileStore.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("report directory is empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the report directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.dir, runID+".json"), nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, r *core.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := encode(r)
	if err != nil {
		return err
	}

	p, err := s.path(r.RunID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".report-*")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write report %s: %w", r.RunID, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close report %s: %w", r.RunID, err)
	}

	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store report %s: %w", r.RunID, err)
	}

	return nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, runID string) (*core.RunReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.path(runID)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", runID, err)
	}

	return decode(b)
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	var out []Summary

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}

		r, err := s.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		out = append(out, Summarize(r))
	}

	slices.SortStableFunc(out, func(a, b Summary) int { return a.StartedAt.Compare(b.StartedAt) })

	return out, nil
}
