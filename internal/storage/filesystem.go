package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nutriscan/internal/domain"
)

const indent = "  "

// ResultStore writes one JSON document per dish into a results directory.
// Existing documents are overwritten.
type ResultStore struct {
	basePath string
}

// NewResultStore initializes a ResultStore rooted at basePath, creating the
// directory when needed.
func NewResultStore(basePath string) (*ResultStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &ResultStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *ResultStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Path returns the location of the result document for id.
func (s *ResultStore) Path(id domain.DishID) (string, error) {
	name, err := resultFileName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, name), nil
}

// Save persists res as indented JSON at {basePath}/{dishId}.json. The
// results directory must exist; it is not recreated here.
func (s *ResultStore) Save(ctx context.Context, res domain.Result) error {
	if s == nil {
		return fmt.Errorf("%w: storage: no store configured", domain.ErrWrite)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWrite, err)
	}
	path, err := s.Path(res.DishID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWrite, err)
	}
	data, err := json.MarshalIndent(res, "", indent)
	if err != nil {
		return fmt.Errorf("%w: storage: encode result: %w", domain.ErrWrite, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: storage: write file: %w", domain.ErrWrite, err)
	}
	return nil
}

// Discard removes the result document for id. A missing document is not an
// error.
func (s *ResultStore) Discard(ctx context.Context, id domain.DishID) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// resultFileName maps a dish id to a file name inside the results directory
// and rejects ids that would escape it.
func resultFileName(id domain.DishID) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("storage: dish id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("storage: invalid dish id %q", id)
	}
	return id + ".json", nil
}
