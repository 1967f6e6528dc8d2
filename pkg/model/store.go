package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// DefaultPath is where train writes and server reads the artifact.
	DefaultPath = "model/predictor.json"

	dirMode  = 0700
	fileMode = 0600
)

// LoadError reports a missing, unreadable or invalid model artifact.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading model %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsNotExist reports whether err is a LoadError for a missing file.
func IsNotExist(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && errors.Is(le.Err, fs.ErrNotExist)
}

// Load reads and validates the artifact at path.
func Load(path string) (*Ensemble, error) {
	if path == "" {
		return nil, &LoadError{Path: path, Err: errors.New("model path required")}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var e Ensemble
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("decoding artifact: %w", err)}
	}

	if err := e.Validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	slog.Debug("model loaded", "path", path, "trees", len(e.Trees), "created", e.CreatedAt)
	return &e, nil
}

// Save validates e and writes it to path, creating parent directories.
func Save(path string, e *Ensemble) error {
	if path == "" {
		return errors.New("model path required")
	}

	if err := e.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid model: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("creating model dir %s: %w", dir, err)
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}

	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing model %s: %w", path, err)
	}

	slog.Debug("model saved", "path", path, "bytes", len(b))
	return nil
}
