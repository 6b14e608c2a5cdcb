package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// JSONRepository keeps the precache manifest in a JSON file.
type JSONRepository struct {
	path      string
	dir       string
	base      string
	validator *validator.Validate
	log       *logrus.Entry
	mu        sync.Mutex
	debounce  time.Duration
}

// NewJSONRepository creates a repository for the given manifest path.
func NewJSONRepository(path string) (Repository, error) {
	if path == "" {
		return nil, errors.New("manifest file path is required")
	}

	return &JSONRepository{
		path:      path,
		dir:       filepath.Dir(path),
		base:      filepath.Base(path),
		validator: validator.New(),
		log:       logger.WithComponent("manifest-repo"),
		debounce:  200 * time.Millisecond,
	}, nil
}

// Load reads the manifest, fills in the default shell and offline documents and validates it.
func (r *JSONRepository) Load() (*Manifest, error) {
	r.mu.Lock()
	data, err := os.ReadFile(r.path)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read manifest file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest file %s: %w", r.base, err)
	}
	m.ApplyDefaults()

	if err := r.validator.Struct(&m); err != nil {
		return nil, fmt.Errorf("validate manifest file: %w", err)
	}
	return &m, nil
}

// Save validates m and replaces the manifest file atomically, so a watcher never reads a
// half-written manifest.
func (r *JSONRepository) Save(m *Manifest) error {
	if m == nil {
		return errors.New("manifest is nil")
	}
	if err := r.validator.Struct(m); err != nil {
		return fmt.Errorf("validate before save: %w", err)
	}

	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return writeFileAtomic(r.dir, r.path, payload)
}

func writeFileAtomic(dir, path string, payload []byte) (err error) {
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace manifest file: %w", err)
	}
	return nil
}
