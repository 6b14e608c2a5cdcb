package cachestore

import (
	"context"
	"strings"
	"sync"
)

// Purpose is the logical role of a container. A container name is "<purpose>-<version>".
type Purpose string

const (
	PurposeShell Purpose = "shell"
	PurposeAPI   Purpose = "api-data"
)

// Purposes lists every purpose a controller version owns.
var Purposes = []Purpose{PurposeShell, PurposeAPI}

// Registry is the set of named caches of one controller instance. Exactly one container per
// purpose is current: the one tagged with the active version.
type Registry struct {
	backend Backend

	mu      sync.RWMutex
	version string
}

func NewRegistry(backend Backend, version string) *Registry {
	return &Registry{backend: backend, version: version}
}

// Backend exposes the underlying storage for callers that need raw container access.
func (r *Registry) Backend() Backend {
	return r.backend
}

func (r *Registry) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Promote makes version the active one. Containers of other versions become garbage.
func (r *Registry) Promote(version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
}

// Name returns the current container name for p.
func (r *Registry) Name(p Purpose) string {
	return NameFor(p, r.Version())
}

// NameFor returns the container name for p at version.
func NameFor(p Purpose, version string) string {
	return string(p) + "-" + version
}

// IsCurrent reports whether name is one of the containers of the active version.
func (r *Registry) IsCurrent(name string) bool {
	v := r.Version()
	for _, p := range Purposes {
		if name == NameFor(p, v) {
			return true
		}
	}
	return false
}

// PurposeOf parses the purpose part of a container name.
func PurposeOf(name string) (Purpose, bool) {
	for _, p := range Purposes {
		if strings.HasPrefix(name, string(p)+"-") {
			return p, true
		}
	}
	return "", false
}

// Open returns the current container for p.
func (r *Registry) Open(ctx context.Context, p Purpose) (Container, error) {
	return r.backend.Open(ctx, r.Name(p))
}

// OpenVersion returns the container for p at an arbitrary version (used while installing).
func (r *Registry) OpenVersion(ctx context.Context, p Purpose, version string) (Container, error) {
	return r.backend.Open(ctx, NameFor(p, version))
}

func (r *Registry) Names(ctx context.Context) ([]string, error) {
	return r.backend.Names(ctx)
}

func (r *Registry) Delete(ctx context.Context, name string) (bool, error) {
	return r.backend.Delete(ctx, name)
}

// TotalSize sums the body bytes of every entry in every container.
func (r *Registry) TotalSize(ctx context.Context) (int64, error) {
	names, err := r.backend.Names(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range names {
		c, err := r.backend.Open(ctx, n)
		if err != nil {
			return 0, err
		}
		s, err := c.Size(ctx)
		if err != nil {
			return 0, err
		}
		total += s
	}
	return total, nil
}
