package cachestore

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned (wrapped in a storage fault) when a Put would grow the
// backend past its configured byte budget.
var ErrQuotaExceeded = errors.New("cache quota exceeded")

// Container is one named cache. Entries are keyed by request key (see KeyFor).
type Container interface {
	Name() string
	Match(ctx context.Context, key string) (Entry, bool, error)
	// Put stores e under key, replacing any previous entry atomically.
	Put(ctx context.Context, key string, e Entry) error
	Keys(ctx context.Context) ([]string, error)
	// Size is the sum of the body sizes of every stored entry.
	Size(ctx context.Context) (int64, error)
}

// Backend owns the named containers. Open creates a container on first use.
type Backend interface {
	Open(ctx context.Context, name string) (Container, error)
	Delete(ctx context.Context, name string) (bool, error)
	Names(ctx context.Context) ([]string, error)
	Close() error
}
