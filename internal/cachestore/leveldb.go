package cachestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/weatherdash/offline-proxy/internal/fault"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// Key layout:
//
//	c:<container>              container marker
//	e:<container>\x00<key>     gob-encoded Entry
const (
	markerPrefix = "c:"
	entryPrefix  = "e:"
	keySep       = "\x00"
)

// LevelDBBackend persists containers in a LevelDB database on disk. A size index is rebuilt at
// open time so the byte quota survives restarts.
type LevelDBBackend struct {
	db       *leveldb.DB
	maxBytes int64

	mu    sync.Mutex
	sizes map[string]int64 // entry db key -> body size
	total int64
}

func NewLevelDBBackend(path string, maxBytes int64) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fault.Storage("open", fmt.Errorf("open leveldb %s: %w", path, err))
	}
	b := &LevelDBBackend{db: db, maxBytes: maxBytes, sizes: map[string]int64{}}
	if err := b.loadIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.WithComponent("leveldb-store").Debugf("opened %s with %d entries (%d bytes)", path, len(b.sizes), b.total)
	return b, nil
}

func (b *LevelDBBackend) loadIndex() error {
	it := b.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	defer it.Release()
	for it.Next() {
		var ent Entry
		if err := decodeGob(it.Value(), &ent); err != nil {
			continue
		}
		size := int64(len(ent.Body))
		b.sizes[string(it.Key())] = size
		b.total += size
	}
	if err := it.Error(); err != nil {
		return fault.Storage("open", fmt.Errorf("index leveldb: %w", err))
	}
	return nil
}

func (b *LevelDBBackend) Open(_ context.Context, name string) (Container, error) {
	if name == "" {
		return nil, fault.Storage("open", fmt.Errorf("empty container name"))
	}
	marker := []byte(markerPrefix + name)
	ok, err := b.db.Has(marker, nil)
	if err != nil {
		return nil, fault.Storage("open", err)
	}
	if !ok {
		if err := b.db.Put(marker, nil, nil); err != nil {
			return nil, fault.Storage("open", err)
		}
	}
	return &levelDBContainer{backend: b, name: name}, nil
}

func (b *LevelDBBackend) Delete(_ context.Context, name string) (bool, error) {
	marker := []byte(markerPrefix + name)
	existed, err := b.db.Has(marker, nil)
	if err != nil {
		return false, fault.Storage("delete", err)
	}

	batch := new(leveldb.Batch)
	batch.Delete(marker)
	var removed []string
	it := b.db.NewIterator(util.BytesPrefix([]byte(entryPrefix+name+keySep)), nil)
	for it.Next() {
		k := append([]byte(nil), it.Key()...)
		batch.Delete(k)
		removed = append(removed, string(k))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, fault.Storage("delete", err)
	}
	if err := b.db.Write(batch, nil); err != nil {
		return false, fault.Storage("delete", err)
	}

	b.mu.Lock()
	for _, k := range removed {
		b.total -= b.sizes[k]
		delete(b.sizes, k)
	}
	b.mu.Unlock()
	return existed || len(removed) > 0, nil
}

func (b *LevelDBBackend) Names(_ context.Context) ([]string, error) {
	it := b.db.NewIterator(util.BytesPrefix([]byte(markerPrefix)), nil)
	defer it.Release()
	var names []string
	for it.Next() {
		names = append(names, strings.TrimPrefix(string(it.Key()), markerPrefix))
	}
	if err := it.Error(); err != nil {
		return nil, fault.Storage("names", err)
	}
	sort.Strings(names)
	return names, nil
}

// TotalSize returns the body bytes currently stored.
func (b *LevelDBBackend) TotalSize() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *LevelDBBackend) Close() error {
	return b.db.Close()
}

type levelDBContainer struct {
	backend *LevelDBBackend
	name    string
}

func (c *levelDBContainer) Name() string { return c.name }

func (c *levelDBContainer) dbKey(key string) []byte {
	return []byte(entryPrefix + c.name + keySep + key)
}

func (c *levelDBContainer) Match(_ context.Context, key string) (Entry, bool, error) {
	raw, err := c.backend.db.Get(c.dbKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fault.Storage("match", err)
	}
	var ent Entry
	if err := decodeGob(raw, &ent); err != nil {
		return Entry{}, false, fault.Storage("match", fmt.Errorf("decode %s: %w", key, err))
	}
	return ent, true, nil
}

func (c *levelDBContainer) Put(_ context.Context, key string, e Entry) error {
	b := c.backend
	raw, err := encodeGob(e)
	if err != nil {
		return fault.Storage("put", fmt.Errorf("encode %s: %w", key, err))
	}
	dbKey := c.dbKey(key)
	size := int64(len(e.Body))

	b.mu.Lock()
	defer b.mu.Unlock()
	delta := size - b.sizes[string(dbKey)]
	if b.maxBytes > 0 && b.total+delta > b.maxBytes {
		return fault.Storage("put", fmt.Errorf("%s %s: %w", c.name, key, ErrQuotaExceeded))
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(markerPrefix+c.name), nil)
	batch.Put(dbKey, raw)
	if err := b.db.Write(batch, nil); err != nil {
		return fault.Storage("put", err)
	}
	b.sizes[string(dbKey)] = size
	b.total += delta
	return nil
}

func (c *levelDBContainer) Keys(_ context.Context) ([]string, error) {
	prefix := entryPrefix + c.name + keySep
	it := c.backend.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	var keys []string
	for it.Next() {
		keys = append(keys, strings.TrimPrefix(string(it.Key()), prefix))
	}
	if err := it.Error(); err != nil {
		return nil, fault.Storage("keys", err)
	}
	return keys, nil
}

func (c *levelDBContainer) Size(_ context.Context) (int64, error) {
	prefix := entryPrefix + c.name + keySep
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	var total int64
	for k, s := range c.backend.sizes {
		if strings.HasPrefix(k, prefix) {
			total += s
		}
	}
	return total, nil
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
