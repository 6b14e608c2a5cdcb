package cachestore

import "fmt"

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

// NewBackendFromConfig creates a Backend based on the backend type.
// "leveldb" stores containers under path; "memory" (default) keeps them in process.
func NewBackendFromConfig(backendType, path string, maxBytes int64) (Backend, error) {
	switch backendType {
	case BackendMemory, "":
		return NewMemoryBackend(maxBytes), nil
	case BackendLevelDB:
		if path == "" {
			return nil, fmt.Errorf("leveldb backend requires a path")
		}
		return NewLevelDBBackend(path, maxBytes)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: %s, %s)", backendType, BackendMemory, BackendLevelDB)
	}
}
