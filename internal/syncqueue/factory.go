package syncqueue

import "fmt"

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// NewQueueFromConfig creates a Queue for backendType. "memory" (default) needs no path.
func NewQueueFromConfig(backendType, path string) (Queue, error) {
	switch backendType {
	case BackendMemory, "":
		return NewMemoryQueue(), nil
	case BackendSQLite:
		if path == "" {
			return nil, fmt.Errorf("sqlite queue requires a path")
		}
		return NewSQLiteQueue(path)
	default:
		return nil, fmt.Errorf("unknown queue backend: %s (supported: %s, %s)", backendType, BackendMemory, BackendSQLite)
	}
}
