package clients

import (
	"context"
	"sync"

	"github.com/weatherdash/offline-proxy/internal/logger"
)

// RecordingOpener records the URLs the controller asked to open. The proxy cannot start a
// browser window itself, so the URL is logged and kept for the state endpoint.
type RecordingOpener struct {
	mu     sync.Mutex
	opened []string
}

func (o *RecordingOpener) Open(_ context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, url)
	logger.WithComponent("clients").Infof("open window requested: %s", url)
	return nil
}

// Opened returns every URL requested so far.
func (o *RecordingOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}
