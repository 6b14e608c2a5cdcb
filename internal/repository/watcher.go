package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const manifestOps = fsnotify.Write | fsnotify.Create | fsnotify.Chmod | fsnotify.Rename

// StartWatcher hands manifests changed on disk to sink until ctx is canceled.
//
// The parent directory is watched so temp+rename replacements are seen. Bursts of events are
// debounced into one reload, and reloads run on the watch goroutine, so two installs never
// overlap.
func (r *JSONRepository) StartWatcher(ctx context.Context, sink ManifestSink) error {
	if sink == nil {
		return errors.New("manifest sink is required")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(r.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	go r.watch(ctx, w, sink)
	return nil
}

func (r *JSONRepository) watch(ctx context.Context, w *fsnotify.Watcher, sink ManifestSink) {
	defer w.Close()

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == r.base && event.Op&manifestOps != 0 {
				settle.Reset(r.debounce)
			}
		case <-settle.C:
			r.reload(ctx, sink)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.log.Warnf("watcher error: %v", err)
		}
	}
}

// reload installs the manifest on disk when it differs from the one sink has installed.
// A manifest that fails to load or validate is ignored and the installed version keeps serving.
func (r *JSONRepository) reload(ctx context.Context, sink ManifestSink) {
	disk, err := r.Load()
	if err != nil {
		r.log.Warnf("manifest reload failed: %v", err)
		return
	}
	if current := sink.Manifest(); current != nil && AreManifestsEqual(current, disk) {
		r.log.Debug("manifest unchanged, skipping update")
		return
	}
	r.log.Infof("manifest changed on disk, installing version %s", disk.Version)
	if err := sink.Update(ctx, *disk); err != nil {
		r.log.Errorf("manifest update failed: %v", err)
	}
}
