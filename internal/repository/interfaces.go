package repository

import "context"

// ManifestSink receives manifests reloaded from disk.
type ManifestSink interface {
	// Manifest returns the manifest currently installed, or nil before the first install.
	Manifest() *Manifest
	// Update installs a changed manifest.
	Update(ctx context.Context, m Manifest) error
}

// Repository abstracts persistence and watching of the manifest file.
// JSONRepository implements this interface.
type Repository interface {
	Load() (*Manifest, error)
	Save(m *Manifest) error
	StartWatcher(ctx context.Context, sink ManifestSink) error
}
