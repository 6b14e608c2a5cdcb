// Package lifecycle installs, activates and replaces controller versions.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/weatherdash/offline-proxy/internal/cachestore"
	"github.com/weatherdash/offline-proxy/internal/fault"
	"github.com/weatherdash/offline-proxy/internal/fetch"
	"github.com/weatherdash/offline-proxy/internal/logger"
	"github.com/weatherdash/offline-proxy/internal/repository"
)

type State string

const (
	StateIdle       State = "idle"
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActive     State = "active"
	StateRedundant  State = "redundant"
)

var ErrNothingWaiting = errors.New("no installed version is waiting")

// Claimer takes control of the connected application instances.
type Claimer interface {
	Claim(ctx context.Context, version string) int
}

// Status is a snapshot of the lifecycle.
type Status struct {
	State          State    `json:"state"`
	ActiveVersion  string   `json:"activeVersion,omitempty"`
	WaitingVersion string   `json:"waitingVersion,omitempty"`
	Redundant      []string `json:"redundant,omitempty"`
}

type Options struct {
	Registry    *cachestore.Registry
	Fetcher     fetch.Fetcher
	Claimer     Claimer
	SkipWaiting bool
	Clock       func() time.Time
}

// Manager drives installing -> waiting -> active. Transitions are serialized.
type Manager struct {
	registry    *cachestore.Registry
	fetcher     fetch.Fetcher
	claimer     Claimer
	skipWaiting bool
	now         func() time.Time

	mu        sync.Mutex
	state     State
	active    *repository.Manifest
	waiting   *repository.Manifest
	redundant []string
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Registry == nil {
		return nil, errors.New("cache registry is nil")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		registry:    opts.Registry,
		fetcher:     opts.Fetcher,
		claimer:     opts.Claimer,
		skipWaiting: opts.SkipWaiting,
		now:         opts.Clock,
		state:       StateIdle,
	}, nil
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{State: m.state, Redundant: append([]string(nil), m.redundant...)}
	if m.active != nil {
		s.ActiveVersion = m.active.Version
	}
	if m.waiting != nil {
		s.WaitingVersion = m.waiting.Version
	}
	return s
}

// Manifest returns the active manifest, nil before the first activation.
func (m *Manager) Manifest() *repository.Manifest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	c := *m.active
	return &c
}

// Update installs a changed manifest. It is the hot-reload entry point.
func (m *Manager) Update(ctx context.Context, next repository.Manifest) error {
	return m.Install(ctx, next)
}

// Install pre-populates the shell container of manifest.Version. Every URL is fetched before
// anything is written; one failure aborts the install and the active version keeps serving.
func (m *Manager) Install(ctx context.Context, manifest repository.Manifest) error {
	log := logger.WithComponent("lifecycle")

	m.mu.Lock()
	m.state = StateInstalling
	m.mu.Unlock()
	log.Infof("installing version %s (%d resources)", manifest.Version, len(manifest.URLs()))

	if err := m.populate(ctx, manifest); err != nil {
		m.mu.Lock()
		m.state = m.restingState()
		m.mu.Unlock()
		log.Errorf("install of %s failed: %v", manifest.Version, err)
		return err
	}

	m.mu.Lock()
	m.waiting = &manifest
	m.state = StateWaiting
	m.mu.Unlock()
	log.Infof("version %s installed and waiting", manifest.Version)

	if m.skipWaiting {
		return m.Activate(ctx)
	}
	return nil
}

func (m *Manager) restingState() State {
	switch {
	case m.waiting != nil:
		return StateWaiting
	case m.active != nil:
		return StateActive
	default:
		return StateIdle
	}
}

func (m *Manager) populate(ctx context.Context, manifest repository.Manifest) error {
	urls := manifest.URLs()
	entries := make([]cachestore.Entry, 0, len(urls))
	keys := make([]string, 0, len(urls))

	for _, u := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fault.Install(u, err)
		}
		resp, err := m.fetcher.Fetch(ctx, req)
		if err != nil {
			return fault.Install(u, err)
		}
		if !fetch.IsOK(resp) {
			resp.Body.Close()
			return fault.Install(u, fmt.Errorf("upstream status %d", resp.StatusCode))
		}
		ent, err := cachestore.EntryFromResponse(resp)
		if err != nil {
			return fault.Install(u, err)
		}
		if _, ok := ent.Date(); !ok {
			ent.Header.Set("Date", m.now().UTC().Format(http.TimeFormat))
		}
		entries = append(entries, ent)
		keys = append(keys, cachestore.KeyFor(req.URL))
	}

	shell, err := m.registry.OpenVersion(ctx, cachestore.PurposeShell, manifest.Version)
	if err != nil {
		return err
	}
	for i, ent := range entries {
		if err := shell.Put(ctx, keys[i], ent); err != nil {
			if !m.registry.IsCurrent(shell.Name()) {
				if _, derr := m.registry.Delete(ctx, shell.Name()); derr != nil {
					logger.WithComponent("lifecycle").Warnf("cannot drop partial container %s: %v", shell.Name(), derr)
				}
			}
			return err
		}
	}
	return nil
}

// Activate promotes the waiting version, deletes every container that does not belong to it and
// claims the connected clients.
func (m *Manager) Activate(ctx context.Context) error {
	log := logger.WithComponent("lifecycle")

	m.mu.Lock()
	if m.waiting == nil {
		m.mu.Unlock()
		return ErrNothingWaiting
	}

	next := m.waiting
	if m.active != nil && m.active.Version != next.Version {
		m.redundant = append(m.redundant, m.active.Version)
	}
	m.registry.Promote(next.Version)
	m.active = next
	m.waiting = nil
	m.state = StateActive

	gcErr := m.collectGarbage(ctx)
	version := next.Version
	m.mu.Unlock()

	// Claim broadcasts to connected clients and may block on them; m.mu is not held.
	if m.claimer != nil {
		n := m.claimer.Claim(ctx, version)
		log.Infof("version %s active, claimed %d clients", version, n)
	} else {
		log.Infof("version %s active", version)
	}
	return gcErr
}

func (m *Manager) collectGarbage(ctx context.Context) error {
	names, err := m.registry.Names(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if m.registry.IsCurrent(name) {
			continue
		}
		if _, err := m.registry.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		logger.WithComponent("lifecycle").Debugf("deleted stale container %s", name)
	}
	return errors.Join(errs...)
}

// SkipWaiting activates a waiting version at once. Without one it does nothing.
func (m *Manager) SkipWaiting(ctx context.Context) error {
	err := m.Activate(ctx)
	if errors.Is(err, ErrNothingWaiting) {
		logger.WithComponent("lifecycle").Debug("skipWaiting with no waiting version")
		return nil
	}
	return err
}
