// Package dispatcher handles background sync, push and notification-click events.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/weatherdash/offline-proxy/internal/clients"
	"github.com/weatherdash/offline-proxy/internal/fetch"
	"github.com/weatherdash/offline-proxy/internal/logger"
	"github.com/weatherdash/offline-proxy/internal/notify"
	"github.com/weatherdash/offline-proxy/internal/syncqueue"
)

// Sync tags delivered by the scheduler or the sync endpoint.
const (
	TagDataSync         = "weather-data-sync"
	TagNotificationSync = "weather-notification-sync"
	TagWeatherRefresh   = "weather-refresh"
)

// Tags lists every sync tag the dispatcher understands.
var Tags = []string{TagDataSync, TagNotificationSync, TagWeatherRefresh}

// ActionDismiss is the notification action that closes it without further effect.
const ActionDismiss = "dismiss"

var (
	ErrUnknownTag = errors.New("unknown sync tag")
	// ErrNoLocation is returned by the weather refresh before any location has been seen.
	ErrNoLocation = errors.New("no known location")
)

// Conditions is a decoded current-conditions payload.
type Conditions map[string]any

// Comparator decides whether the change between two snapshots deserves a notification.
type Comparator func(prev, next Conditions) bool

// NeverSignificant is the default comparator: no change is reported until a real rule exists.
func NeverSignificant(Conditions, Conditions) bool { return false }

// ClientLister lists the connected application instances.
type ClientLister interface {
	List() []clients.Client
}

// Report summarizes one sync run.
type Report struct {
	Tag       string `json:"tag"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Notified  bool   `json:"notified,omitempty"`
}

// Click is a notification click event.
type Click struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

type Options struct {
	Queue      syncqueue.Queue
	Fetcher    fetch.Fetcher
	Notifier   notify.Notifier
	Clients    ClientLister
	Opener     clients.WindowOpener
	Tracker    *LocationTracker
	Comparator Comparator
}

type Dispatcher struct {
	queue      syncqueue.Queue
	fetcher    fetch.Fetcher
	notifier   notify.Notifier
	clients    ClientLister
	opener     clients.WindowOpener
	tracker    *LocationTracker
	comparator Comparator

	mu       sync.Mutex
	previous Conditions
}

func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Queue == nil:
		return nil, errors.New("sync queue is nil")
	case opts.Fetcher == nil:
		return nil, errors.New("fetcher is nil")
	case opts.Notifier == nil:
		return nil, errors.New("notifier is nil")
	case opts.Clients == nil:
		return nil, errors.New("client lister is nil")
	case opts.Opener == nil:
		return nil, errors.New("window opener is nil")
	}
	if opts.Tracker == nil {
		opts.Tracker = NewLocationTracker("/api/")
	}
	if opts.Comparator == nil {
		opts.Comparator = NeverSignificant
	}
	return &Dispatcher{
		queue:      opts.Queue,
		fetcher:    opts.Fetcher,
		notifier:   opts.Notifier,
		clients:    opts.Clients,
		opener:     opts.Opener,
		tracker:    opts.Tracker,
		comparator: opts.Comparator,
	}, nil
}

// HandleSync runs the work for tag.
func (d *Dispatcher) HandleSync(ctx context.Context, tag string) (Report, error) {
	switch tag {
	case TagDataSync:
		return d.replayRequests(ctx)
	case TagNotificationSync:
		return d.showQueuedNotifications(ctx)
	case TagWeatherRefresh:
		return d.refreshWeather(ctx)
	default:
		logger.WithComponent("dispatcher").Warnf("ignoring unknown sync tag %q", tag)
		return Report{Tag: tag}, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
}

// replayRequests reissues every queued request. A task is removed once its replay gets an
// answer below 500; otherwise it stays for the next sync.
func (d *Dispatcher) replayRequests(ctx context.Context) (Report, error) {
	log := logger.WithComponent("dispatcher")
	report := Report{Tag: TagDataSync}

	tasks, err := d.queue.Drain(ctx, syncqueue.KindRequest)
	if err != nil {
		return report, err
	}
	for _, task := range tasks {
		if err := d.replay(ctx, task); err != nil {
			log.Warnf("replay of task %s failed, keeping it queued: %v", task.ID, err)
			report.Failed++
			continue
		}
		if err := d.queue.Remove(ctx, task.ID); err != nil && !errors.Is(err, syncqueue.ErrTaskNotFound) {
			return report, err
		}
		report.Processed++
	}
	log.Infof("data sync: %d replayed, %d kept", report.Processed, report.Failed)
	return report, nil
}

func (d *Dispatcher) replay(ctx context.Context, task syncqueue.Task) error {
	if task.Request == nil {
		return fmt.Errorf("task %s has no request", task.ID)
	}
	req, err := task.Request.NewRequest(ctx)
	if err != nil {
		return err
	}
	resp, err := d.fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) showQueuedNotifications(ctx context.Context) (Report, error) {
	report := Report{Tag: TagNotificationSync}

	tasks, err := d.queue.Drain(ctx, syncqueue.KindNotification)
	if err != nil {
		return report, err
	}
	for _, task := range tasks {
		if task.Notification == nil {
			report.Failed++
			continue
		}
		if err := d.notifier.Show(ctx, *task.Notification); err != nil {
			logger.WithComponent("dispatcher").Warnf("cannot show notification %s: %v", task.ID, err)
			report.Failed++
			continue
		}
		if err := d.queue.Remove(ctx, task.ID); err != nil && !errors.Is(err, syncqueue.ErrTaskNotFound) {
			return report, err
		}
		report.Processed++
	}
	return report, nil
}

// refreshWeather fetches current conditions for the last known location and notifies when the
// comparator judges the change significant.
func (d *Dispatcher) refreshWeather(ctx context.Context) (Report, error) {
	report := Report{Tag: TagWeatherRefresh}

	loc, ok := d.tracker.Last()
	if !ok {
		logger.WithComponent("dispatcher").Debug("weather refresh skipped: no known location")
		return report, ErrNoLocation
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.tracker.Endpoint()+"?"+loc.Encode(), nil)
	if err != nil {
		return report, err
	}
	resp, err := d.fetcher.Fetch(ctx, req)
	if err != nil {
		return report, err
	}
	defer resp.Body.Close()
	if !fetch.IsOK(resp) {
		return report, fmt.Errorf("weather refresh: upstream status %d", resp.StatusCode)
	}
	var next Conditions
	if err := json.NewDecoder(resp.Body).Decode(&next); err != nil {
		return report, fmt.Errorf("weather refresh: decode: %w", err)
	}
	report.Processed = 1

	d.mu.Lock()
	prev := d.previous
	d.previous = next
	d.mu.Unlock()

	if prev == nil || !d.comparator(prev, next) {
		return report, nil
	}
	n := notify.DefaultTemplate()
	n.Body = "Weather conditions have changed significantly"
	if err := d.notifier.Show(ctx, n); err != nil {
		return report, err
	}
	report.Notified = true
	return report, nil
}

// HandlePush shows the push payload laid over the default template.
func (d *Dispatcher) HandlePush(ctx context.Context, payload []byte) (notify.Notification, error) {
	n := notify.FromPush(payload)
	return n, d.notifier.Show(ctx, n)
}

// HandleNotificationClick focuses an open instance and tells it about the click, or opens a new
// instance at data.url when none is open. Dismiss does nothing.
func (d *Dispatcher) HandleNotificationClick(ctx context.Context, click Click) error {
	if click.Action == ActionDismiss {
		return nil
	}
	open := d.clients.List()
	if len(open) > 0 {
		c := open[0]
		if err := c.Focus(ctx); err != nil {
			logger.WithComponent("dispatcher").Warnf("cannot focus client %s: %v", c.ID(), err)
		}
		return c.Post(ctx, map[string]any{
			"type":   clients.TypeNotificationClicked,
			"action": click.Action,
			"data":   click.Data,
		})
	}
	target := "/"
	if u, ok := click.Data["url"].(string); ok && u != "" {
		target = u
	}
	return d.opener.Open(ctx, target)
}
