package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"geofleet-sync/internal/fetcher"
	"geofleet-sync/internal/models"
)

// ErrNoConnectivity is published when a cycle fails completely because
// the positions endpoint was unreachable for every vehicle.
var ErrNoConnectivity = errors.New("positions endpoint unreachable")

// ErrAllVehiclesFailed is published when every vehicle in a cycle failed
// for reasons other than pure connectivity.
var ErrAllVehiclesFailed = errors.New("all vehicle fetches failed")

// remoteWriteConcurrency bounds the parallel mirror writes per cycle.
const remoteWriteConcurrency = 4

// PositionFetcher fetches one result per vehicle id.
type PositionFetcher interface {
	FetchPositions(ctx context.Context, ids []string) []fetcher.Result
}

// PositionCache is the local cache side the orchestrator writes to.
type PositionCache interface {
	UpsertAll(entries []models.CachedPosition) error
	PurgeOlderThan(timestamp int64) (int64, error)
}

// RemoteStore mirrors positions into the remote vehicle collection.
type RemoteStore interface {
	UpsertCurrentPosition(ctx context.Context, p models.CachedPosition) error
	AppendHistory(ctx context.Context, p models.CachedPosition) error
}

// Update is the outcome of one sync cycle, delivered to subscribers.
// Either Positions carries the successfully fetched set, or Err carries a
// cycle-level failure. Failed lists vehicles omitted from this cycle.
type Update struct {
	Positions []models.CachedPosition
	Failed    []string
	Err       error
}

// Orchestrator drives the periodic fetch/merge cycle. At most one cycle
// is in flight per instance; a new trigger cancels and replaces the
// outstanding one.
type Orchestrator struct {
	fetcher   PositionFetcher
	cache     PositionCache
	store     RemoteStore // nil disables remote mirroring
	ids       []string
	interval  time.Duration
	retention time.Duration // 0 disables stale-row purging

	mu      sync.Mutex
	current context.Context
	cancel  context.CancelFunc
	base    context.Context
	subs    []chan Update
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRemoteStore enables best-effort mirroring into a remote store.
func WithRemoteStore(s RemoteStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithRetention enables purging of cached positions older than d after
// each successful cycle.
func WithRetention(d time.Duration) Option {
	return func(o *Orchestrator) { o.retention = d }
}

// New creates an orchestrator for the given vehicle id set.
func New(f PositionFetcher, c PositionCache, ids []string, interval time.Duration, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:  f,
		cache:    c,
		ids:      ids,
		interval: interval,
		base:     context.Background(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Subscribe returns a channel receiving one Update per completed cycle.
// Updates are dropped for subscribers that fall behind; cancelled cycles
// never produce an update.
func (o *Orchestrator) Subscribe() <-chan Update {
	ch := make(chan Update, 8)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()
	return ch
}

func (o *Orchestrator) publish(u Update) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Run executes an initial cycle and then loops with a fixed delay
// measured from the end of each cycle, so a slow cycle pushes out the
// next one instead of overlapping it. It returns when ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	o.base = ctx
	o.mu.Unlock()

	for {
		o.Sync(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.interval):
		}
	}
}

// Refresh triggers an off-schedule cycle in the background, cancelling
// any cycle already in flight.
func (o *Orchestrator) Refresh() {
	o.mu.Lock()
	base := o.base
	o.mu.Unlock()
	go o.Sync(base)
}

// Sync runs one cycle synchronously and returns its Update. A cycle
// superseded by a newer trigger returns the cancellation error without
// publishing anything; cancellation is never reported as a failure.
func (o *Orchestrator) Sync(parent context.Context) Update {
	ctx := o.beginCycle(parent)
	defer o.endCycle(ctx)

	u := o.runCycle(ctx)

	if ctx.Err() != nil {
		log.Debug("sync cycle cancelled, discarding result")
		return Update{Err: ctx.Err()}
	}

	o.publish(u)
	return u
}

// beginCycle registers a new cycle, cancelling the previous one.
func (o *Orchestrator) beginCycle(parent context.Context) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		log.Debug("superseding in-flight sync cycle")
		o.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	o.current, o.cancel = ctx, cancel
	return ctx
}

// endCycle releases the cycle's slot unless a newer cycle already took it.
func (o *Orchestrator) endCycle(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == ctx {
		o.cancel()
		o.current, o.cancel = nil, nil
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) Update {
	started := time.Now()
	results := o.fetcher.FetchPositions(ctx, o.ids)
	if ctx.Err() != nil {
		return Update{Err: ctx.Err()}
	}

	var positions []models.CachedPosition
	var failed []string
	networkFailures := 0

	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r.VehicleID)
			if errors.Is(r.Err, fetcher.ErrNetwork) {
				networkFailures++
			}
			log.WithField("vehicle", r.VehicleID).WithError(r.Err).Warn("position fetch failed, omitting vehicle")
			continue
		}
		positions = append(positions, models.CachedPosition{
			VehicleID: r.VehicleID,
			Latitude:  r.Position.LatitudeFloat(),
			Longitude: r.Position.LongitudeFloat(),
			Timestamp: r.Position.Timestamp,
		})
	}

	// Per-vehicle failures are not user-facing; only a fully failed
	// cycle is surfaced, classified for the retry message.
	if len(positions) == 0 && len(failed) > 0 {
		if networkFailures == len(failed) {
			return Update{Failed: failed, Err: ErrNoConnectivity}
		}
		return Update{Failed: failed, Err: ErrAllVehiclesFailed}
	}

	// Local cache first: it is the source of truth for readers, the
	// remote store is best-effort secondary.
	if err := o.cache.UpsertAll(positions); err != nil {
		return Update{Failed: failed, Err: fmt.Errorf("updating position cache: %w", err)}
	}

	if o.retention > 0 {
		threshold := models.NowMillis() - o.retention.Milliseconds()
		if n, err := o.cache.PurgeOlderThan(threshold); err != nil {
			log.WithError(err).Warn("stale position purge failed")
		} else if n > 0 {
			log.WithField("purged", n).Debug("purged stale cached positions")
		}
	}

	if o.store != nil {
		o.mirrorToRemote(ctx, positions)
		if ctx.Err() != nil {
			return Update{Err: ctx.Err()}
		}
	}

	log.WithFields(log.Fields{
		"fetched":  len(positions),
		"failed":   len(failed),
		"duration": time.Since(started).Round(time.Millisecond),
	}).Info("sync cycle complete")

	return Update{Positions: positions, Failed: failed}
}

// mirrorToRemote upserts each vehicle's current position and appends a
// history entry, with bounded concurrency. Each vehicle's outcome is
// captured independently; a failed write never blocks the others.
func (o *Orchestrator) mirrorToRemote(ctx context.Context, positions []models.CachedPosition) {
	type writeResult struct {
		vehicleID string
		err       error
	}

	sem := make(chan struct{}, remoteWriteConcurrency)
	results := make(chan writeResult, len(positions))
	var wg sync.WaitGroup

	for _, p := range positions {
		wg.Add(1)
		go func(p models.CachedPosition) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := o.store.UpsertCurrentPosition(ctx, p); err != nil {
				results <- writeResult{p.VehicleID, err}
				return
			}
			results <- writeResult{p.VehicleID, o.store.AppendHistory(ctx, p)}
		}(p)
	}

	wg.Wait()
	close(results)

	for r := range results {
		if r.err == nil || ctx.Err() != nil {
			continue
		}
		log.WithField("vehicle", r.vehicleID).WithError(r.err).Warn("remote position write failed")
	}
}
