// Package scheduler runs the two long-lived background loops that keep
// meeting data fresh: a polite, vendor-grouped sync sweep and a periodic
// backfill of any meetings that were stored but never enqueued for
// processing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/engagic/engagic/internal/config"
	"github.com/engagic/engagic/internal/retry"
	"github.com/engagic/engagic/internal/store"
	"github.com/engagic/engagic/internal/vendor"
)

// defaultSyncInterval and defaultProcessingInterval back-fill a Duration
// config that somehow resolved to zero (e.g. a config file that omits the
// field entirely, since TOML doesn't require every key).
const (
	defaultSyncInterval       = 168 * time.Hour
	defaultProcessingInterval = 48 * time.Hour

	// processingSweepLimit caps how many unprocessed meetings the backfill
	// loop re-enqueues per run, so a large backlog doesn't flood the queue.
	processingSweepLimit = 100
)

// vendorRegistry is the subset of *vendor.Registry the scheduler needs.
type vendorRegistry interface {
	Build(ctx context.Context, vendorName, slug, baseURL string) (vendor.Adapter, error)
}

// queueDrainer is the subset of *queue.Worker the scheduler needs. Defined
// here rather than imported to avoid a scheduler<->queue import cycle; the
// two packages are otherwise independent.
type queueDrainer interface {
	DrainAll(ctx context.Context)
}

// Scheduler owns the sync and processing loops described for the
// background sync design: a 7-day vendor-grouped sync sweep and a 2-day
// processing backfill, both driven by a cron-style interval trigger.
type Scheduler struct {
	cfgMgr   config.ConfigManager
	store    *store.Store
	registry vendorRegistry
	worker   queueDrainer
	logger   *slog.Logger

	cron *cron.Cron

	rateMu       sync.Mutex
	vendorLimits map[string]*rate.Limiter
	statusMu     sync.Mutex
	failedCities map[string]struct{}
	running      bool
}

// New builds a Scheduler. worker may be nil, in which case the processing
// loop only re-enqueues stragglers without draining them immediately
// (useful for a scheduler running in a process with no local queue
// worker).
func New(cfgMgr config.ConfigManager, db *store.Store, registry vendorRegistry, worker queueDrainer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfgMgr:       cfgMgr,
		store:        db,
		registry:     registry,
		worker:       worker,
		logger:       logger,
		cron:         cron.New(),
		vendorLimits: make(map[string]*rate.Limiter),
		failedCities: make(map[string]struct{}),
	}
}

// Run installs the sync and processing loop triggers and blocks until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.cfgMgr.Get()
	syncSpec := everySpec(cfg.Sync.SyncInterval.Duration, defaultSyncInterval)
	processingSpec := everySpec(cfg.Sync.ProcessingInterval.Duration, defaultProcessingInterval)

	if _, err := s.cron.AddFunc(syncSpec, func() { s.RunSync(ctx) }); err != nil {
		return fmt.Errorf("scheduler: install sync loop: %w", err)
	}
	if _, err := s.cron.AddFunc(processingSpec, func() { s.RunProcessingSweep(ctx) }); err != nil {
		return fmt.Errorf("scheduler: install processing loop: %w", err)
	}

	s.logger.Info("scheduler started", "sync_interval", syncSpec, "processing_interval", processingSpec)
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info("scheduler stopping")
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func everySpec(d, fallback time.Duration) string {
	if d <= 0 {
		d = fallback
	}
	return "@every " + d.String()
}

// Status is a snapshot of the scheduler's in-memory sync state, safe to
// expose from a status endpoint.
type Status struct {
	Running      bool
	FailedCities []string
}

// Status returns a copy of the scheduler's current failure-tracking state.
func (s *Scheduler) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	failed := make([]string, 0, len(s.failedCities))
	for banana := range s.failedCities {
		failed = append(failed, banana)
	}
	sort.Strings(failed)
	return Status{Running: s.running, FailedCities: failed}
}

func (s *Scheduler) setRunning(running bool) {
	s.statusMu.Lock()
	s.running = running
	s.statusMu.Unlock()
}

func (s *Scheduler) clearFailedCities() {
	s.statusMu.Lock()
	s.failedCities = make(map[string]struct{})
	s.statusMu.Unlock()
}

func (s *Scheduler) recordFailedCity(banana string) {
	s.statusMu.Lock()
	s.failedCities[banana] = struct{}{}
	s.statusMu.Unlock()
}

// candidate is a city paired with the activity figures its sync-priority
// score and due-check both need, computed once per sweep.
type candidate struct {
	city             store.City
	recentMeetings   int
	hoursSinceSynced float64 // only meaningful when neverSynced is false
	neverSynced      bool
}

// RunSync performs one full vendor-grouped sync sweep: gather active
// cities, group by vendor, and within each vendor group process cities
// serially in priority order, skipping any not yet due and applying a
// per-vendor politeness delay between requests and a longer cooldown
// between vendor groups.
func (s *Scheduler) RunSync(ctx context.Context) {
	s.setRunning(true)
	defer s.setRunning(false)
	s.clearFailedCities()

	start := time.Now()
	cfg := s.cfgMgr.Get()

	cities, err := s.store.GetCities("", "", "", "active", 0)
	if err != nil {
		s.logger.Error("sync sweep: failed to list cities", "error", err)
		return
	}

	byVendor := make(map[string][]candidate)
	skipped := 0
	for _, c := range cities {
		if !isSupportedVendor(c.Vendor) {
			skipped++
			s.logger.Debug("sync sweep: unsupported vendor, skipping", "city", c.Banana, "vendor", c.Vendor)
			continue
		}
		byVendor[c.Vendor] = append(byVendor[c.Vendor], s.buildCandidate(c))
	}

	var meetingsFound, citiesSynced int
	for _, vendorName := range vendor.KnownVendors() {
		group, ok := byVendor[vendorName]
		if !ok || len(group) == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		sort.Slice(group, func(i, j int) bool {
			return group[i].priority() > group[j].priority()
		})

		s.logger.Info("sync sweep: processing vendor group", "vendor", vendorName, "cities", len(group))
		for _, cand := range group {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if !cand.due() {
				s.logger.Debug("sync sweep: not due yet, skipping", "city", cand.city.Banana)
				continue
			}

			s.waitForVendorSlot(ctx, vendorName, cfg)

			n, err := s.syncCityWithRetry(ctx, cand.city)
			if err != nil {
				s.logger.Error("sync sweep: city sync failed", "city", cand.city.Banana, "error", err)
				s.recordFailedCity(cand.city.Banana)
				continue
			}
			meetingsFound += n
			citiesSynced++
		}

		cooldown := cfg.Sync.VendorGroupCooldown.Duration
		if cooldown <= 0 {
			cooldown = 35 * time.Second
		}
		cooldown += time.Duration(rand.Int63n(int64(5 * time.Second)))
		s.logger.Info("sync sweep: vendor group complete, cooling down", "vendor", vendorName, "cooldown", cooldown)
		select {
		case <-ctx.Done():
			return
		case <-time.After(cooldown):
		}
	}

	s.logger.Info("sync sweep complete",
		"duration", time.Since(start), "cities_synced", citiesSynced, "meetings_found", meetingsFound,
		"unsupported_vendor_skips", skipped, "failed_cities", len(s.Status().FailedCities))
}

func isSupportedVendor(v string) bool {
	for _, known := range vendor.KnownVendors() {
		if v == known {
			return true
		}
	}
	return false
}

func (s *Scheduler) buildCandidate(c store.City) candidate {
	recent, err := s.store.RecentMeetingCount(c.Banana)
	if err != nil {
		s.logger.Warn("sync sweep: recent meeting count failed", "city", c.Banana, "error", err)
	}
	if !c.LastSyncedAt.Valid {
		return candidate{city: c, recentMeetings: recent, neverSynced: true}
	}
	return candidate{
		city:             c,
		recentMeetings:   recent,
		hoursSinceSynced: time.Since(c.LastSyncedAt.Time).Hours(),
	}
}

// priority scores activity plus time pressure: recent_meeting_count*10 +
// min(hours_since_last_sync/24, 10). A never-synced city always sorts
// first within its vendor group.
func (c candidate) priority() float64 {
	if c.neverSynced {
		return 1000
	}
	pressure := c.hoursSinceSynced / 24
	if pressure > 10 {
		pressure = 10
	}
	return float64(c.recentMeetings)*10 + pressure
}

// due reports whether the city's activity-adaptive re-sync interval has
// elapsed: 12h at 8+ recent meetings, 24h at 4+, 168h otherwise.
func (c candidate) due() bool {
	if c.neverSynced {
		return true
	}
	switch {
	case c.recentMeetings >= 8:
		return c.hoursSinceSynced >= 12
	case c.recentMeetings >= 4:
		return c.hoursSinceSynced >= 24
	default:
		return c.hoursSinceSynced >= 168
	}
}

// waitForVendorSlot enforces the configured minimum interval between
// requests to the same vendor using a per-vendor token-bucket limiter (one
// token, refilled every min-interval), then adds 0-1s jitter on top so
// every city in a group doesn't fire on the exact same tick.
func (s *Scheduler) waitForVendorSlot(ctx context.Context, vendorName string, cfg *config.Config) {
	minInterval := cfg.VendorMinInterval(vendorName)
	if minInterval <= 0 {
		minInterval = 5 * time.Second
	}

	limiter := s.vendorLimiter(vendorName, minInterval)
	if err := limiter.Wait(ctx); err != nil {
		return
	}

	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	select {
	case <-ctx.Done():
	case <-time.After(jitter):
	}
}

// vendorLimiter returns the shared limiter for vendorName, creating it on
// first use. The limit is fixed at construction per the configured
// min-interval; a config reload that changes a vendor's min-interval does
// not reach a limiter that already exists, since this cache is rebuilt only
// on scheduler restart.
func (s *Scheduler) vendorLimiter(vendorName string, minInterval time.Duration) *rate.Limiter {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()

	if l, ok := s.vendorLimits[vendorName]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(minInterval), 1)
	s.vendorLimits[vendorName] = l
	return l
}

// SyncCity runs a single city through the same fetch-reconcile-retry path
// as a sweep, outside the sweep's priority ordering and rate-limit pacing.
// Intended for operator-triggered one-off syncs (the --sync-city CLI flag).
func (s *Scheduler) SyncCity(ctx context.Context, c store.City) (int, error) {
	return s.syncCityWithRetry(ctx, c)
}

// syncCityWithRetry syncs one city, retrying transient failures per
// retry.SyncRetryPolicy (2 attempts, 5s then 20s). It returns the number
// of meetings the adapter yielded on eventual success.
func (s *Scheduler) syncCityWithRetry(ctx context.Context, c store.City) (int, error) {
	policy := retry.SyncRetryPolicy()
	var lastErr error

	for attempt := 0; ; attempt++ {
		n, err := s.syncCity(ctx, c)
		if err == nil {
			return n, nil
		}
		lastErr = err

		delay, shouldRetry := policy.NextDelay(attempt)
		if !shouldRetry {
			return 0, lastErr
		}
		s.logger.Warn("sync sweep: retrying city after failure",
			"city", c.Banana, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// syncCity fetches one city's meetings from its vendor adapter and
// reconciles each against stored state. VendorSlug doubles as the base URL
// for vendors that need one (civicplus); Registry.Build ignores it for
// everyone else.
func (s *Scheduler) syncCity(ctx context.Context, c store.City) (int, error) {
	adapter, err := s.registry.Build(ctx, c.Vendor, c.VendorSlug, c.VendorSlug)
	if err != nil {
		return 0, fmt.Errorf("build adapter: %w", err)
	}

	records, err := adapter.FetchMeetings(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch meetings: %w", err)
	}

	for _, rec := range records {
		if _, stats, err := s.store.StoreMeetingFromSync(rec, c); err != nil {
			s.logger.Error("sync sweep: storing meeting failed", "city", c.Banana, "meeting_id", rec.ID, "error", err)
		} else if stats.MeetingsSkipped > 0 {
			s.logger.Debug("sync sweep: meeting skipped", "city", c.Banana, "title", stats.SkippedTitle, "reason", stats.SkipReason)
		}
	}

	if err := s.store.MarkCitySynced(c.Banana); err != nil {
		s.logger.Error("sync sweep: marking city synced failed", "city", c.Banana, "error", err)
	}

	return len(records), nil
}

// RunProcessingSweep re-enqueues any meeting that was stored with a packet
// URL but somehow never made it into the processing queue (a straggler
// from an interrupted sync, or a manual data fix), then drains the queue
// if a worker is attached.
func (s *Scheduler) RunProcessingSweep(ctx context.Context) {
	start := time.Now()

	unprocessed, err := s.store.GetUnprocessedMeetings(processingSweepLimit)
	if err != nil {
		s.logger.Error("processing sweep: failed to list unprocessed meetings", "error", err)
		return
	}

	// Stragglers are backfilled at a flat mid-priority; they lost their
	// original sync-time priority when their queue entry went missing, and
	// there is no fresher signal left to rank them by.
	const stragglerPriority = 50

	enqueued := 0
	for _, m := range unprocessed {
		if m.PacketURL == "" {
			continue
		}
		meta := store.QueueMetadata{CorrelationID: uuid.NewString()}
		if _, err := s.store.EnqueueForProcessing(m.PacketURL, m.ID, m.CityBanana, stragglerPriority, meta); err != nil {
			if err != store.ErrAlreadyQueued {
				s.logger.Error("processing sweep: enqueue failed", "meeting_id", m.ID, "error", err)
			}
			continue
		}
		enqueued++
	}

	s.logger.Info("processing sweep complete", "duration", time.Since(start),
		"scanned", len(unprocessed), "enqueued", enqueued)

	if s.worker != nil && enqueued > 0 {
		s.worker.DrainAll(ctx)
	}
}
