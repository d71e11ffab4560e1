package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/warrenbroker/pkg/clock"
	"github.com/cuemby/warrenbroker/pkg/eventlog"
	"github.com/cuemby/warrenbroker/pkg/events"
	"github.com/cuemby/warrenbroker/pkg/log"
	"github.com/cuemby/warrenbroker/pkg/metrics"
	"github.com/cuemby/warrenbroker/pkg/storage"
	"github.com/cuemby/warrenbroker/pkg/types"
	"github.com/rs/zerolog"
)

// tickInterval drives how often the scheduler scans for due events. Only
// a bounded delay after an event's timestamp is required, not sub-second
// precision, so a short tick keeps publication latency low
// without turning the scan into a busy loop.
const tickInterval = 50 * time.Millisecond

// Scheduler scans the store for due-and-unpublished events, CAS-publishes
// them, and broadcasts each newly published event onto the fan-out bus.
type Scheduler struct {
	store  storage.Store
	clock  clock.Clock
	bus    *events.Bus
	logger zerolog.Logger
	mu     sync.Mutex
	stopCh chan struct{}
}

// New creates a Scheduler wired to store, clock, and bus.
func New(store storage.Store, clk clock.Clock, bus *events.Bus) *Scheduler {
	return &Scheduler{
		store:  store,
		clock:  clk,
		bus:    bus,
		logger: log.WithComponent("scheduler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the scheduler loop in a new goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop terminates the scheduler loop. The scheduler has no other external
// cancellation; otherwise it runs until the process exits.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.tick(); err != nil {
				s.logger.Error().Err(err).Msg("scheduling cycle failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// tick performs one scheduling cycle: obtain now, scan for due events,
// CAS-publish each, broadcast. CAS happens strictly before broadcast so
// a given event is broadcast at most once per process lifetime.
func (s *Scheduler) tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Room for a full-length query to the primary and then the fallback
	// time provider.
	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()

	now, err := s.clock.NowEpochSeconds(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("clock unavailable, backing off this cycle")
		return nil
	}

	var due []dueRecord
	err = s.store.Iter(func(key string, value []byte) bool {
		if !strings.HasPrefix(key, eventlog.EventKeyPrefix) {
			return true
		}
		var e types.Event
		if err := json.Unmarshal(value, &e); err != nil {
			s.logger.Error().Str("key", key).Err(err).Msg("skipping corrupt event record")
			return true
		}
		if !e.Published && !e.Cancelled && e.Timestamp <= now {
			raw := append([]byte(nil), value...)
			due = append(due, dueRecord{key: key, raw: raw, event: e})
		}
		return true
	})
	if err != nil {
		return err
	}

	for _, rec := range due {
		s.publishOne(rec)
	}
	return nil
}

type dueRecord struct {
	key   string
	raw   []byte
	event types.Event
}

func (s *Scheduler) publishOne(rec dueRecord) {
	timer := metrics.NewTimer()

	updated := rec.event
	updated.Published = true
	newData, err := json.Marshal(&updated)
	if err != nil {
		s.logger.Error().Str("key", rec.key).Err(err).Msg("failed to marshal published event")
		return
	}

	if err := s.store.CAS(rec.key, rec.raw, newData); err != nil {
		if errors.Is(err, storage.ErrCASConflict) {
			// Another cycle or writer already advanced this record; no
			// broadcast needed here, it either already happened or the
			// event was cancelled in the meantime.
			return
		}
		s.logger.Error().Str("key", rec.key).Err(err).Msg("failed to cas-publish event")
		metrics.EventsPublishFailed.Inc()
		return
	}
	if err := s.store.Flush(); err != nil {
		s.logger.Error().Str("key", rec.key).Err(err).Msg("failed to flush after publish")
	}

	timer.ObserveDuration(metrics.PublishLatency)
	metrics.EventsPublished.Inc()

	s.logger.Info().
		Str("event_id", updated.ID.String()).
		Str("event_name", updated.Event).
		Str("tenant_id", updated.TenantID.String()).
		Msg("published event")

	s.bus.Publish(&updated)
}
