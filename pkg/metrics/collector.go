package metrics

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Store is the minimal read surface the collector needs; satisfied by
// storage.Store without importing it directly (avoids a metrics->storage
// layering dependency beyond this one interface).
type Store interface {
	Iter(fn func(key string, value []byte) bool) error
}

// Bus is the minimal surface the collector needs from the fan-out bus.
type Bus interface {
	SubscriberCount() int
}

var (
	UsersTotalGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_users_total",
			Help: "Total number of registered users",
		},
	)

	EventsStoredTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_events_stored_total",
			Help: "Total number of events persisted (published or not)",
		},
	)

	EventsPendingTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_events_pending_total",
			Help: "Total number of events not yet published and not cancelled",
		},
	)
)

func init() {
	prometheus.MustRegister(UsersTotalGauge)
	prometheus.MustRegister(EventsStoredTotal)
	prometheus.MustRegister(EventsPendingTotal)
}

// Collector periodically samples the store and bus to refresh the gauge
// metrics that a point-in-time counter can't express on its own.
type Collector struct {
	store  Store
	bus    Bus
	stopCh chan struct{}
}

// NewCollector creates a metrics collector over store and bus.
func NewCollector(store Store, bus Bus) *Collector {
	return &Collector{store: store, bus: bus, stopCh: make(chan struct{})}
}

// Start collects once immediately, then every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectStoreMetrics()
	SubscribersActive.Set(float64(c.bus.SubscriberCount()))
}

func (c *Collector) collectStoreMetrics() {
	var users, eventsStored, eventsPending int

	_ = c.store.Iter(func(key string, value []byte) bool {
		switch {
		case strings.HasPrefix(key, "_u_"):
			users++
		case strings.HasPrefix(key, "_v_"):
			eventsStored++
			var flags struct {
				Published bool `json:"published"`
				Cancelled bool `json:"cancelled"`
			}
			if unmarshalErr := json.Unmarshal(value, &flags); unmarshalErr == nil {
				if !flags.Published && !flags.Cancelled {
					eventsPending++
				}
			}
		}
		return true
	})

	UsersTotalGauge.Set(float64(users))
	EventsStoredTotal.Set(float64(eventsStored))
	EventsPendingTotal.Set(float64(eventsPending))
}
