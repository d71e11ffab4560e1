package scheduler

import (
	"testing"
	"time"

	"github.com/cuemby/warrenbroker/pkg/clock"
	"github.com/cuemby/warrenbroker/pkg/events"
	"github.com/cuemby/warrenbroker/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
)

// TestSchedulerLifecycle tests scheduler start/stop lifecycle.
func TestSchedulerLifecycle(t *testing.T) {
	t.Run("scheduler can be stopped after start", func(t *testing.T) {
		store := storagetest.NewMemStore()
		bus := events.NewBus()
		s := New(store, clock.FixedClock{Epoch: 1}, bus)

		s.Start()
		time.Sleep(10 * time.Millisecond)
		s.Stop()
	})
}

// TestSchedulerConcurrency verifies that two overlapping tick() calls both
// complete without error or deadlock.
func TestSchedulerConcurrency(t *testing.T) {
	store := storagetest.NewMemStore()
	bus := events.NewBus()
	s := New(store, clock.FixedClock{Epoch: 1}, bus)

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			assert.NoError(t, s.tick())
			done <- struct{}{}
		}()
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("concurrent tick calls did not complete")
		}
	}
}
