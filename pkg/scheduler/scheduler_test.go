package scheduler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cuemby/warrenbroker/pkg/clock"
	"github.com/cuemby/warrenbroker/pkg/events"
	"github.com/cuemby/warrenbroker/pkg/eventlog"
	"github.com/cuemby/warrenbroker/pkg/storage/storagetest"
	"github.com/cuemby/warrenbroker/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putEvent(t *testing.T, store *storagetest.MemStore, e *types.Event) {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	require.NoError(t, store.Put(eventlog.EventKeyPrefix+e.ID.String(), data))
}

func newDueEvent(timestamp int64) *types.Event {
	return &types.Event{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		CollectionID: uuid.New(),
		TenantID:     uuid.New(),
		Event:        "reminder",
		Timestamp:    timestamp,
		Data:         json.RawMessage(`{}`),
	}
}

func TestTick_PublishesOnlyDueUnpublishedUncancelledEvents(t *testing.T) {
	store := storagetest.NewMemStore()
	bus := events.NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	due := newDueEvent(100)
	notYetDue := newDueEvent(9999999999)
	alreadyPublished := newDueEvent(100)
	alreadyPublished.Published = true
	cancelled := newDueEvent(100)
	cancelled.Cancelled = true

	putEvent(t, store, due)
	putEvent(t, store, notYetDue)
	putEvent(t, store, alreadyPublished)
	putEvent(t, store, cancelled)

	s := New(store, clock.FixedClock{Epoch: 1000}, bus)
	require.NoError(t, s.tick())

	select {
	case got := <-sub:
		assert.Equal(t, due.ID, got.ID)
		assert.True(t, got.Published)
	case <-time.After(time.Second):
		t.Fatal("expected due event to be broadcast")
	}

	select {
	case got := <-sub:
		t.Fatalf("unexpected second broadcast: %v", got)
	default:
	}

	raw, err := store.Get(eventlog.EventKeyPrefix + due.ID.String())
	require.NoError(t, err)
	var stored types.Event
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.True(t, stored.Published)
}

func TestTick_NeverPublishesOrBroadcastsCancelledEvent(t *testing.T) {
	store := storagetest.NewMemStore()
	bus := events.NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	cancelled := newDueEvent(1)
	cancelled.Cancelled = true
	putEvent(t, store, cancelled)

	s := New(store, clock.FixedClock{Epoch: 1000}, bus)
	require.NoError(t, s.tick())

	select {
	case got := <-sub:
		t.Fatalf("cancelled event must never be broadcast: %v", got)
	case <-time.After(50 * time.Millisecond):
	}

	raw, err := store.Get(eventlog.EventKeyPrefix + cancelled.ID.String())
	require.NoError(t, err)
	var stored types.Event
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.False(t, stored.Published)
}

func TestTick_PublishesEachEventAtMostOnceAcrossRepeatedCycles(t *testing.T) {
	store := storagetest.NewMemStore()
	bus := events.NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	due := newDueEvent(1)
	putEvent(t, store, due)

	s := New(store, clock.FixedClock{Epoch: 1000}, bus)
	require.NoError(t, s.tick())
	require.NoError(t, s.tick())
	require.NoError(t, s.tick())

	received := 0
drain:
	for {
		select {
		case <-sub:
			received++
		case <-time.After(50 * time.Millisecond):
			break drain
		}
	}
	assert.Equal(t, 1, received, "event must be broadcast exactly once across multiple cycles")
}

func TestTick_BacksOffSilentlyWhenClockUnavailable(t *testing.T) {
	store := storagetest.NewMemStore()
	bus := events.NewBus()

	due := newDueEvent(1)
	putEvent(t, store, due)

	s := New(store, clock.FixedClock{Err: clock.ErrClockUnavailable}, bus)
	assert.NoError(t, s.tick())

	raw, err := store.Get(eventlog.EventKeyPrefix + due.ID.String())
	require.NoError(t, err)
	var stored types.Event
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.False(t, stored.Published, "event must remain unpublished when clock is unavailable")
}
