package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/warrenbroker/pkg/events"
	"github.com/cuemby/warrenbroker/pkg/identity"
	"github.com/cuemby/warrenbroker/pkg/projection"
	"github.com/cuemby/warrenbroker/pkg/storage/storagetest"
	"github.com/cuemby/warrenbroker/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_UnauthenticatedEmitsDeniedAndReturnsImmediately(t *testing.T) {
	store := storagetest.NewMemStore()
	identitySvc := identity.New(store)
	projectionSvc := projection.New(store, identitySvc)
	bus := events.NewBus()
	s := New(projectionSvc, bus)

	req := httptest.NewRequest("GET", "/events/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.Serve(w, req, uuid.New(), false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unauthenticated Serve must return immediately rather than idling")
	}

	body := w.Body.String()
	assert.Contains(t, body, "event: internal_status")
	assert.Contains(t, body, `"error":"denied"`)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestServe_AuthenticatedEmitsSnapshotThenStopsOnContextCancel(t *testing.T) {
	store := storagetest.NewMemStore()
	identitySvc := identity.New(store)
	projectionSvc := projection.New(store, identitySvc)
	bus := events.NewBus()
	s := New(projectionSvc, bus)

	tenantID := uuid.New()
	evt := &types.Event{
		ID:           uuid.New(),
		CollectionID: uuid.New(),
		TenantID:     tenantID,
		Event:        "reminder",
		Timestamp:    1,
		Data:         json.RawMessage(`{"foo":"bar"}`),
	}
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	require.NoError(t, store.Put("_v_"+evt.ID.String(), data))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest("GET", "/events/"+tenantID.String(), nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.Serve(w, req, tenantID, true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("authenticated Serve must stop when the request context is cancelled")
	}

	body := w.Body.String()
	assert.Contains(t, body, "event: reminder")
	assert.True(t, strings.Contains(body, "event: internal_status"), "expected at least one polling keepalive")
}
