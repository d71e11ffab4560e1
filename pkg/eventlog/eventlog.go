// Package eventlog implements event ingress and cancellation: the two
// mutation paths a caller can take against `_v_` records outside of the
// scheduler's publish step.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/warrenbroker/pkg/identity"
	"github.com/cuemby/warrenbroker/pkg/log"
	"github.com/cuemby/warrenbroker/pkg/storage"
	"github.com/cuemby/warrenbroker/pkg/types"
	"github.com/google/uuid"
)

// EventKeyPrefix namespaces every persisted Event key.
const EventKeyPrefix = "_v_"

// ErrTenantMismatch is returned by Insert when the submitted form targets
// a tenant other than the acting user's own tenant.
var ErrTenantMismatch = errors.New("eventlog: trying to write to wrong tenant")

// ErrNotFound is returned by Cancel when the event id does not exist.
var ErrNotFound = errors.New("eventlog: event not found")

// Service implements event ingress and cancellation against the shared
// store, backed by the identity service for the acting-user lookup.
type Service struct {
	store    storage.Store
	identity *identity.Service
}

// New returns an eventlog Service.
func New(store storage.Store, identitySvc *identity.Service) *Service {
	return &Service{store: store, identity: identitySvc}
}

// Insert validates and persists a submitted event under the acting
// user's tenant. Ingress does not validate timestamp against the clock;
// past-dated events are legal and become immediately eligible.
func (s *Service) Insert(actingUserID string, form types.EventForm) (*types.Event, error) {
	user, err := s.identity.GetUser(actingUserID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: load acting user: %w", err)
	}

	if form.TenantID != user.TenantID {
		return nil, ErrTenantMismatch
	}

	event := &types.Event{
		ID:           uuid.New(),
		UserID:       user.ID,
		CollectionID: form.CollectionID,
		TenantID:     form.TenantID,
		Event:        form.Event,
		Timestamp:    form.Timestamp,
		Published:    false,
		Cancelled:    false,
		Data:         form.Data,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("eventlog: marshal event: %w", err)
	}

	if err := s.store.Put(EventKeyPrefix+event.ID.String(), data); err != nil {
		return nil, fmt.Errorf("eventlog: persist event: %w", err)
	}
	if err := s.store.Flush(); err != nil {
		return nil, fmt.Errorf("eventlog: flush: %w", err)
	}

	return event, nil
}

// Cancel flips an event's cancelled flag, provided the acting user's
// tenant matches the event's tenant. On mismatch the event is returned
// unchanged (silent no-op; see the tenant-mismatch design note).
// A CAS loss because another writer already cancelled the event is
// treated as success: the desired terminal state is reached either way.
func (s *Service) Cancel(actingUserID, eventID string) (*types.Event, error) {
	user, err := s.identity.GetUser(actingUserID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: load acting user: %w", err)
	}

	key := EventKeyPrefix + eventID
	for {
		raw, err := s.store.Get(key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("eventlog: load event: %w", err)
		}

		var event types.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("eventlog: unmarshal event: %w", err)
		}

		if event.TenantID != user.TenantID {
			return &event, nil
		}
		if event.Cancelled {
			return &event, nil
		}

		updated := event.Clone()
		updated.Cancelled = true
		newData, err := json.Marshal(updated)
		if err != nil {
			return nil, fmt.Errorf("eventlog: marshal event: %w", err)
		}

		if err := s.store.CAS(key, raw, newData); err != nil {
			if errors.Is(err, storage.ErrCASConflict) {
				continue // retry: either we lose the race, or it's already cancelled
			}
			return nil, fmt.Errorf("eventlog: cas event: %w", err)
		}
		if err := s.store.Flush(); err != nil {
			return nil, fmt.Errorf("eventlog: flush: %w", err)
		}
		return updated, nil
	}
}

// ScanEvents calls fn for every well-formed `_v_` record, logging and
// skipping any record that fails to unmarshal. Used by the projection
// package; the scheduler runs its own scan because it keeps each record's
// raw bytes for CAS.
func ScanEvents(store storage.Store, fn func(*types.Event)) error {
	return store.Iter(func(key string, value []byte) bool {
		if !strings.HasPrefix(key, EventKeyPrefix) {
			return true
		}
		var event types.Event
		if err := json.Unmarshal(value, &event); err != nil {
			log.WithComponent("eventlog").Error().Str("key", key).Err(err).Msg("skipping corrupt event record")
			return true
		}
		fn(&event)
		return true
	})
}
