// Package projection builds the per-user, per-collection, and per-tenant
// tabular views consumed by the HTTP API and the subscriber session.
package projection

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/cuemby/warrenbroker/pkg/eventlog"
	"github.com/cuemby/warrenbroker/pkg/identity"
	"github.com/cuemby/warrenbroker/pkg/storage"
	"github.com/cuemby/warrenbroker/pkg/types"
	"github.com/google/uuid"
)

// Service builds projections from the shared store.
type Service struct {
	store    storage.Store
	identity *identity.Service
}

// New returns a projection Service.
func New(store storage.Store, identitySvc *identity.Service) *Service {
	return &Service{store: store, identity: identitySvc}
}

// UserCollection returns the per-user view: info (every event in the
// user's collection) and events (every event created by the user), both
// sorted ascending by timestamp.
func (s *Service) UserCollection(actingUserID string) (*types.UserCollectionView, error) {
	user, err := s.identity.GetUser(actingUserID)
	if err != nil {
		return nil, fmt.Errorf("projection: load acting user: %w", err)
	}

	var info, events []*types.Event
	err = eventlog.ScanEvents(s.store, func(e *types.Event) {
		if e.CollectionID == user.CollectionID {
			info = append(info, e)
		}
		if e.UserID == user.ID {
			events = append(events, e)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("projection: scan events: %w", err)
	}

	sortByTimestampAsc(info)
	sortByTimestampAsc(events)

	return &types.UserCollectionView{Info: nonNil(info), Events: nonNil(events)}, nil
}

// Collection returns every event in collectionID whose tenant matches
// the acting user's tenant, sorted ascending by timestamp.
func (s *Service) Collection(actingUserID string, collectionID uuid.UUID) (*types.CollectionView, error) {
	user, err := s.identity.GetUser(actingUserID)
	if err != nil {
		return nil, fmt.Errorf("projection: load acting user: %w", err)
	}

	var events []*types.Event
	err = eventlog.ScanEvents(s.store, func(e *types.Event) {
		if e.CollectionID == collectionID && e.TenantID == user.TenantID {
			events = append(events, e)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("projection: scan events: %w", err)
	}

	sortByTimestampAsc(events)
	return &types.CollectionView{Events: nonNil(events)}, nil
}

// TenantSnapshot builds the list of SSE messages emitted on subscribe
// and on each bus nudge: one message per distinct event-name active in
// tenantID, each carrying the tabular rows/columns for that name.
func (s *Service) TenantSnapshot(tenantID uuid.UUID) ([]*types.SSEMessage, error) {
	var active []*types.Event
	err := eventlog.ScanEvents(s.store, func(e *types.Event) {
		if e.TenantID == tenantID && !e.Cancelled {
			active = append(active, e)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("projection: scan events: %w", err)
	}
	sortByTimestampAsc(active)

	names := uniqueEventNames(active)

	messages := make([]*types.SSEMessage, 0, len(names))
	for _, name := range names {
		payload, err := buildNamePayload(active, name)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("projection: marshal snapshot payload: %w", err)
		}
		messages = append(messages, &types.SSEMessage{
			ID:        uuid.New(),
			EventName: name,
			Data:      data,
			RetryHint: 5,
			TenantID:  tenantID,
		})
	}
	return messages, nil
}

// buildNamePayload keeps the newest event per collection_id for event
// name N, folds object-shaped data into rows, and builds the
// deterministic column set.
func buildNamePayload(activeSortedAsc []*types.Event, name string) (*types.SnapshotPayload, error) {
	byCollection := make(map[uuid.UUID]*types.Event)
	var selected []*types.Event
	for _, e := range activeSortedAsc {
		if e.Event != name {
			continue
		}
		byCollection[e.CollectionID] = e
	}
	for _, e := range byCollection {
		selected = append(selected, e)
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Timestamp != selected[j].Timestamp {
			return selected[i].Timestamp < selected[j].Timestamp
		}
		return selected[i].CollectionID.String() < selected[j].CollectionID.String()
	})

	type row struct {
		Timestamp    int64           `json:"timestamp"`
		CollectionID uuid.UUID       `json:"collection_id"`
		merged       map[string]any
	}

	uniqKeys := map[string]bool{}
	var rows []row
	for _, e := range selected {
		var obj map[string]any
		if len(e.Data) == 0 || json.Unmarshal(e.Data, &obj) != nil {
			continue // scalar or empty data: contributes no columns, no row
		}
		merged := make(map[string]any, len(obj)+2)
		for k, v := range obj {
			merged[k] = v
			uniqKeys[k] = true
		}
		merged["timestamp"] = strconv.FormatInt(e.Timestamp, 10)
		merged["collection_id"] = e.CollectionID.String()
		rows = append(rows, row{Timestamp: e.Timestamp, CollectionID: e.CollectionID, merged: merged})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp > rows[j].Timestamp })

	rawRows := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		b, err := json.Marshal(r.merged)
		if err != nil {
			return nil, fmt.Errorf("projection: marshal row: %w", err)
		}
		rawRows = append(rawRows, b)
	}

	columns := buildColumns(uniqKeys)

	return &types.SnapshotPayload{
		Events:  nonNil(selected),
		Columns: columns,
		Rows:    rawRows,
	}, nil
}

// buildColumns orders columns Timestamp, collection_id, then the
// remainder sorted for determinism.
func buildColumns(keys map[string]bool) []types.Column {
	remainder := make([]string, 0, len(keys))
	for k := range keys {
		if k == "timestamp" || k == "collection_id" {
			continue
		}
		remainder = append(remainder, k)
	}
	sort.Strings(remainder)

	columns := make([]types.Column, 0, len(remainder)+2)
	columns = append(columns, types.Column{Title: "Timestamp", Field: "timestamp"})
	columns = append(columns, types.Column{Title: "collection_id", Field: "collection_id"})
	for _, k := range remainder {
		columns = append(columns, types.Column{Title: sentenceCase(k), Field: k})
	}
	return columns
}

func uniqueEventNames(events []*types.Event) []string {
	seen := map[string]bool{}
	var names []string
	for _, e := range events {
		if !seen[e.Event] {
			seen[e.Event] = true
			names = append(names, e.Event)
		}
	}
	return names
}

func sortByTimestampAsc(events []*types.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
}

func nonNil(events []*types.Event) []*types.Event {
	if events == nil {
		return []*types.Event{}
	}
	return events
}

// sentenceCase upper-cases the first rune and lower-cases the rest,
// matching the source projection's column-title formatting.
func sentenceCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
