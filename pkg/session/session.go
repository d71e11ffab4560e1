// Package session implements the subscriber SSE session: on connect an
// unauthenticated caller gets a single denied frame, an authenticated
// caller gets the full tenant snapshot followed by a nudge/keepalive loop
// for as long as the connection stays open.
package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/warrenbroker/pkg/events"
	"github.com/cuemby/warrenbroker/pkg/log"
	"github.com/cuemby/warrenbroker/pkg/projection"
	"github.com/cuemby/warrenbroker/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// pollInterval is the cadence at which an authenticated session drains its
// bus receiver and re-projects or keeps alive.
const pollInterval = 100 * time.Millisecond

// Session serves a single subscriber's SSE stream for one HTTP request.
type Session struct {
	projection *projection.Service
	bus        *events.Bus
}

// New returns a Session backed by projection and bus.
func New(projectionSvc *projection.Service, bus *events.Bus) *Session {
	return &Session{projection: projectionSvc, bus: bus}
}

// Serve writes the SSE stream for tenantID. authenticated reflects whether
// the request carried a valid Authorization header; an unauthenticated
// caller still gets a 200 stream, with the denial communicated in-band.
func (s *Session) Serve(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID, authenticated bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	logger := log.WithTenantID(tenantID.String())

	if !authenticated {
		writeStatus(w, flusher, "denied")
		return
	}

	if err := s.emitSnapshot(w, flusher, tenantID); err != nil {
		logger.Error().Err(err).Msg("failed to emit initial snapshot")
		return
	}

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(w, flusher, sub, tenantID, logger)
		}
	}
}

func (s *Session) tick(w http.ResponseWriter, flusher http.Flusher, sub events.Subscriber, tenantID uuid.UUID, logger zerolog.Logger) {
	select {
	case evt, ok := <-sub:
		if ok && evt.TenantID == tenantID {
			if err := s.emitSnapshot(w, flusher, tenantID); err != nil {
				logger.Error().Err(err).Msg("failed to re-emit snapshot on nudge")
			}
			return
		}
		writeStatus(w, flusher, "polling")
	default:
		writeStatus(w, flusher, "polling")
	}
}

func (s *Session) emitSnapshot(w http.ResponseWriter, flusher http.Flusher, tenantID uuid.UUID) error {
	messages, err := s.projection.TenantSnapshot(tenantID)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		writeMessage(w, msg)
	}
	flusher.Flush()
	return nil
}

// writeStatus writes a single internal_status frame. kind is either
// "denied" (payload {"error":"denied"}) or "polling" (payload
// {"status":"polling"}).
func writeStatus(w http.ResponseWriter, flusher http.Flusher, kind string) {
	var payload types.StatusPayload
	if kind == "denied" {
		payload = types.StatusPayload{Error: kind}
	} else {
		payload = types.StatusPayload{Status: kind}
	}
	data, err := json.Marshal(&payload)
	if err != nil {
		return
	}
	writeFrame(w, uuid.New(), "internal_status", data, 5)
	flusher.Flush()
}

func writeMessage(w http.ResponseWriter, msg *types.SSEMessage) {
	writeFrame(w, msg.ID, msg.EventName, msg.Data, msg.RetryHint)
}

func writeFrame(w http.ResponseWriter, id uuid.UUID, event string, data []byte, retrySeconds int) {
	fmt.Fprintf(w, "id: %s\n", id.String())
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "retry: %d\n", retrySeconds*1000)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
