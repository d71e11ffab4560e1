package types

import (
	"encoding/json"

	"github.com/google/uuid"
)

// User is a registered principal within a tenant.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CollectionID uuid.UUID `json:"collection_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
}

// UserForm is the payload accepted by POST /users.
type UserForm struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	CollectionID uuid.UUID `json:"collection_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
}

// LoginForm is the payload accepted by POST /login.
type LoginForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Event is a scheduled, named datum awaiting publication.
type Event struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	CollectionID uuid.UUID       `json:"collection_id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	Event        string          `json:"event"`
	Timestamp    int64           `json:"timestamp"`
	Published    bool            `json:"published"`
	Cancelled    bool            `json:"cancelled"`
	Data         json.RawMessage `json:"data"`
}

// Clone returns a deep-enough copy suitable for CAS (the Data bytes are
// shared but never mutated in place by this package).
func (e *Event) Clone() *Event {
	c := *e
	return &c
}

// EventForm is the payload accepted by POST /insert.
type EventForm struct {
	Event        string          `json:"event"`
	CollectionID uuid.UUID       `json:"collection"`
	TenantID     uuid.UUID       `json:"tenant"`
	Timestamp    int64           `json:"timestamp"`
	Data         json.RawMessage `json:"data"`
}

// Column describes a single column in a tabular projection.
type Column struct {
	Title string `json:"title"`
	Field string `json:"field"`
}

// SnapshotPayload is the `data` body of an SSE message carrying a tenant
// projection for a single event name.
type SnapshotPayload struct {
	Events  []*Event          `json:"events"`
	Columns []Column          `json:"columns"`
	Rows    []json.RawMessage `json:"rows"`
}

// SSEMessage is a single server-sent event frame.
type SSEMessage struct {
	ID        uuid.UUID `json:"id"`
	EventName string    `json:"-"`
	Data      []byte    `json:"-"`
	RetryHint int       `json:"-"`
	TenantID  uuid.UUID `json:"-"`
}

// StatusPayload is the `data` body of an internal_status SSE message.
type StatusPayload struct {
	Error  string `json:"error,omitempty"`
	Status string `json:"status,omitempty"`
}

// UserCollectionView is the response body of GET /user_events.
type UserCollectionView struct {
	Info   []*Event `json:"info"`
	Events []*Event `json:"events"`
}

// CollectionView is the response body of GET /collections/{collection_id}.
type CollectionView struct {
	Events []*Event `json:"events"`
}
