/*
Package types defines the core data structures shared across the broker.

It holds the wire and storage representations for users, events, and the
tabular projections built from them. These types are used by pkg/identity
and pkg/eventlog for the records they persist, pkg/projection for
snapshot construction, and pkg/api for request/response bodies.

Values are JSON-serializable and round-trip through the store unchanged;
the Event and User structs are the only records ever written to `_v_` and
`_u_` keys respectively.
*/
package types
