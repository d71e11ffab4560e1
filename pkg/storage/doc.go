/*
Package storage provides BoltDB-backed persistence for the broker's single
keyspace.

All entities live in one bucket ("broker"), keyed by `_u_<uuid>` for users
and `_v_<uuid>` for events. CAS is the only mutation path for existing
keys; Put is reserved for create-from-absent, matching the store contract
in pkg/storage.Store.

# Transaction model

Read transactions (db.View) give MVCC snapshots; write transactions
(db.Update) serialize and fsync on commit. Iter walks the bucket with a
cursor under a single read transaction, so it observes a consistent
snapshot even while writers proceed concurrently.

# Error wrapping

NewBoltStore wraps open errors with operation context via
fmt.Errorf("...: %w", err); Get and CAS return the ErrNotFound and
ErrCASConflict sentinels directly. Iter does not decode values: it hands
every record's bytes to the caller unchanged, and the callers that
unmarshal records (pkg/identity, pkg/eventlog, pkg/scheduler) log and
skip a record that fails to decode, so a single corrupt record never
aborts a full scan.
*/
package storage
