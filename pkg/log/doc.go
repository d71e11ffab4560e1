/*
Package log provides structured logging for the broker using zerolog.

A single global Logger is configured once via Init. Components such as
the scheduler, api, identity, and eventlog derive a child logger carrying
a fixed "component" field; the subscriber session logs through a child
logger carrying its tenant id instead.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Str("event_id", id).Msg("published event")

	log.WithTenantID(tenantID).Warn().Msg("clock unavailable, backing off")

# Context loggers

  - WithComponent("scheduler"|"api"|"identity"|...) for per-package logs
  - WithTenantID, WithUserID, WithEventID for per-request/per-record context

# See Also

  - pkg/scheduler, pkg/session - the two long-running loops that log most
  - github.com/rs/zerolog documentation
*/
package log
