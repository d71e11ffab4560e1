/*
Package scheduler publishes due events.

The scheduler is responsible for noticing when a scheduled event's timestamp
has arrived and moving it from pending to published exactly once, regardless
of how many scheduler instances are scanning the store concurrently.

# Architecture

The scheduler runs a fixed-interval scan of the store:

	┌──────────────────────────────────────────────┐
	│              Scheduler Loop                  │
	│              (every 50ms)                    │
	└───────────────┬──────────────────────────────┘
	                ▼
	┌──────────────────────────────────────────────┐
	│  1. Read current time from the network clock │
	│  2. Scan all "_v_" records in the store       │
	│  3. Select unpublished, uncancelled, due      │
	│  4. CAS each to published=true                │
	│  5. Broadcast each newly published event      │
	└──────────────────────────────────────────────┘

CAS happens strictly before broadcast: the store is the source of truth for
"has this event been published", and the bus is only ever told about a
transition the store already committed. A CAS conflict means another
scheduler instance (or a cancellation) won the race, so this cycle simply
skips that record rather than retrying.

# Clock Unavailability

If the network clock can't be reached, the cycle logs a warning and returns
without scanning. This trades a brief delay in publication for never crashing
the scheduler loop over a transient time-source outage.

# See Also

  - pkg/clock - network time source
  - pkg/eventlog - event storage and the "_v_" key convention
  - pkg/events - fan-out bus consumed by sessions
*/
package scheduler
