/*
Package events provides the broker's in-memory fan-out bus.

The Scheduler is the sole producer: it CAS-publishes a due Event, then
calls Bus.Publish. Every long-lived subscriber session (pkg/session)
attaches its own buffered receiver via Bus.Subscribe and polls it on a
fixed cadence, non-blocking. A slow subscriber drops the oldest in-flight
broadcast rather than stalling the scheduler. The snapshot-on-nudge
design in pkg/projection means no persisted state is ever lost by a
dropped nudge, only a round of re-projection.

# Usage

	bus := events.NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	bus.Publish(event)

	select {
	case evt := <-sub:
		// re-project and emit
	default:
		// no nudge this tick
	}
*/
package events
