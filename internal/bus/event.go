package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds follow a dotted namespace convention:
//
//	local.chat.changed / local.message.changed / local.user.changed
//	    published by the repositories after every local mutation;
//	    the debounced push scheduler subscribes to "local."
//	sync.started / sync.pushed / sync.pulled / sync.failed
//	    published by the sync engine over a cycle
//	sync.status_changed
//	    published by the cycle state machine on every transition
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
