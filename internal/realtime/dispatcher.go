package realtime

import "log"

// Dispatcher delivers events to every subscriber of the affected project's
// group. Notification is best-effort: a nil dispatcher, an empty group, or a
// failed delivery never surfaces to the mutation that triggered it.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher wires a dispatcher to a registry. Both a nil *Dispatcher and
// a dispatcher over a nil registry behave as "no realtime transport
// configured" and make Notify a no-op.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Notify fans the event out to the current members of the project's group.
// Each delivery is a non-blocking enqueue onto that subscriber's outbound
// queue, so a slow or dead peer never stalls the remaining members or the
// mutation that called Notify. Enqueues for one subscriber happen in
// dispatch order and its writer drains FIFO, so events arrive in order.
func (d *Dispatcher) Notify(projectID string, event Event) {
	if d == nil || d.registry == nil {
		return
	}

	members := d.registry.Members(GroupForProject(projectID))
	if len(members) == 0 {
		return
	}

	message := event.Message()
	for _, sub := range members {
		if err := sub.Send(message); err != nil {
			log.Printf("realtime: dropped %s event for project %s: %v", event.Type(), projectID, err)
		}
	}
}
