package timelock

import "sync"

type (
	// EventHub fans committed events out to its Consumers. Every Consumer
	// sees matching events in commit order, and publishing never waits on a
	// slow Consumer
	EventHub struct {
		consumers map[*Consumer]struct{}
		mu        sync.RWMutex
		closed    bool
	}

	// Consumer receives the events it is interested in from an EventHub
	Consumer struct {
		hub       *EventHub
		interests interests
		queue     []*Event
		signal    chan struct{}
		done      chan struct{}
		out       chan *Event
		mu        sync.Mutex
		closeOnce sync.Once
	}

	interests struct {
		eventTypes map[EventType]bool // empty = all event types
		prefix     AggregateID        // nil = all books
	}
)

func newEventHub() *EventHub {
	return &EventHub{
		consumers: map[*Consumer]struct{}{},
	}
}

// NewConsumer creates a Consumer interested in specific event types. If no
// event types are specified, the Consumer receives all events
func (h *EventHub) NewConsumer(eventTypes ...EventType) *Consumer {
	return h.NewAggregateConsumer(nil, eventTypes...)
}

// NewAggregateConsumer creates a Consumer interested in events from Books
// whose identifier starts with prefix
func (h *EventHub) NewAggregateConsumer(
	prefix AggregateID, eventTypes ...EventType,
) *Consumer {
	c := &Consumer{
		hub:       h,
		interests: newInterests(prefix, eventTypes),
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		out:       make(chan *Event),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.closeOnce.Do(func() { close(c.done) })
		close(c.out)
		return c
	}
	h.consumers[c] = struct{}{}
	h.mu.Unlock()

	go c.pump()
	return c
}

func (h *EventHub) publish(evs []*Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.consumers {
		c.push(evs)
	}
}

func (h *EventHub) remove(c *Consumer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.consumers, c)
}

func (h *EventHub) close() {
	h.mu.Lock()
	h.closed = true
	consumers := make([]*Consumer, 0, len(h.consumers))
	for c := range h.consumers {
		consumers = append(consumers, c)
	}
	h.mu.Unlock()

	for _, c := range consumers {
		_ = c.Close()
	}
}

// Receive returns the channel matching events are delivered on. It is
// closed when the Consumer or its EventHub is closed
func (c *Consumer) Receive() <-chan *Event {
	return c.out
}

// Close unregisters the Consumer. Undelivered events are discarded
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.hub.remove(c)
		close(c.done)
	})
	return nil
}

func (c *Consumer) push(evs []*Event) {
	c.mu.Lock()
	added := false
	for _, ev := range evs {
		if c.interests.matches(ev) {
			c.queue = append(c.queue, ev)
			added = true
		}
	}
	c.mu.Unlock()

	if added {
		select {
		case c.signal <- struct{}{}:
		default:
		}
	}
}

func (c *Consumer) pump() {
	defer close(c.out)
	for {
		ev, ok := c.next()
		if !ok {
			return
		}
		select {
		case c.out <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Consumer) next() (*Event, bool) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			ev := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return ev, true
		}
		c.mu.Unlock()

		select {
		case <-c.signal:
		case <-c.done:
			return nil, false
		}
	}
}

func newInterests(prefix AggregateID, eventTypes []EventType) interests {
	i := interests{}
	if len(prefix) > 0 {
		i.prefix = prefix
	}
	if len(eventTypes) > 0 {
		i.eventTypes = make(map[EventType]bool, len(eventTypes))
		for _, et := range eventTypes {
			i.eventTypes[et] = true
		}
	}
	return i
}

func (i interests) matches(ev *Event) bool {
	if i.prefix != nil && !ev.AggregateID.HasPrefix(i.prefix) {
		return false
	}
	return len(i.eventTypes) == 0 || i.eventTypes[ev.Type]
}
