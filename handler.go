package timelock

import "encoding/json"

// Handler reacts to an Event received from a Consumer
type Handler func(*Event) error

// MakeHandler decodes the Event's data before handing it to fn
func MakeHandler[T any](fn func(ev *Event, data T) error) Handler {
	return func(ev *Event) error {
		var data T
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return err
		}
		return fn(ev, data)
	}
}

// MakeDispatcher routes each Event to the handler registered for its type.
// Events without a handler are ignored
func MakeDispatcher(handlers map[EventType]Handler) Handler {
	return func(ev *Event) error {
		if fn, ok := handlers[ev.Type]; ok {
			return fn(ev)
		}
		return nil
	}
}
