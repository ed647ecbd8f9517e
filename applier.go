package timelock

import "encoding/json"

type (
	// Applier folds a committed Event into a Book, returning the new Book
	Applier func(*Book, *Event) *Book

	// Appliers maps each EventType to the Applier that folds it
	Appliers map[EventType]Applier
)

// MakeApplier decodes the Event's data before handing it to fn. An event
// whose data cannot be decoded leaves the Book unchanged
func MakeApplier[Data any](fn func(*Book, *Event, Data) *Book) Applier {
	return func(b *Book, ev *Event) *Book {
		var data Data
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return b
		}
		return fn(b, ev, data)
	}
}
