package types

// EventName identifies an internal signal emitted by a session, transport,
// or namespace — e.g. "packetCreate", "flush", "drain", "close", "upgrade".
// This is not the wire-level Socket.IO event name a host application emits
// to a connected client; it is purely for internal component signaling, the
// same role the teacher's EventEmitter plays between a socket and its
// active transport.
type EventName string

type eventEntry struct {
	listener func(...any)
	once     bool
}

// EventEmitter is a generic, concurrency-safe publish/subscribe hub used to
// wire internal lifecycle signals between a session and its transport (and
// between a namespace and its sockets) without hard-coding direct method
// calls between packages that would otherwise need to import each other.
type EventEmitter struct {
	listeners Map[EventName, *Slice[*eventEntry]]
}

// NewEventEmitter creates an empty EventEmitter.
func NewEventEmitter() *EventEmitter {
	e := &EventEmitter{}
	e.listeners = *NewMap[EventName, *Slice[*eventEntry]]()
	return e
}

func (e *EventEmitter) entries(event EventName) *Slice[*eventEntry] {
	entries, ok := e.listeners.Load(event)
	if !ok {
		entries = NewSlice[*eventEntry]()
		entries, _ = e.listeners.LoadOrStore(event, entries)
	}
	return entries
}

// On registers listener to run every time event is emitted.
func (e *EventEmitter) On(event EventName, listener func(...any)) {
	e.entries(event).Push(&eventEntry{listener: listener})
}

// Once registers listener to run the next time event is emitted, then
// removes itself.
func (e *EventEmitter) Once(event EventName, listener func(...any)) {
	e.entries(event).Push(&eventEntry{listener: listener, once: true})
}

// Off removes all listeners registered for event. With no event arguments
// all listeners for all events are removed.
func (e *EventEmitter) Off(events ...EventName) {
	if len(events) == 0 {
		e.listeners.Clear()
		return
	}
	for _, event := range events {
		e.listeners.Delete(event)
	}
}

// Emit runs every listener registered for event, in registration order,
// synchronously on the calling goroutine — callers that must not block the
// emitter should dispatch their own work onto a goroutine from inside the
// listener.
func (e *EventEmitter) Emit(event EventName, args ...any) {
	entries, ok := e.listeners.Load(event)
	if !ok {
		return
	}
	var remaining []*eventEntry
	for _, entry := range entries.AllAndClear() {
		entry.listener(args...)
		if !entry.once {
			remaining = append(remaining, entry)
		}
	}
	if len(remaining) > 0 {
		entries.Push(remaining...)
	}
}

// ListenerCount returns the number of listeners registered for event.
func (e *EventEmitter) ListenerCount(event EventName) int {
	entries, ok := e.listeners.Load(event)
	if !ok {
		return 0
	}
	return entries.Len()
}
