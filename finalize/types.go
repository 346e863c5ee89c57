package finalize

// Destructor releases the native resource behind ptr.
type Destructor func(ptr uint64) error

// EventType identifies a registration lifecycle event.
type EventType uint8

const (
	EventTracked EventType = iota
	EventFinalized
	EventReleased
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventTracked:
		return "tracked"
	case EventFinalized:
		return "finalized"
	case EventReleased:
		return "released"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// Event describes one registration lifecycle change. Err is set for
// EventFailed.
type Event struct {
	Err  error
	ID   uint64
	Ptr  uint64
	Type EventType
}

// Observer receives registration lifecycle events. Finalization events
// are delivered on the runtime's cleanup goroutine.
type Observer interface {
	OnFinalizeEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnFinalizeEvent(e Event) { f(e) }
