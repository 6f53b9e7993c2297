package backend

// EventType classifies a monitor event.
type EventType uint32

const (
	EventChanged EventType = iota
	EventDeleted
	EventCreated
	EventAttributeChanged
	EventMoved
)

func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "changed"
	case EventDeleted:
		return "deleted"
	case EventCreated:
		return "created"
	case EventAttributeChanged:
		return "attribute-changed"
	case EventMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// MonitorEvent is one change notification. Paths are backend paths.
type MonitorEvent struct {
	Type      EventType
	Path      string
	OtherPath string
}

// Monitor delivers change events until closed. Events is closed after Close.
type Monitor interface {
	Events() <-chan MonitorEvent
	Close() error
}
