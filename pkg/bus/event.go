package bus

type EventId uint8

const (
	WindowRotatedEvent EventId = iota
	ReductionFailedEvent
)

func (id EventId) String() string {
	switch id {
	case WindowRotatedEvent:
		return "window_rotated"
	case ReductionFailedEvent:
		return "reduction_failed"
	default:
		return "unknown"
	}
}
