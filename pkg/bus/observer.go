package bus

import "github.com/peter-kozarec/ensemble/pkg/common"

// Observer is the notification surface a restraint calls after every
// rotation attempt.
type Observer interface {
	OnWindowRotated(common.WindowRotated)
	OnReductionFailed(common.ReductionFailed)
}

type observer struct {
	router *Router
}

func (o observer) OnWindowRotated(ev common.WindowRotated) {
	o.router.OnWindowRotatedEvent(ev)
}

func (o observer) OnReductionFailed(ev common.ReductionFailed) {
	o.router.OnReductionFailedEvent(ev)
}
