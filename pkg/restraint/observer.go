package restraint

import "github.com/peter-kozarec/ensemble/pkg/common"

// Observer is notified after a rotation commits or fails. Calls happen on
// the sampling path with the restraint's locks held, so implementations must
// not block or call back into the restraint.
type Observer interface {
	OnWindowRotated(common.WindowRotated)
	OnReductionFailed(common.ReductionFailed)
}

type noopObserver struct{}

func (noopObserver) OnWindowRotated(common.WindowRotated)     {}
func (noopObserver) OnReductionFailed(common.ReductionFailed) {}
