package bus

import (
	"context"

	"github.com/peter-kozarec/ensemble/pkg/common"
)

type EventHandler[T any] = func(context.Context, T)

type WindowRotatedEventHandler EventHandler[common.WindowRotated]
type ReductionFailedEventHandler EventHandler[common.ReductionFailed]

func MergeHandlers[T any](handlers ...EventHandler[T]) EventHandler[T] {
	return func(ctx context.Context, event T) {
		for _, handler := range handlers {
			if handler != nil {
				handler(ctx, event)
			}
		}
	}
}
