package middleware

import (
	"context"

	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/bus"
	"github.com/peter-kozarec/ensemble/pkg/common"
)

// WindowStore persists the window history of a committed rotation.
type WindowStore interface {
	SaveRotation(ctx context.Context, ev common.WindowRotated) error
}

// Ledger writes every committed rotation to a WindowStore so a later run can
// resume from it. Write failures are logged and do not stop the chain.
type Ledger struct {
	logger *zap.Logger
	store  WindowStore
}

func NewLedger(logger *zap.Logger, store WindowStore) *Ledger {
	return &Ledger{
		logger: logger,
		store:  store,
	}
}

func (l *Ledger) WithWindowRotated(handler bus.WindowRotatedEventHandler) bus.WindowRotatedEventHandler {
	return func(ctx context.Context, ev common.WindowRotated) {
		if err := l.store.SaveRotation(ctx, ev); err != nil {
			l.logger.Warn("unable to store window rotation",
				zap.String("restraint", ev.Restraint),
				zap.Uint64("rotation", ev.Rotation),
				zap.Error(err))
		}
		handler(ctx, ev)
	}
}
