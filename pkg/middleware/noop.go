package middleware

import (
	"context"

	"github.com/peter-kozarec/ensemble/pkg/common"
)

//goland:noinspection ALL
var (
	NoopRotatedHdl = func(context.Context, common.WindowRotated) {}
	NoopFailedHdl  = func(context.Context, common.ReductionFailed) {}
)
