package ensemble

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSizeMismatch = errors.New("grid size mismatch")
	ErrAborted      = errors.New("reduction aborted")
	ErrClosed       = errors.New("ensemble closed")
	ErrUnavailable  = errors.New("ensemble unavailable")
)

// Reducer performs a blocking element-wise sum of send across every member
// of an ensemble and writes the combined grid to receive. It must not return
// nil before receive reflects the contribution of all members.
type Reducer interface {
	Reduce(ctx context.Context, send, receive []float64) error
}

// ResourceProvider hands out a reduction handle. Restraints request a new
// handle for every rotation instead of holding one for their lifetime.
type ResourceProvider interface {
	Handle(ctx context.Context) (Reducer, error)
}

type ReducerFunc func(ctx context.Context, send, receive []float64) error

func (f ReducerFunc) Reduce(ctx context.Context, send, receive []float64) error {
	return f(ctx, send, receive)
}

type ProviderFunc func(ctx context.Context) (Reducer, error)

func (f ProviderFunc) Handle(ctx context.Context) (Reducer, error) {
	return f(ctx)
}

// Solo is the ensemble of a single member: the combined grid is the local one.
type Solo struct{}

func (Solo) Handle(context.Context) (Reducer, error) {
	return Solo{}, nil
}

func (Solo) Reduce(_ context.Context, send, receive []float64) error {
	if err := checkSize(send, receive); err != nil {
		return err
	}
	copy(receive, send)
	return nil
}

func checkSize(send, receive []float64) error {
	if len(send) != len(receive) {
		return fmt.Errorf("%w: send %d, receive %d", ErrSizeMismatch, len(send), len(receive))
	}
	return nil
}
