package ensemble

import (
	"context"
	"fmt"
	"sync"
)

type round struct {
	sum     []float64
	arrived int
	done    chan struct{}
	err     error
}

// Local sums grids across members living in one process. Every member calls
// Reduce once per round; the round completes when all members arrived. A
// member giving up (context done) aborts the round for everybody and the
// next call starts a fresh one.
type Local struct {
	mu      sync.Mutex
	members int
	current *round
	closed  bool
}

func NewLocal(members int) *Local {
	if members <= 0 {
		panic("members must be positive")
	}
	return &Local{members: members}
}

func (l *Local) Members() int {
	return l.members
}

func (l *Local) Handle(context.Context) (Reducer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return l, nil
}

func (l *Local) Reduce(ctx context.Context, send, receive []float64) error {
	if err := checkSize(send, receive); err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.current == nil {
		l.current = &round{
			sum:  make([]float64, len(send)),
			done: make(chan struct{}),
		}
	}
	r := l.current
	if len(r.sum) != len(send) {
		l.mu.Unlock()
		return fmt.Errorf("%w: round has %d bins, member sent %d", ErrSizeMismatch, len(r.sum), len(send))
	}
	for i, v := range send {
		r.sum[i] += v
	}
	r.arrived++
	if r.arrived == l.members {
		l.current = nil
		close(r.done)
	}
	l.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		l.abort(r, fmt.Errorf("%w: %w", ErrAborted, ctx.Err()))
		<-r.done
	}

	if r.err != nil {
		return r.err
	}
	copy(receive, r.sum)
	return nil
}

// Close fails the pending round and every later reduction.
func (l *Local) Close() {
	l.mu.Lock()
	l.closed = true
	r := l.current
	l.mu.Unlock()

	if r != nil {
		l.abort(r, ErrClosed)
	}
}

func (l *Local) abort(r *round, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-r.done:
		return
	default:
	}
	r.err = err
	if l.current == r {
		l.current = nil
	}
	close(r.done)
}
