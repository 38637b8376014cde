package restraint

import "time"

type Option func(*Restraint)

func WithName(name string) Option {
	return func(r *Restraint) {
		r.name = name
	}
}

func WithObserver(observer Observer) Option {
	return func(r *Restraint) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// WithReduceTimeout bounds every ensemble reduction. Zero leaves the
// caller's context in charge.
func WithReduceTimeout(timeout time.Duration) Option {
	return func(r *Restraint) {
		r.reduceTimeout = timeout
	}
}

// WithCheckpoint restores window history saved by an earlier run.
func WithCheckpoint(checkpoint Checkpoint) Option {
	return func(r *Restraint) {
		r.restore = &checkpoint
	}
}
