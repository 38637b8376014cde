package historical

import (
	"errors"
	"fmt"

	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/data/mapper"
	"github.com/peter-kozarec/ensemble/pkg/datasource"
)

const (
	invalidIndex = -1
)

var ErrEof = datasource.ErrEof

// TrajectoryReader replays the samples of a mapped trajectory file whose
// time lies in [from, to]. Records must be sorted by time.
type TrajectoryReader struct {
	source *mapper.Reader[mapper.BinarySample]

	from float64
	to   float64
	idx  int64
}

func NewTrajectoryReader(source *mapper.Reader[mapper.BinarySample], from, to float64) *TrajectoryReader {
	return &TrajectoryReader{
		source: source,
		from:   from,
		to:     to,
		idx:    invalidIndex,
	}
}

func (t *TrajectoryReader) GetNext() (common.Sample, error) {
	var sample common.Sample
	var entry mapper.BinarySample

	if t.idx == invalidIndex {
		if err := t.lookupStartIndex(); err != nil {
			return sample, err
		}
	}

	if err := t.source.Read(t.idx, &entry); err != nil {
		if errors.Is(err, mapper.ErrEof) {
			return sample, ErrEof
		}
		return sample, fmt.Errorf("error reading entry at index %d: %w", t.idx, err)
	}
	t.idx++

	if entry.Time < t.from {
		return sample, fmt.Errorf("entry %d at t=%g precedes t=%g, trajectory is not sorted", t.idx-1, entry.Time, t.from)
	}
	if entry.Time > t.to {
		return sample, ErrEof
	}

	entry.ToSample(&sample)
	return sample, nil
}

func (t *TrajectoryReader) lookupStartIndex() error {
	entryCount, err := t.source.EntryCount()
	if err != nil {
		return fmt.Errorf("error getting entry count: %w", err)
	}

	if entryCount == 0 {
		return ErrEof
	}

	var entry mapper.BinarySample

	low := int64(0)
	high := entryCount - 1

	for low <= high {
		mid := (low + high) / 2

		if err := t.source.Read(mid, &entry); err != nil {
			return fmt.Errorf("error reading entry at index %d: %w", mid, err)
		}

		if entry.Time < t.from {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	if low >= entryCount {
		return ErrEof
	}

	t.idx = low
	return nil
}
