package datasource

import (
	"errors"

	"github.com/peter-kozarec/ensemble/pkg/common"
)

// ErrEof marks the regular end of a sample data source.
var ErrEof = errors.New("EOF")

type SampleDataSource interface {
	GetNext() (common.Sample, error)
}

// CreateSampleDispatcher returns a step function that pulls one sample from
// ds and hands it to handler. It returns the data source error unchanged, so
// callers can tell the end of data apart from failures.
func CreateSampleDispatcher(ds SampleDataSource, handler func(common.Sample) error) func() error {
	return func() error {
		sample, err := ds.GetNext()
		if err != nil {
			return err
		}
		return handler(sample)
	}
}
