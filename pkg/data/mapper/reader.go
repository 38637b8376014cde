package mapper

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/exp/mmap"
)

var ErrEof = errors.New("EOF")

// ByteOrder is the on-disk order of every record field.
var ByteOrder = binary.LittleEndian

// Reader maps a file of fixed-size records of T. T must have a fixed
// encoded size (see encoding/binary.Size); records are stored in ByteOrder
// back to back, with no header.
type Reader[T any] struct {
	dataSourceName string
	recordSize     int
	reader         *mmap.ReaderAt
	records        sync.Pool
}

func NewReader[T any](dataSourceName string) *Reader[T] {
	recordSize := binary.Size(*new(T))
	return &Reader[T]{
		dataSourceName: dataSourceName,
		recordSize:     recordSize,
		records: sync.Pool{
			New: func() any {
				record := make([]byte, max(recordSize, 0))
				return &record
			},
		},
	}
}

func (r *Reader[T]) Open() error {
	if r.recordSize <= 0 {
		return fmt.Errorf("record type %T has no fixed size", *new(T))
	}
	reader, err := mmap.Open(r.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open data source %q: %w", r.dataSourceName, err)
	}
	r.reader = reader
	return nil
}

func (r *Reader[T]) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
		r.reader = nil
	}
}

// Read decodes the record at index into data. Reading past the last full
// record returns ErrEof.
func (r *Reader[T]) Read(index int64, data *T) error {
	if r.reader == nil {
		return fmt.Errorf("data source %q is not open", r.dataSourceName)
	}

	record := r.records.Get().(*[]byte)
	defer r.records.Put(record)

	n, err := r.reader.ReadAt(*record, index*int64(r.recordSize))
	if err != nil && err != io.EOF {
		return fmt.Errorf("unable to read record %d: %w", index, err)
	}
	if n < r.recordSize {
		return ErrEof
	}

	if _, err := binary.Decode(*record, ByteOrder, data); err != nil {
		return fmt.Errorf("unable to decode record %d: %w", index, err)
	}
	return nil
}

// EntryCount is the number of whole records in the mapped file.
func (r *Reader[T]) EntryCount() (int64, error) {
	if r.recordSize <= 0 {
		return 0, fmt.Errorf("record type %T has no fixed size", *new(T))
	}

	if r.reader == nil {
		if err := r.Open(); err != nil {
			return 0, err
		}
		defer r.Close()
	}

	size := int64(r.reader.Len())
	if size%int64(r.recordSize) != 0 {
		return 0, fmt.Errorf("data source %q size %d is not a multiple of record size %d", r.dataSourceName, size, r.recordSize)
	}
	return size / int64(r.recordSize), nil
}
