package circular

// Buffer is a bounded FIFO. Once full, every Push evicts the oldest element
// and hands it back so callers can recycle its storage.
type Buffer[T any] struct {
	capacity uint

	head uint
	size uint
	data []T
}

func NewBuffer[T any](capacity uint) *Buffer[T] {
	if capacity == 0 {
		panic("capacity must > 0")
	}
	return &Buffer[T]{
		capacity: capacity,
		data:     make([]T, capacity),
	}
}

func (b *Buffer[T]) Capacity() uint {
	return b.capacity
}

func (b *Buffer[T]) Size() uint {
	return b.size
}

func (b *Buffer[T]) IsFull() bool {
	return b.size == b.capacity
}

// Push appends value as the newest element. When the buffer was full the
// evicted oldest element is returned with ok set.
func (b *Buffer[T]) Push(value T) (evicted T, ok bool) {
	if b.size == b.capacity {
		evicted, ok = b.data[b.head], true
	}
	b.data[b.head] = value
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	return evicted, ok
}

// Get returns the element idx positions back from the newest one.
func (b *Buffer[T]) Get(idx uint) T {
	if idx >= b.size {
		panic("index out of range")
	}
	return b.data[(b.head+b.capacity-1-idx)%b.capacity]
}

func (b *Buffer[T]) ForEachFifo(f func(T)) {
	for i := b.size; i > 0; i-- {
		f(b.Get(i - 1))
	}
}

// Data returns the elements oldest first.
func (b *Buffer[T]) Data() []T {
	out := make([]T, 0, b.size)
	b.ForEachFifo(func(v T) {
		out = append(out, v)
	})
	return out
}
