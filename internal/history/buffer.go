package history

// Sample is one timestamped metric reading.
type Sample[T any] struct {
	Value     T      `json:"value"`
	Timestamp uint64 `json:"timestamp"` // unix seconds
}

// CircularBuffer is a fixed-capacity FIFO of samples ordered oldest to newest.
type CircularBuffer[T any] struct {
	data     []Sample[T]
	head     int // index of the oldest sample
	count    int
	capacity int
}

// NewCircularBuffer creates an empty buffer. A capacity below 1 is treated as 1.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &CircularBuffer[T]{
		data:     make([]Sample[T], capacity),
		capacity: capacity,
	}
}

// Push appends a sample, evicting the oldest one when the buffer is full.
func (b *CircularBuffer[T]) Push(value T, timestamp uint64) {
	if b.count == b.capacity {
		b.data[b.head] = Sample[T]{Value: value, Timestamp: timestamp}
		b.head = (b.head + 1) % b.capacity
		return
	}
	b.data[(b.head+b.count)%b.capacity] = Sample[T]{Value: value, Timestamp: timestamp}
	b.count++
}

// All returns a copy of the samples in chronological order.
func (b *CircularBuffer[T]) All() []Sample[T] {
	out := make([]Sample[T], b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.data[(b.head+i)%b.capacity]
	}
	return out
}

// Values returns the sample values in chronological order.
func (b *CircularBuffer[T]) Values() []T {
	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.data[(b.head+i)%b.capacity].Value
	}
	return out
}

// At returns the sample at index, where 0 is the oldest.
func (b *CircularBuffer[T]) At(index int) (Sample[T], bool) {
	if index < 0 || index >= b.count {
		var zero Sample[T]
		return zero, false
	}
	return b.data[(b.head+index)%b.capacity], true
}

// Latest returns the newest value.
func (b *CircularBuffer[T]) Latest() (T, bool) {
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.data[(b.head+b.count-1)%b.capacity].Value, true
}

// Len returns the number of stored samples.
func (b *CircularBuffer[T]) Len() int { return b.count }

// Cap returns the maximum number of samples.
func (b *CircularBuffer[T]) Cap() int { return b.capacity }

// IsEmpty reports whether no sample was pushed since creation or Clear.
func (b *CircularBuffer[T]) IsEmpty() bool { return b.count == 0 }

// Clear drops all samples and keeps the capacity.
func (b *CircularBuffer[T]) Clear() {
	clear(b.data)
	b.head = 0
	b.count = 0
}
