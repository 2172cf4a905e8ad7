package fade

// sampleRing is a fixed-capacity FIFO of FrameSamples for one source.
// Not safe for concurrent use; StatsStore provides the locking.
type sampleRing struct {
	samples  []FrameSample
	capacity int
	head     int // next write position
	size     int // samples currently stored
}

func newSampleRing(capacity int) *sampleRing {
	if capacity < 1 {
		capacity = 120
	}
	return &sampleRing{
		samples:  make([]FrameSample, capacity),
		capacity: capacity,
	}
}

// add stores a sample, overwriting the oldest once at capacity.
func (r *sampleRing) add(s FrameSample) {
	r.samples[r.head] = s
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// previous returns the sample n steps back from the most recent;
// previous(1) is the newest. ok is false if n is out of range.
func (r *sampleRing) previous(n int) (FrameSample, bool) {
	if n < 1 || n > r.size {
		return FrameSample{}, false
	}
	idx := (r.head - n + r.capacity) % r.capacity
	return r.samples[idx], true
}

// snapshot copies all stored samples oldest to newest.
func (r *sampleRing) snapshot() []FrameSample {
	if r.size == 0 {
		return nil
	}
	out := make([]FrameSample, r.size)
	for i := 0; i < r.size; i++ {
		idx := (r.head - r.size + i + r.capacity) % r.capacity
		out[i] = r.samples[idx]
	}
	return out
}

// tail copies the most recent n samples oldest to newest. n larger than
// the stored count returns everything.
func (r *sampleRing) tail(n int) []FrameSample {
	if n >= r.size {
		return r.snapshot()
	}
	if n <= 0 {
		return nil
	}
	out := make([]FrameSample, n)
	for i := 0; i < n; i++ {
		idx := (r.head - n + i + r.capacity) % r.capacity
		out[i] = r.samples[idx]
	}
	return out
}
