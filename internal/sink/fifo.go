package sink

import "sync"

// sampleFIFO is a bounded queue shared between the engine and an output goroutine
type sampleFIFO struct {
	mu      sync.Mutex
	buf     []Sample
	r, n    int
	starved uint64 // pops that came up short
}

func newSampleFIFO(capacity int) *sampleFIFO {
	if capacity < 1 {
		capacity = 1
	}
	return &sampleFIFO{buf: make([]Sample, capacity)}
}

func (f *sampleFIFO) push(s Sample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == len(f.buf) {
		return false
	}
	f.buf[(f.r+f.n)%len(f.buf)] = s
	f.n++
	return true
}

// pop fills out and returns how many samples were available
func (f *sampleFIFO) pop(out []Sample) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := min(len(out), f.n)
	for i := 0; i < k; i++ {
		out[i] = f.buf[f.r]
		f.r = (f.r + 1) % len(f.buf)
	}
	f.n -= k
	if k < len(out) {
		f.starved++
	}
	return k
}

func (f *sampleFIFO) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *sampleFIFO) underruns() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starved
}

func (f *sampleFIFO) reset() {
	f.mu.Lock()
	f.r, f.n = 0, 0
	f.mu.Unlock()
}
