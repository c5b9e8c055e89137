package domain

import "sync"

// history is a reader cache with KEEP_LAST semantics: with depth > 0 the
// oldest untaken sample is overwritten (and counted) once depth is reached.
// depth 0 keeps everything.
type history[T any] struct {
	mu       sync.Mutex
	depth    int
	samples  []Sample[T]
	dropped  uint64
	watchers map[chan struct{}]struct{}
}

func newHistory[T any](depth int) *history[T] {
	return &history[T]{depth: depth, watchers: map[chan struct{}]struct{}{}}
}

func (h *history[T]) push(s Sample[T]) {
	h.mu.Lock()
	if h.depth > 0 && len(h.samples) >= h.depth {
		over := len(h.samples) - h.depth + 1
		h.samples = append(h.samples[:0], h.samples[over:]...)
		h.dropped += uint64(over)
	}
	h.samples = append(h.samples, s)
	for ch := range h.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *history[T]) take(max int) []Sample[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := min(max, len(h.samples))
	if n == 0 {
		return nil
	}
	out := make([]Sample[T], n)
	copy(out, h.samples[:n])
	h.samples = append(h.samples[:0], h.samples[n:]...)
	return out
}

func (h *history[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

func (h *history[T]) droppedCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *history[T]) watch(ch chan struct{}) {
	h.mu.Lock()
	h.watchers[ch] = struct{}{}
	h.mu.Unlock()
}

func (h *history[T]) unwatch(ch chan struct{}) {
	h.mu.Lock()
	delete(h.watchers, ch)
	h.mu.Unlock()
}

func (h *history[T]) clear() {
	h.mu.Lock()
	h.samples = nil
	h.mu.Unlock()
}
