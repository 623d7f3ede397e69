package indicators

import "sync"

// PriceHistory is a fixed-capacity buffer of the most recent prices.
// When full, pushing a price drops the oldest one.
type PriceHistory struct {
	mu     sync.RWMutex
	buf    []float64
	start  int
	length int
}

// NewPriceHistory creates a history holding at most capacity prices.
func NewPriceHistory(capacity int) *PriceHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &PriceHistory{buf: make([]float64, capacity)}
}

// Push appends a price.
func (h *PriceHistory) Push(price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.length < len(h.buf) {
		h.buf[(h.start+h.length)%len(h.buf)] = price
		h.length++
		return
	}
	h.buf[h.start] = price
	h.start = (h.start + 1) % len(h.buf)
}

// Values returns the prices oldest first. The slice is a copy.
func (h *PriceHistory) Values() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]float64, h.length)
	for i := 0; i < h.length; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Last returns the newest price, or false when the history is empty.
func (h *PriceHistory) Last() (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.length == 0 {
		return 0, false
	}
	return h.buf[(h.start+h.length-1)%len(h.buf)], true
}

func (h *PriceHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.length
}

func (h *PriceHistory) Cap() int {
	return len(h.buf)
}
