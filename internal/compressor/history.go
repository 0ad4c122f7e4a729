package compressor

// HistoryPoint is one sample of the operating history.
type HistoryPoint struct {
	Time        float64 `json:"time"` // simulation seconds
	State       State   `json:"state"`
	Speed       float64 `json:"speed"`
	Flow        float64 `json:"flow"`
	Head        float64 `json:"head"`
	Power       float64 `json:"power"`
	SurgeMargin float64 `json:"surge_margin"`
}

// History is a fixed-size ring of samples; the oldest is overwritten.
type History struct {
	buf   []HistoryPoint
	start int
	n     int
}

// NewHistory returns a ring holding up to capacity samples.
func NewHistory(capacity int) *History {
	return &History{buf: make([]HistoryPoint, capacity)}
}

// Add records p, dropping the oldest sample when full.
func (h *History) Add(p HistoryPoint) {
	if len(h.buf) == 0 {
		return
	}
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = p
		h.n++
		return
	}
	h.buf[h.start] = p
	h.start = (h.start + 1) % len(h.buf)
}

// Points returns the samples oldest first.
func (h *History) Points() []HistoryPoint {
	out := make([]HistoryPoint, h.n)
	for i := range out {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *History) Len() int { return h.n }
func (h *History) Cap() int { return len(h.buf) }

// Clear drops every sample.
func (h *History) Clear() { h.start, h.n = 0, 0 }
