package log

import (
	"sync"
	"time"
)

// FailureEntry is one gate that could not be processed
type FailureEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Station   string    `json:"station"`
	GateTime  time.Time `json:"gate_time"`
	Gate      int       `json:"gate"`
	Error     string    `json:"error"`
}

// FailureBuffer keeps the most recent gate failures for the status server
type FailureBuffer struct {
	mu      sync.RWMutex
	entries []FailureEntry
	next    int
	full    bool
}

var failureBuffer *FailureBuffer
var failureBufferOnce sync.Once

// NewFailureBuffer returns a ring buffer holding up to size entries
func NewFailureBuffer(size int) *FailureBuffer {
	if size < 1 {
		size = 1
	}
	return &FailureBuffer{entries: make([]FailureEntry, size)}
}

// GetFailureBuffer returns the process-wide failure buffer, creating it if necessary
func GetFailureBuffer() *FailureBuffer {
	failureBufferOnce.Do(func() {
		failureBuffer = NewFailureBuffer(500) // Keep last 500 gate failures
	})
	return failureBuffer
}

// Add appends an entry, overwriting the oldest once the buffer is full
func (b *FailureBuffer) Add(e FailureEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns the buffered failures, oldest first
func (b *FailureBuffer) Entries() []FailureEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.full {
		return append([]FailureEntry(nil), b.entries[:b.next]...)
	}
	out := make([]FailureEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

// LogGateFailure records a skipped gate in the failure buffer
func LogGateFailure(station string, gateTime time.Time, gate int, err error) {
	GetFailureBuffer().Add(FailureEntry{
		Timestamp: time.Now(),
		Station:   station,
		GateTime:  gateTime,
		Gate:      gate,
		Error:     err.Error(),
	})
}
