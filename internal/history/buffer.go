// Package history keeps the most recent relayed actions of each frontend
// session in memory, for inspection over HTTP while a script runs.
package history

import (
	"sync"
	"time"
)

// MaxRecords is the number of recent actions retained per session.
const MaxRecords = 20

// ActionRecord is a single relayed action.
type ActionRecord struct {
	RequestID string        `json:"request_id"`
	Path      string        `json:"path"`
	Action    string        `json:"action"`
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Ts        int64         `json:"ts"`
}

// Buffer stores the last MaxRecords actions per session.
// It is goroutine-safe and uses a ring buffer internally.
type Buffer struct {
	mu      sync.RWMutex
	buffers map[uint32]*ringBuffer
}

// ringBuffer is a fixed-size circular buffer of ActionRecord.
type ringBuffer struct {
	items []ActionRecord
	pos   int
	count int
}

// NewBuffer creates a new empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		buffers: make(map[uint32]*ringBuffer),
	}
}

// Add appends a record to the session's ring buffer. If the buffer is full,
// the oldest record is overwritten.
func (b *Buffer) Add(sessionID uint32, rec ActionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rb, ok := b.buffers[sessionID]
	if !ok {
		rb = &ringBuffer{
			items: make([]ActionRecord, MaxRecords),
		}
		b.buffers[sessionID] = rb
	}

	rb.items[rb.pos] = rec
	rb.pos = (rb.pos + 1) % MaxRecords
	if rb.count < MaxRecords {
		rb.count++
	}
}

// Get returns the recent actions of a session in chronological order
// (oldest first). Returns an empty slice if the session has no buffer.
func (b *Buffer) Get(sessionID uint32) []ActionRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rb, ok := b.buffers[sessionID]
	if !ok {
		return []ActionRecord{}
	}

	result := make([]ActionRecord, rb.count)
	// The oldest record is at position (pos - count) mod MaxRecords.
	start := (rb.pos - rb.count + MaxRecords) % MaxRecords
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%MaxRecords]
	}
	return result
}

// Remove deletes the buffer for a session (called on disconnect).
func (b *Buffer) Remove(sessionID uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.buffers, sessionID)
}

// Sessions returns the number of sessions with recorded actions.
func (b *Buffer) Sessions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buffers)
}
