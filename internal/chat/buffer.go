package chat

import (
	"context"
	"sync"
)

// DefaultHistorySize is the number of recent messages retained per conversation.
const DefaultHistorySize = 10

// MessageBuffer stores the last N messages per conversation in memory.
// It is goroutine-safe and uses a ring buffer internally. It serves single
// instance deployments and tests; Store is the shared Redis-backed history.
type MessageBuffer struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[string]*ringBuffer // conversationID -> ring buffer
}

// ringBuffer is a fixed-size circular buffer of Entry.
type ringBuffer struct {
	items []Entry
	pos   int
	count int
}

// NewMessageBuffer creates an empty MessageBuffer keeping capacity messages
// per conversation. A non-positive capacity uses DefaultHistorySize.
func NewMessageBuffer(capacity int) *MessageBuffer {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &MessageBuffer{
		capacity: capacity,
		buffers:  make(map[string]*ringBuffer),
	}
}

// Add appends a message to the conversation's ring buffer. If the buffer is
// full, the oldest message is overwritten.
func (mb *MessageBuffer) Add(conversationID string, e Entry) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	rb, ok := mb.buffers[conversationID]
	if !ok {
		rb = &ringBuffer{items: make([]Entry, mb.capacity)}
		mb.buffers[conversationID] = rb
	}

	rb.items[rb.pos] = e
	rb.pos = (rb.pos + 1) % mb.capacity
	if rb.count < mb.capacity {
		rb.count++
	}
}

// Get returns the retained messages for a conversation, oldest first.
// Returns an empty slice if the conversation has no buffer.
func (mb *MessageBuffer) Get(conversationID string) []Entry {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	rb, ok := mb.buffers[conversationID]
	if !ok {
		return []Entry{}
	}

	result := make([]Entry, rb.count)
	// The oldest message is at position (pos - count) mod capacity.
	start := (rb.pos - rb.count + mb.capacity) % mb.capacity
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%mb.capacity]
	}
	return result
}

// Remove deletes the buffer for a conversation.
func (mb *MessageBuffer) Remove(conversationID string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	delete(mb.buffers, conversationID)
}

// Recent implements the gate's history source.
func (mb *MessageBuffer) Recent(_ context.Context, conversationID string) ([]Entry, error) {
	return mb.Get(conversationID), nil
}

// Append implements the gate's history source.
func (mb *MessageBuffer) Append(_ context.Context, conversationID string, e Entry) error {
	mb.Add(conversationID, e)
	return nil
}
