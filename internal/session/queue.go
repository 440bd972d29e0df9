package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type QueuedMessage struct {
	ID        string
	Content   string
	Timestamp time.Time
}

// Queue buffers user input submitted while the agent is busy. On the next
// idle transition the whole batch flushes as one newline-joined message.
// Never persisted.
type Queue struct {
	mu       sync.Mutex
	items    []QueuedMessage
	flushing bool
	now      func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

func (q *Queue) Push(content string) QueuedMessage {
	if q == nil {
		return QueuedMessage{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	m := QueuedMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: q.now(),
	}
	q.items = append(q.items, m)
	return m
}

// BeginFlush snapshots and clears the queue, returning the combined message.
// The in-flight guard rejects a second flush until EndFlush, so a redundant
// idle transition cannot double-send. Pushes after BeginFlush start a fresh
// batch independent of the in-flight one.
func (q *Queue) BeginFlush() (string, bool) {
	if q == nil {
		return "", false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.flushing || len(q.items) == 0 {
		return "", false
	}
	q.flushing = true
	parts := make([]string, len(q.items))
	for i, m := range q.items {
		parts[i] = m.Content
	}
	q.items = nil
	return strings.Join(parts, "\n"), true
}

func (q *Queue) EndFlush() {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.flushing = false
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Items() []QueuedMessage {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedMessage, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) Clear() {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.items = nil
	q.flushing = false
	q.mu.Unlock()
}
