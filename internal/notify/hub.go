// Package notify broadcasts status lines (auto-trading runs, mode changes) to
// connected terminal clients.
package notify

import (
	"sync"
	"time"
)

// Message is one status line.
type Message struct {
	Time   time.Time `json:"time"`
	Source string    `json:"source"` // "auto", "system"
	Text   string    `json:"text"`
}

// Hub fans messages out to subscribers and remembers the last few so that new
// subscribers can catch up.
type Hub struct {
	mu     sync.Mutex
	recent []Message
	keep   int

	nextSubID int
	subs      map[int]chan Message
}

// NewHub returns a Hub that retains the last keep messages.
func NewHub(keep int) *Hub {
	if keep <= 0 {
		keep = 10
	}
	return &Hub{keep: keep, subs: make(map[int]chan Message)}
}

// Publish stores msg and sends it to every subscriber. Slow subscribers have
// the message dropped rather than blocking the publisher.
func (h *Hub) Publish(source, text string) {
	msg := Message{Time: time.Now(), Source: source, Text: text}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = append(h.recent, msg)
	if len(h.recent) > h.keep {
		h.recent = h.recent[len(h.recent)-h.keep:]
	}
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Recent returns the retained messages, oldest first.
func (h *Hub) Recent() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.recent))
	copy(out, h.recent)
	return out
}

// Subscribe returns a channel that receives published messages. bufSize
// controls the channel buffer.
func (h *Hub) Subscribe(bufSize int) (int, <-chan Message) {
	ch := make(chan Message, bufSize)
	h.mu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}
