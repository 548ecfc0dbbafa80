package service

import (
	"sync"

	"github.com/stemsi/exstem-proctor/internal/proctor"
)

const defaultSubscriberBuffer = 64

// Hub fans one session's updates out to its connected streams. Publish never
// blocks: a subscriber whose buffer is full misses the update.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan proctor.Update]struct{}
	size   int
	onDrop func()
	closed bool
}

func NewHub(size int, onDrop func()) *Hub {
	if size <= 0 {
		size = defaultSubscriberBuffer
	}
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Hub{subs: make(map[chan proctor.Update]struct{}), size: size, onDrop: onDrop}
}

// Publish delivers u to every subscriber.
func (h *Hub) Publish(u proctor.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- u:
		default:
			h.onDrop()
		}
	}
}

// Subscribe registers a stream. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan proctor.Update, func()) {
	ch := make(chan proctor.Update, h.size)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Len returns the number of connected streams.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
