package usecase

import (
	"context"
	"sync"

	"schadenschat/internal/domain/repository"
)

// OpenFunc starts the upstream subscription for one topic.
type OpenFunc[T any] func(ctx context.Context, topic string, emit func(T)) (repository.Unsubscribe, error)

// Hub shares one upstream subscription per topic between any number of
// subscribers. Late subscribers get the last snapshot immediately. The
// upstream is closed when the last subscriber leaves.
type Hub[T any] struct {
	open OpenFunc[T]

	mu     sync.Mutex
	topics map[string]*hubTopic[T]
	nextID int
}

type hubTopic[T any] struct {
	subscribers map[int]func(T)
	last        T
	hasLast     bool
	cancel      context.CancelFunc
	unsubscribe repository.Unsubscribe
}

func NewHub[T any](open OpenFunc[T]) *Hub[T] {
	return &Hub[T]{
		open:   open,
		topics: make(map[string]*hubTopic[T]),
	}
}

func (h *Hub[T]) Subscribe(topicName string, callback func(T)) (repository.Unsubscribe, error) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID

	t, ok := h.topics[topicName]
	if ok {
		t.subscribers[id] = callback
		last, hasLast := t.last, t.hasLast
		h.mu.Unlock()
		if hasLast {
			callback(last)
		}
		return h.unsubscriber(topicName, t, id), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t = &hubTopic[T]{
		subscribers: map[int]func(T){id: callback},
		cancel:      cancel,
	}
	h.topics[topicName] = t
	h.mu.Unlock()

	// Opening may deliver the first snapshot synchronously, so no lock is held.
	unsubscribe, err := h.open(ctx, topicName, func(v T) { h.emit(t, v) })
	if err != nil {
		h.mu.Lock()
		if h.topics[topicName] == t {
			delete(h.topics, topicName)
		}
		h.mu.Unlock()
		cancel()
		return nil, err
	}

	h.mu.Lock()
	closed := h.topics[topicName] != t
	if !closed {
		t.unsubscribe = unsubscribe
	}
	h.mu.Unlock()
	if closed {
		unsubscribe()
	}

	return h.unsubscriber(topicName, t, id), nil
}

// Topics reports how many upstream subscriptions are live.
func (h *Hub[T]) Topics() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

func (h *Hub[T]) emit(t *hubTopic[T], v T) {
	h.mu.Lock()
	t.last = v
	t.hasLast = true
	callbacks := make([]func(T), 0, len(t.subscribers))
	for _, cb := range t.subscribers {
		callbacks = append(callbacks, cb)
	}
	h.mu.Unlock()

	for _, cb := range callbacks {
		cb(v)
	}
}

func (h *Hub[T]) unsubscriber(topicName string, t *hubTopic[T], id int) repository.Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(t.subscribers, id)
			if len(t.subscribers) > 0 || h.topics[topicName] != t {
				h.mu.Unlock()
				return
			}
			delete(h.topics, topicName)
			unsubscribe := t.unsubscribe
			h.mu.Unlock()

			t.cancel()
			if unsubscribe != nil {
				unsubscribe()
			}
		})
	}
}
