package transport

import (
	"sync"
)

// Bus in-process pub-sub. Publish вызывает обработчики синхронно
// в горутине публикующего.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
	closed bool
}

// NewBus создает шину
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[uint64]Handler),
	}
}

type busSubscription struct {
	bus   *Bus
	topic string
	id    uint64
	once  sync.Once
}

// Subscribe регистрирует обработчик на топик
func (b *Bus) Subscribe(topic string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][b.nextID] = handler

	return &busSubscription{bus: b, topic: topic, id: b.nextID}, nil
}

func (s *busSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		delete(s.bus.subs[s.topic], s.id)
		if len(s.bus.subs[s.topic]) == 0 {
			delete(s.bus.subs, s.topic)
		}
	})
	return nil
}

// Publish доставляет сообщение всем подписчикам топика
func (b *Bus) Publish(topic string, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	msg := Message{Topic: topic, Data: data}
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

// Subscribers количество подписчиков топика
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close закрывает шину и удаляет все подписки
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[string]map[uint64]Handler)
}
