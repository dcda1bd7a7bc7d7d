package transport

import (
	"errors"
)

// ErrClosed транспорт закрыт
var ErrClosed = errors.New("transport: closed")

// Message сообщение, доставленное подпиской
type Message struct {
	Topic string
	Data  []byte
}

// Handler обработчик сообщений. Может вызываться из любой горутины
// и параллельно с другими обработчиками.
type Handler func(Message)

// Subscription активная подписка
type Subscription interface {
	Unsubscribe() error
}

// Subscriber источник подписок pub-sub сети
type Subscriber interface {
	Subscribe(topic string, handler Handler) (Subscription, error)
}

// Publisher публикация сообщений в pub-sub сеть
type Publisher interface {
	Publish(topic string, data []byte) error
}
