package gateway

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrRegistryClosed реестр уже закрыт
var ErrRegistryClosed = errors.New("gateway: client registry closed")

// Handle непрозрачный идентификатор зарегистрированного клиента
type Handle uint64

// Sender выходное соединение клиента. Send должен быть ограничен по времени:
// он вызывается под блокировкой реестра.
type Sender interface {
	Send(data []byte) error
}

// ClientRegistry управляет живыми выходными клиентами
type ClientRegistry struct {
	mu      sync.Mutex
	next    Handle
	clients map[Handle]Sender
	closed  bool
	logger  *zap.Logger

	broadcasts atomic.Uint64
	sent       atomic.Uint64
	failed     atomic.Uint64
}

// RegistryStats счетчики реестра
type RegistryStats struct {
	Clients    int    `json:"clients"`
	Broadcasts uint64 `json:"broadcasts"`
	Sent       uint64 `json:"sent"`
	Failed     uint64 `json:"failed"`
}

// NewClientRegistry создает пустой реестр
func NewClientRegistry(logger *zap.Logger) *ClientRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientRegistry{
		clients: make(map[Handle]Sender),
		logger:  logger,
	}
}

// Register регистрирует клиента и выдает ему новый handle
func (r *ClientRegistry) Register(s Sender) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrRegistryClosed
	}

	r.next++
	r.clients[r.next] = s

	r.logger.Info("Client registered",
		zap.Uint64("handle", uint64(r.next)),
		zap.Int("clients", len(r.clients)))
	return r.next, nil
}

// Unregister удаляет клиента. Неизвестный handle игнорируется.
func (r *ClientRegistry) Unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[h]; !exists {
		return
	}
	delete(r.clients, h)

	r.logger.Info("Client removed",
		zap.Uint64("handle", uint64(h)),
		zap.Int("clients", len(r.clients)))
}

// Broadcast отправляет данные всем клиентам под блокировкой реестра,
// поэтому регистрация и удаление либо полностью до, либо полностью после рассылки.
// Ошибка одного клиента не прерывает рассылку и не удаляет его.
// Возвращает число успешных отправок.
func (r *ClientRegistry) Broadcast(data []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) == 0 {
		return 0
	}
	r.broadcasts.Add(1)

	delivered := 0
	for h, client := range r.clients {
		if err := client.Send(data); err != nil {
			r.failed.Add(1)
			r.logger.Debug("Send to client failed",
				zap.Uint64("handle", uint64(h)),
				zap.Error(err))
			continue
		}
		delivered++
	}

	r.sent.Add(uint64(delivered))
	return delivered
}

// Len количество зарегистрированных клиентов
func (r *ClientRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Stats возвращает счетчики реестра
func (r *ClientRegistry) Stats() RegistryStats {
	return RegistryStats{
		Clients:    r.Len(),
		Broadcasts: r.broadcasts.Load(),
		Sent:       r.sent.Load(),
		Failed:     r.failed.Load(),
	}
}

// Close удаляет всех клиентов и закрывает тех, кто реализует io.Closer.
// Закрытие выполняется вне блокировки.
func (r *ClientRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	clients := r.clients
	r.clients = make(map[Handle]Sender)
	r.mu.Unlock()

	for h, client := range clients {
		if c, ok := client.(io.Closer); ok {
			if err := c.Close(); err != nil {
				r.logger.Debug("Client close failed", zap.Uint64("handle", uint64(h)), zap.Error(err))
			}
		}
		r.logger.Info("Client disconnected on shutdown", zap.Uint64("handle", uint64(h)))
	}
}
