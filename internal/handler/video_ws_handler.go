package handler

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"robot-gateway/internal/gateway"
)

var (
	// ErrClientClosed соединение клиента закрыто
	ErrClientClosed = errors.New("websocket client closed")
	// ErrSendBufferFull кадр отброшен, клиент не успевает читать
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

const (
	DefaultSendBuffer = 8
	defaultWriteWait  = 10 * time.Second
	defaultPingPeriod = 30 * time.Second
)

// ClientRegistrar регистрирует выходных клиентов
type ClientRegistrar interface {
	Register(s gateway.Sender) (gateway.Handle, error)
	Unregister(h gateway.Handle)
}

// VideoOptions параметры websocket клиентов
type VideoOptions struct {
	SendBuffer int
	WriteWait  time.Duration
	PingPeriod time.Duration
}

// VideoHandler отдает JPEG кадры через websocket /video
type VideoHandler struct {
	logger   *zap.Logger
	clients  ClientRegistrar
	upgrader websocket.Upgrader
	opts     VideoOptions
}

// NewVideoHandler создает хендлер
func NewVideoHandler(logger *zap.Logger, clients ClientRegistrar, opts VideoOptions) *VideoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = defaultPingPeriod
	}

	return &VideoHandler{
		logger:  logger,
		clients: clients,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		opts: opts,
	}
}

// RegisterRoutes регистрирует маршруты
func (h *VideoHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/video", h.Stream)
}

// Stream апгрейдит соединение и регистрирует клиента до его закрытия
func (h *VideoHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := newWSClient(conn, h.opts)
	handle, err := h.clients.Register(client)
	if err != nil {
		h.logger.Warn("Failed to register client", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(time.Second))
		_ = client.Close()
		return
	}

	h.logger.Info("WebSocket client connected",
		zap.Uint64("handle", uint64(handle)),
		zap.String("remote", conn.RemoteAddr().String()))

	go h.serve(client, handle)
}

func (h *VideoHandler) serve(client *wsClient, handle gateway.Handle) {
	defer func() {
		h.clients.Unregister(handle)
		_ = client.Close()
		h.logger.Info("WebSocket client disconnected",
			zap.Uint64("handle", uint64(handle)),
			zap.Uint64("dropped", client.dropped.Load()))
	}()

	go client.writeLoop(h.logger)
	client.readLoop(h.logger)
}

// wsClient реализует gateway.Sender через ограниченную очередь,
// запись в сеть выполняет отдельная горутина
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	opts VideoOptions

	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newWSClient(conn *websocket.Conn, opts VideoOptions) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
		opts: opts,
	}
}

// Send ставит кадр в очередь и никогда не блокируется
func (c *wsClient) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.dropped.Add(1)
		return ErrSendBufferFull
	}
}

// Close закрывает соединение, повторный вызов ничего не делает
func (c *wsClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// readLoop читает и отбрасывает входящие сообщения, пока соединение живо
func (c *wsClient) readLoop(logger *zap.Logger) {
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *wsClient) writeLoop(logger *zap.Logger) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				logger.Debug("WebSocket write error", zap.Error(err))
				_ = c.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				_ = c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}
