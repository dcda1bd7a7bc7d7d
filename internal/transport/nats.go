package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig параметры подключения к NATS
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	Connection    string
	ConnectWait   time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

// NATSClient подписчик и публикатор поверх NATS.
// Топик отображается в subject вида <prefix>.<connection>.<topic>.
type NATSClient struct {
	conn   *nats.Conn
	cfg    NATSConfig
	logger *zap.Logger
}

// DialNATS подключается к серверу NATS. Переподключение выполняет сам клиент nats.
func DialNATS(cfg NATSConfig, logger *zap.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ConnectWait <= 0 {
		cfg.ConnectWait = 2 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = time.Second
	}

	logger.Info("Connecting to NATS",
		zap.String("url", cfg.URL),
		zap.String("connection", cfg.Connection))

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectWait),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	return &NATSClient{conn: conn, cfg: cfg, logger: logger}, nil
}

// Subject возвращает subject NATS для топика
func (c *NATSClient) Subject(topic string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.cfg.SubjectPrefix, c.cfg.Connection, topic} {
		if p = strings.Trim(p, "."); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Subscribe подписывается на топик. Обработчик вызывается в горутине доставки nats.
func (c *NATSClient) Subscribe(topic string, handler Handler) (Subscription, error) {
	subject := c.Subject(topic)
	sub, err := c.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(Message{Topic: topic, Data: m.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.logger.Info("Subscribed", zap.String("topic", topic), zap.String("subject", subject))
	return sub, nil
}

// Publish публикует сообщение в топик
func (c *NATSClient) Publish(topic string, data []byte) error {
	return c.conn.Publish(c.Subject(topic), data)
}

// Close дренирует подписки и закрывает соединение
func (c *NATSClient) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
