package gateway

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"robot-gateway/internal/telemetry"
	"robot-gateway/internal/transport"
	"robot-gateway/internal/types"
	"robot-gateway/internal/video"
)

// ErrClosed шлюз уже закрыт
var ErrClosed = errors.New("gateway: already closed")

const (
	DefaultTelemetryTopic = "string_message"
	DefaultVideoTopic     = "video"
)

// Config параметры шлюза
type Config struct {
	TelemetryTopic string
	VideoTopic     string
	CodecMap       map[string]string
	UnknownCodec   video.UnknownCodecPolicy
	Decoders       *video.DecoderRegistry
	Encoder        FrameEncoder
	Quality        int
	Default        *types.TelemetrySnapshot
}

// Gateway связывает подписки pub-sub сети с кэшем телеметрии,
// видеопайплайном и реестром клиентов
type Gateway struct {
	cache    *telemetry.Cache
	pipeline *video.Pipeline
	clients  *ClientRegistry
	encoder  FrameEncoder
	quality  int
	logger   *zap.Logger

	subs      []transport.Subscription
	closeOnce sync.Once

	// предупреждение об отсутствующем декодере пишется один раз
	noDecoderWarned atomic.Bool

	stats *GatewayStats
}

// GatewayStats счетчики шлюза
type GatewayStats struct {
	StartTime         time.Time
	TelemetryMessages atomic.Uint64
	TelemetryErrors   atomic.Uint64
	VideoMessages     atomic.Uint64
	VideoErrors       atomic.Uint64
	FramesBroadcast   atomic.Uint64
	EncodeErrors      atomic.Uint64
}

// StatsSnapshot состояние шлюза для /stats
type StatsSnapshot struct {
	Uptime            string              `json:"uptime"`
	TelemetryMessages uint64              `json:"telemetry_messages"`
	TelemetryErrors   uint64              `json:"telemetry_errors"`
	VideoMessages     uint64              `json:"video_messages"`
	VideoErrors       uint64              `json:"video_errors"`
	FramesBroadcast   uint64              `json:"frames_broadcast"`
	EncodeErrors      uint64              `json:"encode_errors"`
	Pipeline          video.PipelineStats `json:"pipeline"`
	Clients           RegistryStats       `json:"clients"`
}

// New создает шлюз и подписывается на топики телеметрии и видео
func New(cfg Config, sub transport.Subscriber, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TelemetryTopic == "" {
		cfg.TelemetryTopic = DefaultTelemetryTopic
	}
	if cfg.VideoTopic == "" {
		cfg.VideoTopic = DefaultVideoTopic
	}
	if cfg.Encoder == nil {
		cfg.Encoder = video.NewJPEGEncoder()
	}
	if cfg.Quality == 0 {
		cfg.Quality = video.StreamQuality
	}

	var cacheOpts []telemetry.Option
	if cfg.Default != nil {
		cacheOpts = append(cacheOpts, telemetry.WithDefault(*cfg.Default))
	}

	g := &Gateway{
		cache:   telemetry.NewCache(cacheOpts...),
		clients: NewClientRegistry(logger.Named("clients")),
		encoder: cfg.Encoder,
		quality: cfg.Quality,
		logger:  logger,
		stats:   &GatewayStats{StartTime: time.Now()},
	}

	g.pipeline = video.NewPipeline(video.PipelineConfig{
		CodecMap: cfg.CodecMap,
		Policy:   cfg.UnknownCodec,
		Registry: cfg.Decoders,
		OnFrame:  g.handleFrame,
		Logger:   logger.Named("video"),
	})

	telemetrySub, err := sub.Subscribe(cfg.TelemetryTopic, g.handleTelemetry)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.TelemetryTopic, err)
	}
	g.subs = append(g.subs, telemetrySub)

	videoSub, err := sub.Subscribe(cfg.VideoTopic, g.handleVideo)
	if err != nil {
		_ = telemetrySub.Unsubscribe()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.VideoTopic, err)
	}
	g.subs = append(g.subs, videoSub)

	logger.Info("Gateway subscribed",
		zap.String("telemetry_topic", cfg.TelemetryTopic),
		zap.String("video_topic", cfg.VideoTopic))

	return g, nil
}

// handleTelemetry обрабатывает сообщение телеметрии
func (g *Gateway) handleTelemetry(msg transport.Message) {
	g.stats.TelemetryMessages.Add(1)

	snapshot, err := transport.DecodeTelemetry(msg.Data)
	if err != nil {
		g.stats.TelemetryErrors.Add(1)
		g.logger.Warn("Dropping malformed telemetry message", zap.Error(err))
		return
	}
	g.cache.Set(snapshot)
}

// handleVideo обрабатывает видеопакет. Декодирование, сжатие и рассылка
// выполняются в горутине доставки.
func (g *Gateway) handleVideo(msg transport.Message) {
	g.stats.VideoMessages.Add(1)

	pkt, err := transport.DecodeVideoPacket(msg.Data)
	if err != nil {
		g.stats.VideoErrors.Add(1)
		g.logger.Warn("Dropping malformed video message", zap.Error(err))
		return
	}

	if err := g.pipeline.Decode(pkt); err != nil {
		g.stats.VideoErrors.Add(1)
		switch {
		case errors.Is(err, video.ErrUnknownCodec), errors.Is(err, video.ErrCodecChanged):
			g.logger.Warn("Video packet rejected", zap.String("encoding", pkt.Encoding), zap.Error(err))
		case errors.Is(err, video.ErrNoDecoder):
			if g.noDecoderWarned.CompareAndSwap(false, true) {
				g.logger.Warn("No decoder for video stream, packets are dropped",
					zap.String("encoding", pkt.Encoding), zap.Error(err))
			} else {
				g.logger.Debug("Video packet dropped", zap.Error(err))
			}
		case errors.Is(err, video.ErrClosed):
		default:
			g.logger.Debug("Video decode failed", zap.Error(err))
		}
	}
}

// handleFrame сжимает кадр и рассылает клиентам
func (g *Gateway) handleFrame(frame types.DecodedFrame) {
	data, err := g.encoder.Encode(frame, g.quality)
	if err != nil {
		g.stats.EncodeErrors.Add(1)
		g.logger.Warn("Frame encode failed", zap.Error(err))
		return
	}

	g.clients.Broadcast(data)
	g.stats.FramesBroadcast.Add(1)
}

// State возвращает текущий снимок телеметрии
func (g *Gateway) State(withNoise bool) types.TelemetrySnapshot {
	return g.cache.Get(withNoise)
}

// Register регистрирует выходного клиента
func (g *Gateway) Register(s Sender) (Handle, error) {
	return g.clients.Register(s)
}

// Unregister удаляет выходного клиента
func (g *Gateway) Unregister(h Handle) {
	g.clients.Unregister(h)
}

// Clients реестр клиентов шлюза
func (g *Gateway) Clients() *ClientRegistry {
	return g.clients
}

// Stats возвращает счетчики шлюза
func (g *Gateway) Stats() StatsSnapshot {
	return StatsSnapshot{
		Uptime:            time.Since(g.stats.StartTime).Round(time.Second).String(),
		TelemetryMessages: g.stats.TelemetryMessages.Load(),
		TelemetryErrors:   g.stats.TelemetryErrors.Load(),
		VideoMessages:     g.stats.VideoMessages.Load(),
		VideoErrors:       g.stats.VideoErrors.Load(),
		FramesBroadcast:   g.stats.FramesBroadcast.Load(),
		EncodeErrors:      g.stats.EncodeErrors.Load(),
		Pipeline:          g.pipeline.Stats(),
		Clients:           g.clients.Stats(),
	}
}

// Close отписывается от топиков, закрывает декодер и всех клиентов.
// Повторный вызов возвращает ErrClosed.
func (g *Gateway) Close() error {
	err := ErrClosed
	g.closeOnce.Do(func() {
		var errs []error
		for _, s := range g.subs {
			if uerr := s.Unsubscribe(); uerr != nil {
				errs = append(errs, uerr)
			}
		}
		if perr := g.pipeline.Close(); perr != nil {
			errs = append(errs, perr)
		}
		g.clients.Close()

		g.logger.Info("Gateway closed")
		err = errors.Join(errs...)
	})
	return err
}
