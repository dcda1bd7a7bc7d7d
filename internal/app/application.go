package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"robot-gateway/internal/config"
	"robot-gateway/internal/gateway"
	"robot-gateway/internal/handler"
	"robot-gateway/internal/transport"
	"robot-gateway/internal/video"
)

const shutdownTimeout = 10 * time.Second

// Application - основное приложение
type Application struct {
	config  *config.Config
	logger  *zap.Logger
	gateway *gateway.Gateway
	debug   *gateway.DebugFrameGenerator
	router  http.Handler
	server  *http.Server
	health  *HealthServer

	// closer закрывает подключение к pub-sub сети, если его открыло приложение
	closer func() error
}

// NewApplicationWithConfig создает приложение, подключенное к NATS из конфигурации
func NewApplicationWithConfig(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	client, err := transport.DialNATS(transport.NATSConfig{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Connection:    cfg.NATS.Connection,
		ConnectWait:   cfg.NATS.ConnectWait,
		ReconnectWait: cfg.NATS.ReconnectWait,
		MaxReconnects: cfg.NATS.MaxReconnects,
	}, logger.Named("nats"))
	if err != nil {
		return nil, err
	}

	application, err := NewApplication(cfg, client, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	application.closer = client.Close
	return application, nil
}

// NewApplication создает приложение поверх готового подписчика
func NewApplication(cfg *config.Config, sub transport.Subscriber, logger *zap.Logger) (*Application, error) {
	policy, err := video.ParseUnknownCodecPolicy(cfg.Video.UnknownCodec)
	if err != nil {
		return nil, err
	}

	codecMap := video.DefaultCodecMap()
	for tag, target := range cfg.Video.CodecMap {
		codecMap[tag] = target
	}

	gw, err := gateway.New(gateway.Config{
		TelemetryTopic: cfg.Topics.Telemetry,
		VideoTopic:     cfg.Topics.Video,
		CodecMap:       codecMap,
		UnknownCodec:   policy,
		Decoders:       video.NewDefaultDecoderRegistry(cfg.Video.FFmpegPath, logger.Named("ffmpeg")),
		Quality:        cfg.Video.Quality,
	}, sub, logger.Named("gateway"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	stateHandler := handler.NewStateHandler(logger.Named("http"), gw, cfg.Debug.StateNoise, Version)
	videoHandler := handler.NewVideoHandler(logger.Named("ws"), gw, handler.VideoOptions{
		SendBuffer: cfg.Video.SendBuffer,
	})
	router := NewRouter(stateHandler, videoHandler, logger)

	application := &Application{
		config:  cfg,
		logger:  logger,
		gateway: gw,
		router:  router,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if cfg.Debug.Frames {
		application.debug = gateway.NewDebugFrameGenerator(gw.Clients(), nil,
			cfg.Debug.FramePeriod, logger.Named("debug"))
	}
	if cfg.GRPCPort != "" {
		application.health = NewHealthServer(logger.Named("grpc"))
	}

	return application, nil
}

// Run запускает HTTP и gRPC серверы и блокируется до отмены ctx
// или ошибки одного из серверов
func (app *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if app.health != nil {
		go func() {
			if err := app.health.Run(app.config.GRPCPort); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		app.health.SetServing(true)
	}

	if app.debug != nil {
		app.logger.Info("Debug frame generator enabled",
			zap.Duration("period", app.config.Debug.FramePeriod))
		app.debug.Start(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		app.logger.Error("Server failed", zap.Error(runErr))
	}

	if err := app.Stop(); err != nil {
		app.logger.Error("Shutdown finished with errors", zap.Error(err))
	}
	return runErr
}

// Stop останавливает серверы, генератор, шлюз и подключение к pub-sub сети
func (app *Application) Stop() error {
	app.logger.Info("Stopping application")

	var errs []error
	if app.debug != nil {
		app.debug.Stop()
	}
	if app.health != nil {
		app.health.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if err := app.gateway.Close(); err != nil && !errors.Is(err, gateway.ErrClosed) {
		errs = append(errs, err)
	}
	if app.closer != nil {
		if err := app.closer(); err != nil {
			errs = append(errs, err)
		}
		app.closer = nil
	}

	return errors.Join(errs...)
}

// GetRouter возвращает роутер
func (app *Application) GetRouter() http.Handler {
	return app.router
}

// GetGateway возвращает шлюз
func (app *Application) GetGateway() *gateway.Gateway {
	return app.gateway
}
