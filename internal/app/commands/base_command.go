package commands

import (
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"robot-gateway/internal/app"
	"robot-gateway/internal/config"
)

// CommandContext содержит общий контекст для всех команд
type CommandContext struct {
	Logger *zap.Logger
	Config *config.Config
}

// NewCommandContext создает логгер и загружает конфигурацию.
// Флаги командной строки имеют приоритет над файлом и окружением.
func NewCommandContext(c *cli.Context) (*CommandContext, error) {
	bootstrap, err := createLogger(c.String("log-level"), "", c.Bool("debug"))
	if err != nil {
		return nil, err
	}

	cfg := app.LoadConfig(c.String("config"), os.Getenv, bootstrap)
	applyFlags(c, cfg)

	switch {
	case c.IsSet("log-level"):
		cfg.Logging.Level = c.String("log-level")
	case c.Bool("debug"):
		cfg.Logging.Level = ""
	}
	logger, err := createLogger(cfg.Logging.Level, cfg.Logging.Format, c.Bool("debug"))
	if err != nil {
		return nil, err
	}
	_ = bootstrap.Sync()

	return &CommandContext{
		Logger: logger,
		Config: cfg,
	}, nil
}

// createLogger создает логгер. format "console" включает текстовый вывод.
func createLogger(level, format string, debug bool) (*zap.Logger, error) {
	var logLevel zapcore.Level
	switch level {
	case "debug":
		logLevel = zap.DebugLevel
	case "warn":
		logLevel = zap.WarnLevel
	case "error":
		logLevel = zap.ErrorLevel
	default:
		logLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		if level == "" {
			logLevel = zap.DebugLevel
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)
	if format == "console" || format == "json" {
		cfg.Encoding = format
	}

	return cfg.Build()
}

// applyFlags переносит явно заданные флаги в конфигурацию
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("grpc-port") {
		cfg.GRPCPort = c.String("grpc-port")
	}
	if c.IsSet("nats-url") {
		cfg.NATS.URL = c.String("nats-url")
	}
	if c.IsSet("ffmpeg") {
		cfg.Video.FFmpegPath = c.String("ffmpeg")
	}
	if c.IsSet("debug-frames") {
		cfg.Debug.Frames = c.Bool("debug-frames")
	}
	if c.IsSet("noise") {
		cfg.Debug.StateNoise = c.Bool("noise")
	}
}
