package app

import (
	"go.uber.org/zap"

	"robot-gateway/internal/config"
)

// Информация о сборке, задается через -ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// LoadConfig загружает конфигурацию из файла и применяет переменные окружения.
// Отсутствующий или некорректный файл и некорректный PORT не фатальны:
// используются значения по умолчанию, а в лог пишется предупреждение.
func LoadConfig(path string, getenv func(string) string, logger *zap.Logger) *config.Config {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Warn("Failed to load config, using defaults",
			zap.String("path", path),
			zap.Error(err))
		cfg = config.GetDefaultConfig()
	}

	if err := cfg.ApplyEnv(getenv); err != nil {
		logger.Warn("Ignoring invalid environment value, using default port",
			zap.Int("port", cfg.Port),
			zap.Error(err))
	}

	return cfg
}
