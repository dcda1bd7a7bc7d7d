package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort порт HTTP сервера, если PORT не задан или некорректен
	DefaultPort = 18080
	// PortEnv переменная окружения с портом HTTP сервера
	PortEnv = "PORT"
)

// Config представляет конфигурацию приложения
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// gRPC health
	GRPCPort string `yaml:"grpc_port"`

	// Logging
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Pub-sub сеть робота
	NATS struct {
		URL           string        `yaml:"url"`
		Name          string        `yaml:"name"`
		SubjectPrefix string        `yaml:"subject_prefix"`
		Connection    string        `yaml:"connection"`
		ConnectWait   time.Duration `yaml:"connect_wait"`
		ReconnectWait time.Duration `yaml:"reconnect_wait"`
		MaxReconnects int           `yaml:"max_reconnects"`
	} `yaml:"nats"`

	Topics struct {
		Telemetry string `yaml:"telemetry"`
		Video     string `yaml:"video"`
	} `yaml:"topics"`

	// Video settings
	Video struct {
		FFmpegPath   string            `yaml:"ffmpeg_path"`
		CodecMap     map[string]string `yaml:"codec_map"`
		UnknownCodec string            `yaml:"unknown_codec_policy"`
		Quality      int               `yaml:"quality"`
		SendBuffer   int               `yaml:"send_buffer"`
	} `yaml:"video"`

	// Отладка
	Debug struct {
		Frames      bool          `yaml:"frames"`
		FramePeriod time.Duration `yaml:"frame_period"`
		StateNoise  bool          `yaml:"state_noise"`
	} `yaml:"debug"`
}

// LoadConfig загружает конфигурацию из файла поверх значений по умолчанию
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// GetDefaultConfig возвращает конфигурацию по умолчанию
func GetDefaultConfig() *Config {
	cfg := &Config{
		Host:     "0.0.0.0",
		Port:     DefaultPort,
		GRPCPort: "19090",
	}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.NATS.URL = "nats://127.0.0.1:4222"
	cfg.NATS.Name = "http_server"
	cfg.NATS.Connection = "raibo"
	cfg.NATS.ConnectWait = 2 * time.Second
	cfg.NATS.ReconnectWait = time.Second
	cfg.NATS.MaxReconnects = -1

	cfg.Topics.Telemetry = "string_message"
	cfg.Topics.Video = "video"

	cfg.Video.FFmpegPath = "ffmpeg"
	cfg.Video.UnknownCodec = "reject"
	cfg.Video.Quality = 80
	cfg.Video.SendBuffer = 8

	cfg.Debug.FramePeriod = time.Second
	cfg.Debug.StateNoise = true

	return cfg
}

// ApplyEnv применяет переменные окружения. Некорректный PORT не является
// фатальной ошибкой: порт сбрасывается в DefaultPort, а ошибка возвращается для лога.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	raw := getenv(PortEnv)
	if raw == "" {
		return nil
	}

	port, err := ParsePort(raw)
	if err != nil {
		c.Port = DefaultPort
		return err
	}
	c.Port = port
	return nil
}

// ParsePort разбирает номер TCP порта
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", PortEnv, raw, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid %s %q: out of range", PortEnv, raw)
	}
	return port, nil
}

// Addr адрес HTTP сервера
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
