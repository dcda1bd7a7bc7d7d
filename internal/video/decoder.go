package video

import (
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"go.uber.org/zap"

	"robot-gateway/internal/types"
)

// FrameFunc получает декодированный кадр
type FrameFunc func(types.DecodedFrame)

// Decoder декодер одного видеопотока. Вызовы Decode сериализуются пайплайном.
type Decoder interface {
	Decode(payload []byte) error
	Close() error
}

// Factory создает декодер для целевого идентификатора и канала выдачи кадров
type Factory func(target string, emit FrameFunc) (Decoder, error)

// DefaultCodecMap соответствие тегов кодеков идентификаторам декодеров
func DefaultCodecMap() map[string]string {
	return map[string]string{
		"libx264":    "h264",
		"libaom-av1": "libaom-av1",
		"mjpeg":      MJPEGTarget,
	}
}

// DecoderRegistry реестр фабрик декодеров
type DecoderRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewDecoderRegistry создает пустой реестр
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{
		factories: make(map[string]Factory),
	}
}

// Register регистрирует фабрику, повторная регистрация заменяет предыдущую
func (r *DecoderRegistry) Register(target string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[target] = factory
}

// Lookup ищет фабрику по целевому идентификатору
func (r *DecoderRegistry) Lookup(target string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[target]
	return f, ok
}

// Targets возвращает отсортированный список зарегистрированных целей
func (r *DecoderRegistry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]string, 0, len(r.factories))
	for t := range r.factories {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}

// New создает декодер для цели
func (r *DecoderRegistry) New(target string, emit FrameFunc) (Decoder, error) {
	factory, ok := r.Lookup(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDecoder, target)
	}
	return factory(target, emit)
}

// NewDefaultDecoderRegistry регистрирует встроенный mjpeg и, если ffmpegBinary
// находится через exec.LookPath, внешние декодеры для h264, hevc и av1
func NewDefaultDecoderRegistry(ffmpegBinary string, logger *zap.Logger) *DecoderRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := NewDecoderRegistry()
	r.Register(MJPEGTarget, NewMJPEGDecoder)

	if ffmpegBinary == "" {
		logger.Warn("ffmpeg disabled, only mjpeg video can be decoded")
		return r
	}

	path, err := exec.LookPath(ffmpegBinary)
	if err != nil {
		logger.Warn("ffmpeg not found, only mjpeg video can be decoded",
			zap.String("ffmpeg", ffmpegBinary),
			zap.Error(err))
		return r
	}

	factory := NewFFmpegFactory(path, logger)
	for _, target := range FFmpegTargets() {
		r.Register(target, factory)
	}
	logger.Info("ffmpeg decoders registered",
		zap.String("ffmpeg", path),
		zap.Strings("targets", FFmpegTargets()))
	return r
}
