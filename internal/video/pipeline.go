package video

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"robot-gateway/internal/types"
)

// State состояние пайплайна
type State int

const (
	Uninitialized State = iota
	Ready
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// UnknownCodecPolicy что делать с первым пакетом, тег которого не найден в таблице
type UnknownCodecPolicy int

const (
	// RejectUnknown пакет отклоняется с ErrUnknownCodec, пайплайн остается неинициализированным
	RejectUnknown UnknownCodecPolicy = iota
	// PassthroughUnknown тег используется как идентификатор декодера
	PassthroughUnknown
)

// ParseUnknownCodecPolicy разбирает значение из конфигурации
func ParseUnknownCodecPolicy(s string) (UnknownCodecPolicy, error) {
	switch s {
	case "", "reject":
		return RejectUnknown, nil
	case "passthrough":
		return PassthroughUnknown, nil
	default:
		return RejectUnknown, fmt.Errorf("unknown codec policy %q", s)
	}
}

// PipelineConfig параметры пайплайна
type PipelineConfig struct {
	CodecMap map[string]string
	Policy   UnknownCodecPolicy
	Registry *DecoderRegistry
	OnFrame  FrameFunc
	Logger   *zap.Logger
}

// PipelineStats счетчики пайплайна
type PipelineStats struct {
	State        string `json:"state"`
	Encoding     string `json:"encoding"`
	Target       string `json:"target"`
	Packets      uint64 `json:"packets"`
	Frames       uint64 `json:"frames"`
	DecodeErrors uint64 `json:"decode_errors"`
	Rejected     uint64 `json:"rejected"`
}

// Pipeline лениво инициализирует декодер по тегу первого пакета
// и передает декодированные кадры в OnFrame.
//
// Мьютекс держится на все время Decode, включая вызов OnFrame
// для синхронных декодеров. Порядок блокировок: pipeline раньше client registry.
type Pipeline struct {
	mu       sync.Mutex
	state    State
	encoding string
	target   string
	decoder  Decoder
	closed   bool

	codecMap map[string]string
	policy   UnknownCodecPolicy
	registry *DecoderRegistry
	onFrame  FrameFunc
	logger   *zap.Logger

	packets      atomic.Uint64
	frames       atomic.Uint64
	decodeErrors atomic.Uint64
	rejected     atomic.Uint64
}

// NewPipeline создает пайплайн в состоянии Uninitialized
func NewPipeline(cfg PipelineConfig) *Pipeline {
	codecMap := cfg.CodecMap
	if codecMap == nil {
		codecMap = DefaultCodecMap()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewDecoderRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		codecMap: codecMap,
		policy:   cfg.Policy,
		registry: registry,
		onFrame:  cfg.OnFrame,
		logger:   logger,
	}
}

// State текущее состояние
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Decode передает пакет в декодер, инициализируя его при первом вызове.
// Ошибки не фатальны: пайплайн продолжает принимать пакеты.
func (p *Pipeline) Decode(pkt types.VideoPacket) error {
	p.packets.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if p.state == Uninitialized {
		if err := p.initialize(pkt.Encoding); err != nil {
			p.rejected.Add(1)
			return err
		}
	} else if pkt.Encoding != p.encoding {
		p.rejected.Add(1)
		return fmt.Errorf("%w: initialized with %q, got %q", ErrCodecChanged, p.encoding, pkt.Encoding)
	}

	if err := p.decoder.Decode(pkt.Data); err != nil {
		p.decodeErrors.Add(1)
		return fmt.Errorf("decode %s packet: %w", p.target, err)
	}
	return nil
}

// initialize вызывается под p.mu
func (p *Pipeline) initialize(encoding string) error {
	target, ok := p.codecMap[encoding]
	if !ok {
		if p.policy != PassthroughUnknown {
			return fmt.Errorf("%w: %q", ErrUnknownCodec, encoding)
		}
		target = encoding
	}

	decoder, err := p.registry.New(target, p.emit)
	if err != nil {
		return fmt.Errorf("initialize decoder for %q: %w", encoding, err)
	}

	p.decoder = decoder
	p.encoding = encoding
	p.target = target
	p.state = Ready

	p.logger.Info("Video decoder initialized",
		zap.String("encoding", encoding),
		zap.String("target", target))
	return nil
}

func (p *Pipeline) emit(frame types.DecodedFrame) {
	if !frame.Valid() {
		p.decodeErrors.Add(1)
		p.logger.Warn("Decoder produced invalid frame",
			zap.Int("width", frame.Width),
			zap.Int("height", frame.Height),
			zap.Int("bytes", len(frame.Pix)))
		return
	}

	p.frames.Add(1)
	if p.onFrame != nil {
		p.onFrame(frame)
	}
}

// Stats возвращает снимок счетчиков
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	state, encoding, target := p.state, p.encoding, p.target
	p.mu.Unlock()

	return PipelineStats{
		State:        state.String(),
		Encoding:     encoding,
		Target:       target,
		Packets:      p.packets.Load(),
		Frames:       p.frames.Load(),
		DecodeErrors: p.decodeErrors.Load(),
		Rejected:     p.rejected.Load(),
	}
}

// Close освобождает декодер. Повторный вызов ничего не делает.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.decoder == nil {
		return nil
	}
	return p.decoder.Close()
}
