package gateway

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"robot-gateway/internal/types"
	"robot-gateway/internal/video"
)

const (
	DebugFrameWidth  = 640
	DebugFrameHeight = 480
	// DefaultDebugPeriod период генерации отладочных кадров
	DefaultDebugPeriod = time.Second

	debugTextScale = 3
)

// FrameEncoder сжимает кадр для отправки клиентам
type FrameEncoder interface {
	Encode(frame types.DecodedFrame, quality int) ([]byte, error)
}

// Broadcaster получатель сжатых кадров
type Broadcaster interface {
	Broadcast(data []byte) int
}

// DebugFrameGenerator раз в период рисует черный кадр со счетчиком
// и рассылает его клиентам. С видеопайплайном ничего не разделяет.
type DebugFrameGenerator struct {
	target  Broadcaster
	encoder FrameEncoder
	period  time.Duration
	quality int
	logger  *zap.Logger

	mu      sync.Mutex
	counter int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDebugFrameGenerator создает генератор. period <= 0 означает DefaultDebugPeriod.
func NewDebugFrameGenerator(target Broadcaster, encoder FrameEncoder, period time.Duration, logger *zap.Logger) *DebugFrameGenerator {
	if period <= 0 {
		period = DefaultDebugPeriod
	}
	if encoder == nil {
		encoder = video.NewJPEGEncoder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DebugFrameGenerator{
		target:  target,
		encoder: encoder,
		period:  period,
		quality: video.DebugQuality,
		logger:  logger,
	}
}

// Start запускает фоновую горутину. Повторный Start без Stop ничего не делает.
func (g *DebugFrameGenerator) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	go g.run(ctx, g.done)

	g.logger.Info("Debug frame generator started", zap.Duration("period", g.period))
}

// Stop останавливает генератор и ждет завершения горутины. Идемпотентен.
func (g *DebugFrameGenerator) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	g.logger.Info("Debug frame generator stopped")
}

func (g *DebugFrameGenerator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Tick()
		case <-ctx.Done():
			return
		}
	}
}

// Tick генерирует, сжимает и рассылает один кадр
func (g *DebugFrameGenerator) Tick() {
	g.mu.Lock()
	n := g.counter
	g.counter++
	g.mu.Unlock()

	data, err := g.encoder.Encode(RenderDebugFrame(n), g.quality)
	if err != nil {
		g.logger.Warn("Debug frame encode failed", zap.Error(err))
		return
	}

	delivered := g.target.Broadcast(data)
	g.logger.Debug("Debug frame broadcast",
		zap.Int("frame", n),
		zap.Int("bytes", len(data)),
		zap.Int("clients", delivered))
}

// RenderDebugFrame рисует белый текст "Frame: n" на черном кадре 640x480
func RenderDebugFrame(n int) types.DecodedFrame {
	text := fmt.Sprintf("Frame: %d", n)
	face := basicfont.Face7x13

	textW := font.MeasureString(face, text).Ceil()
	textH := face.Metrics().Height.Ceil()
	small := image.NewRGBA(image.Rect(0, 0, textW, textH))

	d := &font.Drawer{
		Dst:  small,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	frame := image.NewRGBA(image.Rect(0, 0, DebugFrameWidth, DebugFrameHeight))
	draw.Draw(frame, frame.Bounds(), image.Black, image.Point{}, draw.Src)

	// базовая линия текста в точке (50, 240)
	origin := image.Pt(50, 240-face.Metrics().Ascent.Ceil()*debugTextScale)
	dst := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(textW*debugTextScale, textH*debugTextScale))}
	draw.NearestNeighbor.Scale(frame, dst, small, small.Bounds(), draw.Over, nil)

	return video.FrameFromImage(frame)
}
