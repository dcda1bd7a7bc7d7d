package video

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"robot-gateway/internal/types"
)

// fakeDecoder выдает кадр 2x2 на каждый пакет, пакет "bad" считается битым
type fakeDecoder struct {
	emit   FrameFunc
	calls  atomic.Int32
	closed atomic.Bool
}

func (d *fakeDecoder) Decode(payload []byte) error {
	d.calls.Add(1)
	if string(payload) == "bad" {
		return errors.New("malformed payload")
	}
	d.emit(types.DecodedFrame{Width: 2, Height: 2, Pix: make([]byte, 12)})
	return nil
}

func (d *fakeDecoder) Close() error {
	d.closed.Store(true)
	return nil
}

type recordingRegistry struct {
	*DecoderRegistry
	mu       sync.Mutex
	targets  []string
	decoders []*fakeDecoder
}

func newRecordingRegistry(targets ...string) *recordingRegistry {
	rr := &recordingRegistry{DecoderRegistry: NewDecoderRegistry()}
	for _, t := range targets {
		rr.Register(t, func(target string, emit FrameFunc) (Decoder, error) {
			rr.mu.Lock()
			defer rr.mu.Unlock()
			d := &fakeDecoder{emit: emit}
			rr.targets = append(rr.targets, target)
			rr.decoders = append(rr.decoders, d)
			return d, nil
		})
	}
	return rr
}

func (rr *recordingRegistry) created() []string {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return append([]string(nil), rr.targets...)
}

func TestPipelineInitializesFromFirstPacket(t *testing.T) {
	rr := newRecordingRegistry("h264", "libaom-av1")
	var frames atomic.Int32
	p := NewPipeline(PipelineConfig{
		Registry: rr.DecoderRegistry,
		OnFrame:  func(types.DecodedFrame) { frames.Add(1) },
	})

	if p.State() != Uninitialized {
		t.Fatalf("expected uninitialized, got %v", p.State())
	}
	if err := p.Decode(types.VideoPacket{Encoding: "libx264", Data: []byte("a")}); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.State() != Ready {
		t.Fatalf("expected ready, got %v", p.State())
	}
	if got := rr.created(); len(got) != 1 || got[0] != "h264" {
		t.Fatalf("expected decoder for h264, got %v", got)
	}
	if frames.Load() != 1 {
		t.Fatalf("expected 1 frame, got %d", frames.Load())
	}

	stats := p.Stats()
	if stats.Target != "h264" || stats.Encoding != "libx264" || stats.State != "ready" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPipelineRejectsUnknownCodec(t *testing.T) {
	rr := newRecordingRegistry("h264")
	p := NewPipeline(PipelineConfig{Registry: rr.DecoderRegistry})

	err := p.Decode(types.VideoPacket{Encoding: "unknown_codec", Data: []byte("a")})
	if !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expected ErrUnknownCodec, got %v", err)
	}
	if p.State() != Uninitialized {
		t.Fatal("pipeline must stay uninitialized after unknown codec")
	}
	if len(rr.created()) != 0 {
		t.Fatal("no decoder should be created for unknown codec")
	}

	// следующий пакет с известным тегом инициализирует пайплайн
	if err := p.Decode(types.VideoPacket{Encoding: "libx264", Data: []byte("a")}); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.State() != Ready {
		t.Fatal("expected ready after known codec")
	}
	if p.Stats().Rejected != 1 {
		t.Fatalf("expected 1 rejected packet, got %d", p.Stats().Rejected)
	}
}

func TestPipelinePassthroughUnknownCodec(t *testing.T) {
	rr := newRecordingRegistry("unknown_codec")
	p := NewPipeline(PipelineConfig{Registry: rr.DecoderRegistry, Policy: PassthroughUnknown})

	if err := p.Decode(types.VideoPacket{Encoding: "unknown_codec", Data: []byte("a")}); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := rr.created(); len(got) != 1 || got[0] != "unknown_codec" {
		t.Fatalf("expected passthrough target, got %v", got)
	}
}

func TestPipelinePassthroughWithoutDecoder(t *testing.T) {
	p := NewPipeline(PipelineConfig{Registry: NewDecoderRegistry(), Policy: PassthroughUnknown})

	err := p.Decode(types.VideoPacket{Encoding: "unknown_codec"})
	if !errors.Is(err, ErrNoDecoder) {
		t.Fatalf("expected ErrNoDecoder, got %v", err)
	}
	if p.State() != Uninitialized {
		t.Fatal("pipeline must stay uninitialized")
	}
}

func TestPipelineRejectsCodecChange(t *testing.T) {
	rr := newRecordingRegistry("h264", "libaom-av1")
	p := NewPipeline(PipelineConfig{Registry: rr.DecoderRegistry})

	if err := p.Decode(types.VideoPacket{Encoding: "libx264"}); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	err := p.Decode(types.VideoPacket{Encoding: "libaom-av1"})
	if !errors.Is(err, ErrCodecChanged) {
		t.Fatalf("expected ErrCodecChanged, got %v", err)
	}
	if got := rr.created(); len(got) != 1 {
		t.Fatalf("decoder must not be recreated, got %v", got)
	}
	if p.Stats().Target != "h264" {
		t.Fatal("pipeline must keep its original decoder")
	}
}

func TestPipelineDecodeErrorIsNotFatal(t *testing.T) {
	rr := newRecordingRegistry("h264")
	var frames atomic.Int32
	p := NewPipeline(PipelineConfig{
		Registry: rr.DecoderRegistry,
		OnFrame:  func(types.DecodedFrame) { frames.Add(1) },
	})

	if err := p.Decode(types.VideoPacket{Encoding: "libx264", Data: []byte("bad")}); err == nil {
		t.Fatal("expected decode error")
	}
	if p.State() != Ready {
		t.Fatal("pipeline must stay ready after decode error")
	}
	if err := p.Decode(types.VideoPacket{Encoding: "libx264", Data: []byte("ok")}); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	stats := p.Stats()
	if stats.DecodeErrors != 1 || stats.Frames != 1 || frames.Load() != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPipelineConcurrentFirstPacketsInitializeOnce(t *testing.T) {
	rr := newRecordingRegistry("h264")
	p := NewPipeline(PipelineConfig{Registry: rr.DecoderRegistry})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Decode(types.VideoPacket{Encoding: "libx264", Data: []byte("x")})
		}()
	}
	wg.Wait()

	if got := rr.created(); len(got) != 1 {
		t.Fatalf("expected exactly one initialization, got %d", len(got))
	}
	if calls := rr.decoders[0].calls.Load(); calls != 32 {
		t.Fatalf("expected 32 decode calls, got %d", calls)
	}
}

func TestPipelineCloseIsIdempotent(t *testing.T) {
	rr := newRecordingRegistry("h264")
	p := NewPipeline(PipelineConfig{Registry: rr.DecoderRegistry})
	_ = p.Decode(types.VideoPacket{Encoding: "libx264"})

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if !rr.decoders[0].closed.Load() {
		t.Fatal("decoder was not closed")
	}
	if err := p.Decode(types.VideoPacket{Encoding: "libx264"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPipelineDropsInvalidFrames(t *testing.T) {
	var frames atomic.Int32
	reg := NewDecoderRegistry()
	reg.Register("h264", func(_ string, emit FrameFunc) (Decoder, error) {
		return decoderFunc(func([]byte) error {
			emit(types.DecodedFrame{Width: 4, Height: 4, Pix: make([]byte, 3)})
			return nil
		}), nil
	})
	p := NewPipeline(PipelineConfig{Registry: reg, OnFrame: func(types.DecodedFrame) { frames.Add(1) }})

	if err := p.Decode(types.VideoPacket{Encoding: "libx264"}); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if frames.Load() != 0 {
		t.Fatal("invalid frame must not reach consumer")
	}
}

func TestParseUnknownCodecPolicy(t *testing.T) {
	cases := map[string]UnknownCodecPolicy{"": RejectUnknown, "reject": RejectUnknown, "passthrough": PassthroughUnknown}
	for in, want := range cases {
		got, err := ParseUnknownCodecPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseUnknownCodecPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseUnknownCodecPolicy("maybe"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

type decoderFunc func([]byte) error

func (f decoderFunc) Decode(b []byte) error { return f(b) }
func (f decoderFunc) Close() error          { return nil }
