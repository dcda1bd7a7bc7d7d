package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"math"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"robot-gateway/internal/transport"
	"robot-gateway/internal/types"
	"robot-gateway/internal/video"
)

// solidDecoder выдает кадр 4x4 на каждый пакет
type solidDecoder struct {
	emit video.FrameFunc
}

func (d *solidDecoder) Decode([]byte) error {
	d.emit(types.DecodedFrame{Width: 4, Height: 4, Pix: make([]byte, 48)})
	return nil
}

func (d *solidDecoder) Close() error { return nil }

type targetLog struct {
	mu      sync.Mutex
	targets []string
}

func (l *targetLog) factory(target string, emit video.FrameFunc) (video.Decoder, error) {
	l.mu.Lock()
	l.targets = append(l.targets, target)
	l.mu.Unlock()
	return &solidDecoder{emit: emit}, nil
}

func (l *targetLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.targets...)
}

func newTestGateway(t *testing.T, decoders *video.DecoderRegistry) (*Gateway, *transport.Bus) {
	t.Helper()
	bus := transport.NewBus()
	g, err := New(Config{Decoders: decoders}, bus, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = g.Close()
		bus.Close()
	})
	return g, bus
}

func publishVideo(t *testing.T, bus *transport.Bus, pkt types.VideoPacket) {
	t.Helper()
	data, err := transport.EncodeVideoPacket(pkt)
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(DefaultVideoTopic, data); err != nil {
		t.Fatal(err)
	}
}

func TestGatewaySubscribes(t *testing.T) {
	_, bus := newTestGateway(t, nil)
	if bus.Subscribers(DefaultTelemetryTopic) != 1 || bus.Subscribers(DefaultVideoTopic) != 1 {
		t.Fatal("gateway must subscribe to telemetry and video topics")
	}
}

func TestGatewayTelemetryRoundTrip(t *testing.T) {
	g, bus := newTestGateway(t, nil)

	if got := g.State(false); !reflect.DeepEqual(got, types.DefaultSnapshot()) {
		t.Fatalf("expected default snapshot before first message, got %+v", got)
	}

	want := types.TelemetrySnapshot{BodyTemperature: 40.0, Voltage: 12.0}
	for i := 0; i < 12; i++ {
		want.ActuatorStates = append(want.ActuatorStates, types.ActuatorState{Effort: 0.1, Temperature: 40.0})
	}
	data, err := transport.EncodeTelemetry(want)
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(DefaultTelemetryTopic, data); err != nil {
		t.Fatal(err)
	}

	if got := g.State(false); !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if reflect.DeepEqual(g.State(true), want) {
		t.Fatal("noisy state must differ from canonical")
	}
}

func TestGatewayDropsMalformedTelemetry(t *testing.T) {
	g, bus := newTestGateway(t, nil)
	_ = bus.Publish(DefaultTelemetryTopic, []byte{0xff})

	if got := g.State(false); !reflect.DeepEqual(got, types.DefaultSnapshot()) {
		t.Fatal("malformed message must not change the snapshot")
	}
	if g.Stats().TelemetryErrors != 1 {
		t.Fatal("malformed message not counted")
	}
}

func TestGatewayDropsNonFiniteTelemetry(t *testing.T) {
	g, bus := newTestGateway(t, nil)

	s := types.DefaultSnapshot()
	s.Voltage = math.NaN()
	data, err := transport.EncodeTelemetry(s)
	if err != nil {
		t.Fatal(err)
	}
	_ = bus.Publish(DefaultTelemetryTopic, data)

	if g.Stats().TelemetryErrors != 1 {
		t.Fatal("non-finite message not counted")
	}
	for _, noise := range []bool{false, true} {
		got := g.State(noise)
		if !got.Finite() {
			t.Fatalf("noise=%v: non-finite value reached the cache: %+v", noise, got)
		}
		if _, err := json.Marshal(got.Published()); err != nil {
			t.Fatalf("noise=%v: snapshot not encodable: %v", noise, err)
		}
	}
}

func TestGatewayVideoToClients(t *testing.T) {
	g, bus := newTestGateway(t, video.NewDefaultDecoderRegistry("", nil))

	a, b := &recordingSender{}, &recordingSender{}
	ha, _ := g.Register(a)
	_, _ = g.Register(b)

	src := image.NewRGBA(image.Rect(0, 0, 16, 8))
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, src, nil); err != nil {
		t.Fatal(err)
	}

	publishVideo(t, bus, types.VideoPacket{Encoding: "mjpeg", Data: jpg.Bytes()})
	g.Unregister(ha)
	publishVideo(t, bus, types.VideoPacket{Encoding: "mjpeg", Data: jpg.Bytes()})

	if got := len(a.received()); got != 1 {
		t.Fatalf("unregistered client: expected 1 frame, got %d", got)
	}
	frames := b.received()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	img, err := jpeg.Decode(bytes.NewReader(frames[0]))
	if err != nil {
		t.Fatalf("client payload is not a JPEG: %v", err)
	}
	if bnd := img.Bounds(); bnd.Dx() != 16 || bnd.Dy() != 8 {
		t.Fatalf("unexpected size %v", bnd)
	}

	stats := g.Stats()
	if stats.FramesBroadcast != 2 || stats.Pipeline.State != "ready" || stats.Pipeline.Target != video.MJPEGTarget {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGatewayCodecMapping(t *testing.T) {
	log := &targetLog{}
	reg := video.NewDecoderRegistry()
	reg.Register("h264", log.factory)

	g, bus := newTestGateway(t, reg)
	s := &recordingSender{}
	_, _ = g.Register(s)

	publishVideo(t, bus, types.VideoPacket{Encoding: "libx264", Data: []byte{1}})
	publishVideo(t, bus, types.VideoPacket{Encoding: "libx264", Data: []byte{2}})

	if got := log.list(); len(got) != 1 || got[0] != "h264" {
		t.Fatalf("expected single h264 initialization, got %v", got)
	}
	if len(s.received()) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(s.received()))
	}
}

func TestGatewayUnknownCodecFirst(t *testing.T) {
	log := &targetLog{}
	reg := video.NewDecoderRegistry()
	reg.Register("h264", log.factory)
	reg.Register("", log.factory)

	g, bus := newTestGateway(t, reg)
	s := &recordingSender{}
	_, _ = g.Register(s)

	publishVideo(t, bus, types.VideoPacket{Encoding: "unknown_codec", Data: []byte{1}})

	if len(log.list()) != 0 {
		t.Fatal("unknown codec must not initialize a decoder")
	}
	if len(s.received()) != 0 {
		t.Fatal("no frame expected for rejected packet")
	}
	stats := g.Stats()
	if stats.Pipeline.State != "uninitialized" || stats.VideoErrors != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	publishVideo(t, bus, types.VideoPacket{Encoding: "libx264", Data: []byte{1}})
	if got := log.list(); len(got) != 1 || got[0] != "h264" {
		t.Fatalf("expected h264 after recovery, got %v", got)
	}
}

func TestGatewayWarnsOnceWithoutDecoder(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bus := transport.NewBus()
	g, err := New(Config{Decoders: video.NewDecoderRegistry()}, bus, zap.New(core))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = g.Close()
		bus.Close()
	})

	for i := 0; i < 3; i++ {
		publishVideo(t, bus, types.VideoPacket{Encoding: "libx264", Data: []byte{byte(i)}})
	}

	warned := logs.FilterMessage("No decoder for video stream, packets are dropped")
	if warned.Len() != 1 || warned.All()[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warning, got %d", warned.Len())
	}
	if logs.FilterMessage("Video packet dropped").Len() != 2 {
		t.Fatal("repeated drops must be logged at debug level")
	}
	if g.Stats().VideoErrors != 3 {
		t.Fatalf("unexpected stats: %+v", g.Stats())
	}
}

func TestGatewayCloseOnce(t *testing.T) {
	bus := transport.NewBus()
	defer bus.Close()

	g, err := New(Config{}, bus, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := &recordingSender{}
	_, _ = g.Register(s)

	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := g.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on second Close, got %v", err)
	}
	if bus.Subscribers(DefaultTelemetryTopic) != 0 || bus.Subscribers(DefaultVideoTopic) != 0 {
		t.Fatal("subscriptions not released")
	}
	if !s.closed.Load() || g.Clients().Len() != 0 {
		t.Fatal("clients not released")
	}
}

type failingSubscriber struct {
	bus   *transport.Bus
	fails string
}

func (f failingSubscriber) Subscribe(topic string, h transport.Handler) (transport.Subscription, error) {
	if topic == f.fails {
		return nil, errors.New("boom")
	}
	return f.bus.Subscribe(topic, h)
}

func TestGatewaySubscribeFailureReleasesEarlierSubscriptions(t *testing.T) {
	bus := transport.NewBus()
	defer bus.Close()

	if _, err := New(Config{}, failingSubscriber{bus: bus, fails: DefaultVideoTopic}, nil); err == nil {
		t.Fatal("expected error")
	}
	if bus.Subscribers(DefaultTelemetryTopic) != 0 {
		t.Fatal("telemetry subscription leaked")
	}
}
