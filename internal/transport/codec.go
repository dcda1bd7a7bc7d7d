package transport

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"robot-gateway/internal/types"
)

// ErrNonFinite в телеметрии есть NaN или бесконечность
var ErrNonFinite = errors.New("telemetry contains non-finite values")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("transport: CBOR encoder initialization failed: " + err.Error())
	}

	// неизвестные поля игнорируются, чтобы новые версии сообщений робота не ломали шлюз
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("transport: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeTelemetry сериализует снимок телеметрии
func EncodeTelemetry(s types.TelemetrySnapshot) ([]byte, error) {
	return encMode.Marshal(s)
}

// DecodeTelemetry разбирает сообщение топика телеметрии
func DecodeTelemetry(data []byte) (types.TelemetrySnapshot, error) {
	var s types.TelemetrySnapshot
	if err := decMode.Unmarshal(data, &s); err != nil {
		return types.TelemetrySnapshot{}, fmt.Errorf("decode telemetry: %w", err)
	}
	if !s.Finite() {
		return types.TelemetrySnapshot{}, fmt.Errorf("decode telemetry: %w", ErrNonFinite)
	}
	return s, nil
}

// EncodeVideoPacket сериализует видеопакет
func EncodeVideoPacket(p types.VideoPacket) ([]byte, error) {
	return encMode.Marshal(p)
}

// DecodeVideoPacket разбирает сообщение видеотопика
func DecodeVideoPacket(data []byte) (types.VideoPacket, error) {
	var p types.VideoPacket
	if err := decMode.Unmarshal(data, &p); err != nil {
		return types.VideoPacket{}, fmt.Errorf("decode video packet: %w", err)
	}
	return p, nil
}
