package types

import "math"

// ActuatorState состояние одного привода
type ActuatorState struct {
	Effort      float64 `json:"effort" cbor:"effort"`
	Temperature float64 `json:"temperature" cbor:"temperature"`
}

// TelemetrySnapshot последнее известное состояние робота.
// Заменяется целиком при каждом обновлении.
type TelemetrySnapshot struct {
	BodyTemperature float64         `json:"body_temperature" cbor:"body_temperature"`
	Voltage         float64         `json:"voltage" cbor:"voltage"`
	ActuatorStates  []ActuatorState `json:"actuator_states" cbor:"actuator_states"`
}

// MaxPublishedActuators сколько приводов отдается наружу через /state
const MaxPublishedActuators = 12

// DefaultSnapshot возвращает инженерные значения по умолчанию,
// которые отдаются до прихода первого сообщения телеметрии
func DefaultSnapshot() TelemetrySnapshot {
	actuators := make([]ActuatorState, MaxPublishedActuators)
	for i := range actuators {
		actuators[i] = ActuatorState{Effort: 0.1, Temperature: 40.0}
	}

	return TelemetrySnapshot{
		BodyTemperature: 40.0,
		Voltage:         12.0,
		ActuatorStates:  actuators,
	}
}

// Clone возвращает глубокую копию снимка
func (s TelemetrySnapshot) Clone() TelemetrySnapshot {
	out := s
	if s.ActuatorStates != nil {
		out.ActuatorStates = make([]ActuatorState, len(s.ActuatorStates))
		copy(out.ActuatorStates, s.ActuatorStates)
	}
	return out
}

// Published возвращает снимок, обрезанный до MaxPublishedActuators приводов
func (s TelemetrySnapshot) Published() TelemetrySnapshot {
	out := s.Clone()
	if len(out.ActuatorStates) > MaxPublishedActuators {
		out.ActuatorStates = out.ActuatorStates[:MaxPublishedActuators]
	}
	if out.ActuatorStates == nil {
		out.ActuatorStates = []ActuatorState{}
	}
	return out
}

// Finite сообщает, что все числовые поля конечны, иначе снимок нельзя отдать в JSON
func (s TelemetrySnapshot) Finite() bool {
	if !finite(s.BodyTemperature) || !finite(s.Voltage) {
		return false
	}
	for _, a := range s.ActuatorStates {
		if !finite(a.Effort) || !finite(a.Temperature) {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// VideoPacket сжатый видеопакет из топика video
type VideoPacket struct {
	Encoding string `json:"encoding" cbor:"encoding"`
	Data     []byte `json:"data" cbor:"data"`
	Width    int32  `json:"width,omitempty" cbor:"width,omitempty"`
	Height   int32  `json:"height,omitempty" cbor:"height,omitempty"`
	PTS      int64  `json:"pts,omitempty" cbor:"pts,omitempty"`
	Flags    uint8  `json:"flags,omitempty" cbor:"flags,omitempty"`
}

// DecodedFrame декодированный кадр в формате BGR, 3 байта на пиксель
type DecodedFrame struct {
	Width  int
	Height int
	Pix    []byte
}

// Valid проверяет, что размер буфера соответствует разрешению
func (f DecodedFrame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height*3
}
