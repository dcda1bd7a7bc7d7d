package video

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"robot-gateway/internal/types"
)

const (
	// StreamQuality качество JPEG для кадров с робота
	StreamQuality = 80
	// DebugQuality качество JPEG для отладочных кадров
	DebugQuality = 90
)

// JPEGEncoder сжимает кадры в JPEG, состояния между вызовами нет
type JPEGEncoder struct{}

// NewJPEGEncoder создает энкодер
func NewJPEGEncoder() JPEGEncoder {
	return JPEGEncoder{}
}

// Encode сжимает кадр. quality в процентах, значения вне 1..100 приводятся к границам.
func (JPEGEncoder) Encode(frame types.DecodedFrame, quality int) ([]byte, error) {
	if !frame.Valid() {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidFrame, frame.Width, frame.Height, len(frame.Pix))
	}

	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, ImageFromFrame(frame), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
