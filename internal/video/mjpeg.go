package video

import (
	"bytes"
	"fmt"
	"image/jpeg"
)

// MJPEGTarget идентификатор встроенного JPEG декодера
const MJPEGTarget = "mjpeg"

// mjpegDecoder каждый пакет это самостоятельный JPEG кадр, кадр выдается синхронно
type mjpegDecoder struct {
	emit FrameFunc
}

// NewMJPEGDecoder фабрика для MJPEGTarget
func NewMJPEGDecoder(_ string, emit FrameFunc) (Decoder, error) {
	return &mjpegDecoder{emit: emit}, nil
}

func (d *mjpegDecoder) Decode(payload []byte) error {
	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("mjpeg: %w", err)
	}
	d.emit(FrameFromImage(img))
	return nil
}

func (d *mjpegDecoder) Close() error {
	return nil
}
