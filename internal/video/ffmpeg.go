package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"robot-gateway/internal/types"
)

const ffmpegExitTimeout = 5 * time.Second

// ffmpegDemuxers формат входного потока для целей ffmpeg
var ffmpegDemuxers = map[string]string{
	"h264":       "h264",
	"hevc":       "hevc",
	"libaom-av1": "obu",
	"libdav1d":   "obu",
	"av1":        "obu",
}

// FFmpegTargets цели, которые умеет декодировать внешний ffmpeg
func FFmpegTargets() []string {
	return []string{"h264", "hevc", "libaom-av1", "libdav1d", "av1"}
}

// NewFFmpegFactory возвращает фабрику декодеров на базе процесса ffmpeg.
// Пакеты пишутся в stdin, кадры читаются из stdout в формате PPM.
// Кадры выдаются из отдельной горутины чтения.
func NewFFmpegFactory(binary string, logger *zap.Logger) Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(target string, emit FrameFunc) (Decoder, error) {
		return newFFmpegDecoder(binary, target, emit, logger)
	}
}

type ffmpegDecoder struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	logger *zap.Logger
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func newFFmpegDecoder(binary, target string, emit FrameFunc, logger *zap.Logger) (*ffmpegDecoder, error) {
	demuxer, ok := ffmpegDemuxers[target]
	if !ok {
		return nil, fmt.Errorf("%w: ffmpeg has no demuxer for %q", ErrNoDecoder, target)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner", "-loglevel", "error",
		"-f", demuxer,
		"-c:v", target,
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "ppm",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}

	log := logger.With(zap.String("decoder", "ffmpeg"), zap.String("target", target))
	cmd.Stderr = &zapio.Writer{Log: log, Level: zap.WarnLevel}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	d := &ffmpegDecoder{
		cmd:    cmd,
		cancel: cancel,
		stdin:  stdin,
		logger: log,
		done:   make(chan struct{}),
	}

	go d.readFrames(bufio.NewReaderSize(stdout, 1<<20), emit)

	log.Info("ffmpeg decoder started", zap.Int("pid", cmd.Process.Pid))
	return d, nil
}

func (d *ffmpegDecoder) readFrames(r *bufio.Reader, emit FrameFunc) {
	defer close(d.done)

	for {
		frame, err := ReadPPM(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				d.logger.Warn("ffmpeg output parse failed", zap.Error(err))
			}
			return
		}
		emit(frame)
	}
}

func (d *ffmpegDecoder) Decode(payload []byte) error {
	select {
	case <-d.done:
		return ErrDecoderExited
	default:
	}

	if _, err := d.stdin.Write(payload); err != nil {
		return fmt.Errorf("ffmpeg write: %w", err)
	}
	return nil
}

// Close закрывает stdin и ждет завершения ffmpeg. Если процесс не завершился
// за ffmpegExitTimeout, он убивается.
func (d *ffmpegDecoder) Close() error {
	d.closeOnce.Do(func() {
		_ = d.stdin.Close()

		waitErr := make(chan error, 1)
		go func() {
			<-d.done
			waitErr <- d.cmd.Wait()
		}()

		var err error
		select {
		case err = <-waitErr:
		case <-time.After(ffmpegExitTimeout):
			d.logger.Warn("ffmpeg did not exit after stdin close, killing")
			d.cancel()
			err = <-waitErr
		}
		d.cancel()

		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
			d.closeErr = err
		}
	})
	return d.closeErr
}

// MaxPPMDimension предельная ширина и высота кадра из ffmpeg
const MaxPPMDimension = 16384

// ReadPPM читает один бинарный PPM (P6, maxval 255) и возвращает BGR кадр
func ReadPPM(r *bufio.Reader) (types.DecodedFrame, error) {
	magic, err := readPPMToken(r)
	if err != nil {
		return types.DecodedFrame{}, err
	}
	if magic != "P6" {
		return types.DecodedFrame{}, fmt.Errorf("ppm: unsupported magic %q", magic)
	}

	var dims [3]int
	for i := range dims {
		tok, err := readPPMToken(r)
		if err != nil {
			return types.DecodedFrame{}, unexpected(err)
		}
		v, err := strconv.Atoi(tok)
		if err != nil || v <= 0 {
			return types.DecodedFrame{}, fmt.Errorf("ppm: bad header value %q", tok)
		}
		dims[i] = v
	}
	w, h, maxval := dims[0], dims[1], dims[2]
	if w > MaxPPMDimension || h > MaxPPMDimension {
		return types.DecodedFrame{}, fmt.Errorf("ppm: frame %dx%d exceeds %d", w, h, MaxPPMDimension)
	}
	if maxval != 255 {
		return types.DecodedFrame{}, fmt.Errorf("ppm: unsupported maxval %d", maxval)
	}

	// один пробельный символ после maxval уже съеден readPPMToken
	pix := make([]byte, w*h*3)
	if _, err := io.ReadFull(r, pix); err != nil {
		return types.DecodedFrame{}, unexpected(err)
	}
	for i := 0; i+2 < len(pix); i += 3 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}

	return types.DecodedFrame{Width: w, Height: h, Pix: pix}, nil
}

// readPPMToken читает токен заголовка, пропуская пробелы и комментарии.
// Завершающий пробельный символ потребляется.
func readPPMToken(r *bufio.Reader) (string, error) {
	var tok []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			if len(tok) > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}

		switch {
		case c == '#' && len(tok) == 0:
			if _, err := r.ReadBytes('\n'); err != nil {
				return "", unexpected(err)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, c)
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
