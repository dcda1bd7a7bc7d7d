package video

import "errors"

var (
	// ErrUnknownCodec тег кодека первого пакета отсутствует в таблице кодеков
	ErrUnknownCodec = errors.New("video: unknown codec tag")
	// ErrCodecChanged пакет пришел с другим тегом после инициализации декодера
	ErrCodecChanged = errors.New("video: codec change after initialization is not supported")
	// ErrNoDecoder для целевого идентификатора не зарегистрирован декодер
	ErrNoDecoder = errors.New("video: no decoder registered for target")
	// ErrInvalidFrame буфер кадра не соответствует его размерам
	ErrInvalidFrame = errors.New("video: invalid frame")
	// ErrDecoderExited процесс внешнего декодера завершился
	ErrDecoderExited = errors.New("video: decoder process exited")
	// ErrClosed пайплайн уже закрыт
	ErrClosed = errors.New("video: pipeline closed")
)
