package transcode

import (
	"net/http"
)

// Kind classifies a user-facing failure of the audio input stage
type Kind string

const (
	KindInvalidAudio      Kind = "INVALID_AUDIO"
	KindUnsupportedFormat Kind = "UNSUPPORTED_FORMAT"
	KindDownloadFailed    Kind = "DOWNLOAD_FAILED"
)

// Error is the only error type that crosses the pipeline boundary. Message is
// safe to show to callers; Cause keeps the codec or network error for logs.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error returns the user-facing message only, never the cause
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// HTTPStatus is the recommended status code for this error
func (e *Error) HTTPStatus() int {
	if e.Kind == KindUnsupportedFormat {
		return http.StatusUnsupportedMediaType
	}
	return http.StatusBadRequest
}

// Sentinels for errors.Is
var (
	ErrInvalidAudio      = &Error{Kind: KindInvalidAudio, Message: "invalid audio"}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat, Message: "unsupported audio format"}
	ErrDownloadFailed    = &Error{Kind: KindDownloadFailed, Message: "download failed"}
)

// InvalidAudio creates an InvalidAudio error
func InvalidAudio(message string, cause error) *Error {
	return &Error{Kind: KindInvalidAudio, Message: message, Cause: cause}
}

// UnsupportedFormat creates an UnsupportedFormat error
func UnsupportedFormat(message string) *Error {
	return &Error{Kind: KindUnsupportedFormat, Message: message}
}

// DownloadFailed creates a DownloadFailed error
func DownloadFailed(message string, cause error) *Error {
	return &Error{Kind: KindDownloadFailed, Message: message, Cause: cause}
}
