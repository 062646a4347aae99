package engine

import (
	"fmt"
	"strings"

	"github.com/mediadl/mediadl/internal/media"
)

// ErrorKind categorizes a failure for the client. The kind is decided once,
// where the collaborator's error is caught, and never re-derived.
type ErrorKind string

// Failure categories surfaced to clients.
const (
	KindPrivate        ErrorKind = "private"
	KindUnavailable    ErrorKind = "unavailable"
	KindLoginRequired  ErrorKind = "login_required"
	KindUnsupportedURL ErrorKind = "unsupported_url"
	KindAccess         ErrorKind = "access"
	KindNoFormat       ErrorKind = "no_format"
	KindDownload       ErrorKind = "download"
	KindFileNotFound   ErrorKind = "file_not_found"
	KindWrongMediaKind ErrorKind = "wrong_media_kind"
)

// Error is a classified, user-presentable failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError builds a classified error with a preformatted message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// ClassifyProbe maps a metadata-probe failure to a user-facing category by
// inspecting the engine's message text, the only channel it exposes. The
// generic fallback keeps the raw message so the underlying cause stays
// visible.
func ClassifyProbe(platform media.Platform, err error) *Error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "private"):
		return NewError(KindPrivate, "This content is private and cannot be downloaded")
	case strings.Contains(lower, "not available"), strings.Contains(lower, "unavailable"):
		return NewError(KindUnavailable, "This content is not available or has been removed")
	case strings.Contains(lower, "login"), strings.Contains(lower, "sign in"):
		return NewError(KindLoginRequired, "This content requires login. Please use public content.")
	case strings.Contains(lower, "unsupported url"):
		return NewError(KindUnsupportedURL, fmt.Sprintf("This URL is not supported for %s", platform))
	default:
		return NewError(KindAccess, fmt.Sprintf("Cannot access this content: %s", msg))
	}
}

// ClassifyDownload maps a download-phase failure: format selection problems
// get their own category, everything else is a generic download failure.
func ClassifyDownload(err error) *Error {
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "format") {
		return NewError(KindNoFormat, "No suitable video/audio format found for this content")
	}
	return NewError(KindDownload, fmt.Sprintf("Download failed: %s", msg))
}
