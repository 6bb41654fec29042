package transcribe

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of failure classes a request can end in.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindConversion
	KindModelInvocation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindConversion:
		return "ConversionError"
	case KindModelInvocation:
		return "ModelInvocationError"
	default:
		return "UnexpectedError"
	}
}

// Public messages. These are safe to return to clients.
const (
	MsgNoAudio        = "No audio data provided"
	MsgInvalidBody    = "Request body must be a JSON object"
	MsgAudioNotString = "Audio field must be a base64 string"
	MsgBodyTooLarge   = "Request body too large"
	MsgUndecodable    = "Audio payload could not be decoded"
	MsgStagingFailed  = "Audio could not be prepared for transcription"
	MsgModelFailed    = "Speech recognition failed"
	MsgUnexpected     = "Internal server error"
)

var ErrNoAudio = errors.New("audio field missing")

// Error pairs a Kind and public message with the internal cause, which is
// only logged unless detail exposure is enabled.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Public returns the client-facing message, with the cause appended when
// exposeDetail is set.
func (e *Error) Public(exposeDetail bool) string {
	if exposeDetail && e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func Validation(message string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: message, Status: http.StatusBadRequest, Cause: cause}
}

func TooLarge(cause error) *Error {
	return &Error{Kind: KindValidation, Message: MsgBodyTooLarge, Status: http.StatusRequestEntityTooLarge, Cause: cause}
}

func Conversion(message string, cause error) *Error {
	return &Error{Kind: KindConversion, Message: message, Status: http.StatusInternalServerError, Cause: cause}
}

func ModelInvocation(cause error) *Error {
	return &Error{Kind: KindModelInvocation, Message: MsgModelFailed, Status: http.StatusInternalServerError, Cause: cause}
}

func Unexpected(cause error) *Error {
	return &Error{Kind: KindUnexpected, Message: MsgUnexpected, Status: http.StatusInternalServerError, Cause: cause}
}

// Classify returns err as an *Error, treating anything unrecognized as
// KindUnexpected.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Unexpected(err)
}
