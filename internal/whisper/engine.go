package whisper

import (
	"context"
	"strings"
)

// UnknownLanguage is reported when the engine does not return a language.
const UnknownLanguage = "unknown"

const blankAudioToken = "[BLANK_AUDIO]"

type Request struct {
	AudioPath string
	// Language is an ISO-639-1 code, or "auto" to let the model detect it.
	Language string
}

type Result struct {
	Text     string
	Language string
}

// Engine maps an audio file to its transcription and detected language.
// Implementations must be safe for concurrent use or be wrapped with Limit.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

type EngineFunc func(ctx context.Context, req Request) (Result, error)

func (f EngineFunc) Transcribe(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// IsBlankTranscript reports whether whisper produced no speech.
func IsBlankTranscript(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	return trimmed == "" || strings.EqualFold(trimmed, blankAudioToken)
}

// Normalize trims the text, folds the blank marker to "" and fills in
// UnknownLanguage.
func Normalize(res Result) Result {
	text := strings.TrimSpace(res.Text)
	if IsBlankTranscript(text) {
		text = ""
	}

	lang := strings.TrimSpace(res.Language)
	if lang == "" {
		lang = UnknownLanguage
	}

	return Result{Text: text, Language: lang}
}
