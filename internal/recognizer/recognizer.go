package recognizer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBufferLength       = errors.New("unexpected buffer length")
	ErrBackendUnavailable = errors.New("recognizer backend unavailable")
	ErrClosed             = errors.New("recognizer closed")
)

// Recognizer is a stateful speech-to-text session. A single instance must
// not see overlapping utterances: callers submit one buffer, read the final
// result, then Reset before the next one.
type Recognizer interface {
	AcceptWaveform(samples []int16) error
	FinalResult() (Result, error)
	Reset() error
	Close() error
}

type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Result carries the best transcription. Found is false when the engine
// produced no text at all.
type Result struct {
	Text         string        `json:"text"`
	Found        bool          `json:"found"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// BestOf consumes only the top alternative, even when it is empty. Text is
// used only when the recognizer returned no alternatives.
func BestOf(text string, alternatives []Alternative) Result {
	if len(alternatives) > 0 {
		t := strings.TrimSpace(alternatives[0].Text)
		return Result{Text: t, Found: t != "", Alternatives: alternatives}
	}
	t := strings.TrimSpace(text)
	return Result{Text: t, Found: t != "", Alternatives: alternatives}
}

func checkLength(samples []int16, want int) error {
	if want > 0 && len(samples) != want {
		return fmt.Errorf("%w: got %d samples, want %d", ErrBufferLength, len(samples), want)
	}
	return nil
}
