// Package provider defines the STT, Translator, and TTS adapter contracts
// every concrete backend implements, plus the shared error taxonomy and
// resilience wrapping applied uniformly to all of them.
package provider

import (
	"context"
	"errors"
	"io"

	"github.com/lookatitude/vox-interpret/lang"
)

// Adapter is the capability embedded in every STT/Translator/TTS backend.
type Adapter interface {
	// Name identifies the backend, e.g. "openai-whisper" or "anthropic-messages".
	Name() string

	// Health reports whether the backend is currently usable.
	Health(ctx context.Context) error

	// Close releases any held resources (connections, goroutines).
	Close() error
}

// TranscriptEvent is one STT result, interim or final.
type TranscriptEvent struct {
	Text      string
	IsFinal   bool
	StartedAt int64 // unix nanos the underlying audio segment began at
}

// StreamingSTT converts a live audio stream for one speaker into a sequence
// of interim and final transcript events.
type StreamingSTT interface {
	Adapter

	// Stream pushes PCM frames in and reads transcript events out. The
	// returned channel closes when ctx is cancelled or the backend ends the
	// stream (e.g. on a permanent error, delivered via the second return
	// value's final error push — implementations should send a
	// TranscriptEvent with IsFinal true before closing on a clean end).
	Stream(ctx context.Context, audio <-chan []byte) (<-chan TranscriptEvent, <-chan error)
}

// Translator converts final (or promoted) text from one language to
// another, optionally honoring a formal-tone preference.
type Translator interface {
	Adapter

	Translate(ctx context.Context, text string, pair lang.Pair, formal bool) (string, error)
}

// StreamingTTS synthesizes speech for a line of target-language text, writing PCM
// audio frames to the returned reader as they become available so the
// first frame can reach the listener before the whole utterance finishes.
type StreamingTTS interface {
	Adapter

	Synthesize(ctx context.Context, text string, avatarID string) (io.ReadCloser, error)
}

// ErrUnsupportedPair is returned by a Translator that does not support the
// requested language pair.
var ErrUnsupportedPair = errors.New("provider: unsupported language pair")
