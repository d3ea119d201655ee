package audio

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	playerrors "github.com/jscyril/soundbridge/pkg/errors"
)

// Player is a single decoder/renderer bound to one source file.
//
// Listener callbacks are delivered on the player's own goroutines and never
// from inside a Player method, so callers may hold their own locks while
// calling into a Player. Positions are in milliseconds.
type Player interface {
	// PrepareAsync starts loading the source; OnPrepared or OnError fires when done.
	PrepareAsync()
	Start() error
	Pause() error
	IsPlaying() bool
	// SeekTo moves the playhead; OnSeekComplete fires once the move took effect.
	SeekTo(positionMS int64) error
	CurrentPositionMS() int64
	DurationMS() int64
	// SetVolume sets independent left/right channel gain in [0, 1].
	SetVolume(left, right float64) error
	// Reset stops playback and returns the player to its unprepared state.
	Reset() error
	// Release frees every resource. Further calls are no-ops.
	Release() error

	SetOnPrepared(fn func())
	SetOnCompletion(fn func())
	SetOnError(fn func(err error))
	SetOnSeekComplete(fn func())
}

// Factory constructs a player bound to a local file path
type Factory func(path string) (Player, error)

const (
	BackendBeep = "beep"
	BackendMPV  = "mpv"
)

// Options configures the playback engines
type Options struct {
	SampleRate      int
	BufferSize      time.Duration
	ResampleQuality int
	Formats         []string
	Sink            Sink
}

// DefaultOptions returns the engine defaults
func DefaultOptions() Options {
	return Options{
		SampleRate:      44100,
		BufferSize:      100 * time.Millisecond,
		ResampleQuality: 4,
		Formats:         SupportedFormats(),
	}
}

// NewFactory returns the player factory for the named backend
func NewFactory(backend string, opts Options, logger *zap.SugaredLogger) (Factory, error) {
	logger = logger.Named("audio")

	switch strings.ToLower(backend) {
	case "", BackendBeep:
		decoder := NewDecoder(opts.Formats)
		logger.Debugw("Using beep backend", "formats", decoder.Formats(), "sampleRate", opts.SampleRate)
		return func(path string) (Player, error) {
			return NewBeepPlayer(path, decoder, opts, logger), nil
		}, nil
	case BackendMPV:
		return newMPVFactory(logger)
	default:
		return nil, fmt.Errorf("%w: %q", playerrors.ErrBackendUnavailable, backend)
	}
}

// notify delivers a listener on its own goroutine, never on the caller's
func notify(fn func()) {
	if fn != nil {
		go fn()
	}
}

func clampGain(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
