package audio

import (
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"go.uber.org/zap"

	playerrors "github.com/jscyril/soundbridge/pkg/errors"
)

// Ensure BeepPlayer implements Player interface at compile time
var _ Player = (*BeepPlayer)(nil)

// Sink is the output device clips are mixed into
type Sink interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Lock()
	Unlock()
}

// speakerSink initialises the speaker once; every clip is resampled to its rate
type speakerSink struct {
	once sync.Once
	err  error
}

func (s *speakerSink) Init(sampleRate beep.SampleRate, bufferSize int) error {
	s.once.Do(func() {
		s.err = speaker.Init(sampleRate, bufferSize)
	})
	return s.err
}

func (s *speakerSink) Play(st beep.Streamer) { speaker.Play(st) }
func (s *speakerSink) Lock()                 { speaker.Lock() }
func (s *speakerSink) Unlock()               { speaker.Unlock() }

var defaultSink Sink = &speakerSink{}

// BeepPlayer plays one file through the shared beep speaker
type BeepPlayer struct {
	path    string
	decoder *Decoder
	opts    Options
	sink    Sink
	logger  *zap.SugaredLogger

	mu        sync.Mutex
	clip      *clip // fields guarded by the sink lock
	format    beep.Format
	preparing bool
	prepared  bool
	released  bool
	left      float64
	right     float64

	onPrepared     func()
	onCompletion   func()
	onError        func(error)
	onSeekComplete func()
}

// NewBeepPlayer creates a player bound to path. Nothing is opened until PrepareAsync.
func NewBeepPlayer(path string, decoder *Decoder, opts Options, logger *zap.SugaredLogger) *BeepPlayer {
	sink := opts.Sink
	if sink == nil {
		sink = defaultSink
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultOptions().SampleRate
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	if opts.ResampleQuality <= 0 {
		opts.ResampleQuality = DefaultOptions().ResampleQuality
	}

	return &BeepPlayer{
		path:    path,
		decoder: decoder,
		opts:    opts,
		sink:    sink,
		logger:  logger,
		left:    1,
		right:   1,
	}
}

// PrepareAsync opens and decodes the file on a separate goroutine
func (p *BeepPlayer) PrepareAsync() {
	p.mu.Lock()
	if p.preparing || p.prepared || p.released {
		p.mu.Unlock()
		return
	}
	p.preparing = true
	p.mu.Unlock()

	go p.prepare()
}

func (p *BeepPlayer) prepare() {
	err := p.load()

	p.mu.Lock()
	p.preparing = false
	if err == nil {
		p.prepared = true
	}
	onPrepared, onError := p.onPrepared, p.onError
	p.mu.Unlock()

	if err != nil {
		p.logger.Warnw("Failed to prepare clip", "path", p.path, "error", err)
		if onError != nil {
			onError(err)
		}
		return
	}

	p.logger.Debugw("Prepared clip", "path", p.path, "durationMs", p.DurationMS())
	if onPrepared != nil {
		onPrepared()
	}
}

// load decodes the source and attaches a paused clip to the sink
func (p *BeepPlayer) load() error {
	file, err := os.Open(p.path)
	if err != nil {
		return err
	}

	streamer, format, err := p.decoder.Decode(file, p.path)
	if err != nil {
		file.Close()
		return err
	}

	target := beep.SampleRate(p.opts.SampleRate)
	if err := p.sink.Init(target, target.N(p.opts.BufferSize)); err != nil {
		streamer.Close()
		return err
	}

	var resample func(beep.Streamer) beep.Streamer
	if format.SampleRate != target {
		quality := p.opts.ResampleQuality
		resample = func(s beep.Streamer) beep.Streamer {
			return beep.Resample(quality, format.SampleRate, target, s)
		}
	}

	c := newClip(streamer, resample, p.handleEnd, p.handleStreamError)

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		streamer.Close()
		return playerrors.ErrReleased
	}
	c.left, c.right = p.left, p.right
	p.clip = c
	p.format = format
	p.mu.Unlock()

	p.sink.Play(c)
	return nil
}

// handleEnd runs under the sink lock
func (p *BeepPlayer) handleEnd() {
	go func() {
		p.mu.Lock()
		fn := p.onCompletion
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	}()
}

// handleStreamError runs under the sink lock
func (p *BeepPlayer) handleStreamError(err error) {
	go func() {
		p.mu.Lock()
		fn := p.onError
		p.mu.Unlock()
		p.logger.Warnw("Clip stream failed", "path", p.path, "error", err)
		if fn != nil {
			fn(err)
		}
	}()
}

// Start resumes output of the clip
func (p *BeepPlayer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clip == nil {
		return playerrors.ErrNotPrepared
	}
	p.sink.Lock()
	p.clip.playing = true
	p.sink.Unlock()
	return nil
}

// Pause silences the clip, keeping its position
func (p *BeepPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clip == nil {
		return playerrors.ErrNotPrepared
	}
	p.sink.Lock()
	p.clip.playing = false
	p.sink.Unlock()
	return nil
}

// IsPlaying reports whether the clip is producing audio
func (p *BeepPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clip == nil {
		return false
	}
	p.sink.Lock()
	defer p.sink.Unlock()
	return p.clip.playing
}

// SeekTo moves the playhead, clamped to the clip bounds
func (p *BeepPlayer) SeekTo(positionMS int64) error {
	p.mu.Lock()
	if p.clip == nil {
		p.mu.Unlock()
		return playerrors.ErrNotPrepared
	}
	n := p.format.SampleRate.N(time.Duration(positionMS) * time.Millisecond)
	p.sink.Lock()
	err := p.clip.seek(n)
	p.sink.Unlock()
	fn := p.onSeekComplete
	p.mu.Unlock()

	if err != nil {
		return err
	}
	notify(fn)
	return nil
}

// CurrentPositionMS returns the playhead position
func (p *BeepPlayer) CurrentPositionMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clip == nil {
		return 0
	}
	p.sink.Lock()
	pos := p.clip.source.Position()
	p.sink.Unlock()
	return p.format.SampleRate.D(pos).Milliseconds()
}

// DurationMS returns the clip length
func (p *BeepPlayer) DurationMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clip == nil {
		return 0
	}
	p.sink.Lock()
	length := p.clip.source.Len()
	p.sink.Unlock()
	return p.format.SampleRate.D(length).Milliseconds()
}

// SetVolume sets the left and right channel gain
func (p *BeepPlayer) SetVolume(left, right float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.left, p.right = clampGain(left), clampGain(right)
	if p.clip != nil {
		p.sink.Lock()
		p.clip.left, p.clip.right = p.left, p.right
		p.sink.Unlock()
	}
	return nil
}

// Reset detaches the clip from the sink and closes the decoder
func (p *BeepPlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func (p *BeepPlayer) resetLocked() error {
	p.prepared = false
	if p.clip == nil {
		return nil
	}
	p.sink.Lock()
	p.clip.playing = false
	p.clip.detached = true
	p.sink.Unlock()

	source := p.clip.source
	p.clip = nil
	return source.Close()
}

// Release resets the player and drops every listener
func (p *BeepPlayer) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true
	p.onPrepared = nil
	p.onCompletion = nil
	p.onError = nil
	p.onSeekComplete = nil
	return p.resetLocked()
}

func (p *BeepPlayer) SetOnPrepared(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPrepared = fn
}

func (p *BeepPlayer) SetOnCompletion(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCompletion = fn
}

func (p *BeepPlayer) SetOnError(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

func (p *BeepPlayer) SetOnSeekComplete(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSeekComplete = fn
}
