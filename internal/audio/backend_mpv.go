//go:build libmpv

package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"

	mpv "github.com/gen2brain/go-mpv"
	"go.uber.org/zap"

	playerrors "github.com/jscyril/soundbridge/pkg/errors"
)

const (
	mpvPauseProperty    = "pause"
	mpvPositionProperty = "time-pos"
	mpvDurationProperty = "duration"
	mpvEOFProperty      = "eof-reached"
)

var _ Player = (*mpvPlayer)(nil)

func newMPVFactory(logger *zap.SugaredLogger) (Factory, error) {
	logger.Debug("Using libmpv backend")
	return func(path string) (Player, error) {
		return newMPVPlayer(path, logger)
	}, nil
}

// mpvPlayer drives one libmpv instance per clip
type mpvPlayer struct {
	path   string
	logger *zap.SugaredLogger

	mu          sync.Mutex
	client      *mpv.Mpv
	prepared    bool
	seeking     bool
	closeOnce   sync.Once
	eventLoopWG sync.WaitGroup

	onPrepared     func()
	onCompletion   func()
	onError        func(error)
	onSeekComplete func()
}

func newMPVPlayer(path string, logger *zap.SugaredLogger) (*mpvPlayer, error) {
	client := mpv.New()
	if client == nil {
		return nil, fmt.Errorf("%w: create libmpv instance", playerrors.ErrBackendUnavailable)
	}

	setOptionString(client, "terminal", "no")
	setOptionString(client, "video", "no")
	setOptionString(client, "audio-display", "no")
	setOptionString(client, "keep-open", "yes")

	if err := client.Initialize(); err != nil {
		client.TerminateDestroy()
		return nil, fmt.Errorf("initialize libmpv: %w", err)
	}

	p := &mpvPlayer{
		path:   path,
		logger: logger,
		client: client,
	}

	_ = client.RequestEvent(mpv.EventEnd, true)
	_ = client.RequestEvent(mpv.EventFileLoaded, true)
	_ = client.RequestEvent(mpv.EventPlaybackRestart, true)
	_ = client.RequestEvent(mpv.EventPropertyChange, true)
	// keep-open holds the file at its end so a loop can seek back instead of reloading
	_ = client.ObserveProperty(0, mpvEOFProperty, mpv.FormatFlag)

	p.eventLoopWG.Add(1)
	go p.eventLoop()

	return p, nil
}

func (p *mpvPlayer) PrepareAsync() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.client.SetPropertyString(mpvPauseProperty, "yes"); err != nil {
		p.logger.Warnw("Failed to pause before load", "path", p.path, "error", err)
	}
	if err := p.client.Command([]string{"loadfile", p.path, "replace"}); err != nil {
		onError := p.onError
		go func() {
			if onError != nil {
				onError(fmt.Errorf("load file %q: %w", p.path, err))
			}
		}()
	}
}

func (p *mpvPlayer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.prepared {
		return playerrors.ErrNotPrepared
	}
	if err := p.client.SetPropertyString(mpvPauseProperty, "no"); err != nil {
		return fmt.Errorf("resume playback: %w", err)
	}
	return nil
}

func (p *mpvPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.client.SetPropertyString(mpvPauseProperty, "yes"); err != nil {
		return fmt.Errorf("pause playback: %w", err)
	}
	return nil
}

func (p *mpvPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.prepared {
		return false
	}
	value, err := p.client.GetProperty(mpvPauseProperty, mpv.FormatFlag)
	if err != nil {
		return false
	}
	paused, ok := value.(bool)
	return ok && !paused
}

func (p *mpvPlayer) SeekTo(positionMS int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seconds := float64(positionMS) / 1000.0
	if err := p.client.SetProperty(mpvPositionProperty, mpv.FormatDouble, seconds); err != nil {
		return fmt.Errorf("seek playback: %w", err)
	}
	p.seeking = true
	return nil
}

func (p *mpvPlayer) CurrentPositionMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readMillisecondsLocked(mpvPositionProperty)
}

func (p *mpvPlayer) DurationMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readMillisecondsLocked(mpvDurationProperty)
}

// SetVolume maps the channel gains onto a lavfi pan filter
func (p *mpvPlayer) SetVolume(left, right float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filter := fmt.Sprintf("lavfi=[pan=stereo|c0=%.3f*c0|c1=%.3f*c1]", clampGain(left), clampGain(right))
	if err := p.client.Command([]string{"af", "set", filter}); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

func (p *mpvPlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prepared = false
	if err := p.client.Command([]string{"stop"}); err != nil {
		return fmt.Errorf("stop playback: %w", err)
	}
	return nil
}

func (p *mpvPlayer) Release() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		client := p.client
		p.onPrepared, p.onCompletion, p.onError, p.onSeekComplete = nil, nil, nil, nil
		p.mu.Unlock()

		client.Wakeup()
		client.TerminateDestroy()
		p.eventLoopWG.Wait()
	})
	return nil
}

func (p *mpvPlayer) SetOnPrepared(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPrepared = fn
}

func (p *mpvPlayer) SetOnCompletion(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCompletion = fn
}

func (p *mpvPlayer) SetOnError(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

func (p *mpvPlayer) SetOnSeekComplete(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSeekComplete = fn
}

func (p *mpvPlayer) eventLoop() {
	defer p.eventLoopWG.Done()

	for {
		event := p.client.WaitEvent(0.5)
		if event == nil {
			continue
		}

		switch event.EventID {
		case mpv.EventShutdown:
			return
		case mpv.EventFileLoaded:
			p.mu.Lock()
			p.prepared = true
			fn := p.onPrepared
			p.mu.Unlock()
			notify(fn)
		case mpv.EventPlaybackRestart:
			p.mu.Lock()
			seeking := p.seeking
			p.seeking = false
			fn := p.onSeekComplete
			p.mu.Unlock()
			if seeking {
				notify(fn)
			}
		case mpv.EventPropertyChange:
			property := event.Property()
			if property.Name != mpvEOFProperty {
				continue
			}
			if reached, ok := property.Data.(bool); !ok || !reached {
				continue
			}
			p.mu.Lock()
			fn := p.onCompletion
			p.mu.Unlock()
			notify(fn)
		case mpv.EventEnd:
			end := event.EndFile()
			if end.Reason != mpv.EndFileError {
				continue
			}
			p.mu.Lock()
			fn := p.onError
			p.mu.Unlock()
			if fn != nil {
				err := fmt.Errorf("%w: %s", playerrors.ErrPlaybackFailed, p.path)
				notify(func() { fn(err) })
			}
		}
	}
}

func (p *mpvPlayer) readMillisecondsLocked(property string) int64 {
	value, err := p.client.GetProperty(property, mpv.FormatDouble)
	if err != nil {
		if !errors.Is(err, mpv.ErrPropertyUnavailable) && !errors.Is(err, mpv.ErrPropertyNotFound) {
			p.logger.Debugw("Failed to read property", "property", property, "error", err)
		}
		return 0
	}

	seconds, ok := value.(float64)
	if !ok || math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	return int64(math.Round(seconds * 1000))
}

func setOptionString(client *mpv.Mpv, name string, value string) {
	_ = client.SetOptionString(name, value)
}
