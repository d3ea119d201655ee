// Package registry tracks playback sessions keyed by caller-assigned handles
// and mediates their lifecycle on top of an opaque audio.Player.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jscyril/soundbridge/api"
	"github.com/jscyril/soundbridge/internal/audio"
	playerrors "github.com/jscyril/soundbridge/pkg/errors"
	"github.com/jscyril/soundbridge/pkg/events"
)

// Registry maps handles to live sessions
type Registry struct {
	logger  *zap.SugaredLogger
	factory audio.Factory
	bundle  fs.FS
	bus     *events.EventBus

	mu       sync.RWMutex
	sessions map[api.Handle]*session
}

// Option configures a Registry
type Option func(*Registry)

// WithBundle sets the bundled resources. Sources naming a bundled resource
// are not playable and only produce a warning.
func WithBundle(bundle fs.FS) Option {
	return func(r *Registry) {
		r.bundle = bundle
	}
}

// WithEventBus publishes session lifecycle events to bus
func WithEventBus(bus *events.EventBus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

// New creates an empty registry constructing players with factory
func New(factory audio.Factory, logger *zap.SugaredLogger, opts ...Option) *Registry {
	r := &Registry{
		logger:   logger.Named("registry"),
		factory:  factory,
		sessions: make(map[api.Handle]*session),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger.Debug("Created session registry")
	return r
}

// Prepare loads source under handle and returns the clip duration in seconds.
// A live session already stored under handle is released first.
func (r *Registry) Prepare(ctx context.Context, source string, handle api.Handle) (float64, error) {
	path, err := r.resolve(source)
	if err != nil {
		return 0, playerrors.NewPlayerError("prepare", handle, err)
	}

	player, err := r.factory(path)
	if err != nil {
		return 0, playerrors.NewPlayerError("prepare", handle, err)
	}

	s := newSession(handle, path, player)
	result := make(chan error, 1)
	player.SetOnPrepared(func() {
		select {
		case result <- nil:
		default:
		}
	})
	player.SetOnError(func(err error) {
		select {
		case result <- err:
		default:
		}
	})

	if previous := r.store(s); previous != nil {
		r.logger.Debugw("Releasing previous session stored under handle", "handle", handle)
		if err := previous.release(); err != nil {
			r.logger.Warnw("Failed to release previous session", "handle", handle, "error", err)
		}
		r.publish(api.EventReleased, handle, nil)
	}

	player.PrepareAsync()

	select {
	case err := <-result:
		if err != nil {
			r.discard(s)
			r.logger.Warnw("Error preparing audio", "handle", handle, "source", source, "error", err)
			r.publish(api.EventError, handle, err)
			return 0, playerrors.NewPlayerError("prepare", handle, fmt.Errorf("%w: %v", playerrors.ErrPreparationFailed, err))
		}
	case <-s.closed:
		return 0, playerrors.NewPlayerError("prepare", handle, playerrors.ErrReleased)
	case <-ctx.Done():
		r.discard(s)
		return 0, ctx.Err()
	}

	s.mu.Lock()
	if s.status == api.StatusReleased {
		s.mu.Unlock()
		return 0, playerrors.NewPlayerError("prepare", handle, playerrors.ErrReleased)
	}
	player.SetOnPrepared(nil)
	player.SetOnError(nil)
	s.status = api.StatusPrepared
	duration := float64(player.DurationMS()) * .001
	s.mu.Unlock()

	r.logger.Debugw("Prepared session", "handle", handle, "source", path, "duration", duration)
	r.publish(api.EventPrepared, handle, nil)
	return duration, nil
}

// resolve maps a source to an existing local file path
func (r *Registry) resolve(source string) (string, error) {
	if r.isBundled(source) {
		r.logger.Warnw("Bundled resources are not supported, expecting a file path", "source", source)
	}

	path := strings.TrimPrefix(source, "file://")
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", playerrors.ErrResourceNotFound, source)
	}
	return path, nil
}

func (r *Registry) isBundled(source string) bool {
	if r.bundle == nil || !fs.ValidPath(source) {
		return false
	}
	if _, err := fs.Stat(r.bundle, source); err == nil {
		return true
	}
	matches, err := fs.Glob(r.bundle, source+".*")
	return err == nil && len(matches) > 0
}

// Play starts playback. The returned channel yields true when a non-looping
// clip reaches its end or false on a playback error, then closes; it closes
// without a value when the registration is superseded by pause, stop,
// release or a later Play. Playing an already playing session returns
// ErrAlreadyPlaying and leaves the pending channel untouched.
func (r *Registry) Play(handle api.Handle) (<-chan bool, error) {
	s, ok := r.get(handle)
	if !ok {
		return nil, playerrors.NewPlayerError("play", handle, playerrors.ErrUnknownHandle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case api.StatusCreated:
		return nil, playerrors.NewPlayerError("play", handle, playerrors.ErrNotPrepared)
	case api.StatusReleased:
		return nil, playerrors.NewPlayerError("play", handle, playerrors.ErrUnknownHandle)
	}

	s.active = true
	if s.player.IsPlaying() {
		return nil, playerrors.NewPlayerError("play", handle, playerrors.ErrAlreadyPlaying)
	}

	s.closeDoneLocked()
	s.dropLoopRestartLocked()
	s.gen++
	gen := s.gen
	done := make(chan bool, 1)
	s.done = done

	s.player.SetOnCompletion(func() { r.handleCompletion(s, gen) })
	s.player.SetOnError(func(err error) { r.handlePlaybackError(s, gen, err) })

	if err := s.player.Start(); err != nil {
		s.deactivateLocked()
		return nil, playerrors.NewPlayerError("play", handle, fmt.Errorf("%w: %v", playerrors.ErrPlaybackFailed, err))
	}

	s.status = api.StatusPlaying
	r.publish(api.EventStarted, handle, nil)
	return done, nil
}

// handleCompletion runs on the player's goroutine at end of clip
func (r *Registry) handleCompletion(s *session, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || !s.active {
		r.logger.Debugw("Ignoring stale completion", "handle", s.handle)
		return
	}

	if s.looping {
		if err := s.player.Pause(); err != nil {
			r.logger.Warnw("Failed to pause before loop", "handle", s.handle, "error", err)
		}
		// Start only once the rewind has taken effect
		s.player.SetOnSeekComplete(func() { r.handleLoopSeek(s, gen) })
		if err := s.player.SeekTo(0); err != nil {
			r.failLocked(s, fmt.Errorf("rewind for loop: %w", err))
		}
		return
	}

	// Rewind so the clip can be played again later
	if err := s.player.Pause(); err != nil {
		r.logger.Warnw("Failed to pause at end of clip", "handle", s.handle, "error", err)
	}
	if err := s.player.SeekTo(0); err != nil {
		r.logger.Warnw("Failed to rewind at end of clip", "handle", s.handle, "error", err)
	}

	s.active = false
	s.status = api.StatusStopped
	s.finishLocked(true)
	r.publish(api.EventCompleted, s.handle, nil)
}

// handleLoopSeek restarts a looping clip once its rewind completed
func (r *Registry) handleLoopSeek(s *session, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || !s.active {
		r.logger.Warnw("Audio stopping while waiting for loop to restart", "handle", s.handle)
		return
	}

	s.player.SetOnSeekComplete(nil)
	if err := s.player.Start(); err != nil {
		r.failLocked(s, fmt.Errorf("restart loop: %w", err))
		return
	}
	r.publish(api.EventLooped, s.handle, nil)
}

// handlePlaybackError runs on the player's goroutine when playback fails
func (r *Registry) handlePlaybackError(s *session, gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		r.logger.Debugw("Ignoring stale playback error", "handle", s.handle, "error", err)
		return
	}
	r.failLocked(s, err)
}

// failLocked reports a playback failure to the pending play exactly once
func (r *Registry) failLocked(s *session, err error) {
	r.logger.Warnw("Playback failed", "handle", s.handle, "error", err)
	s.active = false
	s.gen++
	s.status = api.StatusStopped
	s.finishLocked(false)
	r.publish(api.EventError, s.handle, err)
}

// Pause marks the session inactive and pauses it if playing
func (r *Registry) Pause(handle api.Handle) error {
	s, ok := r.get(handle)
	if !ok {
		return playerrors.NewPlayerError("pause", handle, playerrors.ErrUnknownHandle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deactivateLocked()
	s.dropLoopRestartLocked()
	if s.player.IsPlaying() {
		if err := s.player.Pause(); err != nil {
			return playerrors.NewPlayerError("pause", handle, err)
		}
	}
	if s.status == api.StatusPlaying {
		s.status = api.StatusPaused
		r.publish(api.EventPaused, handle, nil)
	}
	return nil
}

// Stop marks the session inactive, pauses it and rewinds to zero
func (r *Registry) Stop(handle api.Handle) error {
	s, ok := r.get(handle)
	if !ok {
		return playerrors.NewPlayerError("stop", handle, playerrors.ErrUnknownHandle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deactivateLocked()
	s.dropLoopRestartLocked()
	if !s.prepared() {
		return nil
	}
	if s.player.IsPlaying() {
		if err := s.player.Pause(); err != nil {
			return playerrors.NewPlayerError("stop", handle, err)
		}
	}
	if err := s.player.SeekTo(0); err != nil {
		return playerrors.NewPlayerError("stop", handle, err)
	}
	s.status = api.StatusStopped
	r.publish(api.EventStopped, handle, nil)
	return nil
}

// Release frees the session's player and forgets the handle
func (r *Registry) Release(handle api.Handle) error {
	r.mu.Lock()
	s, ok := r.sessions[handle]
	if ok {
		delete(r.sessions, handle)
	}
	r.mu.Unlock()

	if !ok {
		return playerrors.NewPlayerError("release", handle, playerrors.ErrUnknownHandle)
	}

	err := s.release()
	r.publish(api.EventReleased, handle, nil)
	if err != nil {
		return playerrors.NewPlayerError("release", handle, err)
	}
	return nil
}

// SetVolume sets independent left and right gain, each clamped to [0, 1]
func (r *Registry) SetVolume(handle api.Handle, left, right float64) error {
	s, ok := r.get(handle)
	if !ok {
		return playerrors.NewPlayerError("setVolume", handle, playerrors.ErrUnknownHandle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.left, s.right = clamp(left), clamp(right)
	if err := s.player.SetVolume(s.left, s.right); err != nil {
		return playerrors.NewPlayerError("setVolume", handle, err)
	}
	return nil
}

// SetLooping sets whether the clip restarts at its end
func (r *Registry) SetLooping(handle api.Handle, looping bool) error {
	s, ok := r.get(handle)
	if !ok {
		return playerrors.NewPlayerError("setLooping", handle, playerrors.ErrUnknownHandle)
	}

	s.mu.Lock()
	s.looping = looping
	s.mu.Unlock()
	return nil
}

// SetCurrentTime seeks to seconds, rounded to the millisecond
func (r *Registry) SetCurrentTime(handle api.Handle, seconds float64) error {
	s, ok := r.get(handle)
	if !ok {
		return playerrors.NewPlayerError("setCurrentTime", handle, playerrors.ErrUnknownHandle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.prepared() {
		return playerrors.NewPlayerError("setCurrentTime", handle, playerrors.ErrNotPrepared)
	}
	if err := s.player.SeekTo(int64(math.Round(seconds * 1000))); err != nil {
		return playerrors.NewPlayerError("setCurrentTime", handle, err)
	}
	return nil
}

// GetCurrentTime returns the position in seconds and whether the session is
// playing, or (-1, false) for an unknown handle.
func (r *Registry) GetCurrentTime(handle api.Handle) (float64, bool) {
	s, ok := r.get(handle)
	if !ok {
		return -1, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil || s.status == api.StatusReleased {
		return -1, false
	}
	return float64(s.player.CurrentPositionMS()) * .001, s.player.IsPlaying()
}

// Info returns a snapshot of one session
func (r *Registry) Info(handle api.Handle) (api.SessionInfo, bool) {
	s, ok := r.get(handle)
	if !ok {
		return api.SessionInfo{}, false
	}
	return s.info(), true
}

// Sessions returns snapshots of every live session ordered by handle
func (r *Registry) Sessions() []api.SessionInfo {
	r.mu.RLock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]api.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle < infos[j].Handle })
	return infos
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// TeardownAll releases every session unconditionally. A failing session is
// logged and does not stop the others from being released.
func (r *Registry) TeardownAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[api.Handle]*session)
	r.mu.Unlock()

	failures := 0
	for handle, s := range sessions {
		if err := r.teardownSession(s); err != nil {
			r.logger.Errorw("Failed to close audio during teardown", "handle", handle, "error", err)
			failures++
		}
		r.publish(api.EventReleased, handle, nil)
	}

	r.logger.Infow("Released all sessions", "count", len(sessions), "failures", failures)
}

func (r *Registry) teardownSession(s *session) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during teardown: %v", rec)
		}
	}()
	return s.teardown()
}

// store puts s under its handle and returns the session it replaced
func (r *Registry) store(s *session) *session {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.sessions[s.handle]
	r.sessions[s.handle] = s
	return previous
}

// discard removes s if it is still stored and releases it
func (r *Registry) discard(s *session) {
	r.mu.Lock()
	if r.sessions[s.handle] == s {
		delete(r.sessions, s.handle)
	}
	r.mu.Unlock()

	if err := s.release(); err != nil {
		r.logger.Warnw("Failed to release discarded session", "handle", s.handle, "error", err)
	}
}

func (r *Registry) get(handle api.Handle) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[handle]
	return s, ok
}

func (r *Registry) publish(eventType api.EventType, handle api.Handle, err error) {
	if r.bus == nil {
		return
	}
	event := api.SessionEvent{Type: eventType, Handle: handle, At: time.Now()}
	if err != nil {
		event.Error = err.Error()
	}
	r.bus.Publish(event)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
