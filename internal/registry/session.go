package registry

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/jscyril/soundbridge/api"
	"github.com/jscyril/soundbridge/internal/audio"
)

// session pairs a handle with the player it exclusively owns.
//
// active says whether playback should continue; gen is bumped on every
// listener registration and every deactivation, and asynchronous callbacks
// compare it with the value they captured to detect that they are stale.
type session struct {
	handle api.Handle
	source string
	player audio.Player

	mu      sync.Mutex
	status  api.Status
	looping bool
	active  bool
	gen     uint64
	left    float64
	right   float64
	done    chan bool     // completion of the current play registration
	closed  chan struct{} // closed once released
}

func newSession(handle api.Handle, source string, player audio.Player) *session {
	return &session{
		handle: handle,
		source: source,
		player: player,
		status: api.StatusCreated,
		left:   1,
		right:  1,
		closed: make(chan struct{}),
	}
}

// deactivateLocked marks the session inactive and supersedes the pending play
func (s *session) deactivateLocked() {
	s.active = false
	s.gen++
	s.closeDoneLocked()
}

// closeDoneLocked drops the pending completion without delivering a result
func (s *session) closeDoneLocked() {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

// dropLoopRestartLocked detaches a loop restart still waiting on its rewind
func (s *session) dropLoopRestartLocked() {
	s.player.SetOnSeekComplete(nil)
}

// finishLocked delivers the single completion result of the pending play
func (s *session) finishLocked(success bool) {
	if s.done != nil {
		s.done <- success
		close(s.done)
		s.done = nil
	}
}

func (s *session) prepared() bool {
	return s.status != api.StatusCreated && s.status != api.StatusReleased
}

// release frees the player; it is a no-op once released
func (s *session) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == api.StatusReleased {
		return nil
	}
	s.deactivateLocked()
	s.status = api.StatusReleased
	close(s.closed)
	return s.player.Release()
}

// teardown detaches every listener, then pauses, resets and releases the
// player. A failing step does not skip the ones after it.
func (s *session) teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == api.StatusReleased {
		return nil
	}
	s.deactivateLocked()
	s.status = api.StatusReleased
	close(s.closed)

	p := s.player
	p.SetOnCompletion(nil)
	p.SetOnPrepared(nil)
	p.SetOnError(nil)
	p.SetOnSeekComplete(nil)

	var err error
	if p.IsPlaying() {
		multierr.AppendInto(&err, p.Pause())
	}
	multierr.AppendInto(&err, p.Reset())
	multierr.AppendInto(&err, p.Release())
	return err
}

func (s *session) info() api.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := api.SessionInfo{
		Handle:  s.handle,
		Source:  s.source,
		Status:  s.status,
		Looping: s.looping,
		Left:    s.left,
		Right:   s.right,
	}
	if s.prepared() {
		info.Position = msToDuration(s.player.CurrentPositionMS())
		info.Duration = msToDuration(s.player.DurationMS())
	}
	return info
}
