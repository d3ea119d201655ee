package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jscyril/soundbridge/api"
	"github.com/jscyril/soundbridge/internal/audio"
	playerrors "github.com/jscyril/soundbridge/pkg/errors"
	"github.com/jscyril/soundbridge/pkg/events"
)

const waitFor = 2 * time.Second

// fakePlayer is a scripted audio.Player. Listeners fire on their own
// goroutines, or from the test goroutine through complete and fail.
type fakePlayer struct {
	mu         sync.Mutex
	durationMS int64
	positionMS int64
	playing    bool
	prepareErr error
	startErr   error
	releaseErr error
	panicReset bool
	holdSeek   bool
	starts     int
	seeks      []int64
	resets     int
	releases   int
	left       float64
	right      float64

	onPrepared   func()
	onCompletion func()
	onError      func(error)
	onSeek       func()
}

var _ audio.Player = (*fakePlayer)(nil)

func (p *fakePlayer) PrepareAsync() {
	go func() {
		p.mu.Lock()
		err, onPrepared, onError := p.prepareErr, p.onPrepared, p.onError
		p.mu.Unlock()

		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onPrepared != nil {
			onPrepared()
		}
	}()
}

func (p *fakePlayer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.starts++
	p.playing = true
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return nil
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) SeekTo(positionMS int64) error {
	p.mu.Lock()
	p.positionMS = positionMS
	p.seeks = append(p.seeks, positionMS)
	hold := p.holdSeek
	p.mu.Unlock()

	if hold {
		return nil
	}
	go func() {
		p.mu.Lock()
		fn := p.onSeek
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	}()
	return nil
}

func (p *fakePlayer) CurrentPositionMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionMS
}

func (p *fakePlayer) DurationMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durationMS
}

func (p *fakePlayer) SetVolume(left, right float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left, p.right = left, right
	return nil
}

func (p *fakePlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicReset {
		panic("reset on a broken decoder")
	}
	p.resets++
	p.playing = false
	return nil
}

func (p *fakePlayer) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	p.playing = false
	return p.releaseErr
}

func (p *fakePlayer) SetOnPrepared(fn func()) {
	p.mu.Lock()
	p.onPrepared = fn
	p.mu.Unlock()
}

func (p *fakePlayer) SetOnCompletion(fn func()) {
	p.mu.Lock()
	p.onCompletion = fn
	p.mu.Unlock()
}

func (p *fakePlayer) SetOnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

func (p *fakePlayer) SetOnSeekComplete(fn func()) {
	p.mu.Lock()
	p.onSeek = fn
	p.mu.Unlock()
}

// complete simulates the engine reaching the end of the clip
func (p *fakePlayer) complete() {
	p.mu.Lock()
	p.playing = false
	p.positionMS = p.durationMS
	fn := p.onCompletion
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// fail simulates a mid-playback engine error
func (p *fakePlayer) fail(err error) {
	p.mu.Lock()
	p.playing = false
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (p *fakePlayer) released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases
}

// fixture builds a registry whose factory hands out fake players
type fixture struct {
	t        *testing.T
	registry *Registry
	bus      *events.EventBus
	logs     *observer.ObservedLogs
	dir      string

	mu      sync.Mutex
	players []*fakePlayer
	script  func(*fakePlayer)
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		t:    t,
		bus:  events.NewEventBus(),
		logs: logs,
		dir:  t.TempDir(),
	}
	factory := func(path string) (audio.Player, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		p := &fakePlayer{durationMS: 2500}
		if f.script != nil {
			f.script(p)
		}
		f.players = append(f.players, p)
		return p, nil
	}
	opts = append([]Option{WithEventBus(f.bus)}, opts...)
	f.registry = New(factory, zap.New(core).Sugar(), opts...)
	t.Cleanup(f.bus.Close)
	return f
}

func (f *fixture) file(name string) string {
	f.t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(f.t, os.WriteFile(path, []byte("RIFF"), 0o644))
	return path
}

func (f *fixture) prepare(handle api.Handle) *fakePlayer {
	f.t.Helper()
	_, err := f.registry.Prepare(context.Background(), f.file("clip.wav"), handle)
	require.NoError(f.t, err)
	return f.last()
}

func (f *fixture) last() *fakePlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.players[len(f.players)-1]
}

// receive waits for the completion channel to yield or close
func receive(t *testing.T, ch <-chan bool) (value, ok bool) {
	t.Helper()
	select {
	case value, ok = <-ch:
		return value, ok
	case <-time.After(waitFor):
		t.Fatal("completion channel neither yielded nor closed")
		return false, false
	}
}

func assertPending(t *testing.T, ch <-chan bool) {
	t.Helper()
	select {
	case v, ok := <-ch:
		t.Fatalf("expected pending completion, got value=%v ok=%v", v, ok)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPrepare_ReturnsDurationInSeconds(t *testing.T) {
	f := newFixture(t)

	duration, err := f.registry.Prepare(context.Background(), f.file("a.wav"), 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, duration, 1e-9)

	info, ok := f.registry.Info(1)
	require.True(t, ok)
	assert.Equal(t, api.StatusPrepared, info.Status)
	assert.Equal(t, 2500*time.Millisecond, info.Duration)
}

func TestPrepare_AcceptsFileURL(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Prepare(context.Background(), "file://"+f.file("a.wav"), 1)
	assert.NoError(t, err)
}

func TestPrepare_MissingResource(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Prepare(context.Background(), filepath.Join(f.dir, "missing.wav"), 1)
	require.ErrorIs(t, err, playerrors.ErrResourceNotFound)

	be := playerrors.ToBridgeError(err)
	assert.Equal(t, -1, be.Code)
	assert.Equal(t, "resource not found", be.Message)
	assert.Zero(t, f.registry.Len())
}

func TestPrepare_BundledNameWarns(t *testing.T) {
	bundle := fstest.MapFS{"chime.mp3": &fstest.MapFile{Data: []byte("ID3")}}
	f := newFixture(t, WithBundle(bundle))

	_, err := f.registry.Prepare(context.Background(), "chime", 1)
	require.ErrorIs(t, err, playerrors.ErrResourceNotFound)

	warnings := f.logs.FilterMessage("Bundled resources are not supported, expecting a file path")
	assert.Equal(t, 1, warnings.Len())
}

func TestPrepare_ReplacesLiveSession(t *testing.T) {
	f := newFixture(t)
	first := f.prepare(7)
	second := f.prepare(7)

	assert.Equal(t, 1, first.released())
	assert.Zero(t, second.released())
	assert.Equal(t, 1, f.registry.Len())
}

func TestPrepare_FailureReleasesSession(t *testing.T) {
	f := newFixture(t)
	f.script = func(p *fakePlayer) { p.prepareErr = errors.New("decoder exploded") }

	_, err := f.registry.Prepare(context.Background(), f.file("bad.wav"), 3)
	require.ErrorIs(t, err, playerrors.ErrPreparationFailed)

	assert.Zero(t, f.registry.Len())
	assert.Equal(t, 1, f.last().released())
}

func TestPrepare_ContextCancelled(t *testing.T) {
	f := newFixture(t)
	gate := f.gatePreparation(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.registry.Prepare(ctx, f.file("a.wav"), 4)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.registry.Len())
	assert.Equal(t, 1, f.last().released())
	close(gate)
}

func TestUnknownHandle(t *testing.T) {
	f := newFixture(t)
	r := f.registry

	_, err := r.Play(99)
	assert.ErrorIs(t, err, playerrors.ErrUnknownHandle)
	assert.ErrorIs(t, r.Pause(99), playerrors.ErrUnknownHandle)
	assert.ErrorIs(t, r.Stop(99), playerrors.ErrUnknownHandle)
	assert.ErrorIs(t, r.Release(99), playerrors.ErrUnknownHandle)
	assert.ErrorIs(t, r.SetVolume(99, 1, 1), playerrors.ErrUnknownHandle)
	assert.ErrorIs(t, r.SetLooping(99, true), playerrors.ErrUnknownHandle)
	assert.ErrorIs(t, r.SetCurrentTime(99, 1), playerrors.ErrUnknownHandle)

	position, playing := r.GetCurrentTime(99)
	assert.Equal(t, -1.0, position)
	assert.False(t, playing)
}

func TestPlay_CompletesOnceWithSuccess(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	done, err := f.registry.Play(1)
	require.NoError(t, err)
	assert.True(t, p.IsPlaying())

	p.complete()

	value, ok := receive(t, done)
	assert.True(t, ok)
	assert.True(t, value)
	_, ok = receive(t, done)
	assert.False(t, ok, "completion must be delivered only once")

	position, playing := f.registry.GetCurrentTime(1)
	assert.Zero(t, position, "finished clip rewinds to the start")
	assert.False(t, playing)

	info, _ := f.registry.Info(1)
	assert.Equal(t, api.StatusStopped, info.Status)
}

func TestPlay_AlreadyPlaying(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	first, err := f.registry.Play(1)
	require.NoError(t, err)

	second, err := f.registry.Play(1)
	assert.ErrorIs(t, err, playerrors.ErrAlreadyPlaying)
	assert.Nil(t, second)
	assert.Equal(t, 1, p.starts)
	assertPending(t, first)

	p.complete()
	value, ok := receive(t, first)
	assert.True(t, ok && value)
}

func TestPlay_NotPrepared(t *testing.T) {
	f := newFixture(t)
	gate := f.gatePreparation(t)

	prepared := make(chan error, 1)
	go func() {
		_, err := f.registry.Prepare(context.Background(), f.file("a.wav"), 5)
		prepared <- err
	}()

	require.Eventually(t, func() bool { return f.registry.Len() == 1 }, waitFor, time.Millisecond)
	_, err := f.registry.Play(5)
	assert.ErrorIs(t, err, playerrors.ErrNotPrepared)

	close(gate)
	assert.NoError(t, <-prepared)
}

// gatedPlayer delays preparation until gate is closed
type gatedPlayer struct {
	*fakePlayer
	gate chan struct{}
}

func (p *gatedPlayer) PrepareAsync() {
	go func() {
		<-p.gate
		p.fakePlayer.PrepareAsync()
	}()
}

// gatePreparation holds every prepared listener back until the returned
// channel is closed
func (f *fixture) gatePreparation(t *testing.T) chan struct{} {
	t.Helper()

	gate := make(chan struct{})
	factory := f.registry.factory
	f.registry.factory = func(path string) (audio.Player, error) {
		player, err := factory(path)
		if err != nil {
			return nil, err
		}
		return &gatedPlayer{fakePlayer: player.(*fakePlayer), gate: gate}, nil
	}
	return gate
}

func TestPlay_LoopingSuppressesCompletion(t *testing.T) {
	f := newFixture(t)
	looped := f.bus.Subscribe(api.EventLooped)
	p := f.prepare(1)
	require.NoError(t, f.registry.SetLooping(1, true))

	done, err := f.registry.Play(1)
	require.NoError(t, err)

	p.complete()

	select {
	case <-looped:
	case <-time.After(waitFor):
		t.Fatal("looping clip did not restart")
	}
	assert.True(t, p.IsPlaying())
	assert.Equal(t, 2, p.starts)
	assertPending(t, done)

	require.NoError(t, f.registry.Stop(1))
	_, ok := receive(t, done)
	assert.False(t, ok, "stop supersedes the pending play without a value")
}

func TestPlay_LoopRestartAfterStopIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.script = func(p *fakePlayer) { p.holdSeek = true }
	p := f.prepare(1)
	require.NoError(t, f.registry.SetLooping(1, true))

	_, err := f.registry.Play(1)
	require.NoError(t, err)

	p.complete()
	p.mu.Lock()
	pendingSeek := p.onSeek
	p.mu.Unlock()
	require.NotNil(t, pendingSeek, "looping completion should wait for the rewind")

	require.NoError(t, f.registry.Stop(1))
	p.mu.Lock()
	assert.Nil(t, p.onSeek, "stop should detach the loop restart")
	p.mu.Unlock()
	pendingSeek()

	assert.False(t, p.IsPlaying())
	assert.Equal(t, 1, p.starts)
	assert.Equal(t, 1, f.logs.FilterMessage("Audio stopping while waiting for loop to restart").Len())
}

func TestPause_DropsPendingLoopRestart(t *testing.T) {
	f := newFixture(t)
	f.script = func(p *fakePlayer) { p.holdSeek = true }
	p := f.prepare(1)
	require.NoError(t, f.registry.SetLooping(1, true))

	_, err := f.registry.Play(1)
	require.NoError(t, err)

	p.complete()
	require.NoError(t, f.registry.Pause(1))

	// Later seeks complete normally and must not wake the abandoned loop
	p.mu.Lock()
	p.holdSeek = false
	assert.Nil(t, p.onSeek)
	p.mu.Unlock()
	require.NoError(t, f.registry.SetCurrentTime(1, 0.25))

	assert.Never(t, func() bool {
		return f.logs.FilterMessage("Audio stopping while waiting for loop to restart").Len() > 0
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 1, p.starts)
}

func TestPlay_ErrorDeliversFalse(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	done, err := f.registry.Play(1)
	require.NoError(t, err)

	p.fail(errors.New("device unplugged"))
	p.fail(errors.New("device unplugged"))

	value, ok := receive(t, done)
	assert.True(t, ok)
	assert.False(t, value)
	_, ok = receive(t, done)
	assert.False(t, ok)
}

func TestPlay_StartFailure(t *testing.T) {
	f := newFixture(t)
	f.script = func(p *fakePlayer) { p.startErr = errors.New("no device") }
	f.prepare(1)

	_, err := f.registry.Play(1)
	assert.ErrorIs(t, err, playerrors.ErrPlaybackFailed)
}

func TestPause_SupersedesPendingPlay(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	done, err := f.registry.Play(1)
	require.NoError(t, err)

	require.NoError(t, f.registry.Pause(1))
	_, ok := receive(t, done)
	assert.False(t, ok)

	// A completion racing the pause is stale and must not rewind
	p.complete()
	assert.Empty(t, p.seeks)

	_, playing := f.registry.GetCurrentTime(1)
	assert.False(t, playing)

	info, _ := f.registry.Info(1)
	assert.Equal(t, api.StatusPaused, info.Status)
}

func TestPlay_ResumeAfterPause(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	_, err := f.registry.Play(1)
	require.NoError(t, err)
	require.NoError(t, f.registry.Pause(1))

	done, err := f.registry.Play(1)
	require.NoError(t, err)
	p.complete()

	value, ok := receive(t, done)
	assert.True(t, ok && value)
}

func TestStop_RewindsToStart(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	_, err := f.registry.Play(1)
	require.NoError(t, err)
	require.NoError(t, f.registry.SetCurrentTime(1, 1.2))

	require.NoError(t, f.registry.Stop(1))

	position, playing := f.registry.GetCurrentTime(1)
	assert.Zero(t, position)
	assert.False(t, playing)
	assert.Equal(t, int64(0), p.seeks[len(p.seeks)-1])
}

func TestStop_WhenNotPlaying(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	require.NoError(t, f.registry.Stop(1))
	assert.Equal(t, []int64{0}, p.seeks)
}

func TestRelease_ForgetsHandle(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	done, err := f.registry.Play(1)
	require.NoError(t, err)
	require.NoError(t, f.registry.Release(1))

	_, ok := receive(t, done)
	assert.False(t, ok)
	assert.Equal(t, 1, p.released())

	_, err = f.registry.Play(1)
	assert.ErrorIs(t, err, playerrors.ErrUnknownHandle)
	assert.ErrorIs(t, f.registry.Release(1), playerrors.ErrUnknownHandle)
	assert.Equal(t, 1, p.released())
}

func TestSetVolume_Clamps(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	require.NoError(t, f.registry.SetVolume(1, 1.7, -0.3))
	assert.Equal(t, 1.0, p.left)
	assert.Equal(t, 0.0, p.right)

	require.NoError(t, f.registry.SetVolume(1, 0.25, 0.75))
	info, _ := f.registry.Info(1)
	assert.Equal(t, 0.25, info.Left)
	assert.Equal(t, 0.75, info.Right)
}

func TestSetLooping_HonoursValue(t *testing.T) {
	f := newFixture(t)
	f.prepare(1)

	require.NoError(t, f.registry.SetLooping(1, true))
	info, _ := f.registry.Info(1)
	assert.True(t, info.Looping)

	require.NoError(t, f.registry.SetLooping(1, false))
	info, _ = f.registry.Info(1)
	assert.False(t, info.Looping)
}

func TestSetCurrentTime_RoundsToMilliseconds(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)

	tests := []struct {
		seconds float64
		wantMS  int64
	}{
		{1.5, 1500},
		{0.0004, 0},
		{0.0015, 2},
		{2.2, 2200},
	}

	for _, tt := range tests {
		require.NoError(t, f.registry.SetCurrentTime(1, tt.seconds))
		assert.Equal(t, tt.wantMS, p.seeks[len(p.seeks)-1], "seconds=%v", tt.seconds)
	}

	position, _ := f.registry.GetCurrentTime(1)
	assert.InDelta(t, 2.2, position, 1e-9)
}

func TestTeardownAll_ContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	healthy := f.prepare(1)

	f.script = func(p *fakePlayer) { p.releaseErr = errors.New("codec busy") }
	broken := f.prepare(2)

	f.script = nil
	playing := f.prepare(3)
	done, err := f.registry.Play(3)
	require.NoError(t, err)

	f.registry.TeardownAll()

	assert.Zero(t, f.registry.Len())
	for _, p := range []*fakePlayer{healthy, broken, playing} {
		assert.Equal(t, 1, p.released())
		assert.Equal(t, 1, p.resets)
	}
	assert.False(t, playing.IsPlaying())

	_, ok := receive(t, done)
	assert.False(t, ok)

	failures := f.logs.FilterMessage("Failed to close audio during teardown")
	require.Equal(t, 1, failures.Len())
	assert.Equal(t, zapcore.ErrorLevel, failures.All()[0].Level)
	assert.Equal(t, api.Handle(2), failures.All()[0].ContextMap()["handle"])
}

func TestTeardownAll_RecoversPanics(t *testing.T) {
	f := newFixture(t)
	f.script = func(p *fakePlayer) { p.panicReset = true }
	broken := f.prepare(1)
	f.script = nil
	healthy := f.prepare(2)

	assert.NotPanics(t, f.registry.TeardownAll)

	assert.Zero(t, f.registry.Len())
	assert.Equal(t, 1, healthy.released())
	assert.Zero(t, broken.released())
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to close audio during teardown").Len())
}

func TestTeardownAll_ListenersCleared(t *testing.T) {
	f := newFixture(t)
	p := f.prepare(1)
	_, err := f.registry.Play(1)
	require.NoError(t, err)

	f.registry.TeardownAll()

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Nil(t, p.onCompletion)
	assert.Nil(t, p.onError)
	assert.Nil(t, p.onPrepared)
	assert.Nil(t, p.onSeek)
}

func TestSessions_SortedByHandle(t *testing.T) {
	f := newFixture(t)
	f.prepare(9)
	f.prepare(2)
	f.prepare(5)

	var handles []api.Handle
	for _, info := range f.registry.Sessions() {
		handles = append(handles, info.Handle)
	}
	assert.Equal(t, []api.Handle{2, 5, 9}, handles)
}

func TestEventsPublished(t *testing.T) {
	f := newFixture(t)
	all := f.bus.SubscribeAll()
	p := f.prepare(1)

	_, err := f.registry.Play(1)
	require.NoError(t, err)
	p.complete()
	require.NoError(t, f.registry.Release(1))

	var got []api.EventType
	for len(got) < 4 {
		select {
		case e := <-all:
			assert.Equal(t, api.Handle(1), e.Handle)
			got = append(got, e.Type)
		case <-time.After(waitFor):
			t.Fatalf("missing events, got %v", got)
		}
	}
	assert.Equal(t, []api.EventType{api.EventPrepared, api.EventStarted, api.EventCompleted, api.EventReleased}, got)
}
