// Package bridge exposes the session registry to a UI-side caller through
// callback style commands, and carries them over a websocket.
package bridge

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jscyril/soundbridge/api"
	"github.com/jscyril/soundbridge/internal/registry"
	playerrors "github.com/jscyril/soundbridge/pkg/errors"
)

// DefaultName is the module name callers look the bridge up by
const DefaultName = "RNSound"

// Callback receives the positional results of a command
type Callback func(args ...interface{})

// Module is the command surface of the registry
type Module struct {
	name     string
	registry *registry.Registry
	logger   *zap.SugaredLogger
}

// NewModule creates a module named name over reg
func NewModule(name string, reg *registry.Registry, logger *zap.SugaredLogger) *Module {
	if name == "" {
		name = DefaultName
	}
	return &Module{
		name:     name,
		registry: reg,
		logger:   logger.Named("bridge"),
	}
}

// Name returns the module name
func (m *Module) Name() string {
	return m.name
}

// Constants returns the values exported to the caller at startup
func (m *Module) Constants() map[string]interface{} {
	return map[string]interface{}{
		"IsAndroid": true,
	}
}

// Prepare loads source under handle. The callback receives either a
// BridgeError or nil followed by {duration}. It is invoked from a separate
// goroutine once preparation settles.
func (m *Module) Prepare(ctx context.Context, source string, handle api.Handle, cb Callback) {
	go func() {
		duration, err := m.registry.Prepare(ctx, source, handle)
		if err != nil {
			m.logger.Warnw("Prepare failed", "handle", handle, "source", source, "error", err)
			cb(playerrors.ToBridgeError(err))
			return
		}
		cb(nil, map[string]interface{}{"duration": duration})
	}()
}

// Play starts playback. The callback receives true at the natural end of a
// non-looping clip, false on failure or an unknown handle, and nothing when
// the session was already playing or the play is superseded.
func (m *Module) Play(handle api.Handle, cb Callback) {
	done, err := m.registry.Play(handle)
	switch {
	case errors.Is(err, playerrors.ErrAlreadyPlaying):
		return
	case err != nil:
		m.logger.Debugw("Play rejected", "handle", handle, "error", err)
		cb(false)
		return
	}

	go func() {
		if success, ok := <-done; ok {
			cb(success)
		}
	}()
}

func (m *Module) Pause(handle api.Handle) {
	m.check(m.registry.Pause(handle))
}

func (m *Module) Stop(handle api.Handle) {
	m.check(m.registry.Stop(handle))
}

func (m *Module) Release(handle api.Handle) {
	m.check(m.registry.Release(handle))
}

func (m *Module) SetVolume(handle api.Handle, left, right float64) {
	m.check(m.registry.SetVolume(handle, left, right))
}

func (m *Module) SetLooping(handle api.Handle, looping bool) {
	m.check(m.registry.SetLooping(handle, looping))
}

func (m *Module) SetCurrentTime(handle api.Handle, seconds float64) {
	m.check(m.registry.SetCurrentTime(handle, seconds))
}

// GetCurrentTime calls back with the position in seconds and whether the
// session is playing; an unknown handle yields (-1, false).
func (m *Module) GetCurrentTime(handle api.Handle, cb Callback) {
	position, playing := m.registry.GetCurrentTime(handle)
	cb(position, playing)
}

// Enable is reserved and does nothing
func (m *Module) Enable(enabled bool) {
	m.logger.Debugw("Ignoring enable", "enabled", enabled)
}

// OnDestroy releases every session when the host goes away
func (m *Module) OnDestroy() {
	m.logger.Info("Host destroyed, releasing all sessions")
	m.registry.TeardownAll()
}

// check swallows unknown handles and logs anything else
func (m *Module) check(err error) {
	if err == nil || errors.Is(err, playerrors.ErrUnknownHandle) {
		return
	}
	m.logger.Warnw("Command failed", "error", err)
}
