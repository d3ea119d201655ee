package api

import "time"

// Handle is the caller-assigned key of a playback session
type Handle int

// Status is the lifecycle state of a session
type Status int

const (
	StatusCreated Status = iota
	StatusPrepared
	StatusPlaying
	StatusPaused
	StatusStopped
	StatusReleased
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusPrepared:
		return "prepared"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	case StatusReleased:
		return "released"
	default:
		return "unknown"
	}
}

// EventType identifies a session lifecycle notification
type EventType string

const (
	EventPrepared  EventType = "prepared"
	EventStarted   EventType = "started"
	EventPaused    EventType = "paused"
	EventStopped   EventType = "stopped"
	EventCompleted EventType = "completed"
	EventLooped    EventType = "looped"
	EventError     EventType = "error"
	EventReleased  EventType = "released"
)

// AllEventTypes lists every event type the registry publishes
func AllEventTypes() []EventType {
	return []EventType{
		EventPrepared,
		EventStarted,
		EventPaused,
		EventStopped,
		EventCompleted,
		EventLooped,
		EventError,
		EventReleased,
	}
}

// SessionEvent is published whenever a session changes state
type SessionEvent struct {
	Type   EventType `json:"type"`
	Handle Handle    `json:"handle"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// SessionInfo is a point-in-time view of one session
type SessionInfo struct {
	Handle   Handle        `json:"handle"`
	Source   string        `json:"source"`
	Status   Status        `json:"status"`
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
	Looping  bool          `json:"looping"`
	Left     float64       `json:"left"`
	Right    float64       `json:"right"`
}
