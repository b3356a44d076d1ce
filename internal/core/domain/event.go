package domain

import "time"

// Lifecycle event names published after each status transition.
const (
	EventCreated = "server.created"
	EventRunning = "server.running"
	EventFailed  = "server.failed"
	EventStopped = "server.stopped"
)

// Event describes a server lifecycle transition.
type Event struct {
	Event    string    `json:"event"`
	ID       ID        `json:"id"`
	Name     string    `json:"name"`
	Instance string    `json:"instance"`
	Time     time.Time `json:"time"`
	Error    string    `json:"error,omitempty"`
}
