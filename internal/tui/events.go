package tui

import (
	"github.com/felixgeelhaar/campusconnect/internal/navigation"
	"github.com/felixgeelhaar/campusconnect/internal/session"
)

// eventBuffer bounds queued events between the session and the view.
const eventBuffer = 32

// Events carries session states and guard redirects into a WatchModel.
// Register OnState with the controller and pass Events as the guard's Router.
type Events struct {
	states    chan session.State
	redirects chan navigation.Screen
}

// NewEvents creates an empty event queue.
func NewEvents() *Events {
	return &Events{
		states:    make(chan session.State, eventBuffer),
		redirects: make(chan navigation.Screen, eventBuffer),
	}
}

// OnState is a session.Listener. When the queue is full the oldest state is
// dropped; the view only needs the latest.
func (e *Events) OnState(st session.State) {
	for {
		select {
		case e.states <- st:
			return
		default:
		}
		select {
		case <-e.states:
		default:
		}
	}
}

// Redirect implements navigation.Router. Redirects beyond the queue are dropped.
func (e *Events) Redirect(to navigation.Screen) {
	select {
	case e.redirects <- to:
	default:
	}
}
