// Package streamstatus derives the viewer-facing state of a stream from its
// server flags, its schedule and an injected evaluation time.
package streamstatus

import (
	"errors"
	"time"

	"github.com/eventpass/streamgate/internal/models"
)

// DisplayState is the discrete status shown to a viewer.
type DisplayState string

const (
	Loading         DisplayState = "loading"
	Live            DisplayState = "live"
	StartingSoon    DisplayState = "starting_soon"
	ReplayAvailable DisplayState = "replay_available"
	Ended           DisplayState = "ended"
	Offline         DisplayState = "offline"
)

var (
	// ErrMalformedSession means the schedule is missing or could not be parsed.
	ErrMalformedSession = errors.New("stream session has no usable schedule")
	// ErrInvalidSchedule means the scheduled start is after the scheduled end.
	ErrInvalidSchedule = errors.New("stream session starts after it ends")
)

// States lists every DisplayState.
var States = []DisplayState{Loading, Live, StartingSoon, ReplayAvailable, Ended, Offline}

// Derive returns the DisplayState of session at now. Malformed sessions fail
// closed; use Evaluate to also get the diagnostic.
func Derive(session *models.StreamSession, now time.Time) DisplayState {
	state, _ := Evaluate(session, now)
	return state
}

// Evaluate is Derive plus a diagnostic error for sessions whose schedule had to
// be ignored. The returned state is always usable, even when err is non-nil.
func Evaluate(session *models.StreamSession, now time.Time) (DisplayState, error) {
	if session == nil {
		return Loading, nil
	}
	if session.IsCurrentlyActive {
		return Live, nil
	}
	start, end := session.ScheduledStart, session.ScheduledEnd
	if start.IsZero() || end.IsZero() {
		return Offline, ErrMalformedSession
	}
	if start.After(end) {
		return Ended, ErrInvalidSchedule
	}
	switch {
	case now.Before(start):
		return StartingSoon, nil
	case now.After(end) && session.ReplayPermitted:
		return ReplayAvailable, nil
	case now.After(end):
		return Ended, nil
	default:
		return Offline, nil
	}
}
