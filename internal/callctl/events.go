package callctl

import "time"

// EventKind is the orchestrator's lifecycle event tag (SPEC_FULL.md §3
// CallEvent, modeled on the teacher's events.Event but pared down to this
// endpoint's single-leg lifecycle — no bridge/tenant/billing fields).
type EventKind string

const (
	EventDialing     EventKind = "dialing"
	EventRinging     EventKind = "ringing"
	EventEstablished EventKind = "established"
	EventTerminating EventKind = "terminating"
	EventIdle        EventKind = "idle"
	EventFailed      EventKind = "failed"
)

// CallEvent is a single lifecycle transition, read from Orchestrator.Events
// by cmd/sipvoice's logger. The control surface does not read these events;
// its WAV_ACK text comes from the results of its own Call/Hangup/PlayWav
// calls.
type CallEvent struct {
	Kind   EventKind
	Reason string
	At     time.Time
}
