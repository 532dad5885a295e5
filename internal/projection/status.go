package projection

import "time"

// EventKind classifies a StatusEvent for observers that only care about
// certain categories (dashboards, alerting).
type EventKind int

const (
	EventEnvelopeAccepted EventKind = iota
	EventEnvelopeDuplicate
	EventEnvelopeRejected
	EventReplayTriggered
	EventHandlerError
	EventOffsetCommitted
	EventRestarting
	EventPaused
	EventResumed
)

// StatusEvent is emitted to the driver's StatusObserver, if one is
// configured. Observers must not block; the driver invokes them
// synchronously on the hot path and recovers a panicking observer so a
// misbehaving dashboard integration cannot take down the projection.
type StatusEvent struct {
	Kind      EventKind
	Time      time.Time
	Pid       string
	SeqNr     uint64
	Slice     int
	Err       error
	Restarts  int
	RetryWait time.Duration
}

func (k EventKind) String() string {
	switch k {
	case EventEnvelopeAccepted:
		return "envelope_accepted"
	case EventEnvelopeDuplicate:
		return "envelope_duplicate"
	case EventEnvelopeRejected:
		return "envelope_rejected"
	case EventReplayTriggered:
		return "replay_triggered"
	case EventHandlerError:
		return "handler_error"
	case EventOffsetCommitted:
		return "offset_committed"
	case EventRestarting:
		return "restarting"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// StatusObserver receives StatusEvents as the driver processes envelopes.
type StatusObserver func(StatusEvent)

func (d *Driver) emit(ev StatusEvent) {
	if d.observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = d.now()
	}
	defer func() { _ = recover() }()
	d.observer(ev)
}
