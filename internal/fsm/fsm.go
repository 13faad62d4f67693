// Package fsm defines the daemon lifecycle state machine.
package fsm

// State is one lifecycle state for the dictation daemon.
type State string

// Event is one transition trigger consumed by the state machine.
type Event string

const (
	StateIdle              State = "Idle"
	StateRecording         State = "Recording"
	StateStreaming         State = "Streaming"
	StateTranscribing      State = "Transcribing"
	StateInjecting         State = "Injecting"
	StateRecoveringSession State = "RecoveringSession"
)

const (
	EventActivated       Event = "activated"
	EventDeactivated     Event = "deactivated"
	EventTranscriptReady Event = "transcript-ready"
	EventInjectionDone   Event = "injection-done"
	EventError           Event = "error"
	EventRecovered       Event = "recovered"
)

// Transition applies one event to a state. The second return is false when
// the event is a no-op in the current state; the caller must then keep the
// state unchanged.
func Transition(current State, event Event) (State, bool) {
	if event == EventError {
		return StateRecoveringSession, true
	}

	switch current {
	case StateIdle:
		if event == EventActivated {
			return StateRecording, true
		}
	case StateRecording:
		if event == EventDeactivated {
			return StateTranscribing, true
		}
	case StateStreaming:
		switch event {
		case EventDeactivated:
			return StateTranscribing, true
		case EventInjectionDone:
			// Streaming session failed before the toggle-stop.
			return StateIdle, true
		}
	case StateTranscribing:
		switch event {
		case EventTranscriptReady:
			return StateInjecting, true
		case EventInjectionDone:
			// Streaming sessions finalize directly from Transcribing.
			return StateIdle, true
		}
	case StateInjecting:
		switch event {
		case EventInjectionDone:
			return StateIdle, true
		case EventActivated:
			// New capture may begin while the injector queue drains.
			return StateRecording, true
		}
	case StateRecoveringSession:
		if event == EventRecovered {
			return StateIdle, true
		}
	}

	return current, false
}
