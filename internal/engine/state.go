package engine

// State is the playback engine state machine.
//
// Idle → Loading → Playing → (Fading → Idle | Playing)
//
// Loading short-circuits back to Idle when the invocation is superseded
// before its asynchronous steps finish.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StateFading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateLoading:
		return "LOADING"
	case StatePlaying:
		return "PLAYING"
	case StateFading:
		return "FADING"
	default:
		return "UNKNOWN"
	}
}

// Reason records who initiated playback. Manual playback is never
// pre-empted by automatic intents.
type Reason string

const (
	ReasonAuto   Reason = "auto"
	ReasonManual Reason = "manual"
)
