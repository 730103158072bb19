package tutor

// State is the session phase. Exactly one is active at a time.
type State int

const (
	Idle State = iota
	Listening
	Analyzing
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Analyzing:
		return "analyzing"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Busy reports whether the toggle is locked out in this state.
func (s State) Busy() bool {
	return s == Analyzing || s == Speaking
}

// ErrorKind flags the last failure for the front end.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorPermission
	ErrorOther
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorPermission:
		return "permission"
	case ErrorOther:
		return "other"
	default:
		return "none"
	}
}

// EventKind names everything that can move the state machine.
type EventKind int

const (
	EventStart          EventKind = iota // user toggle while idle, permission granted
	EventDenied                          // permission probe refused
	EventStop                            // user toggle while listening
	EventResult                          // final transcript
	EventCaptureFailed                   // permission, no-speech or other capture error
	EventCancelled                       // capture ended without result or error
	EventAnalysisFailed                  // analyzer or mistake log failed
	EventAudioReady                      // synthesis produced audio
	EventNoAudio                         // synthesis produced nothing
	EventPlaybackEnded                   // player returned
)

func (e EventKind) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventDenied:
		return "denied"
	case EventStop:
		return "stop"
	case EventResult:
		return "result"
	case EventCaptureFailed:
		return "capture_failed"
	case EventCancelled:
		return "cancelled"
	case EventAnalysisFailed:
		return "analysis_failed"
	case EventAudioReady:
		return "audio_ready"
	case EventNoAudio:
		return "no_audio"
	case EventPlaybackEnded:
		return "playback_ended"
	default:
		return "unknown"
	}
}

type edge struct {
	from State
	ev   EventKind
}

var transitions = map[edge]State{
	{Idle, EventStart}:  Listening,
	{Idle, EventDenied}: Idle,

	{Listening, EventStop}:          Idle,
	{Listening, EventResult}:        Analyzing,
	{Listening, EventCaptureFailed}: Idle,
	{Listening, EventCancelled}:     Idle,

	{Analyzing, EventAnalysisFailed}: Idle,
	{Analyzing, EventAudioReady}:     Speaking,
	{Analyzing, EventNoAudio}:        Idle,

	{Speaking, EventPlaybackEnded}: Idle,
}

// Transition returns the state reached from `from` on ev. ok is false when ev
// is not valid in `from`; such events are dropped.
func Transition(from State, ev EventKind) (State, bool) {
	to, ok := transitions[edge{from, ev}]
	return to, ok
}

// Snapshot is an immutable view of the controller.
type Snapshot struct {
	State      State
	Transcript string
	Feedback   string
	Error      ErrorKind
}
