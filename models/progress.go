package models

// Phase is one node of the extraction phase graph. The engine only ever
// moves forward through this list, with two side edges: any phase can jump
// to PhaseError, and PhaseExtracting can jump to PhaseAutoSwitch when the
// primary host 404s and the backup takes over under a new request ID.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseConnecting   Phase = "connecting"
	PhaseNavigating   Phase = "navigating"
	PhaseBypassing    Phase = "bypassing"
	PhaseExtracting   Phase = "extracting"
	PhaseSubtitles    Phase = "subtitles"
	PhaseValidating   Phase = "validating"
	PhaseFinalizing   Phase = "finalizing"
	PhaseComplete     Phase = "complete"
	PhaseAutoSwitch   Phase = "autoswitch"
	PhaseError        Phase = "error"
)

// Terminal reports whether no further events may follow this phase.
// Autoswitch is not terminal for the caller: the stream continues under the
// follow-up job.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

var phaseRank = map[Phase]int{
	PhaseInitializing: 0,
	PhaseConnecting:   1,
	PhaseNavigating:   2,
	PhaseBypassing:    3,
	PhaseExtracting:   4,
	PhaseSubtitles:    5,
	PhaseValidating:   6,
	PhaseFinalizing:   7,
	PhaseComplete:     8,
}

// CanFollow reports whether p is a legal successor of q in the phase graph,
// i.e. whether an event stream may emit p directly after q.
func (p Phase) CanFollow(q Phase) bool {
	if p == PhaseError || p == PhaseAutoSwitch {
		return !q.Terminal()
	}
	pr, ok1 := phaseRank[p]
	qr, ok2 := phaseRank[q]
	if !ok1 || !ok2 {
		return false
	}
	return pr >= qr
}

// ProgressEvent is one frame on the job's event stream. Progress is monotone
// non-decreasing within a job; exactly one terminal event is emitted.
type ProgressEvent struct {
	RequestID string         `json:"requestId"`
	Phase     Phase          `json:"phase"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message,omitempty"`
	Result    *ExtractResult `json:"result,omitempty"`
	Error     *EventError    `json:"error,omitempty"`
}

// EventError is the wire shape of a terminal failure.
type EventError struct {
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId"`
	Debug     map[string]any `json:"debug,omitempty"`
}
