package core

type OutcomeKind string

const (
	OutcomeDetected     OutcomeKind = "detected"
	OutcomeNoDetections OutcomeKind = "no-detections"
	OutcomeReplied      OutcomeKind = "replied"
	OutcomeFailed       OutcomeKind = "failed"
	OutcomeStale        OutcomeKind = "stale"
)

// Outcome reports how a chat message was handled. Message is the assistant
// text appended to the transcript, empty for stale outcomes. Notice is the
// transient notification to show, if any.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message,omitempty"`
	Notice  string      `json:"notice,omitempty"`
	Boxes   int         `json:"boxes,omitempty"`
}

const (
	detectedText     = "Detected and annotated requested elements."
	noDetectionsText = "No elements detected or unable to parse detection results."
	noImageText      = "Please upload a drawing before asking me to detect components."
)

func errorText(err error) string {
	return "Error: " + err.Error()
}
