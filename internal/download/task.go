// Package download fetches finished recording artifacts announced by the
// provider's recording webhooks. A fixed worker pool drains a shared queue;
// each task carries its own retry budget and exhausted tasks land on a
// failed list that an explicit sweep can retry later.
package download

import (
	"path/filepath"

	"surveydialer/internal/tracker"
)

// TaskKind tags the artifact class a task fetches. The kind decides the
// target directory, the filename and the minimum plausible size.
type TaskKind string

const (
	KindFullCall TaskKind = "full_call"
	KindStep     TaskKind = "step"
)

// Audio below these sizes is a fragment of a dropped call, not a usable
// artifact. Thresholds are exclusive: a file must be strictly larger.
const (
	fullCallMinBytes = 1024
	stepMinBytes     = 512
)

// Task is one artifact to fetch. Step tasks carry the bracket metadata so a
// permanent failure can be logged against the step it belongs to.
type Task struct {
	Kind             TaskKind
	RecordingURL     string
	ConversationUUID string

	// Step is set only when Kind is KindStep.
	Step tracker.StepRecording

	attempts int
}

// FullCallTask builds the task for the call-scoped recording that arrives at
// hangup.
func FullCallTask(recordingURL, conversationUUID string) Task {
	return Task{
		Kind:             KindFullCall,
		RecordingURL:     recordingURL,
		ConversationUUID: conversationUUID,
	}
}

// StepTask builds the task for one survey-step recording bracket.
func StepTask(recordingURL string, sr tracker.StepRecording) Task {
	return Task{
		Kind:             KindStep,
		RecordingURL:     recordingURL,
		ConversationUUID: sr.ConversationUUID,
		Step:             sr,
	}
}

// relPath is the artifact path relative to the download root.
func (t Task) relPath() string {
	switch t.Kind {
	case KindStep:
		return filepath.Join(stepDir, "step_"+t.Step.StepID+"_"+t.ConversationUUID+".wav")
	default:
		return filepath.Join(fullCallDir, "full_call_"+t.ConversationUUID+".wav")
	}
}

func (t Task) minBytes() int {
	if t.Kind == KindStep {
		return stepMinBytes
	}
	return fullCallMinBytes
}
