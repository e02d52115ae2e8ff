package voice

import (
	"encoding/json"
	"strings"
)

// Webhook payload shapes the provider posts back. Parsing stays in the
// adapter; what the inputs mean is the IVR's concern.

// EventPayload is the call-status webhook body.
type EventPayload struct {
	UUID             string `json:"uuid"`
	ConversationUUID string `json:"conversation_uuid"`
	Status           string `json:"status"`
	SubState         string `json:"sub_state"`
	Direction        string `json:"direction"`
	From             string `json:"from"`
	To               string `json:"to"`
	Timestamp        string `json:"timestamp"`
}

// InputPayload is the dtmf/speech webhook body.
type InputPayload struct {
	UUID             string       `json:"uuid"`
	ConversationUUID string       `json:"conversation_uuid"`
	DTMF             DTMFResult   `json:"dtmf"`
	Speech           SpeechResult `json:"speech"`
}

// DTMFResult tolerates both the object form {"digits":"1"} and the legacy
// bare-string form the provider has shipped over time.
type DTMFResult struct {
	Digits   string `json:"digits"`
	TimedOut bool   `json:"timed_out"`
}

func (d *DTMFResult) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &d.Digits)
	}
	type alias DTMFResult
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = DTMFResult(a)
	return nil
}

type SpeechResult struct {
	TimeoutReason string         `json:"timeout_reason,omitempty"`
	Results       []SpeechResultAlternative `json:"results"`
}

type SpeechResultAlternative struct {
	Text       string `json:"text"`
	Confidence string `json:"confidence"`
}

// Transcript returns the top recognizer alternative, trimmed. Empty when the
// recognizer produced nothing.
func (p InputPayload) Transcript() string {
	if len(p.Speech.Results) == 0 {
		return ""
	}
	return strings.TrimSpace(p.Speech.Results[0].Text)
}

// RecordingPayload is the artifact-ready webhook body.
type RecordingPayload struct {
	RecordingURL     string `json:"recording_url"`
	RecordingUUID    string `json:"recording_uuid"`
	ConversationUUID string `json:"conversation_uuid"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	Size             int64  `json:"size"`
}
