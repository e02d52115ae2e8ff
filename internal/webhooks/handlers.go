// Package webhooks terminates the provider's asynchronous callbacks. Every
// handler records what arrived before it reacts, tolerates unknown
// conversations, and always answers so the provider never times a call out.
package webhooks

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"surveydialer/internal/artifact"
	"surveydialer/internal/download"
	"surveydialer/internal/ivr"
	"surveydialer/internal/metrics"
	"surveydialer/internal/tracker"
	"surveydialer/internal/voice"

	"github.com/gin-gonic/gin"
)

// Handlers groups webhook HTTP handlers for dependency injection.
// Keep these thin: decode the delivery, record it, let the machine decide.
type Handlers struct {
	Tracker   *tracker.Tracker
	Machine   *ivr.Machine
	Downloads *download.Pool
	Artifacts *artifact.Store
	Log       *slog.Logger
}

// Event handles call status transitions. Human detection starts the survey,
// machine detection plays the voicemail or screener branch, everything else
// is recorded and acknowledged.
func (h Handlers) Event(c *gin.Context) {
	metrics.IncWebhookEvent("event")

	raw, payload, ok := decode[voice.EventPayload](c)
	if !ok {
		return
	}

	h.Tracker.RecordEvent(payload.ConversationUUID, raw)
	if err := h.Artifacts.AppendWebhook("event", payload.ConversationUUID, raw); err != nil {
		h.Log.Error("event webhook append failed", "conversation_uuid", payload.ConversationUUID, "err", err)
	}
	h.Log.Info("call event",
		"conversation_uuid", payload.ConversationUUID,
		"status", payload.Status,
		"sub_state", payload.SubState)

	switch payload.Status {
	case "human":
		callUUID := h.resolveCallUUID(payload.ConversationUUID, payload.UUID)
		c.JSON(http.StatusOK, h.Machine.OnHumanDetected(c.Request.Context(), payload.ConversationUUID, callUUID))
	case "machine":
		c.JSON(http.StatusOK, h.Machine.OnMachineDetected(payload.SubState))
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Input handles the combined dtmf+speech delivery for the current survey
// step. The response NCCO is the next prompt, a reprompt, or the thank-you.
func (h Handlers) Input(c *gin.Context) {
	metrics.IncWebhookEvent("dtmf_input")

	raw, payload, ok := decode[voice.InputPayload](c)
	if !ok {
		return
	}

	h.Tracker.RecordEvent(payload.ConversationUUID, raw)
	if err := h.Artifacts.AppendWebhook("dtmf_input", payload.ConversationUUID, raw); err != nil {
		h.Log.Error("input webhook append failed", "conversation_uuid", payload.ConversationUUID, "err", err)
	}

	digits := payload.DTMF.Digits
	transcript := payload.Transcript()
	h.Log.Info("survey input",
		"conversation_uuid", payload.ConversationUUID,
		"digits", digits,
		"transcript", transcript)

	callUUID := h.resolveCallUUID(payload.ConversationUUID, payload.UUID)
	c.JSON(http.StatusOK, h.Machine.OnInput(c.Request.Context(), payload.ConversationUUID, callUUID, digits, transcript))
}

// Recording handles a finished artifact announcement. The recording uuid
// decides the artifact class: a tracked step bracket becomes a step task,
// anything else is the call-scoped recording.
func (h Handlers) Recording(c *gin.Context) {
	metrics.IncWebhookEvent("recording")

	raw, payload, ok := decode[voice.RecordingPayload](c)
	if !ok {
		return
	}

	if err := h.Artifacts.AppendWebhook("recording", payload.ConversationUUID, raw); err != nil {
		h.Log.Error("recording webhook append failed", "conversation_uuid", payload.ConversationUUID, "err", err)
	}

	if sr, found := h.Tracker.FindStepRecording(payload.RecordingUUID); found {
		h.Log.Info("step recording finished",
			"conversation_uuid", sr.ConversationUUID,
			"step", sr.StepID,
			"recording_uuid", payload.RecordingUUID)
		h.Downloads.Enqueue(download.StepTask(payload.RecordingURL, sr))
	} else {
		h.Log.Info("full call recording finished",
			"conversation_uuid", payload.ConversationUUID,
			"recording_uuid", payload.RecordingUUID)
		h.Downloads.Enqueue(download.FullCallTask(payload.RecordingURL, payload.ConversationUUID))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ASR captures raw speech-recognition deliveries for offline analysis.
func (h Handlers) ASR(c *gin.Context) {
	metrics.IncWebhookEvent("asr")
	h.passthrough(c, "asr")
}

// RTCEvents captures the provider's RTC event stream for offline analysis.
func (h Handlers) RTCEvents(c *gin.Context) {
	metrics.IncWebhookEvent("rtc_events")
	h.passthrough(c, "rtc_events")
}

func (h Handlers) passthrough(c *gin.Context, kind string) {
	raw, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	id := conversationID(raw)
	if err := h.Artifacts.AppendWebhook(kind, id, raw); err != nil {
		h.Log.Error("webhook append failed", "kind", kind, "id", id, "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// resolveCallUUID prefers the uuid in the delivery and falls back to the
// tracked call for the conversation. An empty result means prompts still
// flow but recording brackets are skipped.
func (h Handlers) resolveCallUUID(conversationUUID, candidate string) string {
	if candidate != "" {
		return candidate
	}
	if rec, ok := h.Tracker.GetByConversation(conversationUUID); ok {
		return rec.Call.CallUUID
	}
	return ""
}

// decode reads the raw body once and decodes it; malformed deliveries are
// rejected with 400 so the provider's retry surfaces them.
func decode[T any](c *gin.Context) (json.RawMessage, T, bool) {
	var payload T
	raw, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return nil, payload, false
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return nil, payload, false
	}
	return raw, payload, true
}

func conversationID(raw []byte) string {
	var probe struct {
		ConversationUUID string `json:"conversation_uuid"`
		ConversationID   string `json:"conversation_id"`
	}
	_ = json.Unmarshal(raw, &probe)
	if probe.ConversationUUID != "" {
		return probe.ConversationUUID
	}
	if probe.ConversationID != "" {
		return probe.ConversationID
	}
	return "unknown"
}
