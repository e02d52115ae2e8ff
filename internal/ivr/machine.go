// Package ivr drives a caller through the ordered survey steps. Input
// arrives as keypad digits or a speech transcript; both are folded onto one
// alphabet before the transition function runs. Every step is bracketed by
// start/stop recording commands against the call-control provider.
package ivr

import (
	"context"
	"log/slog"
	"time"

	"surveydialer/internal/tracker"
	"surveydialer/internal/voice"
)

const (
	introPrompt = `This is a test of branded calling. I will be asking you three questions about your experience with this call. You can speak to me or use your phone keypad to respond.`

	completionPrompt = `Thank you for your responses. We appreciate your input. Goodbye!`

	// Voicemail and call-screening branches of advanced machine detection.
	voicemailPrompt = `This is the branded calling test line calling to remind you of your upcoming appointment.`
	screenerPrompt  = `Branded calling test appointment reminder.`
)

// RecordingController is the voice-client subset the machine needs for step
// brackets.
type RecordingController interface {
	StartRecording(ctx context.Context, callUUID string, req voice.StartRecordingRequest) (*voice.StartRecordingResponse, error)
	StopRecording(ctx context.Context, callUUID string) error
}

// CallTracker is the tracker subset the machine reports into.
type CallTracker interface {
	RecordStepRecording(callUUID string, sr tracker.StepRecording)
	SetStatus(conversationUUID string, status tracker.Status)
}

type Machine struct {
	steps      []Step
	store      *SurveyStore
	calls      CallTracker
	recordings RecordingController

	inputEventURL     string
	recordingEventURL string

	log *slog.Logger
	now func() time.Time
}

func NewMachine(steps []Step, store *SurveyStore, calls CallTracker, recordings RecordingController, inputEventURL, recordingEventURL string, log *slog.Logger) *Machine {
	if len(steps) == 0 {
		steps = DefaultSteps()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		steps:             steps,
		store:             store,
		calls:             calls,
		recordings:        recordings,
		inputEventURL:     inputEventURL,
		recordingEventURL: recordingEventURL,
		log:               log,
		now:               time.Now,
	}
}

// currentStep returns the first step whose answer is missing. The step is
// recomputed from response presence on every invocation and never trusted
// from a caller-supplied field.
func (m *Machine) currentStep(responses map[string]string) (Step, bool) {
	for _, s := range m.steps {
		if _, answered := responses[s.ID]; !answered {
			return s, true
		}
	}
	return Step{}, false
}

// OnHumanDetected starts the survey: step-1 recording begins and the
// response carries the intro plus the first question.
func (m *Machine) OnHumanDetected(ctx context.Context, conversationUUID, callUUID string) voice.NCCO {
	step, ok := m.currentStep(m.store.Get(conversationUUID))
	if !ok {
		return m.completionNCCO()
	}
	m.startStepRecording(ctx, callUUID, conversationUUID, step.ID)
	return append(voice.NCCO{voice.Talk(introPrompt)}, m.questionNCCO(step)...)
}

// OnMachineDetected answers the advanced-machine-detection branches: leave a
// voicemail after the beep, otherwise play a short greeting for call
// screeners.
func (m *Machine) OnMachineDetected(subState string) voice.NCCO {
	text := screenerPrompt
	if subState == "beep_start" {
		text = voicemailPrompt
	}
	a := voice.Talk(text)
	a.Level = 1
	a.Loop = 1
	return voice.NCCO{a}
}

// OnInput advances the survey for one webhook delivery. Invalid input
// reprompts the current question with an identical response, indefinitely.
// Valid input stops the step recording, persists the answer, then brackets
// the next step.
func (m *Machine) OnInput(ctx context.Context, conversationUUID, callUUID, digits, transcript string) voice.NCCO {
	responses := m.store.Get(conversationUUID)
	step, ok := m.currentStep(responses)
	if !ok {
		// Already completed; a duplicated delivery changes nothing.
		return m.completionNCCO()
	}

	input := Normalize(digits, transcript)
	if !step.accepts(input) {
		return m.questionNCCO(step)
	}

	// Stop before persisting so the artifact brackets exactly this answer.
	m.stopStepRecording(ctx, callUUID, step.ID)
	m.store.Answer(conversationUUID, step.ID, input)

	next, ok := m.currentStep(m.store.Get(conversationUUID))
	if !ok {
		m.store.Finalize(conversationUUID)
		m.calls.SetStatus(conversationUUID, tracker.StatusSurveyCompleted)
		return m.completionNCCO()
	}

	m.startStepRecording(ctx, callUUID, conversationUUID, next.ID)
	return m.questionNCCO(next)
}

func (m *Machine) questionNCCO(step Step) voice.NCCO {
	return voice.NCCO{
		voice.TalkBargeIn(step.Prompt),
		voice.Input(m.inputEventURL, step.SpeechContext),
	}
}

func (m *Machine) completionNCCO() voice.NCCO {
	return voice.NCCO{voice.Talk(completionPrompt)}
}

// startStepRecording brackets a step: any running recording is stopped first
// because provider recording sessions do not nest. A missing call uuid means
// the tracker could not resolve the call; prompts still flow, brackets are
// skipped.
func (m *Machine) startStepRecording(ctx context.Context, callUUID, conversationUUID, stepID string) {
	if callUUID == "" || m.recordings == nil {
		return
	}

	if err := m.recordings.StopRecording(ctx, callUUID); err != nil {
		m.log.Debug("no recording to stop", "call_uuid", callUUID, "err", err)
	}

	res, err := m.recordings.StartRecording(ctx, callUUID, voice.StartRecordingRequest{
		EventURL:     []string{m.recordingEventURL},
		Split:        "conversation",
		Channels:     1,
		Format:       "wav",
		EndOnSilence: 3,
		EndOnKey:     "*",
		TimeOut:      30,
	})
	if err != nil {
		m.log.Error("step recording start failed", "call_uuid", callUUID, "step", stepID, "err", err)
		return
	}

	m.calls.RecordStepRecording(callUUID, tracker.StepRecording{
		StepID:           stepID,
		RecordingUUID:    res.RecordingUUID,
		CallUUID:         callUUID,
		ConversationUUID: conversationUUID,
		StartedAt:        m.now(),
	})
	m.log.Info("step recording started", "call_uuid", callUUID, "step", stepID, "recording_uuid", res.RecordingUUID)
}

func (m *Machine) stopStepRecording(ctx context.Context, callUUID, stepID string) {
	if callUUID == "" || m.recordings == nil {
		return
	}
	if err := m.recordings.StopRecording(ctx, callUUID); err != nil {
		m.log.Error("step recording stop failed", "call_uuid", callUUID, "step", stepID, "err", err)
		return
	}
	m.log.Info("step recording stopped", "call_uuid", callUUID, "step", stepID)
}
