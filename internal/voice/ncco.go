package voice

// NCCO is the ordered action list returned to the provider. Webhook handlers
// hand it back synchronously; the provider blocks on the response to know
// what to do next.
type NCCO []Action

// Action is one NCCO entry. Concrete action structs below marshal with the
// provider's field casing; keep them adapter-only.
type Action interface {
	isAction()
}

type TalkAction struct {
	Action   string `json:"action"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Style    int    `json:"style,omitempty"`
	Premium  bool   `json:"premium,omitempty"`
	BargeIn  bool   `json:"bargeIn,omitempty"`
	Level    int    `json:"level,omitempty"`
	Loop     int    `json:"loop,omitempty"`
}

func (TalkAction) isAction() {}

type InputAction struct {
	Action      string          `json:"action"`
	DTMF        *DTMFSettings   `json:"dtmf,omitempty"`
	Speech      *SpeechSettings `json:"speech,omitempty"`
	Type        []string        `json:"type"`
	EventURL    []string        `json:"eventUrl"`
	EventMethod string          `json:"eventMethod,omitempty"`
}

func (InputAction) isAction() {}

type DTMFSettings struct {
	MaxDigits int `json:"maxDigits,omitempty"`
	TimeOut   int `json:"timeOut,omitempty"`
}

type SpeechSettings struct {
	Language     string   `json:"language,omitempty"`
	Context      []string `json:"context,omitempty"`
	StartTimeout int      `json:"startTimeout,omitempty"`
	MaxDuration  int      `json:"maxDuration,omitempty"`
	EndOnSilence float64  `json:"endOnSilence,omitempty"`
}

type RecordAction struct {
	Action       string   `json:"action"`
	EventURL     []string `json:"eventUrl,omitempty"`
	Split        string   `json:"split,omitempty"`
	Channels     int      `json:"channels,omitempty"`
	Public       bool     `json:"public,omitempty"`
	ValidityTime int      `json:"validity_time,omitempty"`
	Format       string   `json:"format,omitempty"`
}

func (RecordAction) isAction() {}

// Talk builds the standard premium voice talk action used by every prompt.
func Talk(text string) TalkAction {
	return TalkAction{
		Action:   "talk",
		Text:     "<speak>" + text + "</speak>",
		Language: "en-US",
		Style:    2,
		Premium:  true,
	}
}

// TalkBargeIn is Talk with barge-in, so keypad input can interrupt the
// prompt.
func TalkBargeIn(text string) TalkAction {
	a := Talk(text)
	a.BargeIn = true
	return a
}

// Input builds the combined dtmf+speech input action pointing at eventURL.
// context lists the utterances the recognizer should bias toward.
func Input(eventURL string, speechContext []string) InputAction {
	return InputAction{
		Action: "input",
		DTMF:   &DTMFSettings{MaxDigits: 1, TimeOut: 10},
		Speech: &SpeechSettings{
			Language:     "en-US",
			Context:      speechContext,
			StartTimeout: 10,
			MaxDuration:  5,
			EndOnSilence: 1.5,
		},
		Type:        []string{"dtmf", "speech"},
		EventURL:    []string{eventURL},
		EventMethod: "POST",
	}
}

// FullCallRecord builds the call-scoped record action attached at creation:
// both channels split, so a full-call artifact arrives at hangup.
func FullCallRecord(eventURL string) RecordAction {
	return RecordAction{
		Action:       "record",
		EventURL:     []string{eventURL},
		Split:        "conversation",
		Channels:     2,
		Public:       true,
		ValidityTime: 30,
		Format:       "wav",
	}
}
