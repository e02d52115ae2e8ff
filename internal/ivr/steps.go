package ivr

import "strings"

// Step is one survey question. The ordered step list is the single source of
// truth for survey shape: the current step is always the first step whose
// response key is missing, which makes advancement idempotent under
// duplicated webhook deliveries.
type Step struct {
	// ID is the response key the answer is stored under.
	ID string

	Prompt string

	// SpeechContext biases the provider's recognizer.
	SpeechContext []string

	// Alphabet is the set of valid normalized inputs.
	Alphabet []string
}

func (s Step) accepts(input string) bool {
	for _, v := range s.Alphabet {
		if v == input {
			return true
		}
	}
	return false
}

// DefaultSteps is the branded-calling experience survey. New questions are
// added here; nothing else needs to change.
func DefaultSteps() []Step {
	return []Step{
		{
			ID:            "device_type",
			Prompt:        `What type of device do you have? You can either say, "iPhone", or press or say 1; you can say "Android", or press or say 2.`,
			SpeechContext: []string{"1", "2", "iphone", "android"},
			Alphabet:      []string{"1", "2"},
		},
		{
			ID:            "saw_logo",
			Prompt:        `Did you see the company logo on your handset when I called you? Press or say 1 for yes, press or say 2 for no.`,
			SpeechContext: []string{"1", "2", "yes", "no"},
			Alphabet:      []string{"1", "2"},
		},
		{
			ID:            "saw_caller_id",
			Prompt:        `Did you see the company caller name on your handset when I called you? Press or say 1 for yes, press or say 2 for no.`,
			SpeechContext: []string{"1", "2", "yes", "no"},
			Alphabet:      []string{"1", "2"},
		},
	}
}

// synonyms maps spoken words onto the DTMF alphabet so speech and keypad
// input share one transition function.
var synonyms = map[string]string{
	"one":     "1",
	"two":     "2",
	"yes":     "1",
	"no":      "2",
	"iphone":  "1",
	"android": "2",
	// "go" is the spoken start command. It sits outside every step alphabet,
	// so it replays the current question without recording an answer.
	"go": "go",
}

// Normalize folds keypad digits and a speech transcript into one input
// token. Digits win when both are present. Unmapped speech passes through
// lower-cased and is treated as invalid by the step alphabets.
func Normalize(digits, transcript string) string {
	if digits != "" {
		return digits
	}
	t := strings.ToLower(strings.TrimSpace(transcript))
	if t == "" {
		return ""
	}
	if mapped, ok := synonyms[t]; ok {
		return mapped
	}
	return t
}
