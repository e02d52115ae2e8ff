package reporting

import (
	"surveydialer/internal/ivr"
	"surveydialer/internal/tracker"
)

// CallSource lists tracked call records; the tracker satisfies it.
type CallSource interface {
	List() []tracker.CallRecord
}

// SurveySource exposes the recorded answers; the survey store satisfies it.
type SurveySource interface {
	All() map[string]map[string]string
	Finalized(conversationUUID string) bool
}

type Service struct {
	calls   CallSource
	surveys SurveySource
	steps   []ivr.Step
}

func NewService(calls CallSource, surveys SurveySource, steps []ivr.Step) *Service {
	if len(steps) == 0 {
		steps = ivr.DefaultSteps()
	}
	return &Service{calls: calls, surveys: surveys, steps: steps}
}

// CallsSummary tallies every tracked call by its latest status.
func (s *Service) CallsSummary() CallsSummary {
	out := CallsSummary{}
	for _, rec := range s.calls.List() {
		out.TotalCalls++
		if rec.Branding.Push != nil && rec.Branding.Push.Success {
			out.BrandedCalls++
		}
		switch rec.Status {
		case tracker.StatusHuman:
			out.HumanAnswered++
		case tracker.StatusMachine:
			out.MachineAnswered++
		case tracker.StatusSurveyCompleted:
			out.HumanAnswered++
			out.SurveysCompleted++
		case tracker.StatusFailed:
			out.FailedCalls++
		default:
			out.InProgressCalls++
		}
	}
	return out
}

// SurveySummary tallies answers per question in step order. Conversations
// that never answered anything do not appear in the source and are not
// counted.
func (s *Service) SurveySummary() SurveySummary {
	all := s.surveys.All()

	out := SurveySummary{Conversations: len(all)}
	byStep := make(map[string]*QuestionSummary, len(s.steps))
	for _, step := range s.steps {
		q := &QuestionSummary{StepID: step.ID, Counts: make(map[string]int)}
		byStep[step.ID] = q
	}

	for conv, answers := range all {
		if s.surveys.Finalized(conv) {
			out.CompletedSurveys++
		}
		for key, value := range answers {
			q, ok := byStep[key]
			if !ok {
				continue
			}
			q.Answered++
			q.Counts[value]++
		}
	}

	out.Questions = make([]QuestionSummary, 0, len(s.steps))
	for _, step := range s.steps {
		out.Questions = append(out.Questions, *byStep[step.ID])
	}
	return out
}
