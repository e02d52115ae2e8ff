package reporting

// CallsSummary aggregates the tracked call records of this process.
type CallsSummary struct {
	TotalCalls       int `json:"total_calls"`
	HumanAnswered    int `json:"human_answered"`
	MachineAnswered  int `json:"machine_answered"`
	SurveysCompleted int `json:"surveys_completed"`
	FailedCalls      int `json:"failed_calls"`
	InProgressCalls  int `json:"in_progress_calls"`

	// BrandedCalls counts calls whose branding push succeeded.
	BrandedCalls int `json:"branded_calls"`
}

// QuestionSummary tallies the answers one survey question received.
type QuestionSummary struct {
	StepID   string         `json:"step"`
	Answered int            `json:"answered"`
	Counts   map[string]int `json:"counts"`
}

// SurveySummary aggregates per-question answer tallies across every
// conversation that gave at least one answer.
type SurveySummary struct {
	Conversations    int               `json:"conversations"`
	CompletedSurveys int               `json:"completed_surveys"`
	Questions        []QuestionSummary `json:"questions"`
}
