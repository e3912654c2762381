package review

// Classification is the overall judgement of a change.
type Classification string

const (
	ClassificationGood Classification = "good"
	ClassificationBad  Classification = "bad"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Finding is a single critique point in a verdict.
type Finding struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Verdict is the structured outcome of analyzing a proposal's diff.
// Immutable once produced.
type Verdict struct {
	Classification Classification `json:"verdict"`
	Summary        string         `json:"summary"`
	Findings       []Finding      `json:"findings"`
}

// Input is everything the engine needs to review one pull request.
type Input struct {
	Repo         string
	Number       int
	Title        string
	Diff         string
	IssueContext string
}

// ChatTurn is one turn of a free-form conversation with the assistant.
type ChatTurn struct {
	Role    string
	Content string
}
