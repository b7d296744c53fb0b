package pipeline

import (
	"time"

	"github.com/dshills/triage/internal/providers"
	"github.com/dshills/triage/internal/todo"
)

// StageID names one of the three analysis stages. It is also recorded as the
// source of every todo item the stage produces.
type StageID string

const (
	StageAnalysis   StageID = "analysis"
	StageValidation StageID = "validation"
	StageRefactor   StageID = "refactor"
)

// Stages lists the stages in execution order.
var Stages = [3]StageID{StageAnalysis, StageValidation, StageRefactor}

// Title returns a display name for reports.
func (s StageID) Title() string {
	switch s {
	case StageAnalysis:
		return "Analysis"
	case StageValidation:
		return "Validation"
	case StageRefactor:
		return "Refactoring"
	default:
		return string(s)
	}
}

// PriorOutput is the text of an earlier successful stage for the same file.
type PriorOutput struct {
	Stage StageID
	Text  string
}

// Request is the input to a single stage invocation. It is built once and
// never mutated.
type Request struct {
	FilePath     string
	Content      string
	PriorContext []PriorOutput
}

// Status is the outcome of a stage.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is what a stage produced. Text is set only on success; Kind and Err
// only on failure.
type Result struct {
	Stage      StageID             `json:"stage"`
	Provider   string              `json:"provider"`
	Model      string              `json:"model"`
	Status     Status              `json:"status"`
	Text       string              `json:"text,omitempty"`
	Kind       providers.ErrorKind `json:"kind,omitempty"`
	Err        string              `json:"error,omitempty"`
	Attempts   int                 `json:"attempts"`
	Cached     bool                `json:"cached,omitempty"`
	TokensUsed int                 `json:"tokensUsed,omitempty"`
	Redacted   int                 `json:"redacted,omitempty"`
	Latency    time.Duration       `json:"latency"`
	Timestamp  time.Time           `json:"timestamp"`
}

// OK reports whether the stage succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// State tracks how far a file has progressed.
type State string

const (
	StatePending    State = "pending"
	StateAnalysis   State = "stage_analysis"
	StateValidation State = "stage_validation"
	StateRefactor   State = "stage_refactor"
	StateMerged     State = "merged"
	StateReported   State = "reported"
)

var stageStates = [3]State{StateAnalysis, StateValidation, StateRefactor}

// FileReport collects everything that happened to one file.
type FileReport struct {
	Path       string      `json:"path"`
	Language   string      `json:"language"`
	Size       int64       `json:"size"`
	Results    []Result    `json:"results"`
	Todos      []todo.Item `json:"todos,omitempty"`
	NewTodos   int         `json:"newTodos"`
	TotalTodos int         `json:"totalTodos"`
	State      State       `json:"state"`
	Started    time.Time   `json:"started"`
	Finished   time.Time   `json:"finished"`
	RenderErr  string      `json:"renderError,omitempty"`
	PersistErr string      `json:"persistError,omitempty"`
}

// Result returns the outcome of the given stage, if it ran.
func (r FileReport) Result(stage StageID) (Result, bool) {
	for _, res := range r.Results {
		if res.Stage == stage {
			return res, true
		}
	}
	return Result{}, false
}

// Failures counts the stages that did not succeed.
func (r FileReport) Failures() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// Summary describes a whole run.
type Summary struct {
	RunID           string          `json:"runId"`
	Started         time.Time       `json:"started"`
	Files           int             `json:"files"`
	Skipped         int             `json:"skipped"`
	StageFailures   map[StageID]int `json:"stageFailures"`
	NewTodos        int             `json:"newTodos"`
	PersistFailures int             `json:"persistFailures,omitempty"`
	RenderFailures  int             `json:"renderFailures,omitempty"`
	Canceled        bool            `json:"canceled"`
	Duration        time.Duration   `json:"duration"`
	Reports         []FileReport    `json:"-"`
}

// Failures sums the stage failures of every file.
func (s Summary) Failures() int {
	n := 0
	for _, c := range s.StageFailures {
		n += c
	}
	return n
}
