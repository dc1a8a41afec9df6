package model

import "time"

// RunState is the orchestrator lifecycle state
type RunState string

const (
	StateIdle          RunState = "idle"
	StatePlanning      RunState = "planning"
	StateSearching     RunState = "searching"
	StateExtracting    RunState = "extracting"
	StateConsolidating RunState = "consolidating"
	StatePersisting    RunState = "persisting"
	StateCompleted     RunState = "completed"
	StateAborted       RunState = "aborted"
)

// Terminal reports whether no further transitions can happen
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// RunSummary contains the statistics emitted at the end of a run
type RunSummary struct {
	RunID       string        `json:"run_id"`
	State       RunState      `json:"state"`
	AbortReason string        `json:"abort_reason,omitempty"`
	Stopped     bool          `json:"stopped"` // Cooperative stop requested before the plan finished
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`

	TasksPlanned   int `json:"tasks_planned"`
	TasksRun       int `json:"tasks_run"`
	SearchFailures int `json:"search_failures"`

	URLsFound          int `json:"urls_found"`
	URLsVisited        int `json:"urls_visited"`
	URLsRepeated       int `json:"urls_repeated"`  // Already visited earlier in the run
	RobotsSkipped      int `json:"robots_skipped"` // Disallowed by robots.txt
	StaticExtractions  int `json:"static_extractions"`
	DynamicExtractions int `json:"dynamic_extractions"`
	ExtractionFailures int `json:"extraction_failures"`

	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`

	Flushes      int `json:"flushes"`
	FlushErrors  int `json:"flush_errors"`
	WithEmail    int `json:"with_email"`
	WithPhone    int `json:"with_phone"`
	RecordsSaved int `json:"records_saved"`
}
