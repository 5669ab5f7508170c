package models

// TaskStatus and PhaseStatus share the same small state machine: pending,
// in_progress, completed, failed.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Task is one unit of work within a plan phase.
type Task struct {
	TaskID      string     `json:"task_id"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	NodeIDs     []string   `json:"node_ids,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Phase groups related tasks under a named milestone of the plan.
type Phase struct {
	PhaseName string     `json:"phase_name"`
	Status    TaskStatus `json:"status"`
	Tasks     []Task     `json:"tasks"`
}

// Plan is the Director's working plan for a workflow: an overall goal
// broken into phases and tasks, tracked across turns.
type Plan struct {
	OverallGoal  string   `json:"overall_goal"`
	CurrentPhase string   `json:"current_phase"`
	Phases       []Phase  `json:"phases"`
	NextActions  []string `json:"next_actions,omitempty"`
	Blockers     []string `json:"blockers,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}
