package task

import (
	"time"

	"github.com/sells-group/feerecon/internal/pipeline"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReading    Status = "reading"
	StatusProcessing Status = "processing"
	StatusWriting    Status = "writing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Progress is the coarse percentage reported for a status. Error keeps the
// progress of the phase it failed in, so it has none of its own.
func (s Status) Progress() int {
	switch s {
	case StatusReading:
		return 10
	case StatusProcessing:
		return 40
	case StatusWriting:
		return 70
	case StatusCompleted:
		return 100
	}
	return 0
}

func statusForPhase(p pipeline.Phase) Status {
	switch p {
	case pipeline.PhaseReading:
		return StatusReading
	case pipeline.PhaseProcessing:
		return StatusProcessing
	case pipeline.PhaseWriting:
		return StatusWriting
	}
	return StatusPending
}

// State is the pollable view of a task.
type State struct {
	ID        string           `json:"task_id"`
	Status    Status           `json:"status"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message,omitempty"`
	Filename  string           `json:"filename"`
	SheetName string           `json:"sheet_name"`
	Report    *pipeline.Report `json:"report,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Entry is a registry row: the state plus the finished workbook.
type Entry struct {
	State
	Result         []byte
	ResultFilename string
}
