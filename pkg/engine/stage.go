package engine

import (
	"time"

	"github.com/go-conductor/conductor/pkg/errs"
)

// StageState is one position in the per-stage state machine described in
// spec.md §4.7:
//
//	Pending -> Ready -> Running -> Succeeded
//	                            -> Awaiting-Approval -> Succeeded | Failed
//	                            -> Failed
//	Ready/Pending -> Cancelled (upstream failure or batch timeout)
type StageState string

const (
	StagePending           StageState = "Pending"
	StageReady             StageState = "Ready"
	StageRunning           StageState = "Running"
	StageAwaitingApproval  StageState = "Awaiting-Approval"
	StageSucceeded         StageState = "Succeeded"
	StageFailed            StageState = "Failed"
	StageCancelled         StageState = "Cancelled"
	StageSkipped           StageState = "Skipped"
)

func (s StageState) Terminal() bool {
	switch s {
	case StageSucceeded, StageFailed, StageCancelled, StageSkipped:
		return true
	default:
		return false
	}
}

// StageResult is one stage's final record, returned as part of the
// workflow's outcome list.
type StageResult struct {
	Name       string
	State      StageState
	Output     string
	Error      *errs.StructuredError
	StartedAt  time.Time
	FinishedAt time.Time
}
