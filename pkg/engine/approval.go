package engine

import (
	"context"
	"time"
)

// ApprovalDecision is the outcome of an approval-gated stage, mirroring
// tool_approval.go's approved/rejected/pending-interaction split adapted to
// a whole-stage decision instead of a per-tool-call one.
type ApprovalDecision int

const (
	ApprovalAccepted ApprovalDecision = iota
	ApprovalRejected
	ApprovalTimedOut
)

// ApprovalSink is the pluggable boundary a stage's output crosses when
// approvalRequired is set. A real deployment backs this with whatever
// notifies a human (Slack, a web UI, a CLI prompt); Execute blocks on
// Request until it returns or the stage's approvalTimeout elapses.
type ApprovalSink interface {
	Request(ctx context.Context, workflowID, stageName, output string, timeout time.Duration) (ApprovalDecision, string, error)
}

// AutoApprove always accepts immediately. It exists for workflows and tests
// that have no human approval loop wired up but still exercise the
// approval-gated state transitions.
type AutoApprove struct{}

func (AutoApprove) Request(ctx context.Context, workflowID, stageName, output string, timeout time.Duration) (ApprovalDecision, string, error) {
	return ApprovalAccepted, "", nil
}

const (
	DefaultApprovalTimeout = 5 * time.Minute
	MaxApprovalTimeout     = 7 * 24 * time.Hour
)
