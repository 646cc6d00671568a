package types

import (
	"strings"
	"time"
)

type ProposalStatus string

const (
	ProposalStatusProposed    ProposalStatus = "PROPOSED"
	ProposalStatusUnderReview ProposalStatus = "UNDER_REVIEW"
	ProposalStatusApproved    ProposalStatus = "APPROVED"
	ProposalStatusRejected    ProposalStatus = "REJECTED"
)

func ParseProposalStatus(raw string) (ProposalStatus, bool) {
	switch ProposalStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case ProposalStatusProposed:
		return ProposalStatusProposed, true
	case ProposalStatusUnderReview:
		return ProposalStatusUnderReview, true
	case ProposalStatusApproved:
		return ProposalStatusApproved, true
	case ProposalStatusRejected:
		return ProposalStatusRejected, true
	default:
		return "", false
	}
}

// Eligible reports whether a proposal in this status may still be approved
// or rejected. APPROVED and REJECTED are terminal.
func (s ProposalStatus) Eligible() bool {
	return s == ProposalStatusProposed || s == ProposalStatusUnderReview
}

// Proposal is a persisted, reviewable unit of pending operations. Ops are a
// frozen copy of the descriptor's ops at creation time; approval executes
// exactly that copy.
type Proposal struct {
	ID              string
	WorkspaceID     string
	BasketID        string
	EntryPoint      EntryPoint
	ActorID         string
	Ops             []Operation
	Status          ProposalStatus
	ValidatorReport *ValidationReport
	Reason          string
	RejectReason    string
	CreatedAt       time.Time
	ReviewedBy      string
	ReviewedAt      time.Time
}

// ProposalExecution records one approved proposal's transactional apply.
type ProposalExecution struct {
	ProposalID      string
	OperationsCount int
	SubstrateIDs    []string
	ExecutedAt      time.Time
}
