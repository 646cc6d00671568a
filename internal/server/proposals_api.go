package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rowanvale/substratum/internal/routing"
	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
	governanceservices "github.com/rowanvale/substratum/modules/governance/services"
)

type proposalAPIView struct {
	ID               string                  `json:"id"`
	BasketID         string                  `json:"basket_id"`
	EntryPoint       string                  `json:"entry_point"`
	ActorID          string                  `json:"actor_id"`
	Status           string                  `json:"status"`
	Ops              []json.RawMessage       `json:"ops"`
	ValidationReport *types.ValidationReport `json:"validation_report,omitempty"`
	Reason           string                  `json:"reason,omitempty"`
	RejectReason     string                  `json:"reject_reason,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	ReviewedBy       string                  `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time              `json:"reviewed_at,omitempty"`
}

func proposalView(p types.Proposal) proposalAPIView {
	ops := make([]json.RawMessage, 0, len(p.Ops))
	for _, op := range p.Ops {
		if raw, err := types.EncodeOperation(op); err == nil {
			ops = append(ops, raw)
		}
	}
	view := proposalAPIView{
		ID:               p.ID,
		BasketID:         p.BasketID,
		EntryPoint:       string(p.EntryPoint),
		ActorID:          p.ActorID,
		Status:           string(p.Status),
		Ops:              ops,
		ValidationReport: p.ValidatorReport,
		Reason:           p.Reason,
		RejectReason:     p.RejectReason,
		CreatedAt:        p.CreatedAt,
		ReviewedBy:       p.ReviewedBy,
	}
	if !p.ReviewedAt.IsZero() {
		reviewed := p.ReviewedAt
		view.ReviewedAt = &reviewed
	}
	return view
}

func handleProposalsListAPI(w http.ResponseWriter, r *http.Request, store ports.ProposalStore) {
	workspace, ok := currentWorkspace(r.Context())
	if !ok {
		writeChangesError(w, r, http.StatusInternalServerError, "workspace_missing", "workspace missing")
		return
	}
	basketID := strings.TrimSpace(r.URL.Query().Get("basket_id"))
	proposals, err := store.ListOpen(r.Context(), workspace.ID, basketID)
	if err != nil {
		writeChangesError(w, r, http.StatusInternalServerError, "internal_error", "list proposals failed")
		return
	}
	views := make([]proposalAPIView, 0, len(proposals))
	for _, p := range proposals {
		views = append(views, proposalView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": views})
}

func handleProposalGetAPI(w http.ResponseWriter, r *http.Request, store ports.ProposalStore) {
	workspace, ok := currentWorkspace(r.Context())
	if !ok {
		writeChangesError(w, r, http.StatusInternalServerError, "workspace_missing", "workspace missing")
		return
	}
	proposalID := routing.PathParams(r.Context())["id"]
	proposal, err := store.Get(r.Context(), workspace.ID, proposalID)
	if err != nil {
		writeChangesError(w, r, http.StatusNotFound, "PROPOSAL_NOT_FOUND", "proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, proposalView(proposal))
}

func handleProposalApproveAPI(w http.ResponseWriter, r *http.Request, gateway *governanceservices.DecisionGateway) {
	workspace, ok := currentWorkspace(r.Context())
	if !ok {
		writeChangesError(w, r, http.StatusInternalServerError, "workspace_missing", "workspace missing")
		return
	}
	proposalID := routing.PathParams(r.Context())["id"]
	summary, err := gateway.ApproveProposal(r.Context(), workspace.ID, proposalID, reviewerID(r))
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id":       proposalID,
		"status":            string(types.ProposalStatusApproved),
		"execution_summary": summary,
	})
}

func handleProposalReviewAPI(w http.ResponseWriter, r *http.Request, gateway *governanceservices.DecisionGateway) {
	workspace, ok := currentWorkspace(r.Context())
	if !ok {
		writeChangesError(w, r, http.StatusInternalServerError, "workspace_missing", "workspace missing")
		return
	}
	proposalID := routing.PathParams(r.Context())["id"]
	if err := gateway.StartReview(r.Context(), workspace.ID, proposalID, reviewerID(r)); err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": proposalID,
		"status":      string(types.ProposalStatusUnderReview),
	})
}

func handleProposalRejectAPI(w http.ResponseWriter, r *http.Request, gateway *governanceservices.DecisionGateway) {
	workspace, ok := currentWorkspace(r.Context())
	if !ok {
		writeChangesError(w, r, http.StatusInternalServerError, "workspace_missing", "workspace missing")
		return
	}
	proposalID := routing.PathParams(r.Context())["id"]
	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if err := gateway.RejectProposal(r.Context(), workspace.ID, proposalID, reviewerID(r), strings.TrimSpace(body.Reason)); err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": proposalID,
		"status":      string(types.ProposalStatusRejected),
	})
}

func reviewerID(r *http.Request) string {
	if principal, ok := currentPrincipal(r.Context()); ok && principal.ID != "" {
		return principal.ID
	}
	return "anonymous"
}
