package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rowanvale/substratum/internal/routing"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
	governanceservices "github.com/rowanvale/substratum/modules/governance/services"
	"github.com/rowanvale/substratum/pkg/httperr"
)

type changeAPIRequest struct {
	EntryPoint      string            `json:"entry_point"`
	ActorID         string            `json:"actor_id"`
	BasketID        string            `json:"basket_id"`
	BasisSnapshotID string            `json:"basis_snapshot_id"`
	BlastRadius     string            `json:"blast_radius"`
	Ops             []json.RawMessage `json:"ops"`
	Provenance      struct {
		RawCaptureIDs []string `json:"raw_capture_ids"`
		SourceNote    string   `json:"source_note"`
	} `json:"provenance"`
}

type changeAPIDecision struct {
	Route                string `json:"route"`
	RequireValidator     bool   `json:"require_validator"`
	ValidatorMode        string `json:"validator_mode"`
	EffectiveBlastRadius string `json:"effective_blast_radius"`
	Reason               string `json:"reason"`
}

type changeAPIResponse struct {
	Committed        bool                                 `json:"committed"`
	ProposalID       string                               `json:"proposal_id,omitempty"`
	ExecutionSummary *governanceservices.ExecutionSummary `json:"execution_summary,omitempty"`
	ValidationReport *types.ValidationReport              `json:"validation_report,omitempty"`
	Decision         changeAPIDecision                    `json:"decision"`
}

type shapeErrorResponse struct {
	Code       string                                   `json:"code"`
	Message    string                                   `json:"message"`
	Violations []governanceservices.DescriptorViolation `json:"violations"`
}

// handleChangesAPI is the one mutation endpoint: a ChangeDescriptor-shaped
// payload in, either a committed execution or a pending proposal out.
func handleChangesAPI(w http.ResponseWriter, r *http.Request, gateway *governanceservices.DecisionGateway) {
	workspace, ok := currentWorkspace(r.Context())
	if !ok {
		writeChangesError(w, r, http.StatusInternalServerError, "workspace_missing", "workspace missing")
		return
	}
	if gateway == nil {
		writeChangesError(w, r, http.StatusInternalServerError, "gateway_missing", "gateway missing")
		return
	}

	var req changeAPIRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeChangesError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}

	descriptor, err := descriptorFromRequest(workspace.ID, req)
	if err != nil {
		writeChangesError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	if principal, ok := currentPrincipal(r.Context()); ok && descriptor.ActorID == "" {
		descriptor.ActorID = principal.ID
	}

	result, err := gateway.RouteChange(r.Context(), descriptor)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}

	resp := changeAPIResponse{
		Committed:        result.Committed,
		ProposalID:       result.ProposalID,
		ExecutionSummary: result.Execution,
		ValidationReport: result.ValidationReport,
		Decision: changeAPIDecision{
			Route:                string(result.Decision.Route),
			RequireValidator:     result.Decision.RequireValidator,
			ValidatorMode:        string(result.Decision.ValidatorMode),
			EffectiveBlastRadius: string(result.Decision.EffectiveBlastRadius),
			Reason:               result.Decision.Reason,
		},
	}
	status := http.StatusOK
	if !result.Committed {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

// descriptorFromRequest is the single adapter step from wire payload to
// domain descriptor. Op payload shapes are checked here, once.
func descriptorFromRequest(workspaceID string, req changeAPIRequest) (types.ChangeDescriptor, error) {
	ops := make([]types.Operation, 0, len(req.Ops))
	for _, raw := range req.Ops {
		op, err := types.DecodeOperation(raw)
		if err != nil {
			return types.ChangeDescriptor{}, err
		}
		ops = append(ops, op)
	}

	descriptor := types.ChangeDescriptor{
		EntryPoint:      types.EntryPoint(strings.ToLower(strings.TrimSpace(req.EntryPoint))),
		ActorID:         strings.TrimSpace(req.ActorID),
		WorkspaceID:     workspaceID,
		BasketID:        strings.TrimSpace(req.BasketID),
		BasisSnapshotID: strings.TrimSpace(req.BasisSnapshotID),
		Ops:             ops,
		Provenance: types.Provenance{
			RawCaptureIDs: req.Provenance.RawCaptureIDs,
			SourceNote:    strings.TrimSpace(req.Provenance.SourceNote),
		},
	}
	if raw := strings.TrimSpace(req.BlastRadius); raw != "" {
		radius, ok := types.ParseBlastRadius(raw)
		if !ok {
			// Leave it for the shape validator, which reports a structured
			// violation instead of a transport-level decode error.
			radius = types.BlastRadius(raw)
		}
		descriptor.BlastRadius = radius
	}
	return descriptor, nil
}

func writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	var shapeErr *governanceservices.ShapeError
	if errors.As(err, &shapeErr) {
		writeJSON(w, http.StatusUnprocessableEntity, shapeErrorResponse{
			Code:       "SHAPE_VALIDATION_FAILED",
			Message:    "descriptor shape invalid",
			Violations: shapeErr.Violations,
		})
		return
	}
	var pipelineErr *governanceservices.PipelineViolationError
	if errors.As(err, &pipelineErr) {
		writeChangesError(w, r, http.StatusUnprocessableEntity, "PIPELINE_VIOLATION", pipelineErr.Error())
		return
	}
	switch {
	case httperr.IsUnavailable(err):
		writeChangesError(w, r, http.StatusBadGateway, "VALIDATOR_UNAVAILABLE", "validator agent unavailable")
	case httperr.IsConflict(err):
		writeChangesError(w, r, http.StatusConflict, "PROPOSAL_STATE_INVALID", "proposal not eligible")
	case httperr.IsNotFound(err):
		writeChangesError(w, r, http.StatusNotFound, "PROPOSAL_NOT_FOUND", "proposal not found")
	case httperr.IsBadRequest(err):
		writeChangesError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeChangesError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeChangesError(w http.ResponseWriter, r *http.Request, status int, code string, msg string) {
	routing.WriteError(w, r, routing.RouteClassInternalAPI, status, code, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
