package server

import (
	"net/http"

	governanceservices "github.com/rowanvale/substratum/modules/governance/services"
)

type governanceStatusResponse struct {
	Status              string            `json:"status"`
	GovernanceEnabled   bool              `json:"governance_enabled"`
	ValidatorRequired   bool              `json:"validator_required"`
	DirectWritesAllowed bool              `json:"direct_writes_allowed"`
	EntryPoints         map[string]string `json:"entry_points"`
	DefaultBlastRadius  string            `json:"default_blast_radius"`
	HybridRiskThreshold float64           `json:"hybrid_risk_threshold"`
	Source              string            `json:"source"`
}

// handleGovernanceStatusAPI reports the effective, already-normalized
// policy for the request's workspace so operators can see which flags a
// decision will actually use.
func handleGovernanceStatusAPI(w http.ResponseWriter, r *http.Request, loader *governanceservices.PolicyLoader) {
	workspace, ok := currentWorkspace(r.Context())
	if !ok {
		writeChangesError(w, r, http.StatusInternalServerError, "workspace_missing", "workspace missing")
		return
	}
	policy, err := loader.Load(r.Context(), workspace.ID)
	if err != nil {
		writeChangesError(w, r, http.StatusInternalServerError, "POLICY_LOAD_FAILED", "policy load failed")
		return
	}
	entryPoints := make(map[string]string, len(policy.EntryPoints))
	for ep, pol := range policy.EntryPoints {
		entryPoints[string(ep)] = string(pol)
	}
	writeJSON(w, http.StatusOK, governanceStatusResponse{
		Status:              governanceservices.GovernanceStatus(policy),
		GovernanceEnabled:   policy.GovernanceEnabled,
		ValidatorRequired:   policy.ValidatorRequired,
		DirectWritesAllowed: policy.DirectWritesAllowed,
		EntryPoints:         entryPoints,
		DefaultBlastRadius:  string(policy.DefaultBlastRadius),
		HybridRiskThreshold: policy.HybridRiskThreshold,
		Source:              string(policy.Source),
	})
}
