package types

import "time"

type DuplicateCandidate struct {
	SubstrateID string  `json:"substrate_id"`
	Similarity  float64 `json:"similarity"`
	Label       string  `json:"label,omitempty"`
}

type OntologyHit struct {
	Term     string `json:"term"`
	NodeID   string `json:"node_id"`
	Category string `json:"category,omitempty"`
}

type SuggestedMerge struct {
	FromID string `json:"from_id"`
	IntoID string `json:"into_id"`
	Reason string `json:"reason,omitempty"`
}

type ImpactSummary struct {
	RecordsAffected int    `json:"records_affected"`
	BasketsTouched  int    `json:"baskets_touched"`
	Summary         string `json:"summary,omitempty"`
}

// ValidationReport is what the external validator agent returns for one
// descriptor. Confidence is in [0,1].
type ValidationReport struct {
	Confidence          float64              `json:"confidence"`
	DuplicateCandidates []DuplicateCandidate `json:"duplicate_candidates,omitempty"`
	OntologyHits        []OntologyHit        `json:"ontology_hits,omitempty"`
	SuggestedMerges     []SuggestedMerge     `json:"suggested_merges,omitempty"`
	Warnings            []string             `json:"warnings,omitempty"`
	Impact              ImpactSummary        `json:"impact"`
	AgentID             string               `json:"agent_id,omitempty"`
	GeneratedAt         time.Time            `json:"generated_at,omitempty"`
}
