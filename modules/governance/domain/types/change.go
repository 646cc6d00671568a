package types

import "strings"

type EntryPoint string

const (
	EntryPointManualEdit        EntryPoint = "manual_edit"
	EntryPointOnboardingCapture EntryPoint = "onboarding_capture"
	EntryPointDocumentEdit      EntryPoint = "document_edit"
	EntryPointAgentSuggestion   EntryPoint = "agent_suggestion"
	EntryPointTimelineBackfill  EntryPoint = "timeline_backfill"
)

func KnownEntryPoints() []EntryPoint {
	return []EntryPoint{
		EntryPointManualEdit,
		EntryPointOnboardingCapture,
		EntryPointDocumentEdit,
		EntryPointAgentSuggestion,
		EntryPointTimelineBackfill,
	}
}

func ParseEntryPoint(raw string) (EntryPoint, bool) {
	ep := EntryPoint(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range KnownEntryPoints() {
		if ep == known {
			return ep, true
		}
	}
	return "", false
}

type BlastRadius string

const (
	BlastRadiusLocal  BlastRadius = "Local"
	BlastRadiusScoped BlastRadius = "Scoped"
	BlastRadiusGlobal BlastRadius = "Global"
)

func ParseBlastRadius(raw string) (BlastRadius, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "local":
		return BlastRadiusLocal, true
	case "scoped":
		return BlastRadiusScoped, true
	case "global":
		return BlastRadiusGlobal, true
	default:
		return "", false
	}
}

func blastRadiusRank(r BlastRadius) int {
	switch r {
	case BlastRadiusLocal:
		return 1
	case BlastRadiusScoped:
		return 2
	case BlastRadiusGlobal:
		return 3
	default:
		return 0
	}
}

// MaxBlastRadius returns the wider of the two radii.
func MaxBlastRadius(a BlastRadius, b BlastRadius) BlastRadius {
	if blastRadiusRank(a) >= blastRadiusRank(b) {
		return a
	}
	return b
}

// Provenance links a descriptor back to the immutable raw inputs it was
// derived from.
type Provenance struct {
	RawCaptureIDs []string `json:"raw_capture_ids,omitempty"`
	SourceNote    string   `json:"source_note,omitempty"`
}

// ChangeDescriptor is the canonical representation of one proposed batch of
// substrate mutations. It is validated once at the boundary; downstream code
// assumes a well-formed descriptor.
type ChangeDescriptor struct {
	EntryPoint      EntryPoint
	ActorID         string
	WorkspaceID     string
	BasketID        string
	BasisSnapshotID string
	BlastRadius     BlastRadius
	Ops             []Operation
	Provenance      Provenance
}
