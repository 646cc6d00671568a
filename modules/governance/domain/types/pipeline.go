package types

// Stage is one of the five ordered substrate pipeline phases. Each stage may
// write only its own record categories and read only from strictly earlier
// stages (reflecting and composing may read everything produced so far).
type Stage string

const (
	StageCapture     Stage = "P0"
	StageStructuring Stage = "P1"
	StageRelating    Stage = "P2"
	StageReflecting  Stage = "P3"
	StageComposing   Stage = "P4"
)

type RecordCategory string

const (
	CategoryRawCapture      RecordCategory = "raw_capture"
	CategorySubstrateRecord RecordCategory = "substrate_record"
	CategoryContextItem     RecordCategory = "context_item"
	CategoryRelationship    RecordCategory = "relationship"
	CategoryReflectionCache RecordCategory = "reflection_cache"
	CategoryDocument        RecordCategory = "document"
)

// OpStage maps an operation kind to the pipeline stage that performs it.
func OpStage(kind OpKind) Stage {
	switch kind {
	case OpCreateRecord, OpReviseRecord:
		return StageStructuring
	case OpDocumentEdit:
		return StageComposing
	default:
		return StageRelating
	}
}

// OpWriteCategory maps an operation kind to the record category it writes.
func OpWriteCategory(kind OpKind) RecordCategory {
	switch kind {
	case OpCreateRecord, OpReviseRecord:
		return CategorySubstrateRecord
	case OpAttachContextItem, OpDetach:
		return CategoryRelationship
	case OpDocumentEdit:
		return CategoryDocument
	default:
		return CategoryContextItem
	}
}
