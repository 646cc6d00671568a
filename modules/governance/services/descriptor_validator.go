package services

import (
	"fmt"
	"strings"

	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

type DescriptorViolation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DescriptorValidation struct {
	Valid      bool                  `json:"valid"`
	Violations []DescriptorViolation `json:"violations"`
}

// ValidateDescriptor checks one descriptor's shape: entry point membership,
// required ids, non-empty ops, exactly one payload per op matching its kind.
// Side-effect free; callers reject on !Valid before any I/O happens.
func ValidateDescriptor(descriptor types.ChangeDescriptor) DescriptorValidation {
	violations := []DescriptorViolation{}

	add := func(field string, code string, message string) {
		violations = append(violations, DescriptorViolation{Field: field, Code: code, Message: message})
	}

	if _, ok := types.ParseEntryPoint(string(descriptor.EntryPoint)); !ok {
		add("entry_point", "ENTRY_POINT_UNKNOWN", fmt.Sprintf("unknown entry point %q", descriptor.EntryPoint))
	}
	if strings.TrimSpace(descriptor.ActorID) == "" {
		add("actor_id", "ACTOR_REQUIRED", "actor_id required")
	}
	if strings.TrimSpace(descriptor.WorkspaceID) == "" {
		add("workspace_id", "WORKSPACE_REQUIRED", "workspace_id required")
	}
	if strings.TrimSpace(descriptor.BasketID) == "" {
		add("basket_id", "BASKET_REQUIRED", "basket_id required")
	}
	if descriptor.BlastRadius != "" {
		if _, ok := types.ParseBlastRadius(string(descriptor.BlastRadius)); !ok {
			add("blast_radius", "BLAST_RADIUS_INVALID", fmt.Sprintf("invalid blast radius %q", descriptor.BlastRadius))
		}
	}
	if len(descriptor.Ops) == 0 {
		add("ops", "OPS_EMPTY", "ops must be non-empty")
	}
	for i, op := range descriptor.Ops {
		field := fmt.Sprintf("ops[%d]", i)
		if code, msg, ok := validateOperation(op); !ok {
			add(field, code, msg)
		}
	}

	return DescriptorValidation{Valid: len(violations) == 0, Violations: violations}
}

func validateOperation(op types.Operation) (string, string, bool) {
	switch op.Kind {
	case types.OpCreateRecord:
		if op.CreateRecord == nil || strings.TrimSpace(op.CreateRecord.RecordType) == "" {
			return "OP_PAYLOAD_INVALID", "create_record requires record_type", false
		}
	case types.OpReviseRecord:
		if op.ReviseRecord == nil || strings.TrimSpace(op.ReviseRecord.RecordID) == "" {
			return "OP_PAYLOAD_INVALID", "revise_record requires record_id", false
		}
		if op.ReviseRecord.Title == nil && op.ReviseRecord.Body == nil && len(op.ReviseRecord.Metadata) == 0 {
			return "OP_PAYLOAD_EMPTY", "revise_record requires at least one field", false
		}
	case types.OpCreateContextItem:
		if op.CreateContextItem == nil || strings.TrimSpace(op.CreateContextItem.ItemType) == "" || strings.TrimSpace(op.CreateContextItem.Label) == "" {
			return "OP_PAYLOAD_INVALID", "create_context_item requires item_type and label", false
		}
	case types.OpAttachContextItem:
		if op.AttachContextItem == nil || strings.TrimSpace(op.AttachContextItem.ContextItemID) == "" || strings.TrimSpace(op.AttachContextItem.TargetID) == "" {
			return "OP_PAYLOAD_INVALID", "attach_context_item requires context_item_id and target_id", false
		}
	case types.OpMergeContextItems:
		if op.MergeContextItems == nil || len(op.MergeContextItems.FromIDs) == 0 || strings.TrimSpace(op.MergeContextItems.IntoID) == "" {
			return "OP_PAYLOAD_INVALID", "merge_context_items requires from_ids and into_id", false
		}
	case types.OpPromoteScope:
		if op.PromoteScope == nil || strings.TrimSpace(op.PromoteScope.ContextItemID) == "" {
			return "OP_PAYLOAD_INVALID", "promote_scope requires context_item_id", false
		}
		switch op.PromoteScope.ToScope {
		case types.ScopeLocal, types.ScopeWorkspace, types.ScopeGlobal:
		default:
			return "OP_PAYLOAD_INVALID", "promote_scope requires a valid to_scope", false
		}
	case types.OpDetach:
		if op.Detach == nil || strings.TrimSpace(op.Detach.ContextItemID) == "" || strings.TrimSpace(op.Detach.TargetID) == "" {
			return "OP_PAYLOAD_INVALID", "detach requires context_item_id and target_id", false
		}
	case types.OpRename:
		if op.Rename == nil || strings.TrimSpace(op.Rename.TargetID) == "" || strings.TrimSpace(op.Rename.NewLabel) == "" {
			return "OP_PAYLOAD_INVALID", "rename requires target_id and new_label", false
		}
	case types.OpAlias:
		if op.Alias == nil || strings.TrimSpace(op.Alias.TargetID) == "" || strings.TrimSpace(op.Alias.Alias) == "" {
			return "OP_PAYLOAD_INVALID", "alias requires target_id and alias", false
		}
	case types.OpDocumentEdit:
		if op.DocumentEdit == nil || strings.TrimSpace(op.DocumentEdit.DocumentID) == "" || op.DocumentEdit.Patch == "" {
			return "OP_PAYLOAD_INVALID", "document_edit requires document_id and patch", false
		}
	default:
		return "OP_KIND_UNKNOWN", fmt.Sprintf("unknown operation kind %q", op.Kind), false
	}
	return "", "", true
}
