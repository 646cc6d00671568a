package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type OpKind string

const (
	OpCreateRecord      OpKind = "create_record"
	OpReviseRecord      OpKind = "revise_record"
	OpCreateContextItem OpKind = "create_context_item"
	OpAttachContextItem OpKind = "attach_context_item"
	OpMergeContextItems OpKind = "merge_context_items"
	OpPromoteScope      OpKind = "promote_scope"
	OpDetach            OpKind = "detach"
	OpRename            OpKind = "rename"
	OpAlias             OpKind = "alias"
	OpDocumentEdit      OpKind = "document_edit"
)

type Scope string

const (
	ScopeLocal     Scope = "LOCAL"
	ScopeWorkspace Scope = "WORKSPACE"
	ScopeGlobal    Scope = "GLOBAL"
)

// Operation is the closed tagged union of substrate mutations. Exactly one
// payload field is set, matching Kind; DecodeOperation enforces that at the
// boundary so downstream code never re-checks shapes.
type Operation struct {
	Kind OpKind

	CreateRecord      *CreateRecordOp
	ReviseRecord      *ReviseRecordOp
	CreateContextItem *CreateContextItemOp
	AttachContextItem *AttachContextItemOp
	MergeContextItems *MergeContextItemsOp
	PromoteScope      *PromoteScopeOp
	Detach            *DetachOp
	Rename            *RenameOp
	Alias             *AliasOp
	DocumentEdit      *DocumentEditOp
}

type CreateRecordOp struct {
	RecordType string         `json:"record_type"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ReviseRecordOp struct {
	RecordID string         `json:"record_id"`
	Title    *string        `json:"title,omitempty"`
	Body     *string        `json:"body,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type CreateContextItemOp struct {
	ItemType string `json:"item_type"`
	Label    string `json:"label"`
	Content  string `json:"content,omitempty"`
}

type AttachContextItemOp struct {
	ContextItemID string `json:"context_item_id"`
	TargetID      string `json:"target_id"`
	Relationship  string `json:"relationship,omitempty"`
}

type MergeContextItemsOp struct {
	FromIDs []string `json:"from_ids"`
	IntoID  string   `json:"into_id"`
}

type PromoteScopeOp struct {
	ContextItemID string `json:"context_item_id"`
	ToScope       Scope  `json:"to_scope"`
}

type DetachOp struct {
	ContextItemID string `json:"context_item_id"`
	TargetID      string `json:"target_id"`
}

type RenameOp struct {
	TargetID string `json:"target_id"`
	NewLabel string `json:"new_label"`
}

type AliasOp struct {
	TargetID string `json:"target_id"`
	Alias    string `json:"alias"`
}

type DocumentEditOp struct {
	DocumentID string `json:"document_id"`
	Patch      string `json:"patch"`
}

type wireOperation struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var errOpPayloadMissing = errors.New("operation payload required")

// DecodeOperation decodes one {type, payload} wire operation into the typed
// union. Unknown kinds and malformed payloads are errors; this is the single
// place wire shapes are checked.
func DecodeOperation(raw json.RawMessage) (Operation, error) {
	var wire wireOperation
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Operation{}, err
	}
	kind := OpKind(strings.ToLower(strings.TrimSpace(wire.Type)))
	if len(wire.Payload) == 0 {
		return Operation{}, errOpPayloadMissing
	}

	decode := func(dst any) error {
		dec := json.NewDecoder(strings.NewReader(string(wire.Payload)))
		dec.DisallowUnknownFields()
		return dec.Decode(dst)
	}

	op := Operation{Kind: kind}
	var err error
	switch kind {
	case OpCreateRecord:
		op.CreateRecord = &CreateRecordOp{}
		err = decode(op.CreateRecord)
	case OpReviseRecord:
		op.ReviseRecord = &ReviseRecordOp{}
		err = decode(op.ReviseRecord)
	case OpCreateContextItem:
		op.CreateContextItem = &CreateContextItemOp{}
		err = decode(op.CreateContextItem)
	case OpAttachContextItem:
		op.AttachContextItem = &AttachContextItemOp{}
		err = decode(op.AttachContextItem)
	case OpMergeContextItems:
		op.MergeContextItems = &MergeContextItemsOp{}
		err = decode(op.MergeContextItems)
	case OpPromoteScope:
		op.PromoteScope = &PromoteScopeOp{}
		err = decode(op.PromoteScope)
	case OpDetach:
		op.Detach = &DetachOp{}
		err = decode(op.Detach)
	case OpRename:
		op.Rename = &RenameOp{}
		err = decode(op.Rename)
	case OpAlias:
		op.Alias = &AliasOp{}
		err = decode(op.Alias)
	case OpDocumentEdit:
		op.DocumentEdit = &DocumentEditOp{}
		err = decode(op.DocumentEdit)
	default:
		return Operation{}, fmt.Errorf("unknown operation type %q", wire.Type)
	}
	if err != nil {
		return Operation{}, err
	}
	return op, nil
}

// EncodeOperation renders the wire form of an operation. Used when freezing
// proposal ops as jsonb.
func EncodeOperation(op Operation) (json.RawMessage, error) {
	payload, err := json.Marshal(op.payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireOperation{Type: string(op.Kind), Payload: payload})
}

func (op Operation) payload() any {
	switch op.Kind {
	case OpCreateRecord:
		return op.CreateRecord
	case OpReviseRecord:
		return op.ReviseRecord
	case OpCreateContextItem:
		return op.CreateContextItem
	case OpAttachContextItem:
		return op.AttachContextItem
	case OpMergeContextItems:
		return op.MergeContextItems
	case OpPromoteScope:
		return op.PromoteScope
	case OpDetach:
		return op.Detach
	case OpRename:
		return op.Rename
	case OpAlias:
		return op.Alias
	case OpDocumentEdit:
		return op.DocumentEdit
	default:
		return nil
	}
}

// PromotesToGlobal reports whether the operation widens a context item to
// global scope. Such an op always forces the widest blast radius.
func (op Operation) PromotesToGlobal() bool {
	return op.Kind == OpPromoteScope && op.PromoteScope != nil && op.PromoteScope.ToScope == ScopeGlobal
}
