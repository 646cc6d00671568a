package services

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

// pipelinePolicy holds the allowed-write table and read-visibility rules for
// the five substrate stages. Reflection (P3) writes only its cache category,
// so its outputs stay re-derivable and are never a write dependency for
// another stage.
const pipelinePolicy = `package substratum.pipeline

write_table := {
	"P0": {"raw_capture"},
	"P1": {"substrate_record"},
	"P2": {"context_item", "relationship"},
	"P3": {"reflection_cache"},
	"P4": {"document"},
}

stage_rank := {"P0": 0, "P1": 1, "P2": 2, "P3": 3, "P4": 4}

category_stage := {cat: stage |
	some stage, cats in write_table
	some cat in cats
}

default allow_write := false

allow_write if input.category in write_table[input.stage]

default allow_read := false

allow_read if {
	stage_rank[category_stage[input.category]] < stage_rank[input.stage]
}

allow_read if {
	stage_rank[input.stage] >= 3
	stage_rank[category_stage[input.category]] <= stage_rank[input.stage]
}
`

// PipelineGuard enforces stage/category boundaries. Queries are prepared
// once at construction; GuardWrite and GuardRead are cheap per-op checks.
type PipelineGuard struct {
	write rego.PreparedEvalQuery
	read  rego.PreparedEvalQuery
}

func NewPipelineGuard() (*PipelineGuard, error) {
	prepare := func(query string) (rego.PreparedEvalQuery, error) {
		return rego.New(
			rego.Query(query),
			rego.Module("pipeline.rego", pipelinePolicy),
		).PrepareForEval(context.Background())
	}

	write, err := prepare("data.substratum.pipeline.allow_write")
	if err != nil {
		return nil, fmt.Errorf("pipeline guard: %w", err)
	}
	read, err := prepare("data.substratum.pipeline.allow_read")
	if err != nil {
		return nil, fmt.Errorf("pipeline guard: %w", err)
	}
	return &PipelineGuard{write: write, read: read}, nil
}

func (g *PipelineGuard) GuardWrite(ctx context.Context, stage types.Stage, category types.RecordCategory) (bool, error) {
	return g.eval(ctx, g.write, stage, category)
}

func (g *PipelineGuard) GuardRead(ctx context.Context, stage types.Stage, category types.RecordCategory) (bool, error) {
	return g.eval(ctx, g.read, stage, category)
}

func (g *PipelineGuard) eval(ctx context.Context, query rego.PreparedEvalQuery, stage types.Stage, category types.RecordCategory) (bool, error) {
	results, err := query.Eval(ctx, rego.EvalInput(map[string]any{
		"stage":    string(stage),
		"category": string(category),
	}))
	if err != nil {
		return false, fmt.Errorf("pipeline guard: %w", err)
	}
	return results.Allowed(), nil
}

// GuardOps checks every operation in a batch before anything applies. The
// first disallowed operation rejects the whole batch.
func (g *PipelineGuard) GuardOps(ctx context.Context, ops []types.Operation) error {
	for i, op := range ops {
		stage := types.OpStage(op.Kind)
		category := types.OpWriteCategory(op.Kind)
		allowed, err := g.GuardWrite(ctx, stage, category)
		if err != nil {
			return err
		}
		if !allowed {
			return &PipelineViolationError{Index: i, Stage: stage, Category: category}
		}
	}
	return nil
}

// PipelineViolationError rejects a batch whose operation targets a category
// its stage may not write.
type PipelineViolationError struct {
	Index    int
	Stage    types.Stage
	Category types.RecordCategory
}

func (e *PipelineViolationError) Error() string {
	return fmt.Sprintf("%s: ops[%d] stage %s may not write %s", errPipelineViolation, e.Index, e.Stage, e.Category)
}
