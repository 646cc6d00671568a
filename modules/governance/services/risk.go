package services

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

const (
	riskTagLow  = "risk_low"
	riskTagHigh = "risk_high"
)

// RiskSignal is the scored risk of one descriptor, in [0,1]. The decider
// compares Score against the policy's hybrid threshold.
type RiskSignal struct {
	Score  float64
	Detail string
}

// RiskScorer derives a risk signal from operation content. Implementations
// must be pure: same descriptor, same signal.
type RiskScorer interface {
	Score(descriptor types.ChangeDescriptor) (RiskSignal, error)
}

// WeightedRiskScorer is the built-in signal function: a weighted sum over
// operation kinds, batch size, and the requested blast radius, clamped to
// [0,1]. Scope promotion to GLOBAL is not scored here; the decider forces
// the proposal branch for it outright.
type WeightedRiskScorer struct{}

func (WeightedRiskScorer) Score(descriptor types.ChangeDescriptor) (RiskSignal, error) {
	score := 0.0
	for _, op := range descriptor.Ops {
		score += opRiskWeight(op.Kind)
	}
	if len(descriptor.Ops) > 5 {
		score += 0.15
	}
	switch descriptor.BlastRadius {
	case types.BlastRadiusScoped:
		score += 0.2
	case types.BlastRadiusGlobal:
		score += 0.5
	}
	if score > 1 {
		score = 1
	}
	return RiskSignal{Score: score, Detail: "weighted"}, nil
}

func opRiskWeight(kind types.OpKind) float64 {
	switch kind {
	case types.OpCreateRecord, types.OpCreateContextItem, types.OpAlias:
		return 0.05
	case types.OpReviseRecord, types.OpAttachContextItem, types.OpRename, types.OpDocumentEdit:
		return 0.1
	case types.OpDetach:
		return 0.25
	case types.OpMergeContextItems:
		return 0.35
	case types.OpPromoteScope:
		return 0.3
	default:
		return 0.1
	}
}

// RiskRule is one CEL risk rule. Eligibility is a boolean expression over a
// string context map bound as "ctx"; the highest-priority eligible rule's
// score wins.
type RiskRule struct {
	Name        string
	Priority    int
	Eligibility string
	Score       float64
}

// CELRiskScorer evaluates configurable risk rules. Programs compile once and
// are cached per expression.
type CELRiskScorer struct {
	Rules    []RiskRule
	Fallback RiskScorer

	programs sync.Map
}

func (s *CELRiskScorer) Score(descriptor types.ChangeDescriptor) (RiskSignal, error) {
	ctxMap := riskContextMap(descriptor)
	var selected *RiskRule
	for i := range s.Rules {
		rule := s.Rules[i]
		eligible, err := s.evalEligibility(rule.Eligibility, ctxMap)
		if err != nil {
			return RiskSignal{}, err
		}
		if !eligible {
			continue
		}
		if selected == nil || rule.Priority > selected.Priority {
			copyRule := rule
			selected = &copyRule
		}
	}
	if selected == nil {
		if s.Fallback != nil {
			return s.Fallback.Score(descriptor)
		}
		return RiskSignal{Score: 0, Detail: "no_rule_matched"}, nil
	}
	score := selected.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return RiskSignal{Score: score, Detail: "rule:" + selected.Name}, nil
}

func (s *CELRiskScorer) evalEligibility(expr string, ctxMap map[string]string) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, errors.New("risk rule eligibility expression required")
	}
	if cached, ok := s.programs.Load(expr); ok {
		out, _, err := cached.(cel.Program).Eval(map[string]any{"ctx": ctxMap})
		if err != nil {
			return false, err
		}
		return out.Value().(bool), nil
	}
	env, err := cel.NewEnv(cel.Variable("ctx", cel.MapType(cel.StringType, cel.StringType)))
	if err != nil {
		return false, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return false, errors.New("risk rule eligibility must evaluate to bool")
	}
	program, err := env.Program(ast)
	if err != nil {
		return false, err
	}
	s.programs.Store(expr, program)
	out, _, err := program.Eval(map[string]any{"ctx": ctxMap})
	if err != nil {
		return false, err
	}
	return out.Value().(bool), nil
}

func riskContextMap(descriptor types.ChangeDescriptor) map[string]string {
	kinds := make([]string, 0, len(descriptor.Ops))
	seen := make(map[types.OpKind]struct{}, len(descriptor.Ops))
	promotesGlobal := false
	for _, op := range descriptor.Ops {
		if _, ok := seen[op.Kind]; !ok {
			seen[op.Kind] = struct{}{}
			kinds = append(kinds, string(op.Kind))
		}
		if op.PromotesToGlobal() {
			promotesGlobal = true
		}
	}
	return map[string]string{
		"entry_point":     string(descriptor.EntryPoint),
		"workspace_id":    descriptor.WorkspaceID,
		"basket_id":       descriptor.BasketID,
		"op_count":        strconv.Itoa(len(descriptor.Ops)),
		"op_kinds":        strings.Join(kinds, ","),
		"blast_radius":    string(descriptor.BlastRadius),
		"promotes_global": strconv.FormatBool(promotesGlobal),
	}
}
