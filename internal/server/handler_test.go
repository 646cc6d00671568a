package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

const testAllowlistYAML = `
version: 1
entrypoints:
  server:
    routes:
      - path: /health
        methods: [GET]
        route_class: ops
      - path: /healthz
        methods: [GET]
        route_class: ops
      - path: /api/changes
        methods: [POST]
        route_class: internal_api
      - path: /api/governance/status
        methods: [GET]
        route_class: internal_api
      - path: /api/proposals
        methods: [GET]
        route_class: internal_api
      - path: /api/proposals/{id}
        methods: [GET]
        route_class: internal_api
      - path: /api/proposals/{id}/review
        methods: [POST]
        route_class: internal_api
      - path: /api/proposals/{id}/approve
        methods: [POST]
        route_class: internal_api
      - path: /api/proposals/{id}/reject
        methods: [POST]
        route_class: internal_api
      - path: /api/captures
        methods: [POST]
        route_class: capture
`

const testModelConf = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.dom == "*" || r.dom == p.dom) && r.obj == p.obj && r.act == p.act
`

const testPolicyCSV = `p, role:reviewer, *, governance.changes, write
p, role:reviewer, *, governance.proposals, read
p, role:reviewer, *, governance.proposals, review
p, role:reviewer, *, governance.status, read
p, role:contributor, *, governance.changes, write
p, role:contributor, *, governance.proposals, read
p, role:contributor, *, governance.status, read
p, role:contributor, *, governance.captures, write
`

type stubValidator struct {
	report types.ValidationReport
	err    error
}

func (v stubValidator) Validate(_ context.Context, _ types.ChangeDescriptor, _ types.ValidatorMode) (types.ValidationReport, error) {
	if v.err != nil {
		return types.ValidationReport{}, v.err
	}
	return v.report, nil
}

type serverFixture struct {
	handler   http.Handler
	policies  *policyMemoryStore
	proposals *proposalMemoryStore
	substrate *substrateMemoryStore
	timeline  *timelineMemorySink
	captures  *captureMemoryStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	dir := t.TempDir()
	write := func(name string, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	t.Setenv("ALLOWLIST_PATH", write("allowlist.yaml", testAllowlistYAML))
	t.Setenv("WORKSPACES_PATH", write("workspaces.yaml", `
version: 1
workspaces:
  - id: ws-demo
    domain: demo.example.com
    name: Demo
`))
	t.Setenv("AUTHZ_MODEL_PATH", write("model.conf", testModelConf))
	t.Setenv("AUTHZ_POLICY_PATH", write("policy.csv", testPolicyCSV))
	t.Setenv("AUTHZ_MODE", "enforce")

	f := &serverFixture{
		policies:  newPolicyMemoryStore(),
		proposals: newProposalMemoryStore(),
		substrate: newSubstrateMemoryStore(),
		timeline:  newTimelineMemorySink(),
		captures:  newCaptureMemoryStore(),
	}
	resolver, err := loadWorkspaceRegistry()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	handler, err := NewHandlerWithOptions(HandlerOptions{
		WorkspaceResolver: resolver,
		PolicyStore:       f.policies,
		ProposalStore:     f.proposals,
		SubstrateStore:    f.substrate,
		Timeline:          f.timeline,
		CaptureStore:      f.captures,
		Validator:         stubValidator{report: types.ValidationReport{Confidence: 0.9, AgentID: "agent-1"}},
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	f.handler = handler
	return f
}

func (f *serverFixture) do(t *testing.T, method string, path string, body string, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Host = "demo.example.com"
	req.Header.Set("X-Actor-ID", "actor-1")
	req.Header.Set("X-Actor-Role", role)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func directChangeBody() string {
	return `{
		"entry_point": "manual_edit",
		"actor_id": "actor-1",
		"basket_id": "basket-1",
		"ops": [{"type":"create_record","payload":{"record_type":"note","title":"T","body":"B"}}]
	}`
}

func (f *serverFixture) setEntryPointPolicy(ep types.EntryPoint, pol types.EntryPointPolicy) {
	f.policies.Put("ws-demo", types.WorkspacePolicy{
		GovernanceEnabled: true,
		EntryPoints:       map[types.EntryPoint]types.EntryPointPolicy{ep: pol},
	})
}

func TestHandler_Health(t *testing.T) {
	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Host = "unregistered.example.com"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestHandler_WorkspaceNotFound(t *testing.T) {
	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/changes", strings.NewReader(directChangeBody()))
	req.Host = "unregistered.example.com"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_DirectChangeCommits(t *testing.T) {
	f := newServerFixture(t)
	f.setEntryPointPolicy(types.EntryPointManualEdit, types.EntryPointPolicyDirect)

	rec := f.do(t, http.MethodPost, "/api/changes", directChangeBody(), "contributor")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp changeAPIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Committed || resp.ExecutionSummary == nil || resp.ExecutionSummary.OperationsExecuted != 1 {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Decision.Route != "direct" {
		t.Fatalf("decision=%+v", resp.Decision)
	}
	if len(f.timeline.events) != 1 {
		t.Fatalf("events=%d", len(f.timeline.events))
	}
}

func TestHandler_ShapeError(t *testing.T) {
	f := newServerFixture(t)
	f.setEntryPointPolicy(types.EntryPointManualEdit, types.EntryPointPolicyDirect)

	body := `{"entry_point":"manual_edit","actor_id":"actor-1","basket_id":"basket-1","ops":[]}`
	rec := f.do(t, http.MethodPost, "/api/changes", body, "contributor")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp shapeErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "SHAPE_VALIDATION_FAILED" || len(resp.Violations) == 0 {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestHandler_ProposalLifecycle(t *testing.T) {
	f := newServerFixture(t)
	f.setEntryPointPolicy(types.EntryPointAgentSuggestion, types.EntryPointPolicyProposal)

	body := `{
		"entry_point": "agent_suggestion",
		"actor_id": "actor-1",
		"basket_id": "basket-1",
		"ops": [{"type":"create_record","payload":{"record_type":"note","title":"T","body":"B"}}]
	}`
	rec := f.do(t, http.MethodPost, "/api/changes", body, "contributor")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var created changeAPIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Committed || created.ProposalID == "" {
		t.Fatalf("resp=%+v", created)
	}
	if created.ValidationReport == nil || created.ValidationReport.AgentID != "agent-1" {
		t.Fatalf("resp=%+v", created)
	}

	rec = f.do(t, http.MethodGet, "/api/proposals", "", "reviewer")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/proposals/"+created.ProposalID+"/review", "", "reviewer")
	if rec.Code != http.StatusOK {
		t.Fatalf("review code=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/proposals/"+created.ProposalID+"/approve", "", "reviewer")
	if rec.Code != http.StatusOK {
		t.Fatalf("approve code=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(f.substrate.records["ws-demo"]) != 1 {
		t.Fatalf("records=%+v", f.substrate.records)
	}

	// Approving again must conflict and must not re-execute.
	rec = f.do(t, http.MethodPost, "/api/proposals/"+created.ProposalID+"/approve", "", "reviewer")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second approve code=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(f.substrate.records["ws-demo"]) != 1 {
		t.Fatal("ops must execute exactly once")
	}
}

func TestHandler_RejectProposal(t *testing.T) {
	f := newServerFixture(t)
	f.setEntryPointPolicy(types.EntryPointAgentSuggestion, types.EntryPointPolicyProposal)

	body := `{
		"entry_point": "agent_suggestion",
		"actor_id": "actor-1",
		"basket_id": "basket-1",
		"ops": [{"type":"create_record","payload":{"record_type":"note","title":"T","body":"B"}}]
	}`
	rec := f.do(t, http.MethodPost, "/api/changes", body, "contributor")
	var created changeAPIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = f.do(t, http.MethodPost, "/api/proposals/"+created.ProposalID+"/reject", `{"reason":"duplicate"}`, "reviewer")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(f.substrate.records["ws-demo"]) != 0 {
		t.Fatal("rejected proposal must not mutate the substrate")
	}
}

func TestHandler_ContributorCannotApprove(t *testing.T) {
	f := newServerFixture(t)
	f.setEntryPointPolicy(types.EntryPointAgentSuggestion, types.EntryPointPolicyProposal)

	rec := f.do(t, http.MethodPost, "/api/proposals/some-id/approve", "", "contributor")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ProposalNotFound(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/api/proposals/no-such", "", "reviewer")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_GovernanceStatus(t *testing.T) {
	f := newServerFixture(t)
	f.setEntryPointPolicy(types.EntryPointManualEdit, types.EntryPointPolicyDirect)

	rec := f.do(t, http.MethodGet, "/api/governance/status", "", "contributor")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp governanceStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "partial" {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Source != "workspace_database" {
		t.Fatalf("resp=%+v", resp)
	}
	if len(resp.EntryPoints) != len(types.KnownEntryPoints()) {
		t.Fatalf("entry points=%+v", resp.EntryPoints)
	}
}

func TestHandler_GovernanceStatusFallback(t *testing.T) {
	f := newServerFixture(t)
	// No stored policy: the environment fallback answers.
	rec := f.do(t, http.MethodGet, "/api/governance/status", "", "contributor")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp governanceStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Source != "environment_fallback" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestHandler_Capture(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodPost, "/api/captures?basket_id=basket-1", "raw note text", "contributor")
	if rec.Code != http.StatusCreated {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["capture_id"] == "" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestHandler_CaptureRequiresBasket(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodPost, "/api/captures", "raw", "contributor")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ValidatorDown(t *testing.T) {
	f := newServerFixture(t)
	f.setEntryPointPolicy(types.EntryPointAgentSuggestion, types.EntryPointPolicyProposal)
	// Rebuild with a failing validator.
	resolver, err := loadWorkspaceRegistry()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	handler, err := NewHandlerWithOptions(HandlerOptions{
		WorkspaceResolver: resolver,
		PolicyStore:       f.policies,
		ProposalStore:     f.proposals,
		SubstrateStore:    f.substrate,
		Timeline:          f.timeline,
		CaptureStore:      f.captures,
		Validator:         stubValidator{err: context.DeadlineExceeded},
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	f.handler = handler

	body := `{
		"entry_point": "agent_suggestion",
		"actor_id": "actor-1",
		"basket_id": "basket-1",
		"ops": [{"type":"create_record","payload":{"record_type":"note","title":"T","body":"B"}}]
	}`
	rec := f.do(t, http.MethodPost, "/api/changes", body, "contributor")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "VALIDATOR_UNAVAILABLE") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}
