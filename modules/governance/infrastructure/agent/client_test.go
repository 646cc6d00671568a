package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

func testDescriptor() types.ChangeDescriptor {
	return types.ChangeDescriptor{
		EntryPoint:  types.EntryPointAgentSuggestion,
		ActorID:     "actor-1",
		WorkspaceID: "ws-1",
		BasketID:    "basket-1",
		Ops: []types.Operation{{
			Kind:         types.OpCreateRecord,
			CreateRecord: &types.CreateRecordOp{RecordType: "note", Title: "t", Body: "b"},
		}},
	}
}

func TestNew_Validation(t *testing.T) {
	cases := []string{"", "notaurl", "ftp://agent.local", "http://"}
	for _, raw := range cases {
		if _, err := New(raw, time.Second); err == nil {
			t.Fatalf("New(%q): expected error", raw)
		}
	}
	if _, err := New("http://agent.local/", time.Second); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestValidate_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/validate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.ValidationReport{
			Confidence: 0.82,
			Warnings:   []string{"possible duplicate"},
			Impact:     types.ImpactSummary{RecordsAffected: 1},
			AgentID:    "validator-7",
		})
	}))
	defer srv.Close()

	client, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	report, err := client.Validate(context.Background(), testDescriptor(), types.ValidatorModeStrict)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if report.Confidence != 0.82 || report.AgentID != "validator-7" {
		t.Fatalf("report=%+v", report)
	}
	if got["mode"] != "strict" || got["entry_point"] != "agent_suggestion" {
		t.Fatalf("request=%+v", got)
	}
	ops, ok := got["ops"].([]any)
	if !ok || len(ops) != 1 {
		t.Fatalf("request ops=%+v", got["ops"])
	}
}

func TestValidate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"model overloaded"}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	_, err = client.Validate(context.Background(), testDescriptor(), types.ValidatorModeLenient)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err=%v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status=%d", httpErr.StatusCode)
	}
	if !strings.Contains(httpErr.Error(), "model overloaded") {
		t.Fatalf("error=%q", httpErr.Error())
	}
}

func TestValidate_ConfidenceOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"confidence":1.7}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := client.Validate(context.Background(), testDescriptor(), types.ValidatorModeStrict); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate_ContextCancel(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read; without
		// it the client disconnect is never detected and r.Context() is
		// never cancelled, deadlocking srv.Close.
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, err := New(srv.URL, time.Minute)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	if _, err := client.Validate(ctx, testDescriptor(), types.ValidatorModeStrict); err == nil {
		t.Fatal("expected cancellation error")
	}
}
