package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
	"github.com/rowanvale/substratum/pkg/uuidv7"
)

// Memory stores back PERSISTENCE_MODE=memory and handler tests. They keep
// the same contracts as the pg stores, including the proposal transition
// compare-and-set.

var (
	errProposalMissing = errors.New("server: proposal not found")
	errTransitionLost  = errors.New("server: proposal transition lost")
)

type policyMemoryStore struct {
	mu       sync.RWMutex
	policies map[string]types.WorkspacePolicy
}

func newPolicyMemoryStore() *policyMemoryStore {
	return &policyMemoryStore{policies: map[string]types.WorkspacePolicy{}}
}

func (s *policyMemoryStore) Put(workspaceID string, policy types.WorkspacePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[workspaceID] = policy
}

func (s *policyMemoryStore) Load(_ context.Context, workspaceID string) (types.WorkspacePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[workspaceID]
	if !ok {
		return types.WorkspacePolicy{}, ports.ErrPolicyNotFound
	}
	return policy, nil
}

type proposalMemoryStore struct {
	mu         sync.Mutex
	proposals  map[string]types.Proposal
	executions map[string]types.ProposalExecution
}

func newProposalMemoryStore() *proposalMemoryStore {
	return &proposalMemoryStore{
		proposals:  map[string]types.Proposal{},
		executions: map[string]types.ProposalExecution{},
	}
}

func (s *proposalMemoryStore) Create(_ context.Context, proposal types.Proposal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if proposal.ID == "" {
		id, err := uuidv7.NewString()
		if err != nil {
			return "", err
		}
		proposal.ID = id
	}
	s.proposals[proposal.WorkspaceID+"/"+proposal.ID] = proposal
	return proposal.ID, nil
}

func (s *proposalMemoryStore) Get(_ context.Context, workspaceID string, proposalID string) (types.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposal, ok := s.proposals[workspaceID+"/"+proposalID]
	if !ok {
		return types.Proposal{}, errProposalMissing
	}
	return proposal, nil
}

func (s *proposalMemoryStore) ListOpen(_ context.Context, workspaceID string, basketID string) ([]types.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.Proposal{}
	for _, p := range s.proposals {
		if p.WorkspaceID != workspaceID || !p.Status.Eligible() {
			continue
		}
		if basketID != "" && p.BasketID != basketID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *proposalMemoryStore) Transition(_ context.Context, workspaceID string, proposalID string, expected types.ProposalStatus, next types.ProposalStatus, reviewer string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := workspaceID + "/" + proposalID
	proposal, ok := s.proposals[key]
	if !ok {
		return errProposalMissing
	}
	if proposal.Status != expected {
		return errTransitionLost
	}
	proposal.Status = next
	proposal.ReviewedBy = reviewer
	proposal.ReviewedAt = time.Now().UTC()
	if next == types.ProposalStatusRejected {
		proposal.RejectReason = reason
	}
	s.proposals[key] = proposal
	return nil
}

func (s *proposalMemoryStore) RecordExecution(_ context.Context, workspaceID string, execution types.ProposalExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[workspaceID+"/"+execution.ProposalID] = execution
	return nil
}

type substrateMemoryRecord struct {
	ID       string
	Kind     string
	BasketID string
}

type substrateMemoryStore struct {
	mu      sync.Mutex
	records map[string][]substrateMemoryRecord
}

func newSubstrateMemoryStore() *substrateMemoryStore {
	return &substrateMemoryStore{records: map[string][]substrateMemoryRecord{}}
}

func (s *substrateMemoryStore) ApplyOps(_ context.Context, workspaceID string, basketID string, _ string, ops []types.Operation) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(ops))
	for _, op := range ops {
		id, err := uuidv7.NewString()
		if err != nil {
			return nil, err
		}
		s.records[workspaceID] = append(s.records[workspaceID], substrateMemoryRecord{
			ID:       id,
			Kind:     string(op.Kind),
			BasketID: basketID,
		})
		ids = append(ids, id)
	}
	return ids, nil
}

type timelineMemorySink struct {
	mu     sync.Mutex
	events []ports.TimelineEvent
}

func newTimelineMemorySink() *timelineMemorySink {
	return &timelineMemorySink{}
}

func (s *timelineMemorySink) Append(_ context.Context, event ports.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

type captureMemoryStore struct {
	mu       sync.Mutex
	captures map[string][]byte
}

func newCaptureMemoryStore() *captureMemoryStore {
	return &captureMemoryStore{captures: map[string][]byte{}}
}

func (s *captureMemoryStore) Deposit(_ context.Context, workspaceID string, _ string, _ string, _ string, body []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := uuidv7.NewString()
	if err != nil {
		return "", err
	}
	s.captures[workspaceID+"/"+id] = append([]byte(nil), body...)
	return id, nil
}
