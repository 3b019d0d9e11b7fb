package authflowrepo

import (
	"errors"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu    sync.RWMutex
	flows map[string]*AuthFlowState
}

// NewInMemoryRepo creates a new in-memory auth flow state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		flows: make(map[string]*AuthFlowState),
	}
}

// Upsert stores or updates an auth flow state
func (r *InMemoryRepo) Upsert(flowID string, authState *AuthFlowState) error {
	if flowID == "" {
		return errors.New("flow id cannot be empty")
	}
	if authState == nil {
		return errors.New("authState cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Copy so callers cannot modify the stored flow
	stored := *authState
	r.flows[flowID] = &stored
	return nil
}

// Get retrieves an auth flow state by flow id
func (r *InMemoryRepo) Get(flowID string) (*AuthFlowState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authState, exists := r.flows[flowID]
	if !exists {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "auth flow %q", flowID)
	}
	flow := *authState
	return &flow, nil
}

// Take retrieves and removes an auth flow state in one step
func (r *InMemoryRepo) Take(flowID string) (*AuthFlowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	authState, exists := r.flows[flowID]
	if !exists {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "auth flow %q", flowID)
	}
	delete(r.flows, flowID)
	return authState, nil
}

// Delete removes an auth flow state
func (r *InMemoryRepo) Delete(flowID string) error {
	if flowID == "" {
		return errors.New("flow id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, flowID)
	return nil
}

func (r *InMemoryRepo) DeleteExpired(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, flow := range r.flows {
		if flow.CreatedAt.Before(cutoff) {
			delete(r.flows, id)
			removed++
		}
	}
	return removed
}
