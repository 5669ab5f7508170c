package httpapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/dirworks/director/internal/browser"
	"github.com/dirworks/director/internal/workflow"
)

// FacadeFactory builds a Browser Facade for one workflow's execution
// session, typically by acquiring an instance from the shared pool.
type FacadeFactory func(ctx context.Context, workflowID string) (*browser.Facade, error)

// RuntimeFactory binds a Workflow Runtime to a session's facade.
type RuntimeFactory func(workflowID string, facade *browser.Facade) *workflow.Runtime

// Sessions tracks the live browser execution session per workflow:
// created by POST /execution/start, torn down by POST /execution/stop.
type Sessions struct {
	newFacade  FacadeFactory
	newRuntime RuntimeFactory

	mu     sync.Mutex
	active map[string]*session
}

type session struct {
	facade  *browser.Facade
	runtime *workflow.Runtime
}

// NewSessions creates an empty session registry.
func NewSessions(newFacade FacadeFactory, newRuntime RuntimeFactory) *Sessions {
	return &Sessions{
		newFacade:  newFacade,
		newRuntime: newRuntime,
		active:     make(map[string]*session),
	}
}

// Start brings up a browser session for workflowID. Starting a workflow
// that already has a live session is an error; callers stop it first.
func (s *Sessions) Start(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	if _, running := s.active[workflowID]; running {
		s.mu.Unlock()
		return fmt.Errorf("httpapi: execution already started for workflow %s", workflowID)
	}
	// Reserve the slot before the (slow) facade acquisition so two
	// concurrent starts for the same workflow cannot both proceed.
	s.active[workflowID] = nil
	s.mu.Unlock()

	facade, err := s.newFacade(ctx, workflowID)
	if err != nil {
		s.mu.Lock()
		delete(s.active, workflowID)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if _, reserved := s.active[workflowID]; !reserved {
		// A concurrent Stop cleared the reservation mid-start.
		s.mu.Unlock()
		facade.Release()
		return fmt.Errorf("httpapi: execution stopped while starting for workflow %s", workflowID)
	}
	s.active[workflowID] = &session{facade: facade, runtime: s.newRuntime(workflowID, facade)}
	s.mu.Unlock()
	return nil
}

// Stop releases workflowID's browser session. Stopping a workflow with
// no live session is a no-op, so the endpoint is idempotent.
func (s *Sessions) Stop(workflowID string) {
	s.mu.Lock()
	sess := s.active[workflowID]
	delete(s.active, workflowID)
	s.mu.Unlock()

	if sess != nil && sess.facade != nil {
		sess.facade.Release()
	}
}

// Runtime returns the live runtime for workflowID, if a session exists.
func (s *Sessions) Runtime(workflowID string) (*workflow.Runtime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.active[workflowID]
	if sess == nil {
		return nil, false
	}
	return sess.runtime, true
}

// Facade returns the live facade for workflowID, if a session exists.
func (s *Sessions) Facade(workflowID string) (*browser.Facade, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.active[workflowID]
	if sess == nil {
		return nil, false
	}
	return sess.facade, true
}

// StopAll tears down every live session, for server shutdown.
func (s *Sessions) StopAll() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.active))
	for id, sess := range s.active {
		if sess != nil {
			sessions = append(sessions, sess)
		}
		delete(s.active, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if sess.facade != nil {
			sess.facade.Release()
		}
	}
}
