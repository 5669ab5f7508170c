package director

import (
	"context"
	"sync"
)

// workflowLock is a ref-counted mutex for one workflow: refs tracks how
// many callers currently hold or are waiting on the lock, so the entry
// can be removed from the owning map the moment the last holder releases
// it instead of accumulating one mutex per workflow for the life of the
// process.
type workflowLock struct {
	mu   sync.Mutex
	refs int
}

// LoopFactory builds the per-workflow Director instance the first time a
// workflow processes a turn. The factory runs under the workflow's turn
// lock, so it never races itself for one workflow id.
type LoopFactory func(workflowID string) *Loop

// Manager owns the per-workflow Director singletons and serializes their
// turns: one in-flight turn per workflow, independent workflows
// concurrent. A Loop is created lazily on a workflow's first Process
// call and lives until Drop (execution stop or workflow deletion).
type Manager struct {
	factory LoopFactory

	mu    sync.Mutex
	locks map[string]*workflowLock
	loops map[string]*Loop
}

// NewManager creates a Manager that shares one Loop across all
// workflows. Deployments whose tool bindings are per-workflow (a live
// browser session per workflow) use NewManagerWithFactory instead.
func NewManager(loop *Loop) *Manager {
	return NewManagerWithFactory(func(string) *Loop { return loop })
}

// NewManagerWithFactory creates a Manager that builds one Loop per
// workflow on demand.
func NewManagerWithFactory(factory LoopFactory) *Manager {
	return &Manager{
		factory: factory,
		locks:   make(map[string]*workflowLock),
		loops:   make(map[string]*Loop),
	}
}

// Process runs one turn for workflowID, blocking until any other turn
// already in flight for the same workflow has completed. Turns for
// distinct workflows never block one another.
func (m *Manager) Process(ctx context.Context, workflowID, userMessage string) (*TurnResult, error) {
	lock := m.lockWorkflow(workflowID)
	defer m.unlockWorkflow(workflowID, lock)

	lock.mu.Lock()
	defer lock.mu.Unlock()

	return m.loopFor(workflowID).Run(ctx, workflowID, userMessage)
}

// Drop destroys workflowID's Director instance; the next Process call
// creates a fresh one. Callers drop when the workflow's execution
// session starts or stops so the instance's tool bindings track the
// live browser session, and when a workflow is deleted.
func (m *Manager) Drop(workflowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.loops, workflowID)
}

func (m *Manager) loopFor(workflowID string) *Loop {
	m.mu.Lock()
	loop, ok := m.loops[workflowID]
	m.mu.Unlock()
	if ok {
		return loop
	}

	// Built outside the manager mutex: a factory may do real work, and
	// the caller already holds the workflow's turn lock.
	loop = m.factory(workflowID)

	m.mu.Lock()
	m.loops[workflowID] = loop
	m.mu.Unlock()
	return loop
}

func (m *Manager) lockWorkflow(workflowID string) *workflowLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[workflowID]
	if !ok {
		lock = &workflowLock{}
		m.locks[workflowID] = lock
	}
	lock.refs++
	return lock
}

func (m *Manager) unlockWorkflow(workflowID string, lock *workflowLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, workflowID)
	}
}
