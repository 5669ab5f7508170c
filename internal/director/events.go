package director

import (
	"sync"

	"github.com/dirworks/director/internal/models"
)

// EventBus fans a workflow's tool-call lifecycle events out to any number
// of SSE subscribers (internal/httpapi's GET /director/tool-stream). A registerable
// multi-subscriber bus rather than a single-consumer channel, since
// several browser tabs may watch the same workflow at once.
type EventBus struct {
	mu   sync.Mutex
	subs map[string]map[chan *models.ToolEvent]struct{}
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string]map[chan *models.ToolEvent]struct{})}
}

// Subscribe registers a new subscriber for workflowID's events and returns
// the channel to read from plus an unsubscribe function. The channel is
// buffered so a slow subscriber cannot block Publish.
func (b *EventBus) Subscribe(workflowID string) (<-chan *models.ToolEvent, func()) {
	ch := make(chan *models.ToolEvent, 64)

	b.mu.Lock()
	if b.subs[workflowID] == nil {
		b.subs[workflowID] = make(map[chan *models.ToolEvent]struct{})
	}
	b.subs[workflowID][ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[workflowID]; ok {
			if _, present := set[ch]; present {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, workflowID)
			}
		}
	}
	return ch, unsubscribe
}

// Publish delivers event to every current subscriber of workflowID. A
// subscriber whose buffer is full drops the event rather than blocking
// the turn that produced it.
func (b *EventBus) Publish(workflowID string, event *models.ToolEvent) {
	if event == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[workflowID] {
		select {
		case ch <- event:
		default:
		}
	}
}
