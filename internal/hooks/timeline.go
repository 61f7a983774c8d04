package hooks

import "github.com/taskflow-hub/realtime/internal/model"

// TaskTimeline records every task-* event of one task in arrival order.
// Entries are not deduplicated; a hub redelivery shows up twice.
type TaskTimeline struct {
	base
	taskID  string
	entries []model.RealtimeEvent
}

// NewTaskTimeline starts recording events for taskID.
func NewTaskTimeline(sub Subscriber, taskID string, opts ...Option) *TaskTimeline {
	h := &TaskTimeline{taskID: taskID}
	h.init(opts)
	h.listen(sub, h.handle,
		model.EventTaskUpdated,
		model.EventTaskStatusChanged,
		model.EventTaskAssigned,
		model.EventTaskCompleted,
	)
	return h
}

func (h *TaskTimeline) handle(evt model.RealtimeEvent) {
	if evt.TaskID != h.taskID {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.entries = append(h.entries, evt)
	h.mu.Unlock()
	h.changed()
}

// TaskID returns the task being followed.
func (h *TaskTimeline) TaskID() string {
	return h.taskID
}

// Entries returns the recorded events, oldest first.
func (h *TaskTimeline) Entries() []model.RealtimeEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.RealtimeEvent(nil), h.entries...)
}

// Clear empties the timeline.
func (h *TaskTimeline) Clear() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
	h.changed()
}

// Close stops recording.
func (h *TaskTimeline) Close() {
	h.detach()
}
