package types

// EventType defines the type of event emitted by a worker.
type EventType string

const (
	EventTypeLeaseClaimed    EventType = "lease_claimed"    // EventTypeLeaseClaimed indicates this instance took the lease, possibly from a stale owner.
	EventTypeLeaseHeld       EventType = "lease_held"       // EventTypeLeaseHeld indicates another live instance is handling the task.
	EventTypeAgentConfigured EventType = "agent_configured" // EventTypeAgentConfigured indicates the one-time feature toggles were applied.
	EventTypeBatchDispatched EventType = "batch_dispatched" // EventTypeBatchDispatched indicates a prompt was sent to the agent.
	EventTypeBatchStabilized EventType = "batch_stabilized" // EventTypeBatchStabilized indicates the agent output stopped changing.
	EventTypeBatchTimedOut   EventType = "batch_timed_out"  // EventTypeBatchTimedOut indicates no stable output arrived in time.
	EventTypeBatchReconciled EventType = "batch_reconciled" // EventTypeBatchReconciled indicates a response was applied to the task.
	EventTypeBatchFailed     EventType = "batch_failed"     // EventTypeBatchFailed indicates every block of a batch was marked failed.
	EventTypeTaskComplete    EventType = "task_complete"    // EventTypeTaskComplete indicates no pending block remains.
	EventTypeTaskReplaced    EventType = "task_replaced"    // EventTypeTaskReplaced indicates an in-flight result was dropped because the task changed.
	EventTypeTokenEstimate   EventType = "token_estimate"   // EventTypeTokenEstimate indicates the estimated prompt size of a dispatched batch.
	EventTypeError           EventType = "error"            // EventTypeError indicates a recoverable error during a tick.
)

// Event represents something a worker did or observed during a tick.
type Event struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// Error contains error information for error events.
	Error error

	// Batch describes the batch the event refers to, if any.
	Batch *BatchInfo

	// Progress is a snapshot of task counts at the time of the event.
	Progress *Progress

	// Content holds free text, e.g. the reason a batch failed.
	Content string

	// Handler is the lease owner the event refers to.
	Handler string

	// Type indicates the kind of event.
	Type EventType

	// TaskID identifies the task the event belongs to.
	TaskID int64
}

// BatchInfo describes a dispatched batch.
type BatchInfo struct {
	// First and Last are the absolute indices spanned by the batch.
	First int
	Last  int

	// Size is the number of blocks in the batch.
	Size int

	// Chars is the total source characters.
	Chars int

	// Tokens is the estimated prompt token count, 0 when unknown.
	Tokens int
}

// Progress holds task block counts.
type Progress struct {
	Resolved int
	Failed   int
	Pending  int
	Total    int
}

// Done returns the number of settled blocks.
func (p Progress) Done() int {
	return p.Resolved + p.Failed
}

func newEvent(t EventType, taskID int64) *Event {
	return &Event{
		Type:     t,
		TaskID:   taskID,
		Metadata: make(map[string]interface{}),
	}
}

// NewLeaseClaimedEvent creates a lease claimed event. previous is the owner
// that was displaced, or empty for a free lease.
func NewLeaseClaimedEvent(taskID int64, previous string) *Event {
	e := newEvent(EventTypeLeaseClaimed, taskID)
	e.Handler = previous
	return e
}

// NewLeaseHeldEvent creates a lease held event.
func NewLeaseHeldEvent(taskID int64, owner string) *Event {
	e := newEvent(EventTypeLeaseHeld, taskID)
	e.Handler = owner
	return e
}

// NewAgentConfiguredEvent creates an agent configured event.
func NewAgentConfiguredEvent(taskID int64) *Event {
	return newEvent(EventTypeAgentConfigured, taskID)
}

// NewBatchDispatchedEvent creates a batch dispatched event.
func NewBatchDispatchedEvent(taskID int64, batch BatchInfo) *Event {
	e := newEvent(EventTypeBatchDispatched, taskID)
	e.Batch = &batch
	return e
}

// NewBatchStabilizedEvent creates a batch stabilized event.
func NewBatchStabilizedEvent(taskID int64, batch BatchInfo) *Event {
	e := newEvent(EventTypeBatchStabilized, taskID)
	e.Batch = &batch
	return e
}

// NewBatchTimedOutEvent creates a batch timed out event.
func NewBatchTimedOutEvent(taskID int64, batch BatchInfo) *Event {
	e := newEvent(EventTypeBatchTimedOut, taskID)
	e.Batch = &batch
	return e
}

// NewBatchReconciledEvent creates a batch reconciled event.
func NewBatchReconciledEvent(taskID int64, batch BatchInfo, progress Progress) *Event {
	e := newEvent(EventTypeBatchReconciled, taskID)
	e.Batch = &batch
	e.Progress = &progress
	return e
}

// NewBatchFailedEvent creates a batch failed event. reason is the error tag
// written to every block.
func NewBatchFailedEvent(taskID int64, batch BatchInfo, reason string) *Event {
	e := newEvent(EventTypeBatchFailed, taskID)
	e.Batch = &batch
	e.Content = reason
	return e
}

// NewTaskCompleteEvent creates a task complete event.
func NewTaskCompleteEvent(taskID int64, progress Progress) *Event {
	e := newEvent(EventTypeTaskComplete, taskID)
	e.Progress = &progress
	return e
}

// NewTaskReplacedEvent creates a task replaced event.
func NewTaskReplacedEvent(taskID int64) *Event {
	return newEvent(EventTypeTaskReplaced, taskID)
}

// NewTokenEstimateEvent creates a token estimate event.
func NewTokenEstimateEvent(taskID int64, batch BatchInfo) *Event {
	e := newEvent(EventTypeTokenEstimate, taskID)
	e.Batch = &batch
	return e
}

// NewErrorEvent creates an error event.
func NewErrorEvent(taskID int64, err error) *Event {
	e := newEvent(EventTypeError, taskID)
	e.Error = err
	return e
}

// WithMetadata adds metadata to the event and returns the event for chaining.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsError returns true if this is an error event.
func (e *Event) IsError() bool {
	return e.Type == EventTypeError
}

// IsBatchEvent returns true if the event refers to a batch.
func (e *Event) IsBatchEvent() bool {
	switch e.Type {
	case EventTypeBatchDispatched, EventTypeBatchStabilized, EventTypeBatchTimedOut,
		EventTypeBatchReconciled, EventTypeBatchFailed, EventTypeTokenEstimate:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the event ends the task from this worker's view.
func (e *Event) IsTerminal() bool {
	return e.Type == EventTypeTaskComplete
}

// EventHandler receives worker events. Implementations must not block.
type EventHandler func(*Event)
