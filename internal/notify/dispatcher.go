package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fixdesk/fixdesk/jobs"
)

// Dispatcher hands events to the delivery pipeline. Dispatch is best effort:
// implementations log failures and never propagate them, so a dead queue
// cannot fail the mutation that produced the event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event)
}

// QueueDispatcher enqueues events as background tasks.
type QueueDispatcher struct {
	client *jobs.Client
	logger *slog.Logger
}

// NewQueueDispatcher constructs a queue-backed dispatcher.
func NewQueueDispatcher(client *jobs.Client, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{client: client, logger: logger}
}

// Dispatch enqueues the event for asynchronous delivery.
func (d *QueueDispatcher) Dispatch(ctx context.Context, ev Event) {
	payload := jobs.NotifyPayload{
		Type:     ev.Type,
		BranchID: ev.BranchID,
		Mobile:   ev.Recipient.Mobile,
		SMS:      ev.Recipient.SMS,
		WhatsApp: ev.Recipient.WhatsApp,
		Data:     ev.Data,
	}
	if _, err := d.client.EnqueueNotify(ctx, payload); err != nil {
		d.logger.Warn("notify enqueue failed",
			slog.String("type", ev.Type),
			slog.Int64("branch_id", ev.BranchID),
			slog.Any("error", err))
	}
}

// MemoryDispatcher records events in memory. Used in tests.
type MemoryDispatcher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryDispatcher constructs an empty in-memory dispatcher.
func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

// Dispatch appends the event.
func (d *MemoryDispatcher) Dispatch(_ context.Context, ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

// Events returns a copy of everything dispatched so far.
func (d *MemoryDispatcher) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// OfType returns dispatched events matching the given type.
func (d *MemoryDispatcher) OfType(eventType string) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Event
	for _, ev := range d.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// NopDispatcher discards every event.
type NopDispatcher struct{}

// Dispatch does nothing.
func (NopDispatcher) Dispatch(context.Context, Event) {}
