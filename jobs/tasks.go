package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fixdesk/fixdesk/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotify is the task type for outbound customer notifications.
	TaskTypeNotify = "notify:send"
)

// NotifyPayload carries one queued notification. Data holds the template
// variables keyed by name (job_number, status, otp, amount, ...).
type NotifyPayload struct {
	Type     string            `json:"type"`
	BranchID int64             `json:"branch_id"`
	Mobile   string            `json:"mobile"`
	SMS      bool              `json:"sms"`
	WhatsApp bool              `json:"whatsapp"`
	Data     map[string]string `json:"data,omitempty"`
}

// NewNotifyTask constructs an Asynq task for the payload.
func NewNotifyTask(payload NotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data), nil
}

// Sender delivers a rendered message over one channel.
type Sender interface {
	SendSMS(ctx context.Context, mobile, message string) error
	SendWhatsApp(ctx context.Context, mobile, message string) error
}

// LogSender writes messages to the log instead of a gateway. Default until a
// provider account is configured per deployment.
type LogSender struct {
	Logger *slog.Logger
}

// SendSMS logs the message.
func (s LogSender) SendSMS(_ context.Context, mobile, message string) error {
	s.Logger.Info("sms out", slog.String("mobile", mobile), slog.String("message", message))
	return nil
}

// SendWhatsApp logs the message.
func (s LogSender) SendWhatsApp(_ context.Context, mobile, message string) error {
	s.Logger.Info("whatsapp out", slog.String("mobile", mobile), slog.String("message", message))
	return nil
}

// NotifyHandler renders notification payloads and hands them to the sender.
type NotifyHandler struct {
	sender  Sender
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewNotifyHandler constructs a handler around the sender.
func NewNotifyHandler(sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyHandler {
	return &NotifyHandler{sender: sender, logger: logger, metrics: metrics}
}

// Handle processes TaskTypeNotify tasks.
func (h *NotifyHandler) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskTypeNotify)
	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	message, ok := renderMessage(payload)
	if !ok {
		h.logger.Warn("notify: unknown event type", slog.String("type", payload.Type))
		_ = tracker.End(nil)
		return asynq.SkipRetry
	}
	if payload.Mobile == "" || (!payload.SMS && !payload.WhatsApp) {
		h.logger.Debug("notify: no live channel",
			slog.String("type", payload.Type),
			slog.Int64("branch_id", payload.BranchID))
		return tracker.End(nil)
	}
	var err error
	if payload.SMS {
		if sendErr := h.sender.SendSMS(ctx, payload.Mobile, message); sendErr != nil {
			err = sendErr
		} else {
			h.metrics.AddSent("sms", payload.BranchID, 1)
		}
	}
	if payload.WhatsApp {
		if sendErr := h.sender.SendWhatsApp(ctx, payload.Mobile, message); sendErr != nil {
			err = sendErr
		} else {
			h.metrics.AddSent("whatsapp", payload.BranchID, 1)
		}
	}
	return tracker.End(err)
}

func renderMessage(p NotifyPayload) (string, bool) {
	d := p.Data
	switch p.Type {
	case "job.created":
		return fmt.Sprintf("Your repair job %s has been registered. We will keep you posted.", d["job_number"]), true
	case "job.status_changed":
		return fmt.Sprintf("Update on job %s: status is now %s.", d["job_number"], d["status"]), true
	case "job.technician_assigned":
		return fmt.Sprintf("Job %s has been assigned to a technician and is in the queue.", d["job_number"]), true
	case "delivery.otp":
		return fmt.Sprintf("Your pickup code for job %s is %s. Share it only at the counter.", d["job_number"], d["otp"]), true
	case "inventory.low_stock":
		return fmt.Sprintf("Stock alert: %s is down to %s %s.", d["item_name"], d["quantity"], d["unit"]), true
	case "payment.received":
		return fmt.Sprintf("Payment of %s received against invoice %s. Thank you.", d["amount"], d["invoice_number"]), true
	default:
		return "", false
	}
}
