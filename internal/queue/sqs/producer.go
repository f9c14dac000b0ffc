package sqsqueue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"auditflow/internal/observability"
)

// Task types carried on the queue. One queue, one envelope, dispatch by Type.
const (
	TaskWebhookProcess = "webhook:process"
	TaskChargeCreate   = "charge:create"
	TaskNotifyPurchase = "notify:purchase"
	TaskNotifyBooking  = "notify:booking"
	TaskNotifySurvey   = "notify:survey"
	TaskCRMPurchase    = "crm:purchase"
	TaskCRMBooking     = "crm:booking"
)

// NotifyInfo parameterizes the survey milestone messages. Purchase
// notifications carry only ChargeID and reload the charge in the worker.
type NotifyInfo struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	// Stage selects the survey milestone message ("received" or "ready").
	Stage string `json:"stage,omitempty"`
}

type BookingInfo struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	OrganizerEmail string `json:"organizerEmail"`
}

// Task is the queue envelope. Exactly one of the payload fields is meaningful
// for a given Type; the rest stay zero.
type Task struct {
	Type      string       `json:"type"`
	WebhookID int64        `json:"webhookId,omitempty"`
	ChargeID  int64        `json:"chargeId,omitempty"`
	Notify    *NotifyInfo  `json:"notify,omitempty"`
	Booking   *BookingInfo `json:"booking,omitempty"`
}

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

func (p *Producer) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}

	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	})
	if err != nil {
		observability.Enqueues.WithLabelValues(task.Type, "error").Inc()
		return err
	}
	observability.Enqueues.WithLabelValues(task.Type, "ok").Inc()
	return nil
}

func str(s string) *string { return &s }
