package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"auditflow/internal/domain"
	"auditflow/internal/observability"
	"auditflow/internal/providers/crm"
	"auditflow/internal/providers/pix"
	sqsqueue "auditflow/internal/queue/sqs"
	"auditflow/internal/render"
	"auditflow/internal/store"
	"auditflow/internal/util"
)

// Store is the slice of the persistence layer the job handlers touch.
type Store interface {
	GetCharge(ctx context.Context, id int64) (store.Charge, bool, error)
	LatestChargeByEmail(ctx context.Context, email string) (store.Charge, bool, error)
	LatestChargeByEmailOrPhone(ctx context.Context, email, phone string) (store.Charge, bool, error)
	SetProviderDetails(ctx context.Context, in store.ProviderDetails) error
	SetChargeCRMContact(ctx context.Context, chargeID, contactID int64, now time.Time) error
	SetChargeCRMDeal(ctx context.Context, chargeID, dealID int64, now time.Time) error

	GetWebhookRecord(ctx context.Context, id int64) (store.WebhookRecord, bool, error)
	ClaimWebhookRecord(ctx context.Context, id int64, now time.Time, staleAfter time.Duration) (bool, error)
	MarkWebhookDone(ctx context.Context, id int64, filename, storageFileID string, now time.Time) error
	MarkWebhookFailed(ctx context.Context, id int64, message string, now time.Time) error
}

type PixClient interface {
	CreateCharge(ctx context.Context, req pix.CreateChargeRequest) (pix.Charge, error)
	GetCharge(ctx context.Context, correlationID string) (pix.Charge, error)
}

type ChatClient interface {
	EnsureSubscriberAndSend(ctx context.Context, phone, name, text string) error
}

type CRMClient interface {
	UserIDByEmail(ctx context.Context, email string) (int64, error)
	ContactIDByEmail(ctx context.Context, email string) (int64, error)
	CreateContact(ctx context.Context, in crm.ContactInput) (int64, error)
	CreateDeal(ctx context.Context, in crm.DealInput) (int64, error)
	UpdateDeal(ctx context.Context, dealID int64, patch map[string]any) error
}

type ReportGenerator interface {
	ReportHTML(ctx context.Context, ans domain.Answers, now time.Time) (string, error)
}

type PageFitter interface {
	FitToOnePage(ctx context.Context, html string) (render.FitResult, error)
}

type Uploader interface {
	Upload(ctx context.Context, filename string, body []byte, contentType string) (string, error)
}

type Producer interface {
	Enqueue(ctx context.Context, task sqsqueue.Task) error
}

// CRMSettings carries the fixed pipeline identifiers jobs write against.
type CRMSettings struct {
	PipelineID      int64
	OriginID        int64
	OwnerID         int64
	PurchaseStageID int64
	BookedStageID   int64
}

type Processor struct {
	Store     Store
	Pix       PixClient
	Chat      ChatClient
	CRM       CRMClient
	Generator ReportGenerator
	Engine    PageFitter
	Uploader  Uploader
	Producer  Producer

	// Limiter throttles chat sends per pod; Breaker protects the payment
	// provider from hammering during an outage.
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker

	// Messages maps template keys to chat message bodies with {var} slots.
	Messages    map[string]string
	BookingLink string
	SurveyLink  string

	CRMConf CRMSettings

	// MaxAttempts mirrors the queue redrive ceiling; at the last delivery a
	// still-failing retryable job is counted as dead-lettered.
	MaxAttempts int

	// StaleAfter is how long a webhook record may sit in processing before
	// another delivery may reclaim it.
	StaleAfter time.Duration

	Now func() time.Time
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// permanentError marks a failure retrying cannot fix. Handle deletes the
// message instead of letting the queue redeliver it.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Handle dispatches one delivery and translates handler outcomes into queue
// semantics: nil deletes the message, an error leaves it for redrive.
func (p *Processor) Handle(ctx context.Context, d sqsqueue.Delivery) error {
	start := time.Now()
	err := p.dispatch(ctx, d)
	observability.JobDuration.WithLabelValues(d.Task.Type).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		observability.Jobs.WithLabelValues(d.Task.Type, "ok").Inc()
		return nil
	case IsPermanent(err):
		observability.Jobs.WithLabelValues(d.Task.Type, "permanent").Inc()
		logJobError(d, err)
		return nil
	default:
		observability.Jobs.WithLabelValues(d.Task.Type, "error").Inc()
		if p.MaxAttempts > 0 && d.Attempt >= p.MaxAttempts {
			observability.DeadLetters.WithLabelValues(d.Task.Type).Inc()
		}
		return err
	}
}

func (p *Processor) dispatch(ctx context.Context, d sqsqueue.Delivery) error {
	switch d.Task.Type {
	case sqsqueue.TaskWebhookProcess:
		return p.processWebhook(ctx, d.Task.WebhookID)
	case sqsqueue.TaskChargeCreate:
		return p.createCharge(ctx, d.Task.ChargeID)
	case sqsqueue.TaskNotifyPurchase:
		return p.notifyPurchase(ctx, d.Task.ChargeID)
	case sqsqueue.TaskNotifyBooking:
		return p.notifyBooking(ctx, d.Task.Booking)
	case sqsqueue.TaskNotifySurvey:
		return p.notifySurvey(ctx, d.Task.Notify)
	case sqsqueue.TaskCRMPurchase:
		return p.crmPurchase(ctx, d.Task.ChargeID)
	case sqsqueue.TaskCRMBooking:
		return p.crmBooking(ctx, d.Task.Booking)
	default:
		return Permanent(fmt.Errorf("unknown task type %q", d.Task.Type))
	}
}

func (p *Processor) message(key string, vars map[string]string) string {
	body, ok := p.Messages[key]
	if !ok {
		return ""
	}
	return util.RenderTemplate(body, vars)
}

func logJobError(d sqsqueue.Delivery, err error) {
	slog.Error("job failed permanently",
		"task", d.Task.Type, "attempt", d.Attempt, "err", err)
}
