package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"auditflow/internal/domain"
	"auditflow/internal/observability"
	sqsqueue "auditflow/internal/queue/sqs"
	"auditflow/internal/store"
	"auditflow/internal/util"
)

type WebhookStore interface {
	InsertWebhookRecord(ctx context.Context, payload map[string]any, now time.Time) (int64, error)
	CompleteChargeByCorrelationID(ctx context.Context, correlationID string, now time.Time) (c store.Charge, updated, found bool, err error)
	MarkLeadPurchased(ctx context.Context, phone string, now time.Time) error
	MarkLeadBooked(ctx context.Context, phone string, now time.Time) error
}

type Producer interface {
	Enqueue(ctx context.Context, task sqsqueue.Task) error
}

// Webhooks receives the three inbound event sources: the survey platform,
// the payment provider, and the scheduling platform. Handlers validate and
// persist, then push the real work onto the queue.
type Webhooks struct {
	Store    WebhookStore
	Producer Producer

	// PaymentToken, when set, must equal the payment webhook's Authorization
	// header. The provider supports only this shared-secret scheme.
	PaymentToken string

	Now func() time.Time
}

func (h *Webhooks) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *Webhooks) Register(r *mux.Router) {
	r.HandleFunc("/v1/webhooks/form", h.handleForm).Methods(http.MethodPost)
	r.HandleFunc("/v1/webhooks/payment", h.handlePayment).Methods(http.MethodPost)
	r.HandleFunc("/v1/webhooks/booking", h.handleBooking).Methods(http.MethodPost)
}

// decodeLoose tolerates double-encoded bodies: some senders wrap the JSON
// object in a JSON string.
func decodeLoose(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		return err
	}
	return json.Unmarshal([]byte(s), v)
}

func (h *Webhooks) handleForm(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	var payload map[string]any
	if err := decodeLoose(body, &payload); err != nil {
		observability.WebhookEvents.WithLabelValues("form", "bad_json").Inc()
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	// Test pings and partial submissions carry no answers; acknowledge and drop.
	if ans := domain.MapAnswers(payload); ans.Email == "" && len(ans.Fields) == 0 {
		observability.WebhookEvents.WithLabelValues("form", "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	id, err := h.Store.InsertWebhookRecord(r.Context(), payload, h.now())
	if err != nil {
		slog.Error("insert webhook record failed", "err", err)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}

	if err := h.Producer.Enqueue(r.Context(), sqsqueue.Task{Type: sqsqueue.TaskWebhookProcess, WebhookID: id}); err != nil {
		slog.Error("enqueue webhook processing failed", "err", err, "webhook_id", id)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}

	observability.WebhookEvents.WithLabelValues("form", "accepted").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *Webhooks) handlePayment(w http.ResponseWriter, r *http.Request) {
	if h.PaymentToken != "" && r.Header.Get("Authorization") != h.PaymentToken {
		observability.WebhookEvents.WithLabelValues("payment", "unauthorized").Inc()
		http.Error(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	var event domain.PaymentWebhook
	if err := decodeLoose(body, &event); err != nil {
		observability.WebhookEvents.WithLabelValues("payment", "bad_json").Inc()
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	// The provider's "test webhook" button sends a ping with only Evento set.
	if event.Evento != "" && event.Charge == nil {
		observability.WebhookEvents.WithLabelValues("payment", "ping").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}
	if event.Event != domain.PaymentChargeCompleted || event.Charge == nil || event.Charge.CorrelationID == "" {
		observability.WebhookEvents.WithLabelValues("payment", "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	ch, updated, found, err := h.Store.CompleteChargeByCorrelationID(r.Context(), event.Charge.CorrelationID, h.now())
	if err != nil {
		slog.Error("complete charge failed", "err", err, "correlation_id", event.Charge.CorrelationID)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	if !found {
		// Benign: event for a charge this system never issued.
		slog.Warn("payment event for unknown charge", "correlation_id", event.Charge.CorrelationID)
		observability.WebhookEvents.WithLabelValues("payment", "unknown_charge").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}
	if !updated {
		// Duplicate delivery; the first one already triggered the follow-ups.
		observability.WebhookEvents.WithLabelValues("payment", "duplicate").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if ch.CustomerPhone != "" {
		if err := h.Store.MarkLeadPurchased(r.Context(), ch.CustomerPhone, h.now()); err != nil {
			slog.Warn("mark lead purchased failed", "err", err)
		}
	}

	h.enqueue(r.Context(), sqsqueue.Task{Type: sqsqueue.TaskNotifyPurchase, ChargeID: ch.ID})
	h.enqueue(r.Context(), sqsqueue.Task{Type: sqsqueue.TaskCRMPurchase, ChargeID: ch.ID})

	observability.WebhookEvents.WithLabelValues("payment", "completed").Inc()
	w.WriteHeader(http.StatusOK)
}

func (h *Webhooks) handleBooking(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	var event domain.BookingWebhook
	if err := decodeLoose(body, &event); err != nil {
		observability.WebhookEvents.WithLabelValues("booking", "bad_json").Inc()
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if event.TriggerEvent != domain.BookingCreated || event.Payload == nil || len(event.Payload.Attendees) == 0 {
		observability.WebhookEvents.WithLabelValues("booking", "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	attendee := event.Payload.Attendees[0]
	phone := util.NormalizePhone(attendee.PhoneNumber)

	if phone != "" {
		if err := h.Store.MarkLeadBooked(r.Context(), phone, h.now()); err != nil {
			slog.Warn("mark lead booked failed", "err", err)
		}
	}

	info := &sqsqueue.BookingInfo{
		Name:  attendee.Name,
		Email: attendee.Email,
		Phone: phone,
	}
	if event.Payload.Organizer != nil {
		info.OrganizerEmail = event.Payload.Organizer.Email
	}

	if phone != "" {
		h.enqueue(r.Context(), sqsqueue.Task{
			Type:    sqsqueue.TaskNotifyBooking,
			Booking: info,
		})
	}
	h.enqueue(r.Context(), sqsqueue.Task{Type: sqsqueue.TaskCRMBooking, Booking: info})

	observability.WebhookEvents.WithLabelValues("booking", "accepted").Inc()
	w.WriteHeader(http.StatusOK)
}

func (h *Webhooks) enqueue(ctx context.Context, task sqsqueue.Task) {
	if err := h.Producer.Enqueue(ctx, task); err != nil {
		slog.Error("enqueue failed", "task", task.Type, "err", err)
	}
}
