package domain

import (
	"time"
)

// WebhookStatus is the lifecycle of a received form submission.
// Transitions are monotonic: queued -> processing -> done|failed.
type WebhookStatus string

const (
	WebhookQueued     WebhookStatus = "queued"
	WebhookProcessing WebhookStatus = "processing"
	WebhookDone       WebhookStatus = "done"
	WebhookFailed     WebhookStatus = "failed"
)

// ChargeStatus is the lifecycle of a payment intent.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeCompleted ChargeStatus = "completed"
	ChargeExpired   ChargeStatus = "expired"
)

// CheckoutRequest is the public checkout payload.
type CheckoutRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=255"`
	Email    string `json:"email" validate:"required,email"`
	WhatsApp string `json:"whatsapp" validate:"required,min=8,max=20"`
	TaxID    string `json:"cpf" validate:"required,min=11,max=18"`
}

// ChargeResponse is the snapshot returned to the payment page.
type ChargeResponse struct {
	ID             int64      `json:"id"`
	CorrelationID  string     `json:"correlationId"`
	Status         string     `json:"status"`
	ValueCents     int        `json:"value"`
	BRCode         string     `json:"brCode,omitempty"`
	QRCodeURL      string     `json:"qrCodeUrl,omitempty"`
	PaymentLinkURL string     `json:"paymentLinkUrl,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// FormWebhook is the survey-platform completion event. The interesting part
// lives in Data.Data, keyed by opaque per-field identifiers.
type FormWebhook struct {
	WebhookID string           `json:"webhookId,omitempty"`
	Event     string           `json:"event"`
	Data      *FormWebhookData `json:"data,omitempty"`
}

type FormWebhookData struct {
	ID       string         `json:"id"`
	SurveyID string         `json:"surveyId"`
	Finished bool           `json:"finished"`
	Data     map[string]any `json:"data"`
}

// PaymentWebhook is the payment-provider completion callback.
type PaymentWebhook struct {
	Event  string         `json:"event"`
	Charge *PaymentCharge `json:"charge,omitempty"`
	// Legacy ping field sent by the provider's "test webhook" button.
	Evento string `json:"evento,omitempty"`
}

type PaymentCharge struct {
	Status        string `json:"status"`
	CorrelationID string `json:"correlationID"`
}

const PaymentChargeCompleted = "OPENPIX:CHARGE_COMPLETED"

// BookingWebhook is the scheduling-platform event (booking created).
type BookingWebhook struct {
	TriggerEvent string          `json:"triggerEvent"`
	Payload      *BookingPayload `json:"payload,omitempty"`
}

type BookingPayload struct {
	BookingID *int64            `json:"bookingId,omitempty"`
	Title     string            `json:"title,omitempty"`
	Attendees []BookingAttendee `json:"attendees,omitempty"`
	Organizer *BookingOrganizer `json:"organizer,omitempty"`
}

type BookingAttendee struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type BookingOrganizer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

const BookingCreated = "BOOKING_CREATED"
