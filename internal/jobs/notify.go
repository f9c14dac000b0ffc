package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"auditflow/internal/observability"
	sqsqueue "auditflow/internal/queue/sqs"
)

var errMissingNotify = errors.New("notify payload missing phone")

func firstWord(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "Cliente"
	}
	return parts[0]
}

// Message template keys. Bodies come from worker configuration.
const (
	MsgPurchase       = "purchase"
	MsgBooking        = "booking"
	MsgSurveyReceived = "survey_received"
	MsgSurveyReady    = "survey_ready"
)

// notifyPurchase reloads the charge by id; the envelope carries only the
// identifier, so a redelivered job always sees the current customer fields.
func (p *Processor) notifyPurchase(ctx context.Context, chargeID int64) error {
	ch, ok, err := p.Store.GetCharge(ctx, chargeID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("charge not found for purchase notification", "charge_id", chargeID)
		return nil
	}
	if ch.CustomerPhone == "" {
		return Permanent(errMissingNotify)
	}
	text := p.message(MsgPurchase, map[string]string{
		"name":         firstWord(ch.CustomerName),
		"booking_link": bookingURL(p.BookingLink, ch.CustomerName, ch.CustomerEmail, ch.CustomerPhone),
		"survey_link":  p.SurveyLink,
	})
	return p.send(ctx, ch.CustomerPhone, ch.CustomerName, text)
}

// bookingURL pre-fills the scheduling page with the customer's details.
func bookingURL(base, name, email, phone string) string {
	q := url.Values{}
	q.Set("name", name)
	q.Set("email", email)
	q.Set("attendeePhoneNumber", phone)
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

func (p *Processor) notifyBooking(ctx context.Context, info *sqsqueue.BookingInfo) error {
	if info == nil || info.Phone == "" {
		return Permanent(errMissingNotify)
	}
	text := p.message(MsgBooking, map[string]string{
		"name": firstWord(info.Name),
	})
	return p.send(ctx, info.Phone, info.Name, text)
}

func (p *Processor) notifySurvey(ctx context.Context, info *sqsqueue.NotifyInfo) error {
	if info == nil || info.Phone == "" {
		return Permanent(errMissingNotify)
	}
	key := MsgSurveyReceived
	if info.Stage == "ready" {
		key = MsgSurveyReady
	}
	text := p.message(key, map[string]string{
		"name": firstWord(info.Name),
	})
	return p.send(ctx, info.Phone, info.Name, text)
}

func (p *Processor) send(ctx context.Context, phone, name, text string) error {
	if text == "" {
		slog.Warn("no message template configured, skipping send", "phone", phone)
		return nil
	}

	if p.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			// Couldn't acquire a token locally; transient, let redrive retry.
			observability.ProviderCalls.WithLabelValues("chat", "rate_limited_local").Inc()
			return err
		}
	}

	if err := p.Chat.EnsureSubscriberAndSend(ctx, phone, name, text); err != nil {
		observability.ProviderCalls.WithLabelValues("chat", "error").Inc()
		return err
	}
	observability.ProviderCalls.WithLabelValues("chat", "ok").Inc()
	return nil
}
