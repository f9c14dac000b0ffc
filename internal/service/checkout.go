package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"auditflow/internal/domain"
	sqsqueue "auditflow/internal/queue/sqs"
	"auditflow/internal/store"
	"auditflow/internal/util"
)

type Store interface {
	InsertCharge(ctx context.Context, in store.ChargeInsert) (int64, error)
	GetCharge(ctx context.Context, id int64) (store.Charge, bool, error)
	UpsertLead(ctx context.Context, name, phone string, now time.Time) error
}

type Producer interface {
	Enqueue(ctx context.Context, task sqsqueue.Task) error
}

// Checkout owns the buy flow: persist a pending charge with a fresh
// correlation id, record the lead, and hand provisioning to the worker.
type Checkout struct {
	Store       Store
	Producer    Producer
	AmountCents int

	Now func() time.Time
}

func (c *Checkout) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Create returns the new charge id. The charge stays pending until the
// charge-creation job records the provider details.
func (c *Checkout) Create(ctx context.Context, req domain.CheckoutRequest) (int64, error) {
	now := c.now()
	phone := util.NormalizePhone(req.WhatsApp)

	id, err := c.Store.InsertCharge(ctx, store.ChargeInsert{
		CorrelationID: uuid.NewString(),
		ValueCents:    c.AmountCents,
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		CustomerTaxID: req.TaxID,
		CustomerPhone: phone,
		Now:           now,
	})
	if err != nil {
		return 0, fmt.Errorf("insert charge: %w", err)
	}

	// The lead row only feeds the export; checkout must not fail over it.
	if phone != "" {
		if err := c.Store.UpsertLead(ctx, req.Name, phone, now); err != nil {
			slog.Warn("upsert lead failed", "err", err)
		}
	}

	if err := c.Producer.Enqueue(ctx, sqsqueue.Task{Type: sqsqueue.TaskChargeCreate, ChargeID: id}); err != nil {
		return 0, fmt.Errorf("enqueue charge creation: %w", err)
	}
	return id, nil
}

func (c *Checkout) Get(ctx context.Context, id int64) (domain.ChargeResponse, bool, error) {
	ch, ok, err := c.Store.GetCharge(ctx, id)
	if err != nil || !ok {
		return domain.ChargeResponse{}, ok, err
	}
	return domain.ChargeResponse{
		ID:             ch.ID,
		CorrelationID:  ch.CorrelationID,
		Status:         ch.Status,
		ValueCents:     ch.ValueCents,
		BRCode:         ch.BRCode,
		QRCodeURL:      ch.QRCodeURL,
		PaymentLinkURL: ch.PaymentLinkURL,
		ExpiresAt:      ch.ExpiresAt,
	}, true, nil
}
