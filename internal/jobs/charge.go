package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"auditflow/internal/observability"
	"auditflow/internal/providers/pix"
	"auditflow/internal/store"
)

// createCharge provisions the payment-provider charge for a pending row.
// The correlation id makes the provider call idempotent: a duplicate
// rejection resolves to a fetch of the charge created by an earlier attempt.
func (p *Processor) createCharge(ctx context.Context, chargeID int64) error {
	ch, ok, err := p.Store.GetCharge(ctx, chargeID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("charge not found", "charge_id", chargeID)
		return nil
	}
	if ch.BRCode != "" {
		// Provider details already recorded by an earlier delivery.
		return nil
	}

	created, err := p.pixCreate(ctx, pix.CreateChargeRequest{
		CorrelationID: ch.CorrelationID,
		ValueCents:    ch.ValueCents,
		Customer: pix.Customer{
			Name:  ch.CustomerName,
			Email: ch.CustomerEmail,
			TaxID: ch.CustomerTaxID,
			Phone: ch.CustomerPhone,
		},
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.ProviderCalls.WithLabelValues("pix", "cb_open").Inc()
		return err
	}
	if pix.IsChargeExists(err) {
		observability.ProviderCalls.WithLabelValues("pix", "duplicate").Inc()
		created, err = p.Pix.GetCharge(ctx, ch.CorrelationID)
		if err != nil {
			observability.ProviderCalls.WithLabelValues("pix", "error").Inc()
			return fmt.Errorf("resolve duplicate charge %s: %w", ch.CorrelationID, err)
		}
	} else if err != nil {
		observability.ProviderCalls.WithLabelValues("pix", "error").Inc()
		if !pix.ShouldRetry(err) {
			return Permanent(fmt.Errorf("create charge %s: %w", ch.CorrelationID, err))
		}
		return fmt.Errorf("create charge %s: %w", ch.CorrelationID, err)
	}

	observability.ProviderCalls.WithLabelValues("pix", "ok").Inc()
	return p.Store.SetProviderDetails(ctx, store.ProviderDetails{
		ChargeID:       chargeID,
		BRCode:         created.BRCode,
		QRCodeURL:      created.QRCodeURL,
		PaymentLinkURL: created.PaymentLinkURL,
		ExpiresAt:      created.ExpiresAt,
		Now:            p.now(),
	})
}

func (p *Processor) pixCreate(ctx context.Context, req pix.CreateChargeRequest) (pix.Charge, error) {
	call := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return p.Pix.CreateCharge(reqCtx, req)
	}

	if p.Breaker == nil {
		out, err := call()
		if err != nil {
			return pix.Charge{}, err
		}
		return out.(pix.Charge), nil
	}

	out, err := p.Breaker.Execute(call)
	if err != nil {
		return pix.Charge{}, err
	}
	return out.(pix.Charge), nil
}
