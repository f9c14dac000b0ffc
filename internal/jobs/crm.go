package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"auditflow/internal/observability"
	"auditflow/internal/providers/crm"
	sqsqueue "auditflow/internal/queue/sqs"
	"auditflow/internal/util"
)

// crmPurchase mirrors a completed charge into the CRM: resolve or create the
// contact, then open a deal in the purchase stage. Both links are written at
// most once, so a redelivered job that finds the deal set does nothing.
func (p *Processor) crmPurchase(ctx context.Context, chargeID int64) error {
	ch, ok, err := p.Store.GetCharge(ctx, chargeID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("charge not found for crm sync", "charge_id", chargeID)
		return nil
	}
	if ch.CRMDealID != nil {
		return nil
	}

	var contactID int64
	if ch.CRMContactID != nil {
		contactID = *ch.CRMContactID
	} else {
		contactID, err = p.CRM.ContactIDByEmail(ctx, ch.CustomerEmail)
		if err != nil {
			observability.ProviderCalls.WithLabelValues("crm", "error").Inc()
			return fmt.Errorf("lookup contact: %w", err)
		}
		if contactID == 0 {
			contactID, err = p.CRM.CreateContact(ctx, crm.ContactInput{
				Name:     ch.CustomerName,
				Email:    ch.CustomerEmail,
				Phone:    ch.CustomerPhone,
				OriginID: p.CRMConf.OriginID,
			})
			if err != nil {
				observability.ProviderCalls.WithLabelValues("crm", "error").Inc()
				return fmt.Errorf("create contact: %w", err)
			}
		}
		if err := p.Store.SetChargeCRMContact(ctx, chargeID, contactID, p.now()); err != nil {
			return err
		}
	}

	dealID, err := p.CRM.CreateDeal(ctx, crm.DealInput{
		ContactID:  contactID,
		Title:      "Auditoria - " + ch.CustomerName,
		PipelineID: p.CRMConf.PipelineID,
		StageID:    p.CRMConf.PurchaseStageID,
		OwnerID:    p.CRMConf.OwnerID,
	})
	if err != nil {
		observability.ProviderCalls.WithLabelValues("crm", "error").Inc()
		return fmt.Errorf("create deal: %w", err)
	}
	observability.ProviderCalls.WithLabelValues("crm", "ok").Inc()

	return p.Store.SetChargeCRMDeal(ctx, chargeID, dealID, p.now())
}

// crmBooking advances the customer's deal to the booked stage. The booking
// event carries no charge reference, so the charge is matched by attendee
// email or phone; with no match there is nothing to advance.
func (p *Processor) crmBooking(ctx context.Context, info *sqsqueue.BookingInfo) error {
	if info == nil || info.Email == "" {
		return Permanent(errMissingNotify)
	}

	ch, ok, err := p.Store.LatestChargeByEmailOrPhone(ctx, info.Email, util.NormalizePhone(info.Phone))
	if err != nil {
		return err
	}
	if !ok || ch.CRMDealID == nil {
		slog.Info("no deal to advance for booking", "email", info.Email)
		return nil
	}

	patch := map[string]any{"StageId": p.CRMConf.BookedStageID}
	if info.OrganizerEmail != "" {
		uid, err := p.CRM.UserIDByEmail(ctx, info.OrganizerEmail)
		if err != nil {
			observability.ProviderCalls.WithLabelValues("crm", "error").Inc()
			return fmt.Errorf("lookup organizer %s: %w", info.OrganizerEmail, err)
		}
		if uid != 0 {
			patch["OwnerId"] = uid
		}
	}

	if err := p.CRM.UpdateDeal(ctx, *ch.CRMDealID, patch); err != nil {
		if crm.IsNotFound(err) {
			// Deal deleted on the CRM side; nothing left to move.
			observability.ProviderCalls.WithLabelValues("crm", "not_found").Inc()
			return nil
		}
		observability.ProviderCalls.WithLabelValues("crm", "error").Inc()
		return fmt.Errorf("update deal %d: %w", *ch.CRMDealID, err)
	}
	observability.ProviderCalls.WithLabelValues("crm", "ok").Inc()
	return nil
}
