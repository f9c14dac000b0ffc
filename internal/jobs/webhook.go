package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"auditflow/internal/domain"
	sqsqueue "auditflow/internal/queue/sqs"
)

// processWebhook runs the whole report pipeline for one form submission:
// generate the analysis, fit it to a single page, upload the PDF, mark done.
//
// This handler is total: any processing failure is recorded on the record as
// failed and the message is consumed. Only infrastructure errors before the
// claim (store unreachable) bubble up for redelivery.
func (p *Processor) processWebhook(ctx context.Context, webhookID int64) error {
	rec, ok, err := p.Store.GetWebhookRecord(ctx, webhookID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("webhook record not found", "webhook_id", webhookID)
		return nil
	}
	if rec.Status == string(domain.WebhookDone) {
		return nil
	}

	claimed, err := p.Store.ClaimWebhookRecord(ctx, webhookID, p.now(), p.StaleAfter)
	if err != nil {
		return err
	}
	if !claimed {
		// Another worker owns it, or it already reached a terminal state.
		return nil
	}

	ans := domain.MapAnswers(rec.Payload)

	// Milestone message for the customer, matched to a charge by email.
	// Best effort: the report proceeds whether or not this lands.
	p.enqueueSurveyMilestone(ctx, ans, "received")

	html, err := p.Generator.ReportHTML(ctx, ans, p.now())
	if err != nil {
		p.failWebhook(ctx, webhookID, fmt.Sprintf("generate report: %v", err))
		return nil
	}

	fit, err := p.Engine.FitToOnePage(ctx, html)
	if err != nil {
		p.failWebhook(ctx, webhookID, fmt.Sprintf("fit to one page: %v", err))
		return nil
	}
	slog.Info("report rendered", "webhook_id", webhookID, "height_mm", fit.HeightMM, "passes", fit.Passes)

	// Deterministic filename: a reclaimed record overwrites its own object.
	filename := fmt.Sprintf("auditoria-%d.pdf", webhookID)
	fileID, err := p.Uploader.Upload(ctx, filename, fit.PDF, "application/pdf")
	if err != nil {
		p.failWebhook(ctx, webhookID, fmt.Sprintf("upload report: %v", err))
		return nil
	}

	if err := p.Store.MarkWebhookDone(ctx, webhookID, filename, fileID, p.now()); err != nil {
		return err
	}

	p.enqueueSurveyMilestone(ctx, ans, "ready")
	return nil
}

func (p *Processor) failWebhook(ctx context.Context, webhookID int64, msg string) {
	slog.Error("webhook processing failed", "webhook_id", webhookID, "reason", msg)
	if err := p.Store.MarkWebhookFailed(ctx, webhookID, msg, p.now()); err != nil {
		slog.Error("mark webhook failed", "webhook_id", webhookID, "err", err)
	}
}

func (p *Processor) enqueueSurveyMilestone(ctx context.Context, ans domain.Answers, stage string) {
	// The submission may carry no email; then there is no charge to match.
	if ans.Email == "" {
		return
	}
	ch, ok, err := p.Store.LatestChargeByEmail(ctx, ans.Email)
	if err != nil || !ok || ch.CustomerPhone == "" {
		if err != nil {
			slog.Warn("milestone charge lookup failed", "err", err)
		}
		return
	}
	task := sqsqueue.Task{
		Type:   sqsqueue.TaskNotifySurvey,
		Notify: &sqsqueue.NotifyInfo{Phone: ch.CustomerPhone, Name: ans.Name, Stage: stage},
	}
	if err := p.Producer.Enqueue(ctx, task); err != nil {
		slog.Warn("enqueue survey milestone failed", "stage", stage, "err", err)
	}
}
