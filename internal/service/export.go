package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"auditflow/internal/store"
	"auditflow/internal/util"
)

type ExportStore interface {
	NonConvertedLeads(ctx context.Context) ([]store.Lead, error)
	DeleteLeads(ctx context.Context, ids []int64) error
}

type Uploader interface {
	Upload(ctx context.Context, filename string, body []byte, contentType string) (string, error)
}

// LeadExporter ships non-converted leads (no purchase, no booking) to
// storage as CSV and removes the exported rows.
type LeadExporter struct {
	Store    ExportStore
	Uploader Uploader
}

// Export returns the storage id of the written file and the lead count.
// With nothing to export it returns an empty id and zero.
func (e *LeadExporter) Export(ctx context.Context) (string, int, error) {
	leads, err := e.Store.NonConvertedLeads(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("list leads: %w", err)
	}
	if len(leads) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{"name", "phone", "created_at"})
	for _, l := range leads {
		_ = cw.Write([]string{l.Name, l.Phone, l.CreatedAt.UTC().Format(time.RFC3339)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", 0, err
	}

	filename := fmt.Sprintf("leads-%s.csv", util.NewExportID())
	fileID, err := e.Uploader.Upload(ctx, filename, buf.Bytes(), "text/csv")
	if err != nil {
		return "", 0, fmt.Errorf("upload export: %w", err)
	}

	ids := make([]int64, 0, len(leads))
	for _, l := range leads {
		ids = append(ids, l.ID)
	}
	if err := e.Store.DeleteLeads(ctx, ids); err != nil {
		// The file is written; a failed delete re-exports next run.
		return fileID, len(leads), fmt.Errorf("delete exported leads: %w", err)
	}
	return fileID, len(leads), nil
}
