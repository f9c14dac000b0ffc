package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"auditflow/internal/awsutil"
	"auditflow/internal/config"
	"auditflow/internal/logging"
	"auditflow/internal/service"
	"auditflow/internal/storage"
	"auditflow/internal/store/pg"
)

// One-shot exporter, meant to run from cron: uploads every lead that never
// purchased nor booked as a CSV, then removes those rows.
func main() {
	cfg := config.LoadExport()
	logging.Init("export-leads", cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{MaxConns: 2})
	if err != nil {
		slog.Error("export db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	s3Client, err := awsutil.NewS3Client(ctx, cfg.StorageRegion, cfg.StorageEndpoint, cfg.StoragePathStyle)
	if err != nil {
		slog.Error("export s3 client init failed", "err", err)
		os.Exit(1)
	}

	exporter := &service.LeadExporter{
		Store: pg.New(db),
		Uploader: &storage.Uploader{
			Client: s3Client,
			Bucket: cfg.StorageBucket,
			Prefix: cfg.StorageLeadsDir,
		},
	}

	fileID, count, err := exporter.Export(ctx)
	if err != nil {
		slog.Error("lead export failed", "err", err, "file_id", fileID)
		os.Exit(1)
	}
	if count == 0 {
		slog.Info("no leads to export")
		return
	}
	slog.Info("lead export done", "file_id", fileID, "count", count)
}
