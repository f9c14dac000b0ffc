package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"auditflow/internal/awsutil"
	"auditflow/internal/config"
	"auditflow/internal/httpapi"
	"auditflow/internal/jobs"
	"auditflow/internal/logging"
	"auditflow/internal/observability"
	"auditflow/internal/providers/chat"
	"auditflow/internal/providers/crm"
	"auditflow/internal/providers/llm"
	"auditflow/internal/providers/pix"
	sqsqueue "auditflow/internal/queue/sqs"
	"auditflow/internal/render"
	"auditflow/internal/storage"
	"auditflow/internal/store/pg"
)

func main() {
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat)

	// Use a root ctx we can cancel
	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}
	s3Client, err := awsutil.NewS3Client(ctx, storageRegion(cfg), cfg.StorageEndpoint, cfg.StoragePathStyle)
	if err != nil {
		slog.Error("worker s3 client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()

	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if err := store.EnsureSchema(startupCtx); err != nil {
		slog.Error("worker schema init failed", "err", err)
		os.Exit(1)
	}
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.TasksQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	consumer := &sqsqueue.Consumer{
		SQS: sqsClient, QueueURL: cfg.TasksQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}
	producer := &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.TasksQueueURL}

	// health server (liveness + readiness)
	healthMux := httpapi.New().Mux
	healthMux.HandleFunc("/healthz", httpapi.Healthz())
	healthMux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.TasksQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	))

	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Logging(healthMux),
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		slog.Info("worker metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server failed", "err", err)
		}
	}()

	// Providers + limiter/breaker + processor
	pixClient := &pix.Client{
		AppID:   cfg.PixAppID,
		BaseURL: cfg.PixBaseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
	chatClient := &chat.Client{
		APIKey:  cfg.ChatAPIKey,
		BaseURL: cfg.ChatBaseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	crmClient := &crm.Client{
		UserKey: cfg.CRMUserKey,
		BaseURL: cfg.CRMBaseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
	generator := &llm.Generator{Client: &llm.Client{
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		BaseURL: cfg.LLMBaseURL,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}}

	renderTimeout, err := time.ParseDuration(cfg.RenderTimeout)
	if err != nil {
		slog.Error("invalid RENDER_TIMEOUT", "err", err)
		os.Exit(1)
	}
	engine := &render.Engine{
		Renderer:    render.NewHTTPRenderer(cfg.RenderServiceURL, renderTimeout),
		MinHeightMM: cfg.MinPageHeightMM,
		MaxHeightMM: cfg.MaxPageHeightMM,
	}

	uploader := &storage.Uploader{
		Client: s3Client,
		Bucket: cfg.StorageBucket,
		Prefix: cfg.StorageDocsDir,
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.ChatRPSPerPod), cfg.ChatBurst)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pix",
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		// Duplicate-correlation rejections are conflicts, not outages.
		IsSuccessful: func(err error) bool { return err == nil || pix.IsChargeExists(err) },
	})

	messages := map[string]string{
		jobs.MsgPurchase:       "Oi {name}! Pagamento confirmado. Agende sua sessão aqui: {booking_link}. E responda o diagnóstico para liberar sua auditoria: {survey_link}",
		jobs.MsgBooking:        "Perfeito, {name}! Sua sessão está agendada. Até lá!",
		jobs.MsgSurveyReceived: "Oi {name}! Recebemos suas respostas do diagnóstico. Já estamos preparando sua auditoria.",
		jobs.MsgSurveyReady:    "{name}, sua auditoria ficou pronta! Em instantes você recebe o relatório.",
	}

	processor := &jobs.Processor{
		Store:     store,
		Pix:       pixClient,
		Chat:      chatClient,
		CRM:       crmClient,
		Generator: generator,
		Engine:    engine,
		Uploader:  uploader,
		Producer:  producer,
		Limiter:   limiter,
		Breaker:   cb,

		Messages:    messages,
		BookingLink: cfg.BookingLink,
		SurveyLink:  cfg.SurveyLink,

		CRMConf: jobs.CRMSettings{
			PipelineID:      cfg.CRMPipelineID,
			OriginID:        cfg.CRMOriginID,
			OwnerID:         cfg.CRMOwnerID,
			PurchaseStageID: cfg.CRMPurchaseStageID,
			BookedStageID:   cfg.CRMBookedStageID,
		},

		MaxAttempts: cfg.MaxJobAttempts,
		StaleAfter:  time.Duration(cfg.SQSVizTimeout) * time.Second * 2,
	}

	// start polling
	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker starting poll", "queue_url", cfg.TasksQueueURL)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, d sqsqueue.Delivery) (err error) {
			start := time.Now()
			slog.Info("worker job start", "task", d.Task.Type, "attempt", d.Attempt)
			defer func() {
				status := "ok"
				if err != nil {
					status = "error"
				}
				slog.Info("worker job finish",
					"task", d.Task.Type,
					"attempt", d.Attempt,
					"status", status,
					"duration", time.Since(start),
				)
			}()
			err = processor.Handle(ctx, d)
			return err
		})
	}()

	// shutdown wiring
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for poll loop")
	}
}

func storageRegion(cfg config.WorkerConfig) string {
	if cfg.StorageRegion != "" {
		return cfg.StorageRegion
	}
	return cfg.AWSRegion
}
