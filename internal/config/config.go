package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type APIConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	TasksQueueURL      string `envconfig:"TASKS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`

	// Checkout
	ChargeAmountCents int `envconfig:"CHARGE_AMOUNT_CENTS" default:"10000"`

	// Inbound payment webhook shared token (Authorization header equality)
	PaymentWebhookToken string `envconfig:"PAYMENT_WEBHOOK_TOKEN"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`
}

type WorkerConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	TasksQueueURL      string `envconfig:"TASKS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"120"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"10"`

	// Retry ceiling for retryable job kinds. Must match the queue redrive
	// policy's maxReceiveCount so exhausted messages land in the DLQ.
	MaxJobAttempts int `envconfig:"MAX_JOB_ATTEMPTS" default:"3"`

	// Payment provider (Pix)
	PixAppID   string `envconfig:"PIX_APP_ID" required:"true"`
	PixBaseURL string `envconfig:"PIX_BASE_URL" default:"https://api.woovi.com"`

	// Messaging provider
	ChatAPIKey    string  `envconfig:"CHAT_API_KEY"`
	ChatBaseURL   string  `envconfig:"CHAT_BASE_URL" default:"https://backend.botconversa.com.br/api/v1/webhook"`
	ChatRPSPerPod float64 `envconfig:"CHAT_RPS_PER_POD" default:"5"`
	ChatBurst     int     `envconfig:"CHAT_BURST" default:"10"`

	// CRM
	CRMUserKey    string `envconfig:"CRM_USER_KEY"`
	CRMBaseURL    string `envconfig:"CRM_BASE_URL" default:"https://api2.ploomes.com"`
	CRMPipelineID int64  `envconfig:"CRM_PIPELINE_ID" default:"110029265"`
	CRMOriginID   int64  `envconfig:"CRM_ORIGIN_ID" default:"110170856"`
	CRMOwnerID    int64  `envconfig:"CRM_OWNER_ID" default:"110053432"`
	// Pipeline stages: deal created after purchase / deal moved after booking.
	CRMPurchaseStageID int64 `envconfig:"CRM_PURCHASE_STAGE_ID" default:"110128040"`
	CRMBookedStageID   int64 `envconfig:"CRM_BOOKED_STAGE_ID" default:"110128042"`

	// Content generator
	LLMAPIKey  string `envconfig:"LLM_API_KEY" required:"true"`
	LLMModel   string `envconfig:"LLM_MODEL" default:"gpt-4.1-mini"`
	LLMBaseURL string `envconfig:"LLM_BASE_URL" default:"https://api.openai.com"`

	// Render service
	RenderServiceURL string `envconfig:"RENDER_SERVICE_URL" required:"true"`
	RenderTimeout    string `envconfig:"RENDER_TIMEOUT" default:"120s"`
	MinPageHeightMM  int    `envconfig:"MIN_PAGE_HEIGHT_MM" default:"400"`
	MaxPageHeightMM  int    `envconfig:"MAX_PAGE_HEIGHT_MM" default:"5000"`

	// File storage
	StorageBucket    string `envconfig:"STORAGE_BUCKET" required:"true"`
	StorageRegion    string `envconfig:"STORAGE_REGION"`
	StorageEndpoint  string `envconfig:"STORAGE_ENDPOINT"`
	StoragePathStyle bool   `envconfig:"STORAGE_PATH_STYLE"`
	StorageDocsDir   string `envconfig:"STORAGE_DOCS_DIR" default:"reports"`

	// Links sent over chat
	BookingLink string `envconfig:"BOOKING_LINK" required:"true"`
	SurveyLink  string `envconfig:"SURVEY_LINK" required:"true"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`
}

type ExportConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	StorageBucket    string `envconfig:"STORAGE_BUCKET" required:"true"`
	StorageRegion    string `envconfig:"STORAGE_REGION"`
	StorageEndpoint  string `envconfig:"STORAGE_ENDPOINT"`
	StoragePathStyle bool   `envconfig:"STORAGE_PATH_STYLE"`
	StorageLeadsDir  string `envconfig:"STORAGE_LEADS_DIR" default:"leads"`
}

func LoadAPI() APIConfig {
	_ = godotenv.Load()
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	_ = godotenv.Load()
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadExport() ExportConfig {
	_ = godotenv.Load()
	var cfg ExportConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
