package store

import "time"

// Charge is one payment intent row. CorrelationID is minted once at checkout
// and never changes; it is the idempotency key against the payment provider.
type Charge struct {
	ID            int64
	CorrelationID string
	Status        string
	ValueCents    int

	CustomerName  string
	CustomerEmail string
	CustomerTaxID string
	CustomerPhone string

	// Provider-issued fields, null until the charge-creation job completes.
	BRCode         string
	QRCodeURL      string
	PaymentLinkURL string
	ExpiresAt      *time.Time

	// CRM linkage, each populated exactly once.
	CRMContactID *int64
	CRMDealID    *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ChargeInsert struct {
	CorrelationID string
	ValueCents    int
	CustomerName  string
	CustomerEmail string
	CustomerTaxID string
	CustomerPhone string
	Now           time.Time
}

type ProviderDetails struct {
	ChargeID       int64
	BRCode         string
	QRCodeURL      string
	PaymentLinkURL string
	ExpiresAt      *time.Time
	Now            time.Time
}

// WebhookRecord is one received form-submission event.
type WebhookRecord struct {
	ID            int64
	Payload       map[string]any
	Status        string
	PDFFilename   string
	StorageFileID string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Lead is a prospect captured at checkout, flipped by the payment and
// booking webhooks and eventually exported if never converted.
type Lead struct {
	ID           int64
	Name         string
	Phone        string
	HasPurchased bool
	HasBooked    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
