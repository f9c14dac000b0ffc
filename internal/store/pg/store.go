package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"auditflow/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const chargeColumns = `
	id, correlation_id, status, value_cents,
	customer_name, customer_email, customer_tax_id, COALESCE(customer_phone,''),
	COALESCE(br_code,''), COALESCE(qr_code_url,''), COALESCE(payment_link_url,''), expires_at,
	crm_contact_id, crm_deal_id, created_at, updated_at`

func scanCharge(row pgx.Row) (store.Charge, error) {
	var c store.Charge
	err := row.Scan(&c.ID, &c.CorrelationID, &c.Status, &c.ValueCents,
		&c.CustomerName, &c.CustomerEmail, &c.CustomerTaxID, &c.CustomerPhone,
		&c.BRCode, &c.QRCodeURL, &c.PaymentLinkURL, &c.ExpiresAt,
		&c.CRMContactID, &c.CRMDealID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) InsertCharge(ctx context.Context, in store.ChargeInsert) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO charges (correlation_id, status, value_cents, customer_name, customer_email, customer_tax_id, customer_phone, created_at, updated_at)
		VALUES ($1,'pending',$2,$3,$4,$5,$6,$7,$7)
		RETURNING id
	`, in.CorrelationID, in.ValueCents, in.CustomerName, in.CustomerEmail, in.CustomerTaxID, nullIfEmpty(in.CustomerPhone), in.Now).Scan(&id)
	return id, err
}

func (s *Store) GetCharge(ctx context.Context, id int64) (store.Charge, bool, error) {
	c, err := scanCharge(s.DB.QueryRow(ctx, `SELECT`+chargeColumns+` FROM charges WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Charge{}, false, nil
	}
	if err != nil {
		return store.Charge{}, false, err
	}
	return c, true, nil
}

// LatestChargeByEmail is the informal charge<->webhook correlation: the most
// recent charge sharing the customer email. Best effort, may find nothing.
func (s *Store) LatestChargeByEmail(ctx context.Context, email string) (store.Charge, bool, error) {
	c, err := scanCharge(s.DB.QueryRow(ctx, `
		SELECT`+chargeColumns+` FROM charges WHERE customer_email=$1 ORDER BY created_at DESC LIMIT 1
	`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Charge{}, false, nil
	}
	if err != nil {
		return store.Charge{}, false, err
	}
	return c, true, nil
}

func (s *Store) LatestChargeByEmailOrPhone(ctx context.Context, email, phone string) (store.Charge, bool, error) {
	c, err := scanCharge(s.DB.QueryRow(ctx, `
		SELECT`+chargeColumns+` FROM charges
		WHERE customer_email=$1 OR (customer_phone IS NOT NULL AND customer_phone=$2)
		ORDER BY created_at DESC LIMIT 1
	`, email, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Charge{}, false, nil
	}
	if err != nil {
		return store.Charge{}, false, err
	}
	return c, true, nil
}

func (s *Store) SetProviderDetails(ctx context.Context, in store.ProviderDetails) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE charges
		SET br_code=$2, qr_code_url=$3, payment_link_url=$4, expires_at=$5, updated_at=$6
		WHERE id=$1
	`, in.ChargeID, nullIfEmpty(in.BRCode), nullIfEmpty(in.QRCodeURL), nullIfEmpty(in.PaymentLinkURL), in.ExpiresAt, in.Now)
	return err
}

// CompleteChargeByCorrelationID flips a pending charge to completed.
// updated reports whether the flip happened on this call; a re-delivered
// completion event finds the charge already completed and updated is false.
func (s *Store) CompleteChargeByCorrelationID(ctx context.Context, correlationID string, now time.Time) (c store.Charge, updated, found bool, err error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE charges SET status='completed', updated_at=$2 WHERE correlation_id=$1 AND status='pending'
	`, correlationID, now)
	if err != nil {
		return store.Charge{}, false, false, err
	}
	updated = ct.RowsAffected() > 0

	c, err = scanCharge(s.DB.QueryRow(ctx, `SELECT`+chargeColumns+` FROM charges WHERE correlation_id=$1`, correlationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Charge{}, false, false, nil
	}
	if err != nil {
		return store.Charge{}, false, false, err
	}
	return c, updated, true, nil
}

// SetChargeCRMContact records the resolved CRM contact. The guard keeps an
// already-linked contact from being overwritten on job re-delivery.
func (s *Store) SetChargeCRMContact(ctx context.Context, chargeID, contactID int64, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE charges SET crm_contact_id=$2, updated_at=$3 WHERE id=$1 AND crm_contact_id IS NULL
	`, chargeID, contactID, now)
	return err
}

func (s *Store) SetChargeCRMDeal(ctx context.Context, chargeID, dealID int64, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE charges SET crm_deal_id=$2, updated_at=$3 WHERE id=$1 AND crm_deal_id IS NULL
	`, chargeID, dealID, now)
	return err
}

func (s *Store) InsertWebhookRecord(ctx context.Context, payload map[string]any, now time.Time) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.DB.QueryRow(ctx, `
		INSERT INTO webhook_requests (payload, status, created_at, updated_at)
		VALUES ($1,'queued',$2,$2)
		RETURNING id
	`, b, now).Scan(&id)
	return id, err
}

func (s *Store) GetWebhookRecord(ctx context.Context, id int64) (store.WebhookRecord, bool, error) {
	var r store.WebhookRecord
	var payload []byte
	err := s.DB.QueryRow(ctx, `
		SELECT id, payload, status, COALESCE(pdf_filename,''), COALESCE(storage_file_id,''), COALESCE(error_message,''), created_at, updated_at
		FROM webhook_requests WHERE id=$1
	`, id).Scan(&r.ID, &payload, &r.Status, &r.PDFFilename, &r.StorageFileID, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.WebhookRecord{}, false, nil
	}
	if err != nil {
		return store.WebhookRecord{}, false, err
	}
	if err := json.Unmarshal(payload, &r.Payload); err != nil {
		return store.WebhookRecord{}, false, err
	}
	return r, true, nil
}

// ClaimWebhookRecord moves a record into processing. A record stuck in
// processing (crashed worker) can be reclaimed once it is stale.
func (s *Store) ClaimWebhookRecord(ctx context.Context, id int64, now time.Time, staleAfter time.Duration) (bool, error) {
	staleBefore := now.Add(-staleAfter)
	ct, err := s.DB.Exec(ctx, `
		UPDATE webhook_requests
		SET status='processing', updated_at=$2
		WHERE id=$1 AND (status='queued' OR (status='processing' AND updated_at < $3))
	`, id, now, staleBefore)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) MarkWebhookDone(ctx context.Context, id int64, filename, storageFileID string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webhook_requests
		SET status='done', pdf_filename=$2, storage_file_id=$3, error_message=NULL, updated_at=$4
		WHERE id=$1
	`, id, filename, storageFileID, now)
	return err
}

func (s *Store) MarkWebhookFailed(ctx context.Context, id int64, message string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webhook_requests
		SET status='failed', error_message=$2, updated_at=$3
		WHERE id=$1 AND status <> 'done'
	`, id, message, now)
	return err
}

func (s *Store) UpsertLead(ctx context.Context, name, phone string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO leads (name, phone, created_at, updated_at)
		VALUES ($1,$2,$3,$3)
		ON CONFLICT (phone) DO UPDATE SET name=EXCLUDED.name, updated_at=EXCLUDED.updated_at
	`, name, phone, now)
	return err
}

func (s *Store) MarkLeadPurchased(ctx context.Context, phone string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `UPDATE leads SET has_purchased=TRUE, updated_at=$2 WHERE phone=$1`, phone, now)
	return err
}

func (s *Store) MarkLeadBooked(ctx context.Context, phone string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `UPDATE leads SET has_booked=TRUE, updated_at=$2 WHERE phone=$1`, phone, now)
	return err
}

func (s *Store) NonConvertedLeads(ctx context.Context) ([]store.Lead, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, phone, has_purchased, has_booked, created_at, updated_at
		FROM leads WHERE has_purchased=FALSE AND has_booked=FALSE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Lead
	for rows.Next() {
		var l store.Lead
		if err := rows.Scan(&l.ID, &l.Name, &l.Phone, &l.HasPurchased, &l.HasBooked, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) DeleteLeads(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, `DELETE FROM leads WHERE id = ANY($1)`, ids)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
