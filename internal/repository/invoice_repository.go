package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS invoices (
			id VARCHAR(64) PRIMARY KEY,
			merchant_id VARCHAR(64),
			client_email VARCHAR(255),
			amount NUMERIC(18,2) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			payment_tracking_id VARCHAR(128),
			transaction_id VARCHAR(128),
			payment_date TIMESTAMP,
			notes TEXT NOT NULL DEFAULT '',
			notified_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_tracking ON invoices(payment_tracking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

const invoiceColumns = `id, merchant_id, client_email, amount, currency, status,
	COALESCE(payment_tracking_id, ''), COALESCE(transaction_id, ''),
	payment_date, notes, notified_at, created_at, updated_at`

func (r *InvoiceRepository) scanInvoice(row *sql.Row) (*models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(
		&inv.ID, &inv.MerchantID, &inv.ClientEmail, &inv.Amount, &inv.Currency,
		&inv.Status, &inv.PaymentTrackingID, &inv.TransactionID,
		&inv.PaymentDate, &inv.Notes, &inv.NotifiedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	return r.scanInvoice(r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, invoiceID))
}

func (r *InvoiceRepository) FindByTrackingID(ctx context.Context, trackingID string) (*models.Invoice, error) {
	return r.scanInvoice(r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE payment_tracking_id = $1`, trackingID))
}

func (r *InvoiceRepository) AttachTracking(ctx context.Context, invoiceID, trackingID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET payment_tracking_id = $1, updated_at = NOW()
		WHERE id = $2
	`, trackingID, invoiceID)
	return err
}

// TransitionStatus moves the invoice to the target status only while it still
// holds one of the expected source statuses, recording settlement metadata in
// the same statement. The row count tells the caller whether the transition
// actually happened; zero means a concurrent update or a terminal state won.
func (r *InvoiceRepository) TransitionStatus(ctx context.Context, invoiceID string, from []models.InvoiceStatus, to models.InvoiceStatus, settle *models.Settlement) (int64, error) {
	var txID, note string
	var paymentDate *time.Time
	if settle != nil {
		txID = settle.TransactionID
		note = settle.AppendNote
		if !settle.PaymentDate.IsZero() {
			d := settle.PaymentDate
			paymentDate = &d
		}
	}

	fromStates := make([]string, len(from))
	for i, s := range from {
		fromStates[i] = string(s)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = $1,
		    transaction_id = COALESCE(NULLIF($2, ''), transaction_id),
		    payment_date = COALESCE($3, payment_date),
		    notes = CASE WHEN $4 <> '' THEN TRIM(BOTH E'\n' FROM notes || E'\n' || $4) ELSE notes END,
		    updated_at = NOW()
		WHERE id = $5 AND status = ANY($6)
	`, to, txID, paymentDate, note, invoiceID, pq.Array(fromStates))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ClaimNotification wins at most once per invoice+tracking pair: the UPDATE
// only fires while notified_at is still NULL.
func (r *InvoiceRepository) ClaimNotification(ctx context.Context, invoiceID, trackingID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET notified_at = NOW()
		WHERE id = $1 AND payment_tracking_id = $2 AND notified_at IS NULL
	`, invoiceID, trackingID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
