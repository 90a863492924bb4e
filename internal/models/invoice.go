package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceUnderpaid InvoiceStatus = "underpaid"
	InvoiceOverpaid  InvoiceStatus = "overpaid"
	InvoiceExpired   InvoiceStatus = "expired"
	InvoiceInvalid   InvoiceStatus = "invalid"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceOverdue   InvoiceStatus = "overdue"
)

// Terminal reports whether the status may never be overwritten by a later
// payment event. underpaid and overpaid are deliberately non-terminal: a
// later authoritative fetch may still resolve them.
func (s InvoiceStatus) Terminal() bool {
	switch s {
	case InvoicePaid, InvoiceExpired, InvoiceInvalid, InvoiceCancelled:
		return true
	default:
		return false
	}
}

// ReconcilableStatuses are the statuses a payment event is allowed to move an
// invoice out of. Guarded transitions pass this list to the store so the
// check and the update are one statement.
func ReconcilableStatuses() []InvoiceStatus {
	return []InvoiceStatus{
		InvoiceDraft,
		InvoiceSent,
		InvoiceOverdue,
		InvoiceUnderpaid,
		InvoiceOverpaid,
	}
}

// Invoice is the collaborator-owned entity this service mutates, and only
// through the reconciler's guarded transitions.
type Invoice struct {
	ID                string
	MerchantID        string
	ClientEmail       string
	Amount            decimal.Decimal
	Currency          string
	Status            InvoiceStatus
	PaymentTrackingID string
	TransactionID     string
	PaymentDate       *time.Time
	Notes             string
	NotifiedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Settlement carries the metadata recorded alongside a status transition.
type Settlement struct {
	TransactionID string
	PaymentDate   time.Time
	AppendNote    string
}
