package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentNotification is the event handed to the mailer collaborator when an
// invoice settles. Emitted at most once per invoice+tracking id.
type PaymentNotification struct {
	InvoiceID     string          `json:"invoice_id"`
	ClientEmail   string          `json:"client_email"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	PaymentDate   time.Time       `json:"payment_date"`
}

// InvoiceStatusChanged is published for every applied invoice transition.
type InvoiceStatusChanged struct {
	InvoiceID      string        `json:"invoice_id"`
	TrackingID     string        `json:"tracking_id"`
	PreviousStatus InvoiceStatus `json:"previous_status"`
	Status         InvoiceStatus `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
}
