package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentOutcome is the canonical, provider-agnostic result of a payment
// attempt. Provider status codes are translated into this enum once, at the
// edge, and everything downstream switches on it.
type PaymentOutcome int

const (
	OutcomeUnknown PaymentOutcome = iota
	OutcomeCreated
	OutcomeCompleted
	OutcomeUnderpaid
	OutcomeOverpaid
	OutcomeExpired
	OutcomeInvalid
	OutcomeCancelled
)

func (o PaymentOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeCompleted:
		return "completed"
	case OutcomeUnderpaid:
		return "underpaid"
	case OutcomeOverpaid:
		return "overpaid"
	case OutcomeExpired:
		return "expired"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Description is the operator-facing explanation of the outcome.
func (o PaymentOutcome) Description() string {
	switch o {
	case OutcomeCreated:
		return "payment request opened, awaiting funds"
	case OutcomeCompleted:
		return "customer paid the exact requested amount"
	case OutcomeUnderpaid:
		return "customer paid less than requested"
	case OutcomeOverpaid:
		return "customer paid more than requested"
	case OutcomeExpired:
		return "payment window elapsed unpaid"
	case OutcomeInvalid:
		return "irregular processing event"
	case OutcomeCancelled:
		return "customer or merchant cancelled"
	default:
		return "unmapped provider status code"
	}
}

// PaymentRequest is one payment attempt as sent to the provider. Immutable
// once sent; Reference is the invoice id and is unique per attempt.
type PaymentRequest struct {
	MerchantID      string
	TerminalID      string
	RequestedAmount decimal.Decimal
	Currency        string
	Reference       string
	RedirectURL     string
}

// PaymentIntent is the provider's answer to a created payment request.
type PaymentIntent struct {
	TrackingID string `json:"trackingId"`
	PaymentURL string `json:"paymentUrl"`
}

// Amounts mirrors the provider's amounts block on a tracking query.
type Amounts struct {
	Requested decimal.Decimal `json:"requested"`
	Paid      decimal.Decimal `json:"paid"`
}

// TrackingStatus is the raw payload of a provider status query. It is the
// authoritative source of truth for a payment attempt; webhook bodies are
// only a trigger to go fetch one of these.
type TrackingStatus struct {
	TrackingID  string     `json:"trackingId"`
	StatusCode  int        `json:"statusCode"`
	PaymentCode string     `json:"paymentCode"`
	Amounts     Amounts    `json:"amounts"`
	CompletedAt *time.Time `json:"completedAt"`
	Reference   string     `json:"reference"`
	PageID      string     `json:"pageId"`
}

// PaymentStatus is the translated, canonical form of a TrackingStatus. It is
// recomputed fresh from every provider response and never mutated.
type PaymentStatus struct {
	Outcome         PaymentOutcome
	RawCode         int
	TrackingID      string
	Reference       string
	PaymentCode     string
	AmountRequested decimal.Decimal
	AmountPaid      decimal.Decimal
	CompletedAt     *time.Time
}
