package bead

import "github.com/akylbek/invoicing-system/payment-reconciler/internal/models"

// Provider status codes on a tracking query.
const (
	codeCreated   = 1
	codeCompleted = 2
	codeUnderpaid = 3
	codeOverpaid  = 4
	codeExpired   = 7
	codeInvalid   = 8
	codeCancelled = 9
)

// Translate maps a raw tracking payload to its canonical form. It is total:
// unmapped codes become OutcomeUnknown rather than an error, because the
// webhook path must always be able to acknowledge receipt.
func Translate(raw *models.TrackingStatus) models.PaymentStatus {
	var outcome models.PaymentOutcome
	switch raw.StatusCode {
	case codeCreated:
		outcome = models.OutcomeCreated
	case codeCompleted:
		outcome = models.OutcomeCompleted
	case codeUnderpaid:
		outcome = models.OutcomeUnderpaid
	case codeOverpaid:
		outcome = models.OutcomeOverpaid
	case codeExpired:
		outcome = models.OutcomeExpired
	case codeInvalid:
		outcome = models.OutcomeInvalid
	case codeCancelled:
		outcome = models.OutcomeCancelled
	default:
		outcome = models.OutcomeUnknown
	}

	return models.PaymentStatus{
		Outcome:         outcome,
		RawCode:         raw.StatusCode,
		TrackingID:      raw.TrackingID,
		Reference:       raw.Reference,
		PaymentCode:     raw.PaymentCode,
		AmountRequested: raw.Amounts.Requested,
		AmountPaid:      raw.Amounts.Paid,
		CompletedAt:     raw.CompletedAt,
	}
}
