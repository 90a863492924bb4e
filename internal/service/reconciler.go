package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/interfaces"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/metrics"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

const overpaidNote = "Payment was overpaid. Customer should reclaim excess funds."

var (
	// ErrMissingTrackingID means the payment status carried no correlation key.
	ErrMissingTrackingID = errors.New("payment status has no tracking id")

	// ErrReconcileInProgress means another delivery for the same tracking id
	// holds the reconciliation lease. The other delivery is applying the same
	// authoritative state, so the caller can safely drop this one.
	ErrReconcileInProgress = errors.New("reconciliation already in progress for tracking id")
)

// Reconciler applies canonical payment outcomes to invoices. All invoice
// mutation in the service goes through here, under a per-tracking-id lease,
// so concurrent webhook deliveries converge on one final state and at most
// one notification.
type Reconciler struct {
	invoices  interfaces.InvoiceStore
	locks     interfaces.InvoiceLocker
	publisher interfaces.NotificationPublisher
	logger    *zap.Logger
	lockTTL   time.Duration
	now       func() time.Time
}

func NewReconciler(invoices interfaces.InvoiceStore, locks interfaces.InvoiceLocker, publisher interfaces.NotificationPublisher, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		invoices:  invoices,
		locks:     locks,
		publisher: publisher,
		logger:    logger,
		lockTTL:   30 * time.Second,
		now:       time.Now,
	}
}

// Apply transitions the invoice tied to the status' tracking id. Callers must
// have fetched the status from the provider already; no network calls happen
// while the lease is held.
func (r *Reconciler) Apply(ctx context.Context, status models.PaymentStatus) error {
	if status.TrackingID == "" {
		return ErrMissingTrackingID
	}

	switch status.Outcome {
	case models.OutcomeCreated:
		// Payment window opened, nothing to reconcile yet.
		return nil
	case models.OutcomeUnknown:
		r.logger.Warn("Unmapped provider status code, invoice left untouched",
			zap.Int("raw_code", status.RawCode),
			zap.String("tracking_id", status.TrackingID),
		)
		return nil
	}

	lockKey := "invoice_reconcile:" + status.TrackingID
	acquired, err := r.locks.Acquire(ctx, lockKey, r.lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrReconcileInProgress
	}
	defer r.locks.Release(ctx, lockKey)

	inv, err := r.invoices.FindByTrackingID(ctx, status.TrackingID)
	if err != nil {
		return err
	}

	target, settle, notify := r.plan(status)

	if inv.Status.Terminal() {
		if inv.Status == target {
			// Duplicate delivery of a state already applied.
			return nil
		}
		r.logger.Warn("Stale delivery against terminal invoice ignored",
			zap.String("invoice_id", inv.ID),
			zap.String("tracking_id", status.TrackingID),
			zap.String("invoice_status", string(inv.Status)),
			zap.String("incoming_outcome", status.Outcome.String()),
		)
		return nil
	}

	rows, err := r.invoices.TransitionStatus(ctx, inv.ID, models.ReconcilableStatuses(), target, settle)
	if err != nil {
		return err
	}
	if rows == 0 {
		// A concurrent reconciliation won; the invoice already moved on.
		r.logger.Info("Transition skipped, invoice no longer in a reconcilable status",
			zap.String("invoice_id", inv.ID),
			zap.String("tracking_id", status.TrackingID),
		)
		return nil
	}

	metrics.TransitionsApplied.WithLabelValues(string(target)).Inc()
	r.logger.Info("Invoice status transition",
		zap.String("invoice_id", inv.ID),
		zap.String("tracking_id", status.TrackingID),
		zap.String("from_status", string(inv.Status)),
		zap.String("to_status", string(target)),
	)

	if err := r.publisher.PublishStatusChanged(ctx, models.InvoiceStatusChanged{
		InvoiceID:      inv.ID,
		TrackingID:     status.TrackingID,
		PreviousStatus: inv.Status,
		Status:         target,
		Timestamp:      r.now(),
	}); err != nil {
		r.logger.Warn("Failed to publish status change event",
			zap.String("invoice_id", inv.ID),
			zap.Error(err),
		)
	}

	if notify {
		if err := r.notifyOnce(ctx, inv, status, settle); err != nil {
			return err
		}
	}

	return nil
}

// plan maps a canonical outcome to the target status, settlement metadata,
// and whether a notification is owed. Only called for reconcilable outcomes.
func (r *Reconciler) plan(status models.PaymentStatus) (models.InvoiceStatus, *models.Settlement, bool) {
	paymentDate := r.now()
	if status.CompletedAt != nil {
		paymentDate = *status.CompletedAt
	}

	switch status.Outcome {
	case models.OutcomeCompleted:
		return models.InvoicePaid, &models.Settlement{
			TransactionID: status.PaymentCode,
			PaymentDate:   paymentDate,
		}, true
	case models.OutcomeOverpaid:
		return models.InvoicePaid, &models.Settlement{
			TransactionID: status.PaymentCode,
			PaymentDate:   paymentDate,
			AppendNote:    overpaidNote,
		}, true
	case models.OutcomeUnderpaid:
		// Partial payment: no notification until the attempt resolves.
		return models.InvoiceUnderpaid, nil, false
	case models.OutcomeExpired:
		return models.InvoiceExpired, nil, false
	case models.OutcomeInvalid:
		return models.InvoiceInvalid, nil, false
	default:
		return models.InvoiceCancelled, nil, false
	}
}

// notifyOnce publishes the settlement notification if this invoice+tracking
// pair has not been notified yet. The claim lives in the store so redelivered
// webhooks can never re-fire it.
func (r *Reconciler) notifyOnce(ctx context.Context, inv *models.Invoice, status models.PaymentStatus, settle *models.Settlement) error {
	claimed, err := r.invoices.ClaimNotification(ctx, inv.ID, status.TrackingID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	amount := status.AmountPaid
	if amount.IsZero() {
		amount = inv.Amount
	}

	return r.publisher.PublishPaymentNotification(ctx, models.PaymentNotification{
		InvoiceID:     inv.ID,
		ClientEmail:   inv.ClientEmail,
		Amount:        amount,
		TransactionID: settle.TransactionID,
		Status:        "success",
		PaymentDate:   settle.PaymentDate,
	})
}
