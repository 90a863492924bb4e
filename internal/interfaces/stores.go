package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

// InvoiceStore defines the contract for invoice data access. Transitions are
// guarded: the store applies the update only while the invoice still holds
// one of the expected statuses, and reports how many rows moved.
type InvoiceStore interface {
	GetByID(ctx context.Context, invoiceID string) (*models.Invoice, error)
	FindByTrackingID(ctx context.Context, trackingID string) (*models.Invoice, error)
	AttachTracking(ctx context.Context, invoiceID, trackingID string) error
	TransitionStatus(ctx context.Context, invoiceID string, from []models.InvoiceStatus, to models.InvoiceStatus, settle *models.Settlement) (int64, error)
	// ClaimNotification marks the invoice+tracking pair as notified and
	// reports whether this call won the claim. At most one caller ever does.
	ClaimNotification(ctx context.Context, invoiceID, trackingID string) (bool, error)
}

// CredentialStore looks up per-merchant provider credentials. A nil result
// with nil error means the merchant has no credentials on file.
type CredentialStore interface {
	ForMerchant(ctx context.Context, merchantID string) (*models.Credential, error)
}

// NotificationPublisher delivers reconciliation events to downstream
// collaborators.
type NotificationPublisher interface {
	PublishPaymentNotification(ctx context.Context, n models.PaymentNotification) error
	PublishStatusChanged(ctx context.Context, e models.InvoiceStatusChanged) error
}

// InvoiceLocker provides per-key mutual exclusion across concurrent webhook
// deliveries and polls. Acquire reports false when someone else holds the key.
type InvoiceLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// PaymentGateway is the outbound provider client surface consumed by
// handlers. Implementations authenticate lazily per credential.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, cred models.Credential, req models.PaymentRequest) (*models.PaymentIntent, error)
	CheckStatus(ctx context.Context, cred models.Credential, trackingID string) (*models.TrackingStatus, error)
	RegisterWebhookURL(ctx context.Context, cred models.Credential, url string) error
}
