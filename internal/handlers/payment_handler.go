package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/bead"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/credentials"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/interfaces"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/service"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/telemetry"
)

// PaymentHandler exposes the merchant-facing payment operations: open a
// payment for an invoice, re-poll its authoritative status, and manage the
// terminal webhook registration.
type PaymentHandler struct {
	gateway       interfaces.PaymentGateway
	resolver      *credentials.Resolver
	invoices      interfaces.InvoiceStore
	reconciler    *service.Reconciler
	publicBaseURL string
}

func NewPaymentHandler(gateway interfaces.PaymentGateway, resolver *credentials.Resolver, invoices interfaces.InvoiceStore, reconciler *service.Reconciler, publicBaseURL string) *PaymentHandler {
	return &PaymentHandler{
		gateway:       gateway,
		resolver:      resolver,
		invoices:      invoices,
		reconciler:    reconciler,
		publicBaseURL: publicBaseURL,
	}
}

// CreatePayment opens a Bead payment request for the invoice and stores the
// returned tracking id. The invoice id doubles as the provider reference.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	invoiceID := c.Param("id")
	if _, err := uuid.Parse(invoiceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	ctx := c.Request.Context()

	inv, err := h.invoices.GetByID(ctx, invoiceID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch invoice"})
		return
	}
	if inv.Status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "invoice already settled", "status": inv.Status})
		return
	}

	cred, err := h.resolver.Resolve(ctx, inv.MerchantID)
	if err != nil {
		h.renderProviderError(c, err, invoiceID)
		return
	}

	req := models.PaymentRequest{
		MerchantID:      cred.MerchantID,
		TerminalID:      cred.TerminalID,
		RequestedAmount: inv.Amount,
		Currency:        inv.Currency,
		Reference:       inv.ID,
		RedirectURL:     h.publicBaseURL + "/invoices/" + inv.ID + "/thanks",
	}

	intent, err := h.gateway.CreatePayment(ctx, cred, req)
	if err != nil {
		var authErr *bead.AuthenticationError
		if errors.As(err, &authErr) {
			intent, err = h.gateway.CreatePayment(ctx, cred, req)
		}
	}
	if err != nil {
		h.renderProviderError(c, err, invoiceID)
		return
	}

	if err := h.invoices.AttachTracking(ctx, inv.ID, intent.TrackingID); err != nil {
		telemetry.Logger.Error("Failed to store tracking id",
			zap.String("invoice_id", inv.ID),
			zap.String("tracking_id", intent.TrackingID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record payment attempt"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice_id":  inv.ID,
		"tracking_id": intent.TrackingID,
		"payment_url": intent.PaymentURL,
	})
}

// PollPayment is the operator-triggered counterpart of a webhook: fetch the
// authoritative status and reconcile, but surface errors instead of masking
// them behind a 200.
func (h *PaymentHandler) PollPayment(c *gin.Context) {
	invoiceID := c.Param("id")

	ctx := c.Request.Context()

	inv, err := h.invoices.GetByID(ctx, invoiceID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch invoice"})
		return
	}
	if inv.PaymentTrackingID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "invoice has no payment attempt"})
		return
	}

	cred, err := h.resolver.Resolve(ctx, inv.MerchantID)
	if err != nil {
		h.renderProviderError(c, err, invoiceID)
		return
	}

	tracking, err := h.gateway.CheckStatus(ctx, cred, inv.PaymentTrackingID)
	if err != nil {
		var authErr *bead.AuthenticationError
		if errors.As(err, &authErr) {
			tracking, err = h.gateway.CheckStatus(ctx, cred, inv.PaymentTrackingID)
		}
	}
	if err != nil {
		h.renderProviderError(c, err, invoiceID)
		return
	}

	status := bead.Translate(tracking)
	if err := h.reconciler.Apply(ctx, status); err != nil && !errors.Is(err, service.ErrReconcileInProgress) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
		return
	}

	refreshed, err := h.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch invoice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice_id":  refreshed.ID,
		"status":      refreshed.Status,
		"outcome":     status.Outcome.String(),
		"description": status.Outcome.Description(),
		"tracking_id": inv.PaymentTrackingID,
	})
}

// RegisterWebhook points a merchant terminal's webhook at this service.
func (h *PaymentHandler) RegisterWebhook(c *gin.Context) {
	var req struct {
		MerchantID string `json:"merchantId"`
		URL        string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	url := req.URL
	if url == "" {
		url = h.publicBaseURL + "/bead/webhook"
	}

	ctx := c.Request.Context()

	cred, err := h.resolver.Resolve(ctx, req.MerchantID)
	if err != nil {
		h.renderProviderError(c, err, "")
		return
	}

	err = h.gateway.RegisterWebhookURL(ctx, cred, url)
	if err != nil {
		var authErr *bead.AuthenticationError
		if errors.As(err, &authErr) {
			err = h.gateway.RegisterWebhookURL(ctx, cred, url)
		}
	}
	if err != nil {
		h.renderProviderError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"terminal_id": cred.TerminalID, "url": url})
}

// renderProviderError maps the error taxonomy onto HTTP answers for the
// merchant-facing flows: configuration problems are ours, provider failures
// are "try again later".
func (h *PaymentHandler) renderProviderError(c *gin.Context, err error, invoiceID string) {
	fields := []zap.Field{zap.Error(err)}
	if invoiceID != "" {
		fields = append(fields, zap.String("invoice_id", invoiceID))
	}

	var confErr *credentials.ConfigurationError
	if errors.As(err, &confErr) {
		telemetry.Logger.Error("Provider credentials misconfigured", fields...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment provider not configured"})
		return
	}

	telemetry.Logger.Error("Provider call failed", fields...)
	c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable, try again later"})
}
