package handlers

import (
	"database/sql"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/bead"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/credentials"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/dvf"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/interfaces"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/metrics"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/service"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/telemetry"
)

// WebhookHandler is the inbound boundary for provider notifications. The Bead
// endpoint always answers 200 no matter what happens inside, so the provider
// never retry-storms us; failures surface through logs and metrics only.
type WebhookHandler struct {
	gateway    interfaces.PaymentGateway
	resolver   *credentials.Resolver
	invoices   interfaces.InvoiceStore
	reconciler *service.Reconciler
	dvf        *dvf.Processor
}

func NewWebhookHandler(gateway interfaces.PaymentGateway, resolver *credentials.Resolver, invoices interfaces.InvoiceStore, reconciler *service.Reconciler, dvfProcessor *dvf.Processor) *WebhookHandler {
	return &WebhookHandler{
		gateway:    gateway,
		resolver:   resolver,
		invoices:   invoices,
		reconciler: reconciler,
		dvf:        dvfProcessor,
	}
}

type webhookAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func ackOK(c *gin.Context) {
	metrics.WebhooksReceived.WithLabelValues("bead", "processed").Inc()
	c.JSON(http.StatusOK, webhookAck{Success: true})
}

// ackFailed still answers HTTP 200: the failure is ours to handle, not the
// provider's to redeliver.
func ackFailed(c *gin.Context, reason string) {
	metrics.WebhooksReceived.WithLabelValues("bead", "failed").Inc()
	c.JSON(http.StatusOK, webhookAck{Success: false, Error: reason})
}

// HandleBeadWebhook treats the inbound body as a trigger only: the
// authoritative status is always re-fetched from the provider before any
// invoice mutation.
func (h *WebhookHandler) HandleBeadWebhook(c *gin.Context) {
	var payload struct {
		TrackingID string `json:"trackingId"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		telemetry.Logger.Error("Undecodable bead webhook body", zap.Error(err))
		ackFailed(c, "invalid body")
		return
	}
	if payload.TrackingID == "" {
		telemetry.Logger.Error("Bead webhook without tracking id")
		ackFailed(c, "missing trackingId")
		return
	}

	ctx := c.Request.Context()

	inv, err := h.invoices.FindByTrackingID(ctx, payload.TrackingID)
	if errors.Is(err, sql.ErrNoRows) {
		telemetry.Logger.Error("Bead webhook for unknown tracking id",
			zap.String("tracking_id", payload.TrackingID),
		)
		ackFailed(c, "unknown trackingId")
		return
	}
	if err != nil {
		telemetry.Logger.Error("Invoice lookup failed",
			zap.String("tracking_id", payload.TrackingID),
			zap.Error(err),
		)
		ackFailed(c, "lookup failed")
		return
	}

	cred, err := h.resolver.Resolve(ctx, inv.MerchantID)
	if err != nil {
		telemetry.Logger.Error("Credential resolution failed",
			zap.String("tracking_id", payload.TrackingID),
			zap.String("merchant_id", inv.MerchantID),
			zap.Error(err),
		)
		ackFailed(c, "credential resolution failed")
		return
	}

	tracking, err := h.gateway.CheckStatus(ctx, cred, payload.TrackingID)
	if err != nil {
		// A 401 invalidated the cached token; one re-invoke re-authenticates.
		var authErr *bead.AuthenticationError
		if errors.As(err, &authErr) {
			tracking, err = h.gateway.CheckStatus(ctx, cred, payload.TrackingID)
		}
	}
	if err != nil {
		telemetry.Logger.Error("Authoritative status fetch failed",
			zap.String("tracking_id", payload.TrackingID),
			zap.Error(err),
		)
		ackFailed(c, "status query failed")
		return
	}

	status := bead.Translate(tracking)
	if err := h.reconciler.Apply(ctx, status); err != nil {
		telemetry.Logger.Error("Reconciliation failed",
			zap.String("tracking_id", payload.TrackingID),
			zap.String("outcome", status.Outcome.String()),
			zap.Error(err),
		)
		ackFailed(c, "reconciliation failed")
		return
	}

	ackOK(c)
}

// HandleDvfWebhook verifies the card-processor signature before anything
// else; a forged call is rejected outright, not acknowledged.
func (h *WebhookHandler) HandleDvfWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	status, err := h.dvf.VerifyAndParse(body, c.GetHeader(dvf.SignatureHeader))
	if errors.Is(err, dvf.ErrInvalidSignature) {
		metrics.WebhooksReceived.WithLabelValues("dvf", "rejected").Inc()
		telemetry.Logger.Warn("DVF webhook with invalid signature",
			zap.String("client_ip", c.ClientIP()),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("dvf", "failed").Inc()
		telemetry.Logger.Error("Undecodable dvf webhook body", zap.Error(err))
		c.JSON(http.StatusOK, webhookAck{Success: false, Error: "invalid body"})
		return
	}

	if err := h.applyDvf(c, *status); err != nil {
		metrics.WebhooksReceived.WithLabelValues("dvf", "failed").Inc()
		telemetry.Logger.Error("DVF reconciliation failed",
			zap.String("tracking_id", status.TrackingID),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, webhookAck{Success: false, Error: "reconciliation failed"})
		return
	}

	metrics.WebhooksReceived.WithLabelValues("dvf", "processed").Inc()
	c.JSON(http.StatusOK, webhookAck{Success: true})
}

func (h *WebhookHandler) applyDvf(c *gin.Context, status models.PaymentStatus) error {
	if status.TrackingID == "" {
		return service.ErrMissingTrackingID
	}
	return h.reconciler.Apply(c.Request.Context(), status)
}
