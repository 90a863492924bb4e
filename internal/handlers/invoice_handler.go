package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/interfaces"
)

type credentialDisabler interface {
	Disable(ctx context.Context, merchantID string) error
}

// InvoiceHandler serves invoice payment-state readouts and the credential
// soft-disable used when a merchant's provider account is rotated out.
type InvoiceHandler struct {
	invoices interfaces.InvoiceStore
	creds    credentialDisabler
}

func NewInvoiceHandler(invoices interfaces.InvoiceStore, creds credentialDisabler) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, creds: creds}
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoiceID := c.Param("id")

	inv, err := h.invoices.GetByID(c.Request.Context(), invoiceID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch invoice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice_id":     inv.ID,
		"status":         inv.Status,
		"amount":         inv.Amount,
		"currency":       inv.Currency,
		"tracking_id":    inv.PaymentTrackingID,
		"transaction_id": inv.TransactionID,
		"payment_date":   inv.PaymentDate,
		"notes":          inv.Notes,
		"updated_at":     inv.UpdatedAt,
	})
}

// DisableCredentials soft-disables a merchant's provider credential set.
// Rows stay in place; invoices keep referencing the terminal.
func (h *InvoiceHandler) DisableCredentials(c *gin.Context) {
	merchantID := c.Param("merchantId")

	if err := h.creds.Disable(c.Request.Context(), merchantID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disable credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"merchant_id": merchantID, "disabled": true})
}
