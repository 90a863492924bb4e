package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/handlers"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/telemetry"
)

func NewRouter(webhookHandler *handlers.WebhookHandler, paymentHandler *handlers.PaymentHandler, invoiceHandler *handlers.InvoiceHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-reconciler"})
	})

	// Provider webhooks
	r.POST("/bead/webhook", webhookHandler.HandleBeadWebhook)
	r.POST("/dvf/webhook", webhookHandler.HandleDvfWebhook)

	// Merchant-facing payment operations
	r.POST("/invoices/:id/payments", paymentHandler.CreatePayment)
	r.POST("/invoices/:id/payments/poll", paymentHandler.PollPayment)
	r.GET("/invoices/:id", invoiceHandler.GetInvoice)

	// Admin
	r.PUT("/terminals/webhook", paymentHandler.RegisterWebhook)
	r.DELETE("/merchants/:merchantId/credentials", invoiceHandler.DisableCredentials)

	return r
}
