package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/bead"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/credentials"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/locker"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/service"
)

const invoiceID = "7f9c24e5-1a2b-4c3d-8e9f-0a1b2c3d4e5f"

type paymentFixture struct {
	router *gin.Engine
	store  *fakeInvoiceStore
	pub    *fakePublisher
}

func newPaymentFixture(t *testing.T, gateway *fakeGateway, store *fakeInvoiceStore, fallback models.Credential) *paymentFixture {
	t.Helper()
	pub := &fakePublisher{}
	reconciler := service.NewReconciler(store, locker.NewMemoryLocker(), pub, zap.NewNop())
	resolver := credentials.NewResolver(nil, fallback, zap.NewNop())
	handler := NewPaymentHandler(gateway, resolver, store, reconciler, "https://billing.example")

	router := gin.New()
	router.POST("/invoices/:id/payments", handler.CreatePayment)
	router.POST("/invoices/:id/payments/poll", handler.PollPayment)
	router.PUT("/terminals/webhook", handler.RegisterWebhook)

	return &paymentFixture{router: router, store: store, pub: pub}
}

func TestCreatePaymentAttachesTracking(t *testing.T) {
	store := newFakeInvoiceStore(testInvoice(""))
	gateway := &fakeGateway{
		createFn: func(_ context.Context, cred models.Credential, req models.PaymentRequest) (*models.PaymentIntent, error) {
			require.Equal(t, "term-shared", req.TerminalID)
			require.Equal(t, invoiceID, req.Reference)
			require.True(t, req.RequestedAmount.Equal(decimal.NewFromInt(100)))
			require.Equal(t, "https://billing.example/invoices/"+invoiceID+"/thanks", req.RedirectURL)
			return &models.PaymentIntent{TrackingID: "T123", PaymentURL: "https://pay.example/T123"}, nil
		},
	}
	fx := newPaymentFixture(t, gateway, store, fallbackCredential())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID+"/payments", nil)
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "T123", resp["tracking_id"])
	require.Equal(t, "https://pay.example/T123", resp["payment_url"])
	require.Equal(t, "T123", fx.store.invoices[invoiceID].PaymentTrackingID)
}

func TestCreatePaymentInvalidInvoiceID(t *testing.T) {
	fx := newPaymentFixture(t, &fakeGateway{}, newFakeInvoiceStore(), fallbackCredential())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/not-a-uuid/payments", nil)
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePaymentSettledInvoiceConflicts(t *testing.T) {
	inv := testInvoice("T123")
	inv.Status = models.InvoicePaid
	fx := newPaymentFixture(t, &fakeGateway{}, newFakeInvoiceStore(inv), fallbackCredential())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID+"/payments", nil)
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreatePaymentProviderDown(t *testing.T) {
	gateway := &fakeGateway{
		createFn: func(context.Context, models.Credential, models.PaymentRequest) (*models.PaymentIntent, error) {
			return nil, &bead.PaymentCreationError{Reference: invoiceID, StatusCode: http.StatusBadGateway, Message: "upstream down"}
		},
	}
	fx := newPaymentFixture(t, gateway, newFakeInvoiceStore(testInvoice("")), fallbackCredential())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID+"/payments", nil)
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "try again later")
}

func TestCreatePaymentMisconfiguredCredentials(t *testing.T) {
	fx := newPaymentFixture(t, &fakeGateway{}, newFakeInvoiceStore(testInvoice("")), models.Credential{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID+"/payments", nil)
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "not configured")
}

func TestCreatePaymentRetriesOnceAfter401(t *testing.T) {
	var attempts int
	gateway := &fakeGateway{
		createFn: func(context.Context, models.Credential, models.PaymentRequest) (*models.PaymentIntent, error) {
			attempts++
			if attempts == 1 {
				return nil, &bead.AuthenticationError{StatusCode: http.StatusUnauthorized}
			}
			return &models.PaymentIntent{TrackingID: "T123", PaymentURL: "https://pay.example/T123"}, nil
		},
	}
	fx := newPaymentFixture(t, gateway, newFakeInvoiceStore(testInvoice("")), fallbackCredential())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID+"/payments", nil)
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, attempts)
}

func TestPollPaymentReconciles(t *testing.T) {
	store := newFakeInvoiceStore(testInvoice("T123"))
	gateway := &fakeGateway{
		statusFn: func(context.Context, models.Credential, string) (*models.TrackingStatus, error) {
			return &models.TrackingStatus{TrackingID: "T123", StatusCode: 2, PaymentCode: "PAY-9"}, nil
		},
	}
	fx := newPaymentFixture(t, gateway, store, fallbackCredential())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID+"/payments/poll", nil)
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "paid", resp["status"])
	require.Equal(t, "completed", resp["outcome"])
	require.Len(t, fx.pub.notifications, 1)
}

func TestPollPaymentWithoutAttempt(t *testing.T) {
	fx := newPaymentFixture(t, &fakeGateway{}, newFakeInvoiceStore(testInvoice("")), fallbackCredential())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID+"/payments/poll", nil)
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestPollPaymentSurfacesProviderFailure(t *testing.T) {
	gateway := &fakeGateway{
		statusFn: func(context.Context, models.Credential, string) (*models.TrackingStatus, error) {
			return nil, &bead.StatusQueryError{TrackingID: "T123", StatusCode: http.StatusInternalServerError}
		},
	}
	fx := newPaymentFixture(t, gateway, newFakeInvoiceStore(testInvoice("T123")), fallbackCredential())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID+"/payments/poll", nil)
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRegisterWebhookDefaultsToOwnURL(t *testing.T) {
	var registered string
	gateway := &fakeGateway{
		regFn: func(_ context.Context, cred models.Credential, url string) error {
			require.Equal(t, "term-shared", cred.TerminalID)
			registered = url
			return nil
		},
	}
	fx := newPaymentFixture(t, gateway, newFakeInvoiceStore(), fallbackCredential())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/terminals/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://billing.example/bead/webhook", registered)
}
