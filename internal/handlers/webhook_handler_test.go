package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/bead"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/credentials"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/dvf"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/locker"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/service"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/telemetry"
)

const dvfKey = "signing-key"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	telemetry.Logger = zap.NewNop()
	os.Exit(m.Run())
}

type fakeInvoiceStore struct {
	mu       sync.Mutex
	invoices map[string]*models.Invoice
	notified map[string]bool
}

func newFakeInvoiceStore(invoices ...*models.Invoice) *fakeInvoiceStore {
	s := &fakeInvoiceStore{
		invoices: make(map[string]*models.Invoice),
		notified: make(map[string]bool),
	}
	for _, inv := range invoices {
		s.invoices[inv.ID] = inv
	}
	return s
}

func (s *fakeInvoiceStore) GetByID(_ context.Context, id string) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *inv
	return &copied, nil
}

func (s *fakeInvoiceStore) FindByTrackingID(_ context.Context, trackingID string) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.PaymentTrackingID == trackingID {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeInvoiceStore) AttachTracking(_ context.Context, invoiceID, trackingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.invoices[invoiceID]; ok {
		inv.PaymentTrackingID = trackingID
	}
	return nil
}

func (s *fakeInvoiceStore) TransitionStatus(_ context.Context, invoiceID string, from []models.InvoiceStatus, to models.InvoiceStatus, settle *models.Settlement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return 0, nil
	}
	eligible := false
	for _, f := range from {
		if inv.Status == f {
			eligible = true
			break
		}
	}
	if !eligible {
		return 0, nil
	}
	inv.Status = to
	if settle != nil {
		inv.TransactionID = settle.TransactionID
		d := settle.PaymentDate
		inv.PaymentDate = &d
		if settle.AppendNote != "" {
			inv.Notes += settle.AppendNote
		}
	}
	return 1, nil
}

func (s *fakeInvoiceStore) ClaimNotification(_ context.Context, invoiceID, trackingID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := invoiceID + "|" + trackingID
	if s.notified[key] {
		return false, nil
	}
	s.notified[key] = true
	return true, nil
}

type fakePublisher struct {
	mu            sync.Mutex
	notifications []models.PaymentNotification
}

func (p *fakePublisher) PublishPaymentNotification(_ context.Context, n models.PaymentNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
	return nil
}

func (p *fakePublisher) PublishStatusChanged(_ context.Context, _ models.InvoiceStatusChanged) error {
	return nil
}

type fakeGateway struct {
	createFn func(ctx context.Context, cred models.Credential, req models.PaymentRequest) (*models.PaymentIntent, error)
	statusFn func(ctx context.Context, cred models.Credential, trackingID string) (*models.TrackingStatus, error)
	regFn    func(ctx context.Context, cred models.Credential, url string) error
}

func (g *fakeGateway) CreatePayment(ctx context.Context, cred models.Credential, req models.PaymentRequest) (*models.PaymentIntent, error) {
	return g.createFn(ctx, cred, req)
}

func (g *fakeGateway) CheckStatus(ctx context.Context, cred models.Credential, trackingID string) (*models.TrackingStatus, error) {
	return g.statusFn(ctx, cred, trackingID)
}

func (g *fakeGateway) RegisterWebhookURL(ctx context.Context, cred models.Credential, url string) error {
	return g.regFn(ctx, cred, url)
}

func fallbackCredential() models.Credential {
	return models.Credential{
		MerchantID:  "shared",
		TerminalID:  "term-shared",
		Username:    "merchant",
		Secret:      "s3cret",
		APIBaseURL:  "https://api.example",
		AuthBaseURL: "https://auth.example/connect/token",
	}
}

func testInvoice(trackingID string) *models.Invoice {
	return &models.Invoice{
		ID:                "7f9c24e5-1a2b-4c3d-8e9f-0a1b2c3d4e5f",
		ClientEmail:       "client@example.com",
		Amount:            decimal.NewFromInt(100),
		Currency:          "USD",
		Status:            models.InvoiceSent,
		PaymentTrackingID: trackingID,
	}
}

type webhookFixture struct {
	router *gin.Engine
	store  *fakeInvoiceStore
	pub    *fakePublisher
}

func newWebhookFixture(t *testing.T, gateway *fakeGateway, store *fakeInvoiceStore) *webhookFixture {
	t.Helper()
	pub := &fakePublisher{}
	reconciler := service.NewReconciler(store, locker.NewMemoryLocker(), pub, zap.NewNop())
	resolver := credentials.NewResolver(nil, fallbackCredential(), zap.NewNop())
	handler := NewWebhookHandler(gateway, resolver, store, reconciler, dvf.NewProcessor(dvfKey))

	router := gin.New()
	router.POST("/bead/webhook", handler.HandleBeadWebhook)
	router.POST("/dvf/webhook", handler.HandleDvfWebhook)

	return &webhookFixture{router: router, store: store, pub: pub}
}

func postBeadWebhook(t *testing.T, router *gin.Engine, body string) (*httptest.ResponseRecorder, webhookAck) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bead/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	var ack webhookAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	return rec, ack
}

func TestBeadWebhookSettlesInvoice(t *testing.T) {
	store := newFakeInvoiceStore(testInvoice("T123"))
	gateway := &fakeGateway{
		statusFn: func(_ context.Context, _ models.Credential, trackingID string) (*models.TrackingStatus, error) {
			require.Equal(t, "T123", trackingID)
			return &models.TrackingStatus{
				TrackingID:  "T123",
				StatusCode:  2,
				PaymentCode: "PAY-9",
				Amounts: models.Amounts{
					Requested: decimal.NewFromInt(100),
					Paid:      decimal.NewFromInt(100),
				},
			}, nil
		},
	}
	fx := newWebhookFixture(t, gateway, store)

	rec, ack := postBeadWebhook(t, fx.router, `{"trackingId":"T123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ack.Success)

	inv := store.invoices["7f9c24e5-1a2b-4c3d-8e9f-0a1b2c3d4e5f"]
	require.Equal(t, models.InvoicePaid, inv.Status)
	require.Equal(t, "PAY-9", inv.TransactionID)

	require.Len(t, fx.pub.notifications, 1)
	require.Equal(t, "success", fx.pub.notifications[0].Status)
}

func TestBeadWebhookAlwaysAnswers200(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		gateway *fakeGateway
		store   *fakeInvoiceStore
		reason  string
	}{
		{
			name:    "missing tracking id",
			body:    `{}`,
			gateway: &fakeGateway{},
			store:   newFakeInvoiceStore(),
			reason:  "missing trackingId",
		},
		{
			name:    "invoice not found",
			body:    `{"trackingId":"T404"}`,
			gateway: &fakeGateway{},
			store:   newFakeInvoiceStore(),
			reason:  "unknown trackingId",
		},
		{
			name: "provider status query times out",
			body: `{"trackingId":"T123"}`,
			gateway: &fakeGateway{
				statusFn: func(context.Context, models.Credential, string) (*models.TrackingStatus, error) {
					return nil, &bead.StatusQueryError{TrackingID: "T123", Err: context.DeadlineExceeded}
				},
			},
			store:  newFakeInvoiceStore(testInvoice("T123")),
			reason: "status query failed",
		},
		{
			name:    "undecodable body",
			body:    `{not json`,
			gateway: &fakeGateway{},
			store:   newFakeInvoiceStore(),
			reason:  "invalid body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newWebhookFixture(t, tt.gateway, tt.store)

			rec, ack := postBeadWebhook(t, fx.router, tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			require.False(t, ack.Success)
			require.Equal(t, tt.reason, ack.Error)
			require.Empty(t, fx.pub.notifications)
		})
	}
}

func TestBeadWebhookRetriesOnceAfter401(t *testing.T) {
	store := newFakeInvoiceStore(testInvoice("T123"))
	var attempts int
	gateway := &fakeGateway{
		statusFn: func(context.Context, models.Credential, string) (*models.TrackingStatus, error) {
			attempts++
			if attempts == 1 {
				return nil, &bead.AuthenticationError{StatusCode: http.StatusUnauthorized}
			}
			return &models.TrackingStatus{TrackingID: "T123", StatusCode: 2, PaymentCode: "PAY-9"}, nil
		},
	}
	fx := newWebhookFixture(t, gateway, store)

	rec, ack := postBeadWebhook(t, fx.router, `{"trackingId":"T123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ack.Success)
	require.Equal(t, 2, attempts)
	require.Equal(t, models.InvoicePaid, store.invoices["7f9c24e5-1a2b-4c3d-8e9f-0a1b2c3d4e5f"].Status)
}

func TestDuplicateBeadWebhooksNotifyOnce(t *testing.T) {
	store := newFakeInvoiceStore(testInvoice("T123"))
	gateway := &fakeGateway{
		statusFn: func(context.Context, models.Credential, string) (*models.TrackingStatus, error) {
			return &models.TrackingStatus{TrackingID: "T123", StatusCode: 2, PaymentCode: "PAY-9"}, nil
		},
	}
	fx := newWebhookFixture(t, gateway, store)

	for i := 0; i < 3; i++ {
		rec, ack := postBeadWebhook(t, fx.router, `{"trackingId":"T123"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, ack.Success)
	}

	require.Equal(t, models.InvoicePaid, store.invoices["7f9c24e5-1a2b-4c3d-8e9f-0a1b2c3d4e5f"].Status)
	require.Len(t, fx.pub.notifications, 1)
}

func signDvf(body []byte) string {
	mac := hmac.New(sha256.New, []byte(dvfKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestDvfWebhookSettlesInvoice(t *testing.T) {
	store := newFakeInvoiceStore(testInvoice("D555"))
	fx := newWebhookFixture(t, &fakeGateway{}, store)

	body := []byte(`{"trackingId":"D555","transactionId":"TX-1","condition":"approved","amount":100}`)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/dvf/webhook", bytes.NewBuffer(body))
	req.Header.Set(dvf.SignatureHeader, signDvf(body))
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.InvoicePaid, store.invoices["7f9c24e5-1a2b-4c3d-8e9f-0a1b2c3d4e5f"].Status)
	require.Len(t, fx.pub.notifications, 1)
}

func TestDvfWebhookRejectsBadSignature(t *testing.T) {
	store := newFakeInvoiceStore(testInvoice("D555"))
	fx := newWebhookFixture(t, &fakeGateway{}, store)

	body := []byte(`{"trackingId":"D555","transactionId":"TX-1","condition":"approved","amount":100}`)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/dvf/webhook", bytes.NewBuffer(body))
	req.Header.Set(dvf.SignatureHeader, "deadbeef")
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, models.InvoiceSent, store.invoices["7f9c24e5-1a2b-4c3d-8e9f-0a1b2c3d4e5f"].Status)
	require.Empty(t, fx.pub.notifications)
}

func TestDvfWebhookUnknownInvoiceStill200(t *testing.T) {
	fx := newWebhookFixture(t, &fakeGateway{}, newFakeInvoiceStore())

	body := []byte(`{"trackingId":"D404","transactionId":"TX-1","condition":"approved","amount":100}`)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/dvf/webhook", bytes.NewBuffer(body))
	req.Header.Set(dvf.SignatureHeader, signDvf(body))
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var ack webhookAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	require.False(t, ack.Success)
}
