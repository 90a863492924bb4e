package bead

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/metrics"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

const apiVersion = "0.2"

// Client talks to the Bead merchant API. It authenticates lazily through the
// token store and never retries: provider 5xx and auth failures propagate to
// the caller, who decides on re-poll or a single re-invoke after 401.
type Client struct {
	httpClient *http.Client
	tokens     *TokenStore
	logger     *zap.Logger
}

func NewClient(tokens *TokenStore, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

type createPaymentPayload struct {
	MerchantID      string `json:"merchantId"`
	TerminalID      string `json:"terminalId"`
	RequestedAmount string `json:"requestedAmount"`
	PaymentURLType  string `json:"paymentUrlType"`
	Reference       string `json:"reference"`
	RedirectURL     string `json:"redirectUrl"`
}

// CreatePayment opens a payment request and returns the provider tracking id
// and the hosted payment page URL.
func (c *Client) CreatePayment(ctx context.Context, cred models.Credential, req models.PaymentRequest) (*models.PaymentIntent, error) {
	payload := createPaymentPayload{
		MerchantID:      req.MerchantID,
		TerminalID:      req.TerminalID,
		RequestedAmount: req.RequestedAmount.String(),
		PaymentURLType:  "web",
		Reference:       req.Reference,
		RedirectURL:     req.RedirectURL,
	}

	status, body, err := c.do(ctx, cred, http.MethodPost, cred.APIBaseURL+"/payments/crypto", payload)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("create_payment").Inc()
		return nil, &PaymentCreationError{Reference: req.Reference, Err: err}
	}
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate(cred)
		return nil, &AuthenticationError{StatusCode: status, Body: string(body)}
	}
	if status < 200 || status > 299 {
		metrics.ProviderErrors.WithLabelValues("create_payment").Inc()
		return nil, &PaymentCreationError{
			Reference:  req.Reference,
			StatusCode: status,
			Message:    providerMessage(body, status),
		}
	}

	var intent models.PaymentIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, &PaymentCreationError{Reference: req.Reference, StatusCode: status, Err: err}
	}

	c.logger.Info("Payment request created",
		zap.String("reference", req.Reference),
		zap.String("tracking_id", intent.TrackingID),
	)
	return &intent, nil
}

// CheckStatus fetches the authoritative status of a payment attempt.
func (c *Client) CheckStatus(ctx context.Context, cred models.Credential, trackingID string) (*models.TrackingStatus, error) {
	status, body, err := c.do(ctx, cred, http.MethodGet, cred.APIBaseURL+"/payments/tracking/"+trackingID, nil)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("check_status").Inc()
		return nil, &StatusQueryError{TrackingID: trackingID, Err: err}
	}
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate(cred)
		return nil, &AuthenticationError{StatusCode: status, Body: string(body)}
	}
	if status != http.StatusOK {
		metrics.ProviderErrors.WithLabelValues("check_status").Inc()
		return nil, &StatusQueryError{TrackingID: trackingID, StatusCode: status, Body: string(body)}
	}

	var tracking models.TrackingStatus
	if err := json.Unmarshal(body, &tracking); err != nil {
		return nil, &StatusQueryError{TrackingID: trackingID, StatusCode: status, Err: err}
	}
	if tracking.TrackingID == "" {
		tracking.TrackingID = trackingID
	}
	return &tracking, nil
}

// RegisterWebhookURL points the merchant terminal's webhook at url.
func (c *Client) RegisterWebhookURL(ctx context.Context, cred models.Credential, url string) error {
	endpoint := fmt.Sprintf("%s/Terminals/%s/set-webhook-url", cred.APIBaseURL, cred.TerminalID)
	status, body, err := c.do(ctx, cred, http.MethodPut, endpoint, map[string]string{"Url": url})
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("register_webhook").Inc()
		return &WebhookRegistrationError{TerminalID: cred.TerminalID, Err: err}
	}
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate(cred)
		return &AuthenticationError{StatusCode: status, Body: string(body)}
	}
	if status < 200 || status > 299 {
		metrics.ProviderErrors.WithLabelValues("register_webhook").Inc()
		return &WebhookRegistrationError{TerminalID: cred.TerminalID, StatusCode: status, Body: string(body)}
	}

	c.logger.Info("Webhook URL registered",
		zap.String("terminal_id", cred.TerminalID),
		zap.String("url", url),
	)
	return nil
}

// do sends one authenticated request and returns the raw response. Transport
// errors come back as err; HTTP-level failures are left to the caller so each
// operation can wrap them in its own error type.
func (c *Client) do(ctx context.Context, cred models.Credential, method, url string, payload interface{}) (int, []byte, error) {
	token, err := c.tokens.Token(ctx, cred)
	if err != nil {
		return 0, nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("api-version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

// providerMessage pulls the provider's error message out of an error body,
// falling back to the raw body, then to the bare status code.
func providerMessage(body []byte, status int) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return trimmed
	}
	return fmt.Sprintf("provider returned status %d", status)
}
