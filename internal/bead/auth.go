package bead

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/metrics"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

// Client id and scope are fixed by the provider for merchant API access; only
// username and password vary per credential set.
const (
	grantClientID = "bead-merchant-api"
	grantScope    = "payments"
)

// Authenticator obtains provider access tokens. The token store decides when
// to call it; this layer never retries.
type Authenticator interface {
	Authenticate(ctx context.Context, cred models.Credential) (models.AccessToken, error)
}

type GatewayAuthenticator struct {
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewGatewayAuthenticator(timeout time.Duration, logger *zap.Logger) *GatewayAuthenticator {
	return &GatewayAuthenticator{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Authenticate performs the password grant against the credential's auth
// endpoint. Any non-2xx answer or transport failure becomes an
// AuthenticationError carrying the raw response for diagnostics.
func (a *GatewayAuthenticator) Authenticate(ctx context.Context, cred models.Credential) (models.AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", grantClientID)
	form.Set("username", cred.Username)
	form.Set("password", cred.Secret)
	form.Set("scope", grantScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.AuthBaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return models.AccessToken{}, &AuthenticationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	metrics.AuthRequests.Inc()

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return models.AccessToken{}, &AuthenticationError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Warn("Provider auth rejected",
			zap.String("terminal_id", cred.TerminalID),
			zap.Int("status", resp.StatusCode),
		)
		return models.AccessToken{}, &AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.AccessToken{}, &AuthenticationError{StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	if parsed.AccessToken == "" {
		return models.AccessToken{}, &AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	obtained := a.now()
	token := models.AccessToken{Value: parsed.AccessToken, ObtainedAt: obtained}
	if parsed.ExpiresIn > 0 {
		token.ExpiresAt = obtained.Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}

	return token, nil
}
