package bead

import "fmt"

// AuthenticationError means the provider rejected or failed the password
// grant, or an API call came back 401. Callers may re-invoke once; the token
// store has already dropped the cached token by the time they see this.
type AuthenticationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bead authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("bead authentication failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// PaymentCreationError means the provider refused to open a payment request.
type PaymentCreationError struct {
	Reference  string
	StatusCode int
	Message    string
	Err        error
}

func (e *PaymentCreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bead payment creation failed for reference %s: %v", e.Reference, e.Err)
	}
	return fmt.Sprintf("bead payment creation failed for reference %s: status %d: %s", e.Reference, e.StatusCode, e.Message)
}

func (e *PaymentCreationError) Unwrap() error { return e.Err }

// StatusQueryError means a tracking status fetch failed.
type StatusQueryError struct {
	TrackingID string
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusQueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bead status query failed for tracking id %s: %v", e.TrackingID, e.Err)
	}
	return fmt.Sprintf("bead status query failed for tracking id %s: status %d: %s", e.TrackingID, e.StatusCode, e.Body)
}

func (e *StatusQueryError) Unwrap() error { return e.Err }

// WebhookRegistrationError means setting the terminal webhook URL failed.
type WebhookRegistrationError struct {
	TerminalID string
	StatusCode int
	Body       string
	Err        error
}

func (e *WebhookRegistrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bead webhook registration failed for terminal %s: %v", e.TerminalID, e.Err)
	}
	return fmt.Sprintf("bead webhook registration failed for terminal %s: status %d: %s", e.TerminalID, e.StatusCode, e.Body)
}

func (e *WebhookRegistrationError) Unwrap() error { return e.Err }
