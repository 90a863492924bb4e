package dvf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Dvf-Signature"

var ErrInvalidSignature = errors.New("dvf webhook signature mismatch")

// notification is the card processor's webhook body. Unlike Bead, DVF pushes
// final state directly; the signature is what makes the payload trustworthy.
type notification struct {
	TrackingID    string          `json:"trackingId"`
	TransactionID string          `json:"transactionId"`
	Condition     string          `json:"condition"`
	Amount        decimal.Decimal `json:"amount"`
	SettledAt     *time.Time      `json:"settledAt"`
}

// Processor verifies and normalizes card-processor webhooks.
type Processor struct {
	signingKey []byte
}

func NewProcessor(signingKey string) *Processor {
	return &Processor{signingKey: []byte(signingKey)}
}

// VerifyAndParse checks the body signature and maps the event to a canonical
// payment status. Cards settle exact amounts, so approved maps straight to
// completed; declines and processor errors surface as invalid.
func (p *Processor) VerifyAndParse(payload []byte, signature string) (*models.PaymentStatus, error) {
	mac := hmac.New(sha256.New, p.signingKey)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("malformed dvf webhook body: %w", err)
	}

	var outcome models.PaymentOutcome
	switch n.Condition {
	case "approved":
		outcome = models.OutcomeCompleted
	case "declined", "error":
		outcome = models.OutcomeInvalid
	case "cancelled":
		outcome = models.OutcomeCancelled
	default:
		outcome = models.OutcomeUnknown
	}

	return &models.PaymentStatus{
		Outcome:         outcome,
		TrackingID:      n.TrackingID,
		PaymentCode:     n.TransactionID,
		AmountRequested: n.Amount,
		AmountPaid:      n.Amount,
		CompletedAt:     n.SettledAt,
	}, nil
}
