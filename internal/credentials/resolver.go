package credentials

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/interfaces"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

// ConfigurationError means no usable credential set exists for a merchant.
// Fatal for the flow that hit it; surfaced to the operator, never retried.
type ConfigurationError struct {
	MerchantID    string
	MissingFields []string
}

func (e *ConfigurationError) Error() string {
	who := "shared fallback account"
	if e.MerchantID != "" {
		who = "merchant " + e.MerchantID
	}
	return fmt.Sprintf("incomplete provider credentials for %s: missing %s", who, strings.Join(e.MissingFields, ", "))
}

// Resolver picks the provider credential set for a merchant: the merchant's
// own set when one is on file and enabled, otherwise the process-wide
// fallback. Pure lookup, no caching beyond the store layer.
type Resolver struct {
	store    interfaces.CredentialStore
	fallback models.Credential
	logger   *zap.Logger
}

func NewResolver(store interfaces.CredentialStore, fallback models.Credential, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, fallback: fallback, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, merchantID string) (models.Credential, error) {
	if merchantID != "" && r.store != nil {
		cred, err := r.store.ForMerchant(ctx, merchantID)
		if err != nil {
			return models.Credential{}, err
		}
		if cred != nil && !cred.Disabled {
			if missing := cred.MissingFields(); len(missing) > 0 {
				return models.Credential{}, &ConfigurationError{MerchantID: merchantID, MissingFields: missing}
			}
			return *cred, nil
		}
	}

	if missing := r.fallback.MissingFields(); len(missing) > 0 {
		return models.Credential{}, &ConfigurationError{MissingFields: missing}
	}

	if merchantID != "" {
		r.logger.Debug("Using fallback provider credentials", zap.String("merchant_id", merchantID))
	}
	return r.fallback, nil
}
