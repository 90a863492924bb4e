package config

import (
	"os"
	"time"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

type BeadConfig struct {
	AuthURL    string
	APIURL     string
	TerminalID string
	MerchantID string
	Username   string
	Password   string
}

type Config struct {
	Port            string
	DatabaseURL     string
	RedisURL        string
	KafkaBrokers    string
	NatsURL         string
	PublicBaseURL   string
	ProviderTimeout time.Duration
	JaegerEndpoint  string

	// Bead holds the shared fallback credential set used for merchants
	// without their own provider account.
	Bead BeadConfig

	// DvfSigningKey verifies card-processor webhook signatures.
	DvfSigningKey string
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8085"
	}

	timeout := 30 * time.Second
	if v := os.Getenv("PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}

	return &Config{
		Port:            port,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		NatsURL:         os.Getenv("NATS_URL"),
		PublicBaseURL:   os.Getenv("PUBLIC_BASE_URL"),
		ProviderTimeout: timeout,
		JaegerEndpoint:  os.Getenv("JAEGER_ENDPOINT"),
		Bead: BeadConfig{
			AuthURL:    os.Getenv("BEAD_AUTH_URL"),
			APIURL:     os.Getenv("BEAD_API_URL"),
			TerminalID: os.Getenv("BEAD_TERMINAL_ID"),
			MerchantID: os.Getenv("BEAD_MERCHANT_ID"),
			Username:   os.Getenv("BEAD_USERNAME"),
			Password:   os.Getenv("BEAD_PASSWORD"),
		},
		DvfSigningKey: os.Getenv("DVF_SIGNING_KEY"),
	}
}

// FallbackCredential exposes the shared Bead account as a credential set.
func (c *Config) FallbackCredential() models.Credential {
	return models.Credential{
		MerchantID:  c.Bead.MerchantID,
		TerminalID:  c.Bead.TerminalID,
		Username:    c.Bead.Username,
		Secret:      c.Bead.Password,
		APIBaseURL:  c.Bead.APIURL,
		AuthBaseURL: c.Bead.AuthURL,
	}
}
