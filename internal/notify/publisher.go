package notify

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/metrics"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

const notificationSubject = "invoice.payment.completed"

// Publisher fans reconciliation results out to downstream collaborators:
// status-change events go to Kafka for anyone auditing invoice history, and
// settlement notifications go to the mailer over NATS.
type Publisher struct {
	kafkaWriter *kafka.Writer
	nc          *nats.Conn
	logger      *zap.Logger
}

func NewPublisher(kafkaWriter *kafka.Writer, nc *nats.Conn, logger *zap.Logger) *Publisher {
	return &Publisher{kafkaWriter: kafkaWriter, nc: nc, logger: logger}
}

func (p *Publisher) PublishStatusChanged(ctx context.Context, e models.InvoiceStatusChanged) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if err := p.kafkaWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.InvoiceID),
		Value: payload,
	}); err != nil {
		return err
	}

	p.logger.Info("Invoice status change published",
		zap.String("invoice_id", e.InvoiceID),
		zap.String("from_status", string(e.PreviousStatus)),
		zap.String("to_status", string(e.Status)),
	)
	return nil
}

func (p *Publisher) PublishPaymentNotification(_ context.Context, n models.PaymentNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	if err := p.nc.Publish(notificationSubject, payload); err != nil {
		return err
	}

	metrics.NotificationsPublished.Inc()
	p.logger.Info("Payment notification published",
		zap.String("invoice_id", n.InvoiceID),
		zap.String("transaction_id", n.TransactionID),
	)
	return nil
}
