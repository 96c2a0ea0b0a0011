package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/tracing"
)

var errNoRecipient = errors.New("no recipient address")

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// KafkaNotifier publishes rendered confirmations, keyed by order ID, for the
// notifier service to deliver.
type KafkaNotifier struct {
	log      *slog.Logger
	writer   MessageWriter
	renderer *Renderer
}

func NewKafkaNotifier(log *slog.Logger, writer MessageWriter, renderer *Renderer) *KafkaNotifier {
	return &KafkaNotifier{log: log, writer: writer, renderer: renderer}
}

func (n *KafkaNotifier) SendOrderConfirmation(ctx context.Context, email string, order domain.Order) error {
	if email == "" {
		return errNoRecipient
	}

	msg, err := n.renderer.Render(email, order)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal confirmation: %w", err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(order.ID),
		Value:   data,
		Headers: tracing.InjectHeaders(ctx, nil),
		Time:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish confirmation: %w", err)
	}

	n.log.Debug("confirmation published", "order_id", order.ID)
	return nil
}

// LogNotifier writes confirmations to the log. Used when no broker is configured.
type LogNotifier struct {
	log      *slog.Logger
	renderer *Renderer
}

func NewLogNotifier(log *slog.Logger, renderer *Renderer) *LogNotifier {
	return &LogNotifier{log: log, renderer: renderer}
}

func (n *LogNotifier) SendOrderConfirmation(_ context.Context, email string, order domain.Order) error {
	if email == "" {
		return errNoRecipient
	}
	msg, err := n.renderer.Render(email, order)
	if err != nil {
		return err
	}
	n.log.Info("order confirmation", "order_id", msg.OrderID, "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}
