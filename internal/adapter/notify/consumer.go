package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/storefront/internal/tracing"
)

const deliveryTimeout = 10 * time.Second

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type DeliveryRecorder interface {
	DeliveryCompleted(err error)
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

// Consumer reads confirmations off the topic and hands them to a pool of
// delivery workers. Offsets are committed once a message has been handled,
// whether or not the mail server accepted it.
type Consumer struct {
	log      *slog.Logger
	reader   MessageReader
	mailer   Mailer
	recorder DeliveryRecorder
	tracer   trace.Tracer
	workers  int
	queue    chan kafka.Message
}

func NewConsumer(log *slog.Logger, reader MessageReader, mailer Mailer, recorder DeliveryRecorder, workers, queueSize int) *Consumer {
	return &Consumer{
		log:      log,
		reader:   reader,
		mailer:   mailer,
		recorder: recorder,
		tracer:   otel.Tracer("notifier-consumer"),
		workers:  workers,
		queue:    make(chan kafka.Message, queueSize),
	}
}

// Run blocks until ctx is cancelled or the reader fails, then drains the
// queue and waits for the workers.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.workerLoop(ctx, id)
		}(i)
	}
	c.log.Info("started delivery workers", "count", c.workers)

	err := c.fetchLoop(ctx)
	close(c.queue)
	wg.Wait()
	c.log.Info("delivery workers stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) fetchLoop(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		select {
		case c.queue <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) workerLoop(ctx context.Context, id int) {
	for msg := range c.queue {
		c.deliver(ctx, id, msg)

		// commit even if the parent context is done, the message was handled
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			c.log.Error("commit failed", "worker", id, "offset", msg.Offset, "err", err)
		}
		cancel()
	}
}

func (c *Consumer) deliver(ctx context.Context, id int, msg kafka.Message) {
	msgCtx := tracing.ExtractHeaders(context.WithoutCancel(ctx), msg.Headers)
	msgCtx, cancel := context.WithTimeout(msgCtx, deliveryTimeout)
	defer cancel()
	msgCtx, span := c.tracer.Start(msgCtx, "DeliverConfirmation")
	defer span.End()

	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		c.log.Error("unmarshal failed", "worker", id, "offset", msg.Offset, "err", err)
		return
	}

	err := c.mailer.Send(msgCtx, m)
	if c.recorder != nil {
		c.recorder.DeliveryCompleted(err)
	}
	if err != nil {
		span.RecordError(err)
		c.log.Error("confirmation delivery failed", "worker", id, "order_id", m.OrderID, "err", err)
		return
	}
	c.log.Info("confirmation delivered", "worker", id, "order_id", m.OrderID, "to", m.To)
}
