package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleOrder() domain.Order {
	return domain.NewOrder("order-1", "user-1", []domain.OrderLine{
		{ProductID: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("10")},
		{ProductID: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("3.5")},
	}, "1 Main St <b>", nil, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
}

func TestRenderer_Render(t *testing.T) {
	msg, err := NewRenderer().Render("u1@example.com", sampleOrder())
	require.NoError(t, err)

	assert.Equal(t, "order-1", msg.OrderID)
	assert.Equal(t, "u1@example.com", msg.To)
	assert.Contains(t, msg.Subject, "order-1")
	assert.Contains(t, msg.Text, "Total: 23.50")
	assert.Contains(t, msg.Text, "@ 10.00  = 20.00")
	assert.Contains(t, msg.HTML, "<strong>23.50</strong>")
	assert.Contains(t, msg.HTML, "1 Main St &lt;b&gt;", "html output is escaped")
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestKafkaNotifier_Publishes(t *testing.T) {
	w := &recordingWriter{}
	n := NewKafkaNotifier(discardLogger(), w, NewRenderer())

	require.NoError(t, n.SendOrderConfirmation(context.Background(), "u1@example.com", sampleOrder()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-1", string(w.msgs[0].Key))

	var msg Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &msg))
	assert.Equal(t, "u1@example.com", msg.To)
	assert.Contains(t, msg.Text, "23.50")
}

func TestKafkaNotifier_Errors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	n := NewKafkaNotifier(discardLogger(), w, NewRenderer())

	err := n.SendOrderConfirmation(context.Background(), "u1@example.com", sampleOrder())
	assert.ErrorContains(t, err, "broker down")

	err = n.SendOrderConfirmation(context.Background(), "", sampleOrder())
	assert.ErrorIs(t, err, errNoRecipient)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)), NewRenderer())

	require.NoError(t, n.SendOrderConfirmation(context.Background(), "u1@example.com", sampleOrder()))
	assert.Contains(t, buf.String(), `"order_id":"order-1"`)
}

func TestSMTPMailer_Compose(t *testing.T) {
	var (
		gotTo   []string
		gotBody []byte
	)
	m := NewSMTPMailer("mail:25", "orders@example.com", nil)
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "mail:25", addr)
		assert.Equal(t, "orders@example.com", from)
		gotTo, gotBody = to, msg
		return nil
	}

	msg, err := NewRenderer().Render("u1@example.com", sampleOrder())
	require.NoError(t, err)
	require.NoError(t, m.Send(context.Background(), msg))

	assert.Equal(t, []string{"u1@example.com"}, gotTo)
	body := string(gotBody)
	assert.Contains(t, body, "Subject: Order confirmation order-1\r\n")
	assert.Contains(t, body, "multipart/alternative")
	assert.Contains(t, body, "text/plain; charset=utf-8")
	assert.Contains(t, body, "text/html; charset=utf-8")
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	m := NewSMTPMailer("mail:25", "orders@example.com", nil)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Message{To: "x@example.com"}), context.Canceled)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	fail string
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.OrderID == m.fail {
		return errors.New("mailbox full")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type countingRecorder struct {
	mu         sync.Mutex
	sent, fail int
}

func (r *countingRecorder) DeliveryCompleted(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.fail++
		return
	}
	r.sent++
}

func TestConsumer_DeliversAndCommits(t *testing.T) {
	reader := &fakeReader{}
	for i, id := range []string{"o1", "o2", "o3"} {
		data, _ := json.Marshal(Message{OrderID: id, To: id + "@example.com"})
		reader.msgs = append(reader.msgs, kafka.Message{Offset: int64(i), Value: data})
	}
	reader.msgs = append(reader.msgs, kafka.Message{Offset: 3, Value: []byte("{broken")})

	mailer := &fakeMailer{fail: "o2"}
	rec := &countingRecorder{}
	c := NewConsumer(discardLogger(), reader, mailer, rec, 2, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Len(t, mailer.sent, 2)
	assert.Equal(t, 2, rec.sent)
	assert.Equal(t, 1, rec.fail)
	assert.True(t, reader.closed)
}
