// Package changefeed publishes committed identity field changes to Kafka so
// downstream consumers can follow the audit trail without polling.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"walletid/internal/identity/models"
	"walletid/pkg/platform/circuit"
	"walletid/pkg/requestcontext"
)

// DefaultTopic carries one record per changed field, keyed by wallet.
const DefaultTopic = "identity.changes"

const defaultProduceTimeout = 5 * time.Second

// ErrCircuitOpen is returned while the broker is considered unhealthy.
var ErrCircuitOpen = errors.New("change feed circuit open")

// Producer is the part of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Event is the JSON value of a change feed record.
type Event struct {
	ID        string    `json:"id"`
	Wallet    string    `json:"wallet"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	Source    string    `json:"source"`
	ChangedAt time.Time `json:"changed_at"`
}

func eventFrom(e models.AuditEntry) Event {
	return Event{
		ID:        e.ID,
		Wallet:    e.Wallet,
		Field:     e.FieldChanged,
		OldValue:  e.OldValue,
		NewValue:  e.NewValue,
		Source:    e.ChangeSource,
		ChangedAt: e.Timestamp,
	}
}

type Publisher struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		if b != nil {
			p.breaker = b
		}
	}
}

// WithTimeout bounds each produce call.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func New(producer Producer, topic string, opts ...Option) (*Publisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	p := &Publisher{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("identity-changefeed"),
		timeout:  defaultProduceTimeout,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish produces one record per entry and waits for the broker to
// acknowledge them. While the breaker is open it fails fast with
// ErrCircuitOpen.
func (p *Publisher) Publish(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if !p.breaker.Allow() {
		return ErrCircuitOpen
	}

	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		value, err := json.Marshal(eventFrom(e))
		if err != nil {
			return fmt.Errorf("marshal change event: %w", err)
		}
		record := &kgo.Record{
			Topic: p.topic,
			Key:   []byte(e.Wallet),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "change_source", Value: []byte(e.ChangeSource)},
			},
		}
		if reqID := requestcontext.RequestID(ctx); reqID != "" {
			record.Headers = append(record.Headers, kgo.RecordHeader{Key: "request_id", Value: []byte(reqID)})
		}
		records = append(records, record)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "change feed circuit opened", "topic", p.topic, "error", err)
		}
		return fmt.Errorf("produce identity changes: %w", err)
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "change feed circuit closed", "topic", p.topic)
	}
	return nil
}
