package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"walletid/internal/identity/models"
	"walletid/pkg/platform/circuit"
	"walletid/pkg/requestcontext"
)

type fakeProducer struct {
	err     error
	calls   int
	records []*kgo.Record
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.calls++
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, len(rs))
	for i, r := range rs {
		results[i] = kgo.ProduceResult{Record: r, Err: f.err}
	}
	return results
}

type PublisherSuite struct {
	suite.Suite
	producer  *fakeProducer
	publisher *Publisher
	entries   []models.AuditEntry
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.producer = &fakeProducer{}
	var err error
	s.publisher, err = New(s.producer, "", WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1), circuit.WithCooldown(time.Hour))))
	s.Require().NoError(err)
	s.entries = []models.AuditEntry{
		{
			ID:           "a1",
			Wallet:       "0x00000000000000000000000000000000000000aa",
			FieldChanged: "twitter_handle",
			OldValue:     "old",
			NewValue:     "new",
			ChangeSource: models.SourceManual,
			Timestamp:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func (s *PublisherSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *PublisherSuite) TestNew() {
	s.Run("nil producer returns error", func() {
		_, err := New(nil, "topic")
		s.Error(err)
	})

	s.Run("empty topic uses the default", func() {
		p, err := New(&fakeProducer{}, "")
		s.Require().NoError(err)
		s.Equal(DefaultTopic, p.topic)
	})
}

func (s *PublisherSuite) TestPublish() {
	s.Run("records are keyed by wallet with a JSON event value", func() {
		ctx := requestcontext.WithRequestID(context.Background(), "req-1")

		err := s.publisher.Publish(ctx, s.entries)

		s.Require().NoError(err)
		s.Require().Len(s.producer.records, 1)
		rec := s.producer.records[0]
		s.Equal(DefaultTopic, rec.Topic)
		s.Equal(s.entries[0].Wallet, string(rec.Key))

		var event Event
		s.Require().NoError(json.Unmarshal(rec.Value, &event))
		s.Equal("twitter_handle", event.Field)
		s.Equal("new", event.NewValue)
		s.Equal(models.SourceManual, event.Source)
		s.True(s.entries[0].Timestamp.Equal(event.ChangedAt))

		s.Contains(rec.Headers, kgo.RecordHeader{Key: "request_id", Value: []byte("req-1")})
		s.Contains(rec.Headers, kgo.RecordHeader{Key: "change_source", Value: []byte(models.SourceManual)})
	})

	s.Run("empty input produces nothing", func() {
		s.NoError(s.publisher.Publish(context.Background(), nil))
		s.Zero(s.producer.calls)
	})

	s.Run("broker errors are returned and open the circuit", func() {
		brokerErr := errors.New("leader not available")
		s.producer.err = brokerErr

		s.ErrorIs(s.publisher.Publish(context.Background(), s.entries), brokerErr)
		s.ErrorIs(s.publisher.Publish(context.Background(), s.entries), brokerErr)

		err := s.publisher.Publish(context.Background(), s.entries)
		s.ErrorIs(err, ErrCircuitOpen)
		s.Equal(2, s.producer.calls)
	})
}
