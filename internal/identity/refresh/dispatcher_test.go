package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"walletid/internal/identity/metrics"
)

type fakeSource struct {
	wallets []string
	err     error
	calls   atomic.Int32
	limit   int
	minLC   int
}

func (f *fakeSource) GetRefreshCandidates(_ context.Context, limit, minLookupCount int) ([]string, error) {
	f.calls.Add(1)
	f.limit, f.minLC = limit, minLookupCount
	return f.wallets, f.err
}

// fakeQueue mimics the claim semantics of RedisQueue.
type fakeQueue struct {
	claimed map[string]bool
	items   []string
	err     error
}

func (f *fakeQueue) Enqueue(_ context.Context, wallets []string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.claimed == nil {
		f.claimed = map[string]bool{}
	}
	var out []string
	for _, w := range wallets {
		if f.claimed[w] {
			continue
		}
		f.claimed[w] = true
		out = append(out, w)
	}
	f.items = append(f.items, out...)
	return out, nil
}

type DispatcherSuite struct {
	suite.Suite
	source  *fakeSource
	queue   *fakeQueue
	metrics *metrics.Metrics
	d       *Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.source = &fakeSource{wallets: []string{"0xa", "0xb"}}
	s.queue = &fakeQueue{}
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	d, err := NewDispatcher(s.source, s.queue, Config{Limit: 25, MinLookupCount: 3}, WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.d = d
}

func (s *DispatcherSuite) TestNewDispatcherRequiresCollaborators() {
	_, err := NewDispatcher(nil, s.queue, Config{})
	s.Error(err)
	_, err = NewDispatcher(s.source, nil, Config{})
	s.Error(err)
}

func (s *DispatcherSuite) TestRunOnce() {
	s.Run("enqueues candidates with configured filters", func() {
		n, err := s.d.RunOnce(context.Background())
		s.Require().NoError(err)
		s.Equal(2, n)
		s.Equal(25, s.source.limit)
		s.Equal(3, s.source.minLC)
		s.Equal([]string{"0xa", "0xb"}, s.queue.items)
		s.InDelta(2, testutil.ToFloat64(s.metrics.RefreshEnqueued), 0)
	})

	s.Run("claimed wallets are not enqueued twice", func() {
		s.source.wallets = []string{"0xa", "0xc"}
		n, err := s.d.RunOnce(context.Background())
		s.Require().NoError(err)
		s.Equal(1, n)
		s.Equal([]string{"0xa", "0xb", "0xc"}, s.queue.items)
	})
}

func (s *DispatcherSuite) TestRunOnceNoCandidates() {
	s.source.wallets = nil
	n, err := s.d.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
	s.Empty(s.queue.items)
}

func (s *DispatcherSuite) TestRunOnceErrors() {
	s.Run("source error", func() {
		s.source.err = errors.New("db down")
		_, err := s.d.RunOnce(context.Background())
		s.Error(err)
		s.source.err = nil
	})

	s.Run("queue error", func() {
		s.queue.err = errors.New("redis down")
		_, err := s.d.RunOnce(context.Background())
		s.Error(err)
		s.queue.err = nil
	})
}

func (s *DispatcherSuite) TestRunStopsOnCancel() {
	d, err := NewDispatcher(s.source, s.queue, Config{Interval: 5 * time.Millisecond})
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	s.Eventually(func() bool { return s.source.calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("Run did not return after cancel")
	}
}
