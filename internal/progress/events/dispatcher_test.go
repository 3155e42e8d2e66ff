package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/2beens/coachprogress/internal/progress/events"
	"github.com/2beens/coachprogress/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []events.Event
	err       error
	closed    bool
}

func (p *recordingPublisher) Publish(_ context.Context, batch ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, batch...)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// eventLog keeps events in memory and marks them published like the postgres repo does.
type eventLog struct {
	mu        sync.Mutex
	events    []*events.Event
	published map[int64]bool
}

func newEventLog(n int) *eventLog {
	l := &eventLog{published: make(map[int64]bool)}
	for i := 1; i <= n; i++ {
		e := events.NewDayMovedEvent(events.DayMoved{UserID: "user-1", From: "a", To: "b", Moved: 1, Timestamp: time.Now()})
		e.ID = int64(i)
		l.events = append(l.events, &e)
	}
	return l
}

func (l *eventLog) PublishPending(ctx context.Context, limit int, deliver events.DeliverFunc) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pending []*events.Event
	for _, e := range l.events {
		if !l.published[e.ID] && len(pending) < limit {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := deliver(ctx, pending); err != nil {
		return 0, err
	}
	for _, e := range pending {
		l.published[e.ID] = true
	}
	return len(pending), nil
}

func (l *eventLog) unpublished() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events) - len(l.published)
}

func TestDispatcher_DispatchOnce(t *testing.T) {
	store := newEventLog(5)
	publisher := &recordingPublisher{}
	mm := metrics.NewTestManager()
	dispatcher := events.NewDispatcher(store, publisher, mm, time.Hour, 2)

	n, err := dispatcher.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, publisher.count())
	assert.Equal(t, int64(1), publisher.published[0].ID)
	assert.Equal(t, float64(2), testutil.ToFloat64(mm.CounterEventsPublished.WithLabelValues("delivered")))
	assert.Equal(t, 3, store.unpublished())
}

func TestDispatcher_FailedPublishKeepsEventsPending(t *testing.T) {
	store := newEventLog(3)
	publisher := &recordingPublisher{err: errors.New("broker down")}
	mm := metrics.NewTestManager()
	dispatcher := events.NewDispatcher(store, publisher, mm, time.Hour, 10)

	_, err := dispatcher.DispatchOnce(context.Background())
	assert.EqualError(t, err, "broker down")
	assert.Equal(t, 3, store.unpublished())
	assert.Equal(t, float64(3), testutil.ToFloat64(mm.CounterEventsPublished.WithLabelValues("failed")))

	// the next round picks them up again
	publisher.err = nil
	n, err := dispatcher.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, store.unpublished())
}

func TestDispatcher_StartDrainsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newEventLog(7)
	publisher := &recordingPublisher{}
	dispatcher := events.NewDispatcher(store, publisher, nil, 10*time.Millisecond, 3)

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)

	assert.Eventually(t, func() bool {
		return store.unpublished() == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	dispatcher.Wait()
	require.NoError(t, dispatcher.Close())
	assert.True(t, publisher.closed)
	assert.Equal(t, 7, publisher.count())
}

func TestLogPublisher(t *testing.T) {
	var publisher events.Publisher = events.LogPublisher{}
	assert.NoError(t, publisher.Publish(context.Background()))
	assert.NoError(t, publisher.Publish(context.Background(), events.NewDayMovedEvent(events.DayMoved{UserID: "u"})))
	assert.NoError(t, publisher.Close())
}
