package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/2beens/coachprogress/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = time.Second
	DefaultBatchSize    = 100

	deliverTimeout = 15 * time.Second
)

// DeliverFunc publishes a batch of stored events; an error leaves them unpublished.
type DeliverFunc func(ctx context.Context, events []*Event) error

type pendingEventsRepo interface {
	PublishPending(ctx context.Context, limit int, deliver DeliverFunc) (int, error)
}

// Dispatcher drains unpublished events from the event log to the publisher, in the
// background of the request that recorded them.
type Dispatcher struct {
	repo           pendingEventsRepo
	publisher      Publisher
	metricsManager *metrics.Manager
	pollInterval   time.Duration
	batchSize      int

	startOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(
	repo pendingEventsRepo,
	publisher Publisher,
	metricsManager *metrics.Manager,
	pollInterval time.Duration,
	batchSize int,
) *Dispatcher {
	if publisher == nil {
		publisher = LogPublisher{}
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{
		repo:           repo,
		publisher:      publisher,
		metricsManager: metricsManager,
		pollInterval:   pollInterval,
		batchSize:      batchSize,
		done:           make(chan struct{}),
	}
}

// Start runs the polling loop until ctx is done. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	started := false
	d.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(d.done)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		// keep draining while full batches come back
		for {
			n, err := d.DispatchOnce(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Errorf("events dispatcher: %s", err)
				}
				break
			}
			if n < d.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce publishes at most one batch of pending events and returns its size.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	n, err := d.repo.PublishPending(ctx, d.batchSize, func(ctx context.Context, pending []*Event) error {
		batch := make([]Event, 0, len(pending))
		for _, e := range pending {
			batch = append(batch, *e)
		}
		if err := d.publisher.Publish(ctx, batch...); err != nil {
			d.count("failed", len(batch))
			return err
		}
		d.count("delivered", len(batch))
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Tracef("events dispatcher: published [%d] events", n)
	}
	return n, nil
}

func (d *Dispatcher) count(result string, n int) {
	if d.metricsManager == nil {
		return
	}
	d.metricsManager.CounterEventsPublished.WithLabelValues(result).Add(float64(n))
}

// Wait blocks until a started dispatcher stopped.
func (d *Dispatcher) Wait() {
	<-d.done
}

// Close releases the publisher. Call it after the loop stopped.
func (d *Dispatcher) Close() error {
	return d.publisher.Close()
}
