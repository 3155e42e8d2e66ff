package events

import (
	"context"
	"fmt"

	"github.com/2beens/coachprogress/internal/telemetry/tracing"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

//go:generate mockgen -source=$GOFILE -destination=service_mocks_test.go -package=events_test

type eventsRepo interface {
	Add(ctx context.Context, event Event) (*Event, error)
	List(ctx context.Context, params ListParams) ([]*Event, error)
	Count(ctx context.Context, userID string) (int, error)
}

type Service struct {
	repo eventsRepo
}

func NewService(repo eventsRepo) *Service {
	return &Service{
		repo: repo,
	}
}

// Record appends the event to the event log. Publishing is left to the Dispatcher,
// so a slow or unavailable broker never holds up the request that caused the event.
func (s *Service) Record(ctx context.Context, event Event) (_ *Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.progress.events.record")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if !event.Type.IsValid() {
		return nil, fmt.Errorf("invalid event type: %s", event.Type)
	}

	added, err := s.repo.Add(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("add %s event: %w", event.Type, err)
	}
	return added, nil
}

func (s *Service) List(ctx context.Context, params ListParams) (_ []*Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.progress.events.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	switch {
	case params.Limit <= 0:
		params.Limit = defaultListLimit
	case params.Limit > maxListLimit:
		params.Limit = maxListLimit
	}

	events, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *Service) Count(ctx context.Context, userID string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.progress.events.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	count, err := s.repo.Count(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}
