package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/coachprogress/internal/telemetry/tracing"
	"github.com/2beens/coachprogress/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrDuplicateEvent = errors.New("event already recorded")

type ListParams struct {
	UserID string
	Type   *EventType
	Limit  int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, event Event) (_ *Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.events.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("type", event.Type.String()))

	err = r.db.QueryRow(ctx, `
		INSERT INTO progress_event (uuid, type, user_id, data, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;
	`,
		event.UUID,
		event.Type,
		event.UserID,
		event.Data,
		event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEvent, event.UUID)
		}
		return nil, err
	}
	return &event, nil
}

// List returns the user's most recent events first.
func (r *Repo) List(ctx context.Context, params ListParams) (_ []*Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.events.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	if params.Type != nil {
		span.SetAttributes(attribute.String("type", string(*params.Type)))
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, uuid, type, user_id, data, timestamp
		FROM progress_event
		WHERE user_id = $1
		  AND ($2::text IS NULL OR type = $2)
		ORDER BY timestamp DESC, id DESC
		LIMIT $3;
	`,
		params.UserID,
		params.Type,
		params.Limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// PublishPending locks up to limit unpublished events, oldest first, and hands them to
// deliver. They are marked published only when deliver succeeds; rows locked by another
// instance are skipped.
func (r *Repo) PublishPending(ctx context.Context, limit int, deliver DeliverFunc) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.events.publishpending")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, uuid, type, user_id, data, timestamp
		FROM progress_event
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED;
	`, limit)
	if err != nil {
		return 0, err
	}
	pending, err := scanEvents(rows)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("pending", len(pending)))
	if len(pending) == 0 {
		return 0, nil
	}

	if err = deliver(ctx, pending); err != nil {
		return 0, fmt.Errorf("deliver [%d] events: %w", len(pending), err)
	}

	ids := make([]int64, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.ID)
	}
	if _, err = tx.Exec(ctx, `
		UPDATE progress_event SET published_at = NOW() WHERE id = ANY($1);
	`, ids); err != nil {
		return 0, err
	}
	return len(pending), nil
}

func scanEvents(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event := &Event{}
		if err := rows.Scan(&event.ID, &event.UUID, &event.Type, &event.UserID, &event.Data, &event.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *Repo) Count(ctx context.Context, userID string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.events.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM progress_event WHERE user_id = $1;
	`, userID).Scan(&count)
	if err != nil {
		return -1, err
	}
	return count, nil
}
