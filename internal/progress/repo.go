package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/coachprogress/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultFindLimit = 50

	// activity_id is TEXT: historical rows hold "12", "12.0" or " 12 ".
	numericActivityExpr = `CASE WHEN activity_id ~ '^\s*-?[0-9]+(\.0+)?\s*$' THEN trim(activity_id)::numeric END`
)

// RangeFilter selects the progress rows of one user and activity (or enrollment) in [From, To).
type RangeFilter struct {
	UserID       string
	ActivityID   *int64
	EnrollmentID *int64
	From         time.Time
	To           time.Time
}

// MoveParams reassigns a user's progress of one date to another date.
type MoveParams struct {
	UserID       string
	ActivityID   *int64
	EnrollmentID *int64
	From         time.Time
	To           time.Time
}

// SeedRow is one progress row to materialize on enrollment start.
type SeedRow struct {
	Date    time.Time
	Pending json.RawMessage
	Info    json.RawMessage
}

type SeedParams struct {
	EnrollmentID int64
	UserID       string
	ActivityID   int64
	Table        Table
	StartDate    time.Time
	Rows         []SeedRow
}

// Repo is the Postgres store of progress rows, enrollments and activities.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// table names are never taken from input, only from the Table constants
func selectColumns(t Table) string {
	return fmt.Sprintf(
		`id, user_id, activity_id, enrollment_id, date, pending, completed, %s, version, updated_at`,
		t.infoColumn(),
	)
}

func scanRecord(row pgx.Row, t Table) (Record, error) {
	rec := Record{Table: t}
	var pending, completed, info []byte
	if err := row.Scan(
		&rec.ID, &rec.UserID, &rec.ActivityID, &rec.EnrollmentID, &rec.Date,
		&pending, &completed, &info, &rec.Version, &rec.UpdatedAt,
	); err != nil {
		return Record{}, err
	}
	rec.Pending = pending
	rec.Completed = completed
	rec.Info = info
	return rec, nil
}

func (r *Repo) queryRecords(ctx context.Context, t Table, query string, args ...any) ([]Record, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows, t)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// FindRecords returns the rows of one user and date matching f, most recent first.
func (r *Repo) FindRecords(ctx context.Context, t Table, f Filter) (_ []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.find")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("table", string(t)),
		attribute.String("date", f.Date.Format(time.DateOnly)),
	)

	limit := f.Limit
	if limit <= 0 {
		limit = defaultFindLimit
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE user_id = $1
		  AND date = $2
		  AND ($3::bigint IS NULL OR enrollment_id = $3)
		  AND ($4::bigint IS NULL OR %s = $4::numeric)
		  AND ($5::text IS NULL OR activity_id = $5)
		ORDER BY id DESC
		LIMIT $6;
	`, selectColumns(t), t, numericActivityExpr)

	return r.queryRecords(ctx, t, query,
		f.UserID, f.Date, f.EnrollmentID, f.ActivityNum, f.ActivityText, limit,
	)
}

// ListRecords returns the rows of rf ordered by date.
func (r *Repo) ListRecords(ctx context.Context, t Table, rf RangeFilter) (_ []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("table", string(t)))

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE user_id = $1
		  AND date >= $2 AND date < $3
		  AND ($4::bigint IS NULL OR enrollment_id = $4)
		  AND ($5::bigint IS NULL OR %s = $5::numeric)
		ORDER BY date, id;
	`, selectColumns(t), t, numericActivityExpr)

	return r.queryRecords(ctx, t, query,
		rf.UserID, rf.From, rf.To, rf.EnrollmentID, rf.ActivityID,
	)
}

// UpdateContainers writes both containers of rec, provided the row is still at rec.Version.
func (r *Repo) UpdateContainers(ctx context.Context, rec Record) (_ Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("table", string(rec.Table)),
		attribute.Int64("record.id", rec.ID),
		attribute.Int64("record.version", rec.Version),
	)

	if _, ok := TableFor(rec.Table.Category()); !ok {
		return Record{}, fmt.Errorf("%w: unknown table [%s]", ErrInvalidInput, rec.Table)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET pending = $1, completed = $2, updated_at = now(), version = version + 1
		WHERE id = $3 AND user_id = $4 AND version = $5
		RETURNING version, updated_at;
	`, rec.Table)

	err = r.db.QueryRow(ctx, query,
		[]byte(rec.Pending), []byte(rec.Completed), rec.ID, rec.UserID, rec.Version,
	).Scan(&rec.Version, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrVersionConflict
		}
		return Record{}, err
	}
	return rec, nil
}

// MoveDate reassigns all progress rows of p.From to p.To in both tables, in one transaction.
func (r *Repo) MoveDate(ctx context.Context, p MoveParams) (_ int64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.movedate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("from", p.From.Format(time.DateOnly)),
		attribute.String("to", p.To.Format(time.DateOnly)),
	)

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

	scope := fmt.Sprintf(`user_id = $1 AND date = $2
		  AND ($3::bigint IS NULL OR enrollment_id = $3)
		  AND ($4::bigint IS NULL OR %s = $4::numeric)`, numericActivityExpr)

	for _, t := range allTables {
		var occupied int
		err = tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s;`, t, scope),
			p.UserID, p.To, p.EnrollmentID, p.ActivityID,
		).Scan(&occupied)
		if err != nil {
			return 0, err
		}
		if occupied > 0 {
			return 0, ErrTargetDateOccupied
		}
	}

	var moved int64
	for _, t := range allTables {
		tag, execErr := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET date = $5, updated_at = now(), version = version + 1 WHERE %s;`, t, scope),
			p.UserID, p.From, p.EnrollmentID, p.ActivityID, p.To,
		)
		if execErr != nil {
			err = execErr
			return 0, err
		}
		moved += tag.RowsAffected()
	}

	return moved, nil
}

func (r *Repo) GetEnrollment(ctx context.Context, id int64) (_ *Enrollment, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.enrollment.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("enrollment.id", id))

	e := &Enrollment{}
	var status string
	err = r.db.QueryRow(ctx, `
		SELECT id, user_id, activity_id, start_date, expiration_date, status
		FROM enrollments
		WHERE id = $1;
	`, id).Scan(&e.ID, &e.UserID, &e.ActivityID, &e.StartDate, &e.ExpirationDate, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, err
	}
	e.Status = ParseEnrollmentStatus(status)
	return e, nil
}

func (r *Repo) GetActivity(ctx context.Context, id int64) (_ *Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.activity.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("activity.id", id))

	a := &Activity{}
	var category string
	var plan []byte
	err = r.db.QueryRow(ctx, `
		SELECT id, category, title, plan, duration_weeks
		FROM activities
		WHERE id = $1;
	`, id).Scan(&a.ID, &category, &a.Title, &plan, &a.DurationWeeks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	a.Category = ParseCategory(category)
	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &a.Plan); err != nil {
			return nil, fmt.Errorf("decode plan of activity [%d]: %w", id, err)
		}
	}
	return a, nil
}

// SeedEnrollment sets the enrollment start date, only if still unset, and inserts the
// missing progress rows, all in one transaction. It returns the number of inserted rows.
func (r *Repo) SeedEnrollment(ctx context.Context, p SeedParams) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.progress.seed")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.Int64("enrollment.id", p.EnrollmentID),
		attribute.Int("rows", len(p.Rows)),
	)

	if _, ok := TableFor(p.Table.Category()); !ok {
		return 0, fmt.Errorf("%w: unknown table [%s]", ErrInvalidInput, p.Table)
	}

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

	tag, err := tx.Exec(ctx, `
		UPDATE enrollments SET start_date = $2
		WHERE id = $1 AND start_date IS NULL;
	`, p.EnrollmentID, p.StartDate)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		err = ErrEnrollmentAlreadyStarted
		return 0, err
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (user_id, activity_id, enrollment_id, date, pending, completed, %s)
		SELECT $1::text, $2::text, $3::bigint, $4::date, $5::jsonb, '{}'::jsonb, $6::jsonb
		WHERE NOT EXISTS (
			SELECT 1 FROM %s WHERE user_id = $1 AND enrollment_id = $3 AND date = $4
		);
	`, p.Table, p.Table.infoColumn(), p.Table)

	batch := &pgx.Batch{}
	activityID := fmt.Sprintf("%d", p.ActivityID)
	for _, row := range p.Rows {
		batch.Queue(insert,
			p.UserID, activityID, p.EnrollmentID, row.Date, []byte(row.Pending), []byte(row.Info),
		)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range p.Rows {
		rowTag, execErr := br.Exec()
		if execErr != nil {
			_ = br.Close()
			err = execErr
			return 0, err
		}
		inserted += int(rowTag.RowsAffected())
	}
	if err = br.Close(); err != nil {
		return 0, err
	}

	return inserted, nil
}
