package details

import (
	"context"
	"fmt"

	"github.com/2beens/coachprogress/internal/progress"
	"github.com/2beens/coachprogress/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// CatalogRepo reads exercise and meal details from the catalog tables.
type CatalogRepo struct {
	db *pgxpool.Pool
}

func NewCatalogRepo(db *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) Details(ctx context.Context, category progress.Category, ids []int64) (_ map[int64]progress.ItemDetail, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.details.catalog")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("category", category.String()),
		attribute.Int("ids", len(ids)),
	)

	found := make(map[int64]progress.ItemDetail, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	switch category {
	case progress.CategoryFitness:
		return found, r.exercises(ctx, ids, found)
	case progress.CategoryNutrition:
		return found, r.meals(ctx, ids, found)
	default:
		return found, nil
	}
}

func (r *CatalogRepo) exercises(ctx context.Context, ids []int64, found map[int64]progress.ItemDetail) error {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, COALESCE(video_url, ''), calories, duration
		FROM exercise_catalog
		WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("query exercise catalog: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d := progress.ItemDetail{Category: progress.CategoryFitness}
		if err := rows.Scan(&d.ItemID, &d.Name, &d.VideoURL, &d.Calories, &d.Duration); err != nil {
			return fmt.Errorf("scan exercise: %w", err)
		}
		found[d.ItemID] = d
	}
	return rows.Err()
}

func (r *CatalogRepo) meals(ctx context.Context, ids []int64, found map[int64]progress.ItemDetail) error {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, calories, protein, carbs, fat, COALESCE(recipe, ''), COALESCE(ingredients, '{}')
		FROM meal_catalog
		WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("query meal catalog: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d := progress.ItemDetail{Category: progress.CategoryNutrition}
		if err := rows.Scan(
			&d.ItemID, &d.Name, &d.Calories, &d.Protein, &d.Carbs, &d.Fat, &d.Recipe, &d.Ingredients,
		); err != nil {
			return fmt.Errorf("scan meal: %w", err)
		}
		found[d.ItemID] = d
	}
	return rows.Err()
}
