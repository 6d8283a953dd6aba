package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"nutriscan/internal/domain"
	"nutriscan/internal/infra"
	"nutriscan/internal/sqlinline"
)

// ResultRepositoryPG mirrors dish results into the nutrition_results table,
// one row per dish and pipeline mode.
type ResultRepositoryPG struct {
	sql   infra.SQLExecutor
	mode  string
	model string
	runID uuid.UUID
}

// NewResultRepository constructs a repository that tags every row with the
// pipeline mode, model and batch run id.
func NewResultRepository(sql infra.SQLExecutor, mode, model string, runID uuid.UUID) *ResultRepositoryPG {
	return &ResultRepositoryPG{sql: sql, mode: mode, model: model, runID: runID}
}

// EnsureSchema creates the results table when it does not exist.
func (r *ResultRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QCreateNutritionResults); err != nil {
		return fmt.Errorf("repo: create nutrition_results: %w", err)
	}
	return nil
}

// Save upserts res. A rerun replaces the previous row for the same dish.
func (r *ResultRepositoryPG) Save(ctx context.Context, res domain.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("%w: repo: encode result: %w", domain.ErrWrite, err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QUpsertNutritionResult,
		res.DishID,
		r.mode,
		r.runID.String(),
		r.model,
		payload,
		res.TotalCalories,
		res.TotalCarbohydrates,
		res.ElapsedTime,
	)
	if err != nil {
		return fmt.Errorf("%w: repo: upsert result: %w", domain.ErrWrite, err)
	}
	return nil
}

// Discard deletes the row for dishID in this repository's mode.
func (r *ResultRepositoryPG) Discard(ctx context.Context, dishID domain.DishID) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteNutritionResult, dishID, r.mode); err != nil {
		return fmt.Errorf("repo: delete result: %w", err)
	}
	return nil
}
