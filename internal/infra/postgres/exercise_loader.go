package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
)

// ExerciseLoader serves exercise templates from simulator_exercises. Stored documents go
// through the same normalization as the embedded catalog.
type ExerciseLoader struct {
	pool *pgxpool.Pool
}

func NewExerciseLoader(pool *pgxpool.Pool) *ExerciseLoader {
	return &ExerciseLoader{pool: pool}
}

func (l *ExerciseLoader) ListExercises(ctx context.Context, simulatorType domain.SimulatorType) ([]domain.Exercise, error) {
	query := `SELECT data FROM simulator_exercises ORDER BY id`
	args := []interface{}{}
	if simulatorType != "" {
		query = `SELECT data FROM simulator_exercises WHERE simulator_type=$1 ORDER BY id`
		args = append(args, string(simulatorType))
	}
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	var out []domain.Exercise
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		ex, err := decodeExercise(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	return out, nil
}

func (l *ExerciseLoader) GetExercise(ctx context.Context, exerciseID string) (domain.Exercise, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM simulator_exercises WHERE id=$1`, exerciseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exercise{}, domain.ErrExerciseNotFound
	}
	if err != nil {
		return domain.Exercise{}, fmt.Errorf("load exercise: %w", err)
	}
	return decodeExercise(raw)
}

// SaveExercise normalizes and upserts a template.
func (l *ExerciseLoader) SaveExercise(ctx context.Context, ex domain.Exercise) error {
	ex, err := memory.NormalizeExercise(ex)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal exercise: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
INSERT INTO simulator_exercises (id, simulator_type, data, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET simulator_type = EXCLUDED.simulator_type, data = EXCLUDED.data, updated_at = now()`,
		ex.ExerciseID, string(ex.SimulatorType), raw)
	if err != nil {
		return fmt.Errorf("save exercise: %w", err)
	}
	return nil
}

func decodeExercise(raw []byte) (domain.Exercise, error) {
	var ex domain.Exercise
	if err := json.Unmarshal(raw, &ex); err != nil {
		return domain.Exercise{}, fmt.Errorf("unmarshal exercise: %w", err)
	}
	return memory.NormalizeExercise(ex)
}
