package results

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists test results and serves aggregate stats.
type Store interface {
	SaveResult(ctx context.Context, result TestResult) error
	UserStats(ctx context.Context, userID string) (UserStats, error)
	RecentResults(ctx context.Context, userID string, limit int) ([]TestResult, error)
}

// PgxStore is the Postgres-backed Store.
type PgxStore struct {
	pool *pgxpool.Pool
}

func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

// EnsureSchema creates the results table if it does not exist yet. Placement
// and authenticity are nullable: solo tests have neither.
func (s *PgxStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS test_results (
            id            UUID PRIMARY KEY,
            user_id       TEXT NOT NULL,
            wpm           INT NOT NULL,
            accuracy      INT NOT NULL,
            errors        INT NOT NULL,
            time_elapsed  DOUBLE PRECISION NOT NULL,
            test_type     TEXT NOT NULL,
            placement     INT,
            authenticity  JSONB,
            created_at    TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS test_results_user_idx ON test_results (user_id, created_at DESC);
    `)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PgxStore) SaveResult(ctx context.Context, result TestResult) error {
	var authenticity []byte
	if result.Authenticity != nil {
		var err error
		authenticity, err = json.Marshal(result.Authenticity)
		if err != nil {
			return fmt.Errorf("marshal authenticity: %w", err)
		}
	}

	var placement *int
	if result.Placement > 0 {
		placement = &result.Placement
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO test_results (
            id, user_id, wpm, accuracy, errors, time_elapsed,
            test_type, placement, authenticity, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `,
		result.ID, result.UserID, result.WPM, result.Accuracy, result.Errors,
		result.TimeElapsed, result.TestType, placement, authenticity, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert test result: %w", err)
	}
	return nil
}

func (s *PgxStore) UserStats(ctx context.Context, userID string) (UserStats, error) {
	var stats UserStats
	err := s.pool.QueryRow(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(time_elapsed), 0),
            COALESCE(MAX(wpm), 0),
            COALESCE(ROUND(AVG(wpm)), 0),
            COALESCE(MAX(accuracy), 0),
            COALESCE(ROUND(AVG(accuracy)), 0),
            COALESCE(SUM(ROUND(wpm * time_elapsed / 60)), 0),
            COALESCE(SUM(errors), 0),
            COUNT(*) FILTER (WHERE test_type = $2),
            COUNT(*) FILTER (WHERE test_type = $2 AND placement = 1)
        FROM test_results
        WHERE user_id = $1
    `, userID, TestTypeMultiplayer).Scan(
		&stats.TotalTests,
		&stats.TotalTime,
		&stats.BestWPM,
		&stats.AverageWPM,
		&stats.BestAccuracy,
		&stats.AverageAccuracy,
		&stats.TotalWords,
		&stats.TotalErrors,
		&stats.RacesPlayed,
		&stats.RacesWon,
	)
	if err != nil {
		return UserStats{}, fmt.Errorf("query user stats: %w", err)
	}
	return stats, nil
}

func (s *PgxStore) RecentResults(ctx context.Context, userID string, limit int) ([]TestResult, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, user_id, wpm, accuracy, errors, time_elapsed,
               test_type, COALESCE(placement, 0), authenticity, created_at
        FROM test_results
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent results: %w", err)
	}
	defer rows.Close()

	var out []TestResult
	for rows.Next() {
		var r TestResult
		var authenticity []byte
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.WPM, &r.Accuracy, &r.Errors, &r.TimeElapsed,
			&r.TestType, &r.Placement, &authenticity, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan test result: %w", err)
		}
		if len(authenticity) > 0 {
			if err := json.Unmarshal(authenticity, &r.Authenticity); err != nil {
				return nil, fmt.Errorf("unmarshal authenticity: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
