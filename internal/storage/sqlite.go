// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"glucose-engine/internal/models"
)

// SQLiteStorage persists predictions and their corrections. Stored
// predictions let a later correction be matched back to the value the
// engine forecast for that offset.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// NewMemoryStorage opens an in-memory database. The pool is pinned to
// one connection because each sqlite :memory: connection is a separate
// database.
func NewMemoryStorage() (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        total_carbs REAL NOT NULL,
        insulin_dose REAL NOT NULL,
        current_bg REAL NOT NULL,
        gi_value REAL,
        activity_level TEXT NOT NULL,
        result_json TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS corrections (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        prediction_id TEXT,
        prediction_time_minutes INTEGER,
        predicted_value REAL NOT NULL,
        actual_value REAL NOT NULL,
        difference REAL NOT NULL,
        measured_at DATETIME NOT NULL,
        source TEXT NOT NULL,
        note TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions(user_id, created_at);
    CREATE INDEX IF NOT EXISTS idx_corrections_user ON corrections(user_id, created_at);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) SavePrediction(ctx context.Context, userID string, req *models.PredictionRequest, result *models.PredictionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	var giValue sql.NullFloat64
	if req.GIValue != nil {
		giValue = sql.NullFloat64{Float64: *req.GIValue, Valid: true}
	}

	activity := req.ActivityLevel
	if activity == "" {
		activity = models.ActivitySedentary
	}

	query := `
        INSERT INTO predictions (id, user_id, total_carbs, insulin_dose, current_bg, gi_value, activity_level, result_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = s.db.ExecContext(ctx, query,
		result.PredictionID, userID, req.TotalCarbs, req.InsulinDose, req.CurrentBG,
		giValue, string(activity), string(resultJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) GetPrediction(ctx context.Context, userID, predictionID string) (*models.PredictionResult, error) {
	query := `
        SELECT result_json FROM predictions
        WHERE id = ? AND user_id = ?
    `

	var resultJSON string
	err := s.db.QueryRowContext(ctx, query, predictionID, userID).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prediction %s: %w", predictionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction: %w", err)
	}

	var result models.PredictionResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prediction %s: %w", predictionID, err)
	}
	return &result, nil
}

func (s *SQLiteStorage) SaveCorrection(ctx context.Context, userID string, rec *models.CorrectionRecord) error {
	var timeMinutes sql.NullInt64
	if rec.PredictionTimeMinutes != nil {
		timeMinutes = sql.NullInt64{Int64: int64(*rec.PredictionTimeMinutes), Valid: true}
	}

	query := `
        INSERT INTO corrections (id, user_id, prediction_id, prediction_time_minutes, predicted_value, actual_value, difference, measured_at, source, note, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, userID, rec.PredictionID, timeMinutes,
		rec.PredictedValue, rec.ActualValue, rec.Difference,
		rec.MeasuredAt.UTC().Format(time.RFC3339), string(rec.Source), rec.Note,
		rec.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert correction: %w", err)
	}

	return nil
}

// RecentDifferences returns the actual-minus-predicted deviations of
// the newest corrections, newest first.
func (s *SQLiteStorage) RecentDifferences(ctx context.Context, userID string, limit int) ([]float64, error) {
	query := `
        SELECT difference FROM corrections
        WHERE user_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()

	var diffs []float64
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		diffs = append(diffs, d)
	}
	return diffs, rows.Err()
}

func (s *SQLiteStorage) CorrectionCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM corrections WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count corrections: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) ListCorrections(ctx context.Context, userID string, limit int) ([]*models.CorrectionRecord, error) {
	query := `
        SELECT id, prediction_id, prediction_time_minutes, predicted_value, actual_value, difference, measured_at, source, note, created_at
        FROM corrections
        WHERE user_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()

	var records []*models.CorrectionRecord
	for rows.Next() {
		rec := &models.CorrectionRecord{}
		var timeMinutes sql.NullInt64
		var measuredAtStr, createdAtStr, sourceStr string

		err := rows.Scan(
			&rec.ID, &rec.PredictionID, &timeMinutes,
			&rec.PredictedValue, &rec.ActualValue, &rec.Difference,
			&measuredAtStr, &sourceStr, &rec.Note, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}

		if timeMinutes.Valid {
			v := int(timeMinutes.Int64)
			rec.PredictionTimeMinutes = &v
		}
		if rec.MeasuredAt, err = time.Parse(time.RFC3339, measuredAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse measured_at: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		rec.Source = models.CorrectionSource(sourceStr)

		records = append(records, rec)
	}

	return records, rows.Err()
}
