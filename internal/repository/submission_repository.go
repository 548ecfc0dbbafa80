package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// SubmissionRecord is one archived submission row.
type SubmissionRecord struct {
	SessionID       uuid.UUID            `json:"session_id"`
	FullName        string               `json:"full_name"`
	Email           string               `json:"email"`
	ClassLevel      string               `json:"class"`
	AnomalyScore    int                  `json:"anomaly_score"`
	AnomalyLog      []model.AnomalyEvent `json:"anomaly_log,omitempty"`
	Answers         map[string]string    `json:"answers,omitempty"`
	StartedAt       time.Time            `json:"started_at"`
	SubmittedAt     time.Time            `json:"submitted_at"`
	DurationMinutes int                  `json:"duration_minutes"`
}

// SubmissionRepository reads the submission archive written by the worker.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// ListRecent returns a page of submissions, newest first, without logs or answers.
func (r *SubmissionRepository) ListRecent(ctx context.Context, limit, offset int) ([]SubmissionRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT session_id, full_name, email, class_level, anomaly_score,
		        started_at, submitted_at, duration_minutes
		 FROM submissions
		 ORDER BY submitted_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []SubmissionRecord
	for rows.Next() {
		var s SubmissionRecord
		if err := rows.Scan(&s.SessionID, &s.FullName, &s.Email, &s.ClassLevel, &s.AnomalyScore,
			&s.StartedAt, &s.SubmittedAt, &s.DurationMinutes); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// GetBySession returns the full archived submission.
func (r *SubmissionRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*SubmissionRecord, error) {
	var (
		s          SubmissionRecord
		logJSON    []byte
		answerJSON []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT session_id, full_name, email, class_level, anomaly_score,
		        anomaly_log, answers, started_at, submitted_at, duration_minutes
		 FROM submissions WHERE session_id = $1`,
		sessionID,
	).Scan(&s.SessionID, &s.FullName, &s.Email, &s.ClassLevel, &s.AnomalyScore,
		&logJSON, &answerJSON, &s.StartedAt, &s.SubmittedAt, &s.DurationMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(logJSON, &s.AnomalyLog); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answerJSON, &s.Answers); err != nil {
		return nil, err
	}
	return &s, nil
}
