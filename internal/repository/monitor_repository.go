package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArchivedAnomaly is one row of anomaly_events.
type ArchivedAnomaly struct {
	EventType  string    `json:"type"`
	Details    *string   `json:"details,omitempty"`
	ScoreAfter int       `json:"score_after"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MonitorRepository provides the archived anomaly trail for the admin monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetAnomalies returns the archived trail for one session in recording order.
func (r *MonitorRepository) GetAnomalies(ctx context.Context, sessionID uuid.UUID) ([]ArchivedAnomaly, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event_type, details, score_after, recorded_at
		 FROM anomaly_events
		 WHERE session_id = $1
		 ORDER BY recorded_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedAnomaly
	for rows.Next() {
		var a ArchivedAnomaly
		if err := rows.Scan(&a.EventType, &a.Details, &a.ScoreAfter, &a.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetTypeCounts returns the number of archived events per anomaly type for a session.
func (r *MonitorRepository) GetTypeCounts(ctx context.Context, sessionID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event_type, COUNT(*)
		 FROM anomaly_events
		 WHERE session_id = $1
		 GROUP BY event_type`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var t string
		var count int64
		if err := rows.Scan(&t, &count); err != nil {
			return nil, err
		}
		counts[t] = count
	}
	return counts, rows.Err()
}
