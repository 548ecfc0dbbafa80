package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/broker"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// AnomalyWorker drains the anomaly queue into the anomaly_events archive.
type AnomalyWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewAnomalyWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnomalyWorker {
	return &AnomalyWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "anomaly_worker").Logger(),
	}
}

var anomalyColumns = []string{"session_id", "event_type", "details", "score_after", "recorded_at"}

func (w *AnomalyWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnomalyWorker started")

	buffer := make([]*broker.AnomalyMessage, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlushTime = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAnomaliesQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var msg broker.AnomalyMessage
		if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
			// Malformed JSON can never succeed. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, &msg)
	}
}

// flushSafe tries a bulk COPY, then row-by-row insert, then requeue.
func (w *AnomalyWorker) flushSafe(ctx context.Context, batch []*broker.AnomalyMessage) {
	rows, err := anomalyRows(batch)
	if err == nil {
		_, err = w.pool.CopyFrom(ctx, pgx.Identifier{"anomaly_events"}, anomalyColumns, pgx.CopyFromRows(rows))
		if err == nil {
			w.log.Debug().Int("count", len(batch)).Msg("Archived anomalies")
			return
		}
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *AnomalyWorker) fallbackInsert(ctx context.Context, batch []*broker.AnomalyMessage) {
	requeueList := make([]*broker.AnomalyMessage, 0)

	for _, m := range batch {
		row, err := anomalyRow(m)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", m.SessionID).Msg("Dropping anomaly with invalid fields")
			continue
		}
		_, err = w.pool.Exec(ctx,
			`INSERT INTO anomaly_events (session_id, event_type, details, score_after, recorded_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			row...,
		)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", m.SessionID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, m)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *AnomalyWorker) requeue(ctx context.Context, items []*broker.AnomalyMessage) {
	pipe := w.rdb.Pipeline()
	for _, m := range items {
		data, _ := json.Marshal(m)
		pipe.RPush(ctx, config.WorkerKey.PersistAnomaliesQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue anomalies to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed anomalies back to Redis")
	// Back off so a hard-down database is not hammered.
	time.Sleep(2 * time.Second)
}

func (w *AnomalyWorker) shutdown(buffer []*broker.AnomalyMessage) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func anomalyRows(batch []*broker.AnomalyMessage) ([][]any, error) {
	rows := make([][]any, 0, len(batch))
	for _, m := range batch {
		row, err := anomalyRow(m)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func anomalyRow(m *broker.AnomalyMessage) ([]any, error) {
	sessionID, err := uuid.Parse(m.SessionID)
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(model.ISOTimeLayout, m.RecordedAt)
	if err != nil {
		return nil, err
	}
	var details *string
	if m.Details != "" {
		d := m.Details
		details = &d
	}
	return []any{sessionID, m.Type, details, m.Score, at}, nil
}
