package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const upsertSubmissionSQL = `
	INSERT INTO submissions (
		session_id, full_name, email, class_level, anomaly_score,
		anomaly_log, answers, started_at, submitted_at, duration_minutes
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (session_id) DO UPDATE SET
		full_name = EXCLUDED.full_name,
		email = EXCLUDED.email,
		class_level = EXCLUDED.class_level,
		anomaly_score = EXCLUDED.anomaly_score,
		anomaly_log = EXCLUDED.anomaly_log,
		answers = EXCLUDED.answers,
		started_at = EXCLUDED.started_at,
		submitted_at = EXCLUDED.submitted_at,
		duration_minutes = EXCLUDED.duration_minutes`

// SubmissionWorker archives delivered submissions into Postgres.
type SubmissionWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewSubmissionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "submission_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")

	batch := make([]*model.SubmissionPayload, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.SubmissionPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid submission payload, discarding")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// ----------------------------------------------------------------
// Flush logic (batch → fallback → requeue)
// ----------------------------------------------------------------

func (w *SubmissionWorker) flushSafe(ctx context.Context, batch []*model.SubmissionPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpsert(ctx, batch); err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Archived submissions")
		return
	} else {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Batch upsert failed, falling back")
	}

	var failed []*model.SubmissionPayload
	for _, p := range batch {
		args, err := submissionArgs(p)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", p.SessionID).Msg("Dropping submission with invalid fields")
			continue
		}
		if _, err := w.pool.Exec(ctx, upsertSubmissionSQL, args...); err != nil {
			failed = append(failed, p)
		}
	}

	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *SubmissionWorker) bulkUpsert(ctx context.Context, batch []*model.SubmissionPayload) error {
	b := &pgx.Batch{}
	for _, p := range batch {
		args, err := submissionArgs(p)
		if err != nil {
			return err
		}
		b.Queue(upsertSubmissionSQL, args...)
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, b)
	for range batch {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (w *SubmissionWorker) requeue(ctx context.Context, items []*model.SubmissionPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue submissions")
		return
	}
	w.log.Warn().Int("count", len(items)).Msg("Requeued failed submissions")
	time.Sleep(2 * time.Second)
}

func submissionArgs(p *model.SubmissionPayload) ([]any, error) {
	sessionID, err := uuid.Parse(p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	anomalyLog, err := json.Marshal(p.AnomalyLog)
	if err != nil {
		return nil, fmt.Errorf("anomaly log: %w", err)
	}
	answers, err := json.Marshal(flattenAnswers(p))
	if err != nil {
		return nil, fmt.Errorf("answers: %w", err)
	}
	return []any{
		sessionID, p.User.FullName, p.User.Email, p.User.ClassLevel, p.AnomalyScore,
		anomalyLog, answers, p.StartedAt, p.SubmittedAt, p.DurationMinutes(),
	}, nil
}

// flattenAnswers keys each question's sheet text by question id, covering
// unanswered questions too.
func flattenAnswers(p *model.SubmissionPayload) map[string]string {
	out := make(map[string]string, len(p.Questions))
	for _, q := range p.Questions {
		out[fmt.Sprintf("q%d", q.ID)] = p.Answers[q.ID].Flatten()
	}
	return out
}
