package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListBank retrieves the whole bank ordered by order_num.
func (r *QuestionRepository) ListBank(ctx context.Context) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, kind, options, word_limit
		 FROM questions
		 ORDER BY order_num`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Kind, &q.Options, &q.WordLimit); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ReplaceBank swaps the stored bank for questions in a single transaction.
// Slice order becomes order_num.
func (r *QuestionRepository) ReplaceBank(ctx context.Context, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions`); err != nil {
		return err
	}

	b := &pgx.Batch{}
	for i, q := range questions {
		options := q.Options
		if options == nil {
			options = []string{}
		}
		b.Queue(
			`INSERT INTO questions (id, order_num, prompt, kind, options, word_limit)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			q.ID, i, q.Prompt, q.Kind, options, q.WordLimit,
		)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
