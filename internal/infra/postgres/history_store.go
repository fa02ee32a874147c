package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"studyguide-quiz/internal/domain"
)

// HistoryStore persists completed attempts in the quiz_attempts table.
type HistoryStore struct {
	pool *pgxpool.Pool
}

func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// RecordAttempt inserts the attempt; recording the same attempt id twice is a no-op.
func (h *HistoryStore) RecordAttempt(ctx context.Context, attempt domain.Attempt) error {
	questions, err := json.Marshal(attempt.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	answers, err := json.Marshal(attempt.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = h.pool.Exec(ctx, `
		INSERT INTO quiz_attempts (id, subject, filename, questions, answers, correct, total, percentage, completed_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		attempt.ID, attempt.Subject, attempt.Filename, string(questions), string(answers),
		attempt.Score.Correct, attempt.Score.Total, attempt.Score.Percentage, attempt.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the subject's attempts, newest first.
func (h *HistoryStore) ListAttempts(ctx context.Context, subject string, limit int) ([]domain.Attempt, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT id, subject, filename, questions, answers, correct, total, percentage, completed_at
		FROM quiz_attempts
		WHERE subject = $1
		ORDER BY completed_at DESC
		LIMIT $2`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var (
			a                  domain.Attempt
			questions, answers []byte
		)
		if err := rows.Scan(&a.ID, &a.Subject, &a.Filename, &questions, &answers,
			&a.Score.Correct, &a.Score.Total, &a.Score.Percentage, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if err := json.Unmarshal(questions, &a.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions: %w", err)
		}
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
