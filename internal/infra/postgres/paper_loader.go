package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"exam-flow-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PaperLoader reads a paper and its questions straight from Postgres for the
// paper caches.
type PaperLoader struct {
	pool *pgxpool.Pool
}

func NewPaperLoader(pool *pgxpool.Pool) *PaperLoader {
	return &PaperLoader{pool: pool}
}

func (l *PaperLoader) LoadPaper(ctx context.Context, paperID string) (domain.ExamPaper, error) {
	var (
		paper     domain.ExamPaper
		paperType string
	)
	err := l.pool.QueryRow(ctx,
		`SELECT id, trade_id, paper_type, title, duration_minutes, is_active FROM exam_papers WHERE id=$1`,
		paperID,
	).Scan(&paper.ID, &paper.TradeID, &paperType, &paper.Title, &paper.DurationMinutes, &paper.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExamPaper{}, domain.NotFoundf("paper %s not found", paperID)
	}
	if err != nil {
		return domain.ExamPaper{}, fmt.Errorf("load paper: %w", err)
	}
	paper.PaperType = domain.PaperType(paperType)

	rows, err := l.pool.Query(ctx,
		`SELECT id, text, options, correct_answer, marks, order_index FROM questions WHERE paper_id=$1 ORDER BY order_index, id`,
		paperID,
	)
	if err != nil {
		return domain.ExamPaper{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		q := domain.Question{PaperID: paperID}
		var rawOptions []byte
		if err := rows.Scan(&q.ID, &q.Text, &rawOptions, &q.CorrectAnswer, &q.Marks, &q.Order); err != nil {
			return domain.ExamPaper{}, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
			return domain.ExamPaper{}, fmt.Errorf("unmarshal options for %s: %w", q.ID, err)
		}
		paper.Questions = append(paper.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.ExamPaper{}, fmt.Errorf("load questions: %w", err)
	}
	return paper, nil
}
