package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store implements app.Store on Postgres through bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &repo{db: tx})
	})
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	return fn(ctx, &repo{db: s.db})
}

type repo struct {
	db bun.IDB
}

func pgCode(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

// wrap maps no-rows to domain.ErrNotFound and annotates everything else.
func wrap(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("%s not found", what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func upsertSet(q *bun.InsertQuery, cols ...string) *bun.InsertQuery {
	for _, c := range cols {
		q = q.Set("? = EXCLUDED.?", bun.Ident(c), bun.Ident(c))
	}
	return q
}

func (r *repo) GetTrade(ctx context.Context, id string) (domain.Trade, error) {
	var row tradeRow
	if err := r.db.NewSelect().Model(&row).Where("t.id = ?", id).Scan(ctx); err != nil {
		return domain.Trade{}, wrap(err, "trade "+id)
	}
	return row.toDomain(), nil
}

func (r *repo) FindTradeByName(ctx context.Context, name string) (domain.Trade, error) {
	var row tradeRow
	err := r.db.NewSelect().Model(&row).
		Where("lower(t.name) = lower(?)", strings.TrimSpace(name)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Trade{}, wrap(err, fmt.Sprintf("trade %q", name))
	}
	return row.toDomain(), nil
}

func (r *repo) SaveTrade(ctx context.Context, trade domain.Trade) error {
	row := tradeFromDomain(trade)
	q := r.db.NewInsert().Model(&row).On("CONFLICT (id) DO UPDATE")
	q = upsertSet(q, "name", "wp1", "wp2", "wp3", "pr1", "pr2", "pr3", "pr4", "pr5", "oral", "negative_marking", "min_percent")
	if _, err := q.Exec(ctx); err != nil {
		if pgCode(err) == pgUniqueViolation {
			return domain.Conflictf("trade name %q already exists", trade.Name)
		}
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

func (r *repo) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	var row candidateRow
	if err := r.db.NewSelect().Model(&row).Where("c.id = ?", id).Scan(ctx); err != nil {
		return domain.Candidate{}, wrap(err, "candidate "+id)
	}
	return row.toDomain(), nil
}

func (r *repo) ListCandidates(ctx context.Context, tradeID, commandID string) ([]domain.Candidate, error) {
	var rows []candidateRow
	err := r.db.NewSelect().Model(&rows).
		Where("c.trade_id = ?", tradeID).
		Where("c.command_id = ?", commandID).
		OrderExpr("c.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	out := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *repo) SaveCandidate(ctx context.Context, candidate domain.Candidate) error {
	row := candidateFromDomain(candidate)
	q := r.db.NewInsert().Model(&row).On("CONFLICT (id) DO UPDATE")
	q = upsertSet(q, "army_no", "name", "rank", "trade_id", "command_id", "center_id", "selected_exam_types")
	if _, err := q.Exec(ctx); err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return domain.Conflictf("army number %s already registered", candidate.ArmyNo)
		case pgForeignKeyViolation:
			return domain.NotFoundf("trade %s not found", candidate.TradeID)
		}
		return fmt.Errorf("save candidate: %w", err)
	}
	return nil
}

func (r *repo) LockCandidate(ctx context.Context, id string) error {
	var row candidateRow
	err := r.db.NewSelect().Model(&row).ColumnExpr("c.id").Where("c.id = ?", id).For("UPDATE").Scan(ctx)
	if err != nil {
		return wrap(err, "candidate "+id)
	}
	return nil
}

func (r *repo) GetSlot(ctx context.Context, id string) (domain.ExamSlot, error) {
	var row slotRow
	if err := r.db.NewSelect().Model(&row).Where("s.id = ?", id).Scan(ctx); err != nil {
		return domain.ExamSlot{}, wrap(err, "slot "+id)
	}
	return row.toDomain(), nil
}

func (r *repo) LockSlot(ctx context.Context, id string) (domain.ExamSlot, error) {
	var row slotRow
	if err := r.db.NewSelect().Model(&row).Where("s.id = ?", id).For("UPDATE").Scan(ctx); err != nil {
		return domain.ExamSlot{}, wrap(err, "slot "+id)
	}
	return row.toDomain(), nil
}

func (r *repo) FindSlots(ctx context.Context, f app.SlotFilter) ([]domain.ExamSlot, error) {
	var rows []slotRow
	q := r.db.NewSelect().Model(&rows)
	if f.TradeID != "" {
		q = q.Where("s.trade_id = ?", f.TradeID)
	}
	if f.PaperType != "" {
		q = q.Where("s.paper_type = ?", string(f.PaperType))
	}
	if f.CommandID != "" {
		q = q.Where("s.command_id = ?", f.CommandID)
	}
	if f.CenterID != "" {
		q = q.Where("s.center_id = ?", f.CenterID)
	}
	if f.ActiveOnly {
		q = q.Where("s.is_active")
	}
	if !f.EndsAfter.IsZero() {
		q = q.Where("s.end_time > ?", f.EndsAfter)
	}
	if err := q.OrderExpr("s.start_time ASC, s.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("find slots: %w", err)
	}
	return slotsToDomain(rows), nil
}

func slotsToDomain(rows []slotRow) []domain.ExamSlot {
	out := make([]domain.ExamSlot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

func (r *repo) CreateSlot(ctx context.Context, slot domain.ExamSlot) error {
	row := slotFromDomain(slot)
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return domain.Conflictf("slot %s already exists", slot.ID)
		case pgForeignKeyViolation:
			return domain.NotFoundf("trade %s not found", slot.TradeID)
		}
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

func (r *repo) DeleteSlot(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().Model((*slotRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if affected(res) == 0 {
		return domain.NotFoundf("slot %s not found", id)
	}
	return nil
}

func (r *repo) BindCandidate(ctx context.Context, slotID, candidateID string) error {
	row := bindingRow{SlotID: slotID, CandidateID: candidateID}
	_, err := r.db.NewInsert().Model(&row).On("CONFLICT (slot_id, candidate_id) DO NOTHING").Exec(ctx)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return domain.NotFoundf("slot %s or candidate %s not found", slotID, candidateID)
		}
		return fmt.Errorf("bind candidate: %w", err)
	}
	return nil
}

func (r *repo) CountBindings(ctx context.Context, slotID string) (int, error) {
	n, err := r.db.NewSelect().Model((*bindingRow)(nil)).Where("sc.slot_id = ?", slotID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count bindings: %w", err)
	}
	return n, nil
}

func (r *repo) SetSlotCount(ctx context.Context, slotID string, count int) error {
	res, err := r.db.NewUpdate().Model((*slotRow)(nil)).
		Set("current_count = ?", count).
		Where("id = ?", slotID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set slot count: %w", err)
	}
	if affected(res) == 0 {
		return domain.NotFoundf("slot %s not found", slotID)
	}
	return nil
}

func (r *repo) CandidateSlots(ctx context.Context, candidateID string) ([]domain.ExamSlot, error) {
	var rows []slotRow
	err := r.db.NewSelect().Model(&rows).
		Join("JOIN exam_slot_candidates AS sc ON sc.slot_id = s.id").
		Where("sc.candidate_id = ?", candidateID).
		OrderExpr("s.start_time ASC, s.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("candidate slots: %w", err)
	}
	return slotsToDomain(rows), nil
}

func (r *repo) GetPaper(ctx context.Context, id string) (domain.ExamPaper, error) {
	var row paperRow
	if err := r.db.NewSelect().Model(&row).Where("p.id = ?", id).Scan(ctx); err != nil {
		return domain.ExamPaper{}, wrap(err, "paper "+id)
	}
	return r.withQuestions(ctx, row)
}

func (r *repo) FindPaper(ctx context.Context, tradeID string, paperType domain.PaperType) (domain.ExamPaper, error) {
	var row paperRow
	err := r.db.NewSelect().Model(&row).
		Where("p.trade_id = ?", tradeID).
		Where("p.paper_type = ?", string(paperType)).
		Scan(ctx)
	if err != nil {
		return domain.ExamPaper{}, wrap(err, fmt.Sprintf("%s paper for trade %s", paperType, tradeID))
	}
	return r.withQuestions(ctx, row)
}

func (r *repo) withQuestions(ctx context.Context, row paperRow) (domain.ExamPaper, error) {
	var questions []questionRow
	err := r.db.NewSelect().Model(&questions).
		Where("q.paper_id = ?", row.ID).
		OrderExpr("q.order_index ASC, q.id ASC").
		Scan(ctx)
	if err != nil {
		return domain.ExamPaper{}, fmt.Errorf("load questions: %w", err)
	}
	return row.toDomain(questions), nil
}

func (r *repo) SavePaper(ctx context.Context, paper domain.ExamPaper) error {
	row := paperRow{
		ID:              paper.ID,
		TradeID:         paper.TradeID,
		PaperType:       string(paper.PaperType),
		Title:           paper.Title,
		DurationMinutes: paper.DurationMinutes,
		IsActive:        paper.IsActive,
	}
	q := r.db.NewInsert().Model(&row).On("CONFLICT (id) DO UPDATE")
	q = upsertSet(q, "trade_id", "paper_type", "title", "duration_minutes", "is_active")
	if _, err := q.Exec(ctx); err != nil {
		if pgCode(err) == pgUniqueViolation {
			return domain.Conflictf("trade %s already has a %s paper", paper.TradeID, paper.PaperType)
		}
		return fmt.Errorf("save paper: %w", err)
	}
	return nil
}

func (r *repo) AddQuestions(ctx context.Context, paperID string, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, questionRow{
			ID:            q.ID,
			PaperID:       paperID,
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Marks:         q.Marks,
			Order:         q.Order,
		})
	}
	if _, err := r.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return domain.NotFoundf("paper %s not found", paperID)
		}
		return fmt.Errorf("add questions: %w", err)
	}
	return nil
}

func (r *repo) GetAttempt(ctx context.Context, id string) (domain.ExamAttempt, error) {
	var row attemptRow
	if err := r.db.NewSelect().Model(&row).Where("a.id = ?", id).Scan(ctx); err != nil {
		return domain.ExamAttempt{}, wrap(err, "attempt "+id)
	}
	return row.toDomain(), nil
}

func (r *repo) LockAttempt(ctx context.Context, id string) (domain.ExamAttempt, error) {
	var row attemptRow
	if err := r.db.NewSelect().Model(&row).Where("a.id = ?", id).For("UPDATE").Scan(ctx); err != nil {
		return domain.ExamAttempt{}, wrap(err, "attempt "+id)
	}
	return row.toDomain(), nil
}

func (r *repo) ListAttempts(ctx context.Context, candidateID string) ([]domain.ExamAttempt, error) {
	var rows []attemptRow
	err := r.db.NewSelect().Model(&rows).
		Where("a.candidate_id = ?", candidateID).
		OrderExpr("a.started_at ASC, a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.ExamAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

var openStatuses = []string{string(domain.AttemptPending), string(domain.AttemptInProgress)}

func (r *repo) FindOpenAttempt(ctx context.Context, candidateID, paperID string) (domain.ExamAttempt, error) {
	var row attemptRow
	err := r.db.NewSelect().Model(&row).
		Where("a.candidate_id = ?", candidateID).
		Where("a.exam_paper_id = ?", paperID).
		Where("a.status IN (?)", bun.In(openStatuses)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.ExamAttempt{}, wrap(err, "open attempt for candidate "+candidateID)
	}
	return row.toDomain(), nil
}

// CreateAttempt relies on the partial unique index over open attempts; a
// conflicting insert affects no rows.
func (r *repo) CreateAttempt(ctx context.Context, attempt domain.ExamAttempt) error {
	row := attemptFromDomain(attempt)
	res, err := r.db.NewInsert().Model(&row).
		On("CONFLICT (candidate_id, exam_paper_id) WHERE status IN ('PENDING', 'IN_PROGRESS') DO NOTHING").
		Exec(ctx)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return domain.Conflictf("attempt %s already exists", attempt.ID)
		case pgForeignKeyViolation:
			return domain.NotFoundf("candidate, paper or slot for attempt %s not found", attempt.ID)
		}
		return fmt.Errorf("create attempt: %w", err)
	}
	if affected(res) == 0 {
		return domain.ErrDuplicateAttempt
	}
	return nil
}

func (r *repo) UpdateAttempt(ctx context.Context, attempt domain.ExamAttempt) error {
	row := attemptFromDomain(attempt)
	res, err := r.db.NewUpdate().Model(&row).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if affected(res) == 0 {
		return domain.NotFoundf("attempt %s not found", attempt.ID)
	}
	return nil
}

// DeleteAttempt removes the attempt; answers go with it through ON DELETE CASCADE.
func (r *repo) DeleteAttempt(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().Model((*attemptRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	if affected(res) == 0 {
		return domain.NotFoundf("attempt %s not found", id)
	}
	return nil
}

func (r *repo) ReplaceAnswers(ctx context.Context, attemptID string, answers []domain.Answer) error {
	if _, err := r.db.NewDelete().Model((*answerRow)(nil)).Where("attempt_id = ?", attemptID).Exec(ctx); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}
	if len(answers) == 0 {
		return nil
	}
	rows := make([]answerRow, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, answerRow{
			AttemptID:      attemptID,
			QuestionID:     a.QuestionID,
			SelectedAnswer: a.SelectedAnswer,
			IsCorrect:      a.IsCorrect,
			MarksObtained:  a.MarksObtained,
		})
	}
	if _, err := r.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}

func (r *repo) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := r.db.NewSelect().Model(&rows).
		Where("ans.attempt_id = ?", attemptID).
		OrderExpr("ans.question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Answer{
			AttemptID:      row.AttemptID,
			QuestionID:     row.QuestionID,
			SelectedAnswer: row.SelectedAnswer,
			IsCorrect:      row.IsCorrect,
			MarksObtained:  row.MarksObtained,
		})
	}
	return out, nil
}

func (r *repo) GetPracticalMarks(ctx context.Context, candidateID string) (domain.PracticalMarks, error) {
	var row marksRow
	if err := r.db.NewSelect().Model(&row).Where("pm.candidate_id = ?", candidateID).Scan(ctx); err != nil {
		return domain.PracticalMarks{}, wrap(err, "practical marks for candidate "+candidateID)
	}
	return row.toDomain(), nil
}

func (r *repo) SavePracticalMarks(ctx context.Context, marks domain.PracticalMarks) error {
	row := marksFromDomain(marks)
	q := r.db.NewInsert().Model(&row).On("CONFLICT (candidate_id) DO UPDATE")
	q = upsertSet(q, "pr1", "pr2", "pr3", "pr4", "pr5", "oral", "grade_override", "overall_result")
	if _, err := q.Exec(ctx); err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return domain.NotFoundf("candidate %s not found", marks.CandidateID)
		}
		return fmt.Errorf("save practical marks: %w", err)
	}
	return nil
}
