package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"exam-flow-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const defaultPaperMinutes = 60

type paperKey struct {
	tradeID   string
	paperType domain.PaperType
}

// importRun holds lookups scoped to one import call.
type importRun struct {
	trades map[string]*domain.Trade
	papers map[paperKey]domain.ExamPaper
	next   map[string]int
}

// ImportQuestions validates and stores question rows one by one. A bad row is
// recorded in the summary and never aborts the rest of the batch.
func (s *ExamService) ImportQuestions(ctx context.Context, rows []domain.QuestionRow) domain.ImportSummary {
	summary := domain.ImportSummary{Errors: []domain.RowError{}, ByReason: map[string]int{}}
	run := &importRun{
		trades: map[string]*domain.Trade{},
		papers: map[paperKey]domain.ExamPaper{},
		next:   map[string]int{},
	}
	touched := map[string]bool{}

	for _, row := range rows {
		reason, err := s.importRow(ctx, run, row, touched)
		if err != nil {
			summary.Reject(row.Line, reason, err.Error())
			continue
		}
		summary.Created++
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.papers.Invalidate(ctx, id)
	}

	s.log.Info("questions imported",
		zap.Int("rows", len(rows)),
		zap.Int("created", summary.Created),
		zap.Int("rejected", len(summary.Errors)),
	)
	return summary
}

func (s *ExamService) importRow(ctx context.Context, run *importRun, row domain.QuestionRow, touched map[string]bool) (string, error) {
	row = trimRow(row)
	if err := s.validate.Struct(row); err != nil {
		return rowValidationReason(err), fmt.Errorf("invalid row: %w", err)
	}

	paperType, err := domain.ParsePaperType(row.PaperType)
	if err != nil {
		return domain.ReasonInvalidPaperType, err
	}
	if !paperType.IsWritten() {
		return domain.ReasonInvalidPaperType, fmt.Errorf("%s is not a written paper", paperType)
	}
	answer, err := answerLetter(row.CorrectAnswer, row.Options)
	if err != nil {
		return domain.ReasonInvalidAnswer, err
	}

	var (
		reason string
		key    paperKey
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		trade, err := run.trade(ctx, repo, row.TradeName)
		if err != nil {
			reason = domain.ReasonUnknownTrade
			return err
		}
		if !trade.Enabled(paperType) {
			reason = domain.ReasonPaperDisabled
			return fmt.Errorf("trade %s does not offer %s", trade.Name, paperType)
		}

		reason = domain.ReasonStoreError
		key = paperKey{tradeID: trade.ID, paperType: paperType}
		paper, err := s.paperFor(ctx, repo, run, key, trade)
		if err != nil {
			return err
		}
		order := run.next[paper.ID]
		q := domain.Question{
			ID:            s.newID(),
			PaperID:       paper.ID,
			Text:          row.QuestionText,
			Options:       row.Options,
			CorrectAnswer: answer,
			Marks:         row.Marks,
			Order:         order,
		}
		if err := repo.AddQuestions(ctx, paper.ID, []domain.Question{q}); err != nil {
			return err
		}
		run.next[paper.ID] = order + 1
		touched[paper.ID] = true
		return nil
	})
	if err != nil {
		// a rolled back transaction may have created the cached paper
		delete(run.papers, key)
		return reason, err
	}
	return "", nil
}

// trade looks up a trade by name once per run; misses are remembered too.
func (r *importRun) trade(ctx context.Context, repo Repository, name string) (domain.Trade, error) {
	key := strings.ToLower(name)
	if t, ok := r.trades[key]; ok {
		if t == nil {
			return domain.Trade{}, domain.NotFoundf("unknown trade %q", name)
		}
		return *t, nil
	}
	t, err := repo.FindTradeByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		r.trades[key] = nil
		return domain.Trade{}, domain.NotFoundf("unknown trade %q", name)
	}
	if err != nil {
		return domain.Trade{}, err
	}
	r.trades[key] = &t
	return t, nil
}

// paperFor returns the paper for (trade, type), creating it on first use.
func (s *ExamService) paperFor(ctx context.Context, repo Repository, run *importRun, key paperKey, trade domain.Trade) (domain.ExamPaper, error) {
	if p, ok := run.papers[key]; ok {
		return p, nil
	}

	paper, err := repo.FindPaper(ctx, trade.ID, key.paperType)
	switch {
	case err == nil:
		run.next[paper.ID] = nextOrder(paper.Questions)
	case errors.Is(err, domain.ErrNotFound):
		paper = domain.ExamPaper{
			ID:              s.newID(),
			TradeID:         trade.ID,
			PaperType:       key.paperType,
			Title:           fmt.Sprintf("%s %s", trade.Name, key.paperType),
			DurationMinutes: defaultPaperMinutes,
			IsActive:        true,
		}
		if err := repo.SavePaper(ctx, paper); err != nil {
			return domain.ExamPaper{}, err
		}
		run.next[paper.ID] = 1
	default:
		return domain.ExamPaper{}, err
	}
	paper.Questions = nil
	run.papers[key] = paper
	return paper, nil
}

func nextOrder(questions []domain.Question) int {
	highest := 0
	for _, q := range questions {
		if q.Order > highest {
			highest = q.Order
		}
	}
	return highest + 1
}

func trimRow(row domain.QuestionRow) domain.QuestionRow {
	row.TradeName = strings.TrimSpace(row.TradeName)
	row.PaperType = strings.TrimSpace(row.PaperType)
	row.QuestionText = strings.TrimSpace(row.QuestionText)
	row.CorrectAnswer = strings.TrimSpace(row.CorrectAnswer)
	// A blank option between filled ones stays in place so the answer letter
	// still points at its column; validation rejects the row.
	options := make([]string, len(row.Options))
	last := 0
	for i, o := range row.Options {
		options[i] = strings.TrimSpace(o)
		if options[i] != "" {
			last = i + 1
		}
	}
	row.Options = options[:last]
	return row
}

func rowValidationReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Marks" {
				return domain.ReasonInvalidMarks
			}
		}
	}
	return domain.ReasonMissingField
}

// answerLetter accepts an option letter or the exact text of one option and
// returns the letter.
func answerLetter(raw string, options []string) (string, error) {
	upper := strings.ToUpper(raw)
	for i := range options {
		if upper == domain.OptionLetters[i] {
			return upper, nil
		}
	}
	for i, o := range options {
		if strings.EqualFold(o, raw) {
			return domain.OptionLetters[i], nil
		}
	}
	return "", fmt.Errorf("correct answer %q does not name one of %d options", raw, len(options))
}
