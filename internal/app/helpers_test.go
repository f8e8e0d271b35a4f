package app_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
	"exam-flow-service/internal/infra/memory"
)

var baseTime = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	service *app.ExamService
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), now: baseTime}
	var ids atomic.Int64
	f.service = app.NewExamService(
		f.store,
		memory.NewPaperCache(f.store, time.Minute),
		memory.NewStartGuard(),
		nil,
		app.WithClock(func() time.Time { return f.now }),
		app.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", ids.Add(1)) }),
	)

	f.seed(t, func(ctx context.Context, repo app.Repository) error {
		if err := repo.SaveTrade(ctx, clerkTrade()); err != nil {
			return err
		}
		if err := repo.SaveCandidate(ctx, domain.Candidate{
			ID:                "c1",
			ArmyNo:            "A-1001",
			Name:              "Ravi",
			TradeID:           "t-clerk",
			CommandID:         "C",
			CenterID:          "Z",
			SelectedExamTypes: domain.NewExamTypeSet(domain.PaperWP1, domain.PaperWP2, domain.PaperWP3),
		}); err != nil {
			return err
		}
		if err := savePaper(ctx, repo, domain.ExamPaper{ID: "p-wp1", TradeID: "t-clerk", PaperType: domain.PaperWP1, IsActive: true},
			domain.Question{ID: "q1", Text: "First?", Options: []string{"yes", "no"}, CorrectAnswer: "A", Marks: 2, Order: 1},
			domain.Question{ID: "q2", Text: "Second?", Options: []string{"yes", "no"}, CorrectAnswer: "B", Marks: 2, Order: 2},
		); err != nil {
			return err
		}
		if err := savePaper(ctx, repo, domain.ExamPaper{ID: "p-wp2", TradeID: "t-clerk", PaperType: domain.PaperWP2, IsActive: true},
			domain.Question{ID: "q3", Text: "Third?", Options: []string{"a", "b", "c"}, CorrectAnswer: "C", Marks: 1, Order: 1},
		); err != nil {
			return err
		}
		for _, s := range []domain.ExamSlot{
			slot("s-wp1", domain.PaperWP1, "C", "Z", -time.Hour, 2*time.Hour),
			slot("s-wp2", domain.PaperWP2, "C", "Z", -time.Hour, 2*time.Hour),
		} {
			if err := repo.CreateSlot(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	return f
}

func clerkTrade() domain.Trade {
	return domain.Trade{
		ID:              "t-clerk",
		Name:            "Clerk",
		WP1:             true,
		WP2:             true,
		PR1:             true,
		Oral:            true,
		NegativeMarking: 0.5,
	}
}

func slot(id string, p domain.PaperType, command, center string, startOffset, endOffset time.Duration) domain.ExamSlot {
	return domain.ExamSlot{
		ID:        id,
		TradeID:   "t-clerk",
		PaperType: p,
		CommandID: command,
		CenterID:  center,
		StartTime: baseTime.Add(startOffset),
		EndTime:   baseTime.Add(endOffset),
		IsActive:  true,
	}
}

func savePaper(ctx context.Context, repo app.Repository, paper domain.ExamPaper, questions ...domain.Question) error {
	if err := repo.SavePaper(ctx, paper); err != nil {
		return err
	}
	return repo.AddQuestions(ctx, paper.ID, questions)
}

func (f *fixture) seed(t *testing.T, fn func(ctx context.Context, repo app.Repository) error) {
	t.Helper()
	if err := f.store.WithinTx(context.Background(), fn); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (f *fixture) view(t *testing.T, fn func(ctx context.Context, repo app.Repository) error) {
	t.Helper()
	if err := f.store.View(context.Background(), fn); err != nil {
		t.Fatalf("view: %v", err)
	}
}

// complete starts and submits a paper for c1 with every answer correct.
func (f *fixture) complete(t *testing.T, p domain.PaperType) domain.ExamAttempt {
	t.Helper()
	ctx := context.Background()
	attempt, err := f.service.StartExam(ctx, "c1", p, "")
	if err != nil {
		t.Fatalf("start %s: %v", p, err)
	}
	var answers []domain.AnswerSubmission
	f.view(t, func(ctx context.Context, repo app.Repository) error {
		paper, err := repo.GetPaper(ctx, attempt.PaperID)
		for _, q := range paper.Questions {
			answers = append(answers, domain.AnswerSubmission{QuestionID: q.ID, SelectedAnswer: q.CorrectAnswer})
		}
		return err
	})
	if _, err := f.service.SubmitExam(ctx, attempt.ID, answers); err != nil {
		t.Fatalf("submit %s: %v", p, err)
	}
	return attempt
}
