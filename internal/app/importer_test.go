package app_test

import (
	"context"
	"testing"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
)

func TestImportQuestionsPartialSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// warm the cache so the import has to invalidate it
	attempt, err := f.service.StartExam(ctx, "c1", domain.PaperWP1, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.GetExamPaper(ctx, attempt.ID); err != nil {
		t.Fatalf("paper: %v", err)
	}

	opts := []string{"red", "green", "blue"}
	rows := []domain.QuestionRow{
		{Line: 2, TradeName: "clerk", PaperType: "wp1", QuestionText: "Sky?", Options: opts, CorrectAnswer: "c", Marks: 1},
		{Line: 3, TradeName: "Clerk", PaperType: "WP-III", QuestionText: "Grass?", Options: opts, CorrectAnswer: "B", Marks: 1},
		{Line: 4, TradeName: "Cook", PaperType: "WP-I", QuestionText: "Salt?", Options: opts, CorrectAnswer: "A", Marks: 1},
		{Line: 5, TradeName: "Clerk", PaperType: "PR-I", QuestionText: "Drill?", Options: opts, CorrectAnswer: "A", Marks: 1},
		{Line: 6, TradeName: "Clerk", PaperType: "WP-I", QuestionText: "Blood?", Options: opts, CorrectAnswer: "E", Marks: 1},
		{Line: 7, TradeName: "Clerk", PaperType: "WP-I", QuestionText: "", Options: opts, CorrectAnswer: "A", Marks: 1},
		{Line: 8, TradeName: "Clerk", PaperType: "WP-I", QuestionText: "Snow?", Options: opts, CorrectAnswer: "A", Marks: 0},
		{Line: 9, TradeName: "Cook", PaperType: "WP-II", QuestionText: "Pepper?", Options: opts, CorrectAnswer: "A", Marks: 1},
		{Line: 10, TradeName: "Clerk", PaperType: "WP 1", QuestionText: "Leaf?", Options: opts, CorrectAnswer: "green", Marks: 2},
	}

	summary := f.service.ImportQuestions(ctx, rows)
	if summary.Created != 2 {
		t.Fatalf("expected 2 rows created, got %d (%+v)", summary.Created, summary.Errors)
	}
	want := map[string]int{
		domain.ReasonPaperDisabled:    1,
		domain.ReasonUnknownTrade:     2,
		domain.ReasonInvalidPaperType: 1,
		domain.ReasonInvalidAnswer:    1,
		domain.ReasonMissingField:     1,
		domain.ReasonInvalidMarks:     1,
	}
	for reason, n := range want {
		if summary.ByReason[reason] != n {
			t.Fatalf("reason %s: expected %d, got %d (%+v)", reason, n, summary.ByReason[reason], summary.Errors)
		}
	}
	if summary.Errors[0].Line != 3 {
		t.Fatalf("expected errors attributed by line, got %+v", summary.Errors[0])
	}

	paper, err := f.service.GetExamPaper(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("paper: %v", err)
	}
	if len(paper.Questions) != 4 {
		t.Fatalf("expected imported questions to be visible, got %d", len(paper.Questions))
	}
	if last := paper.Questions[3]; last.Text != "Leaf?" || last.Order != 4 {
		t.Fatalf("expected imported questions appended in order, got %+v", last)
	}

	f.view(t, func(ctx context.Context, repo app.Repository) error {
		stored, err := repo.GetPaper(ctx, "p-wp1")
		if stored.Questions[3].CorrectAnswer != "B" {
			t.Fatalf("expected option text normalised to a letter, got %q", stored.Questions[3].CorrectAnswer)
		}
		return err
	})
}

func TestImportQuestionsCreatesPaper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, func(ctx context.Context, repo app.Repository) error {
		return repo.SaveTrade(ctx, domain.Trade{ID: "t-cook", Name: "Cook", WP1: true})
	})

	summary := f.service.ImportQuestions(ctx, []domain.QuestionRow{
		{Line: 2, TradeName: "Cook", PaperType: "WP-I", QuestionText: "Boil?", Options: []string{"90", "100"}, CorrectAnswer: "B", Marks: 1},
		{Line: 3, TradeName: "Cook", PaperType: "WP-I", QuestionText: "Freeze?", Options: []string{"0", "10"}, CorrectAnswer: "A", Marks: 1},
	})
	if summary.Created != 2 || len(summary.Errors) != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	f.view(t, func(ctx context.Context, repo app.Repository) error {
		paper, err := repo.FindPaper(ctx, "t-cook", domain.PaperWP1)
		if err != nil {
			return err
		}
		if !paper.IsActive || len(paper.Questions) != 2 || paper.Questions[1].Order != 2 {
			t.Fatalf("unexpected paper %+v", paper)
		}
		return nil
	})
}

func TestImportQuestionsRejectsOptionGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows := []domain.QuestionRow{
		{Line: 2, TradeName: "Clerk", PaperType: "WP-I", QuestionText: "Gap?", Options: []string{"x", "", "y", "z"}, CorrectAnswer: "C", Marks: 1},
		{Line: 3, TradeName: "Clerk", PaperType: "WP-I", QuestionText: "Gap again?", Options: []string{"x", " ", "y", "z"}, CorrectAnswer: "D", Marks: 1},
		{Line: 4, TradeName: "Clerk", PaperType: "WP-I", QuestionText: "Tail?", Options: []string{"x", "y", "z", ""}, CorrectAnswer: "C", Marks: 1},
	}

	summary := f.service.ImportQuestions(ctx, rows)
	if summary.Created != 1 || summary.ByReason[domain.ReasonMissingField] != 2 {
		t.Fatalf("expected gap rows rejected as missing fields, got %+v", summary)
	}
	if summary.Errors[0].Line != 2 || summary.Errors[1].Line != 3 {
		t.Fatalf("unexpected error lines %+v", summary.Errors)
	}

	f.view(t, func(ctx context.Context, repo app.Repository) error {
		stored, err := repo.GetPaper(ctx, "p-wp1")
		if err != nil {
			return err
		}
		last := stored.Questions[len(stored.Questions)-1]
		if last.Text != "Tail?" || len(last.Options) != 3 || last.CorrectAnswer != "C" || last.Options[2] != "z" {
			t.Fatalf("expected trailing blank dropped and key kept, got %+v", last)
		}
		return nil
	})
}
