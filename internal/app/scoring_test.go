package app_test

import (
	"testing"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
)

func twoQuestionPaper() domain.ExamPaper {
	return domain.ExamPaper{
		ID: "p",
		Questions: []domain.Question{
			{ID: "q1", CorrectAnswer: "A", Marks: 2},
			{ID: "q2", CorrectAnswer: "B", Marks: 2},
		},
	}
}

func TestScoreAppliesNegativeMarking(t *testing.T) {
	trade := domain.Trade{NegativeMarking: 0.5}
	res := app.Score(twoQuestionPaper(), trade, []domain.AnswerSubmission{
		{QuestionID: "q1", SelectedAnswer: "a"},
		{QuestionID: "q2", SelectedAnswer: "C"},
	})

	if res.Score != 1.5 || res.TotalMarks != 4 || res.Percentage != 37.5 {
		t.Fatalf("unexpected score %+v", res)
	}
	if res.Status != domain.ResultFail {
		t.Fatalf("expected FAIL below 40%%, got %s", res.Status)
	}
	if !res.Answers[0].IsCorrect || res.Answers[1].MarksObtained != -0.5 {
		t.Fatalf("unexpected per-answer marks %+v", res.Answers)
	}
}

func TestScorePassMarkUsesUnroundedPercentage(t *testing.T) {
	paper := domain.ExamPaper{Questions: []domain.Question{
		{ID: "q1", CorrectAnswer: "A", Marks: 39.996},
		{ID: "q2", CorrectAnswer: "B", Marks: 60.004},
	}}
	res := app.Score(paper, domain.Trade{}, []domain.AnswerSubmission{{QuestionID: "q1", SelectedAnswer: "A"}})
	if res.Percentage != 40 {
		t.Fatalf("expected displayed percentage 40, got %v", res.Percentage)
	}
	if res.Status != domain.ResultFail {
		t.Fatalf("39.996%% is below the pass mark, got %s", res.Status)
	}
}

func TestScoreZeroPassMark(t *testing.T) {
	zero := 0.0
	res := app.Score(twoQuestionPaper(), domain.Trade{MinPercent: &zero}, nil)
	if res.Percentage != 0 || res.Status != domain.ResultPass {
		t.Fatalf("expected PASS with a 0%% pass mark, got %+v", res)
	}
}

func TestScoreFloorsAtZero(t *testing.T) {
	paper := domain.ExamPaper{Questions: []domain.Question{{ID: "q1", CorrectAnswer: "A", Marks: 1}}}
	res := app.Score(paper, domain.Trade{NegativeMarking: 2}, []domain.AnswerSubmission{{QuestionID: "q1", SelectedAnswer: "D"}})
	if res.Score != 0 || res.Percentage != 0 {
		t.Fatalf("expected score clamped to 0, got %+v", res)
	}
}

func TestScoreBlankUnknownAndRepeatedAnswers(t *testing.T) {
	trade := domain.Trade{NegativeMarking: 1}
	res := app.Score(twoQuestionPaper(), trade, []domain.AnswerSubmission{
		{QuestionID: "ghost", SelectedAnswer: "A"},
		{QuestionID: "q1", SelectedAnswer: "C"},
		{QuestionID: "q1", SelectedAnswer: " A "},
		{QuestionID: "q2", SelectedAnswer: ""},
	})
	if len(res.Answers) != 2 {
		t.Fatalf("expected unknown question ignored, got %+v", res.Answers)
	}
	if res.Score != 2 {
		t.Fatalf("expected last answer to win and blank to cost nothing, got %v", res.Score)
	}
	if res.Status != domain.ResultPass {
		t.Fatalf("expected PASS at 50%% with default threshold, got %s", res.Status)
	}
}

func TestScoreEmptyPaper(t *testing.T) {
	res := app.Score(domain.ExamPaper{}, domain.Trade{}, nil)
	if res.TotalMarks != 0 || res.Percentage != 0 || res.Status != domain.ResultFail {
		t.Fatalf("unexpected empty paper result %+v", res)
	}
}
