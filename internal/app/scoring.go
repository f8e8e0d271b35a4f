package app

import (
	"math"
	"strings"

	"exam-flow-service/internal/domain"
)

// Score evaluates submissions against the paper's answer key using the trade's
// negative marking and pass threshold.
//
// Unknown question ids are ignored. When a question is answered more than once
// the last submission wins. Blank answers earn nothing and cost nothing.
func Score(paper domain.ExamPaper, trade domain.Trade, submissions []domain.AnswerSubmission) domain.ScoreResult {
	byID := make(map[string]domain.Question, len(paper.Questions))
	for _, q := range paper.Questions {
		byID[q.ID] = q
	}

	penalty := math.Max(trade.NegativeMarking, 0)
	selected := make(map[string]string, len(submissions))
	order := make([]string, 0, len(submissions))
	for _, sub := range submissions {
		if _, ok := byID[sub.QuestionID]; !ok {
			continue
		}
		if _, seen := selected[sub.QuestionID]; !seen {
			order = append(order, sub.QuestionID)
		}
		selected[sub.QuestionID] = strings.TrimSpace(sub.SelectedAnswer)
	}

	score := 0.0
	answers := make([]domain.Answer, 0, len(order))
	for _, qid := range order {
		q := byID[qid]
		answer := domain.Answer{QuestionID: qid, SelectedAnswer: selected[qid]}
		switch {
		case answer.SelectedAnswer == "":
		case strings.EqualFold(answer.SelectedAnswer, strings.TrimSpace(q.CorrectAnswer)):
			answer.IsCorrect = true
			answer.MarksObtained = q.Marks
		default:
			answer.MarksObtained = -penalty
		}
		score += answer.MarksObtained
		answers = append(answers, answer)
	}
	if score < 0 {
		score = 0
	}

	total := paper.TotalMarks()
	raw := 0.0
	if total > 0 {
		raw = score / total * 100
	}

	status := domain.ResultFail
	if raw >= trade.PassPercent() {
		status = domain.ResultPass
	}

	return domain.ScoreResult{
		Score:      score,
		TotalMarks: total,
		Percentage: round2(raw),
		Status:     status,
		Answers:    answers,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
