package app

import (
	"context"
	"errors"
	"fmt"

	"exam-flow-service/internal/domain"
	"go.uber.org/zap"
)

// StartExam opens (or returns the already open) attempt for the candidate's
// current written paper. slotID may be empty, in which case a slot is found.
func (s *ExamService) StartExam(ctx context.Context, candidateID string, paperType domain.PaperType, slotID string) (domain.ExamAttempt, error) {
	if candidateID == "" {
		return domain.ExamAttempt{}, domain.Validationf("candidate id is required")
	}
	if !paperType.IsWritten() {
		return domain.ExamAttempt{}, domain.Validationf("%q is not a written paper", paperType)
	}

	release, err := s.guard.Acquire(ctx, fmt.Sprintf("start:%s:%s", candidateID, paperType))
	if err != nil {
		return domain.ExamAttempt{}, err
	}
	defer release()

	var (
		attempt domain.ExamAttempt
		resumed bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockCandidate(ctx, candidateID); err != nil {
			return err
		}
		cand, err := repo.GetCandidate(ctx, candidateID)
		if err != nil {
			return err
		}
		trade, err := repo.GetTrade(ctx, cand.TradeID)
		if err != nil {
			return err
		}
		attempts, err := repo.ListAttempts(ctx, cand.ID)
		if err != nil {
			return err
		}
		if res := ResolveActivePaper(trade, cand.SelectedExamTypes, attempts); res.Paper != paperType {
			return domain.SequenceViolation(paperType, res.Paper)
		}

		paper, err := repo.FindPaper(ctx, trade.ID, paperType)
		if err != nil {
			return err
		}
		if !paper.IsActive {
			return domain.NotFoundf("no active %s paper for trade %s", paperType, trade.Name)
		}

		open, err := repo.FindOpenAttempt(ctx, cand.ID, paper.ID)
		switch {
		case err == nil:
			attempt, resumed = open, true
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		slot, err := s.slotForStart(ctx, repo, cand, paperType, slotID)
		if err != nil {
			return err
		}

		now := s.now()
		next := domain.ExamAttempt{
			ID:          s.newID(),
			CandidateID: cand.ID,
			PaperID:     paper.ID,
			PaperType:   paperType,
			SlotID:      slot.ID,
			Status:      domain.AttemptInProgress,
			TotalMarks:  paper.TotalMarks(),
			StartedAt:   now,
		}
		err = repo.CreateAttempt(ctx, next)
		if errors.Is(err, domain.ErrDuplicateAttempt) {
			attempt, err = repo.FindOpenAttempt(ctx, cand.ID, paper.ID)
			resumed = true
			return err
		}
		if err != nil {
			return err
		}
		attempt = next
		return nil
	})
	if err != nil {
		return domain.ExamAttempt{}, err
	}

	s.log.Info("exam started",
		zap.String("candidate_id", candidateID),
		zap.String("attempt_id", attempt.ID),
		zap.String("paper_type", string(paperType)),
		zap.String("slot_id", attempt.SlotID),
		zap.Bool("resumed", resumed),
	)
	return attempt, nil
}

// slotForStart binds the requested slot, or finds one when none was requested.
func (s *ExamService) slotForStart(ctx context.Context, repo Repository, cand domain.Candidate, paperType domain.PaperType, slotID string) (domain.ExamSlot, error) {
	if slotID == "" {
		return s.ensureSlot(ctx, repo, cand, paperType)
	}
	slot, err := repo.GetSlot(ctx, slotID)
	if err != nil {
		return domain.ExamSlot{}, err
	}
	if !slot.Fits(cand, paperType) {
		return domain.ExamSlot{}, domain.Validationf("slot %s is not scheduled for this candidate and paper", slotID)
	}
	if !slot.Assignable(s.now()) {
		return domain.ExamSlot{}, domain.Validationf("slot %s is closed", slotID)
	}
	return s.bindWithCapacity(ctx, repo, slot.ID, cand.ID)
}

// SubmitExam scores an open attempt and completes it. Submitting a completed
// attempt again returns the stored result without rescoring.
func (s *ExamService) SubmitExam(ctx context.Context, attemptID string, submissions []domain.AnswerSubmission) (domain.ScoreResult, error) {
	if attemptID == "" {
		return domain.ScoreResult{}, domain.Validationf("attempt id is required")
	}

	var (
		result  domain.ScoreResult
		already bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		attempt, err := repo.LockAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status == domain.AttemptCompleted {
			answers, err := repo.ListAnswers(ctx, attempt.ID)
			if err != nil {
				return err
			}
			result, already = storedResult(attempt, answers), true
			return nil
		}

		paper, err := repo.GetPaper(ctx, attempt.PaperID)
		if err != nil {
			return err
		}
		cand, err := repo.GetCandidate(ctx, attempt.CandidateID)
		if err != nil {
			return err
		}
		trade, err := repo.GetTrade(ctx, cand.TradeID)
		if err != nil {
			return err
		}

		result = Score(paper, trade, submissions)
		result.AttemptID = attempt.ID
		for i := range result.Answers {
			result.Answers[i].AttemptID = attempt.ID
		}
		if err := repo.ReplaceAnswers(ctx, attempt.ID, result.Answers); err != nil {
			return err
		}

		submitted := s.now()
		attempt.Status = domain.AttemptCompleted
		attempt.Score = result.Score
		attempt.TotalMarks = result.TotalMarks
		attempt.Percentage = result.Percentage
		attempt.Result = result.Status
		attempt.SubmittedAt = &submitted
		return repo.UpdateAttempt(ctx, attempt)
	})
	if err != nil {
		return domain.ScoreResult{}, err
	}

	if already {
		s.log.Info("completed attempt resubmitted", zap.String("attempt_id", attemptID))
	} else {
		s.log.Info("exam submitted",
			zap.String("attempt_id", attemptID),
			zap.Float64("score", result.Score),
			zap.Float64("percentage", result.Percentage),
			zap.String("status", string(result.Status)),
		)
	}
	return result, nil
}

func storedResult(attempt domain.ExamAttempt, answers []domain.Answer) domain.ScoreResult {
	return domain.ScoreResult{
		AttemptID:  attempt.ID,
		Score:      attempt.Score,
		TotalMarks: attempt.TotalMarks,
		Percentage: attempt.Percentage,
		Status:     attempt.Result,
		Answers:    answers,
	}
}

// ReassignAttempt deletes a completed attempt and its answers so the candidate
// can sit the paper again.
func (s *ExamService) ReassignAttempt(ctx context.Context, attemptID string) error {
	var attempt domain.ExamAttempt
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		attempt, err = repo.LockAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status != domain.AttemptCompleted {
			return domain.Conflictf("attempt %s is %s; only completed attempts can be reassigned", attemptID, attempt.Status)
		}
		return repo.DeleteAttempt(ctx, attemptID)
	})
	if err != nil {
		return err
	}
	s.log.Info("attempt reassigned",
		zap.String("attempt_id", attemptID),
		zap.String("candidate_id", attempt.CandidateID),
		zap.String("paper_type", string(attempt.PaperType)),
	)
	return nil
}

// GetExamPaper returns the questions of an open attempt without the answer key.
func (s *ExamService) GetExamPaper(ctx context.Context, attemptID string) (domain.ExamPaper, error) {
	var attempt domain.ExamAttempt
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		attempt, err = repo.GetAttempt(ctx, attemptID)
		return err
	})
	if err != nil {
		return domain.ExamPaper{}, err
	}
	if !attempt.Status.Open() {
		return domain.ExamPaper{}, domain.Conflictf("attempt %s is already %s", attemptID, attempt.Status)
	}

	paper, err := s.papers.GetPaper(ctx, attempt.PaperID)
	if err != nil {
		return domain.ExamPaper{}, err
	}
	return paper.WithoutKey(), nil
}
