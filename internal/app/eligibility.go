package app

import (
	"context"

	"exam-flow-service/internal/domain"
	"go.uber.org/zap"
)

// Resolution is the outcome of eligibility resolution. Paper is empty when the
// candidate has nothing left to take.
type Resolution struct {
	Paper   domain.PaperType `json:"paperType,omitempty"`
	Resumed bool             `json:"resumed"`
	Done    bool             `json:"done"`
	Reason  string           `json:"reason"`
}

const (
	ReasonResume         = "resume open attempt"
	ReasonNext           = "next paper in sequence"
	ReasonAllCompleted   = "all selected papers completed"
	ReasonNothingOffered = "no selected written paper is offered for this trade"
)

// ResolveActivePaper picks the single written paper the candidate may attempt now.
// An open attempt is resumed before the sequence is consulted. Papers the trade
// does not offer are never returned.
func ResolveActivePaper(trade domain.Trade, selected domain.ExamTypeSet, attempts []domain.ExamAttempt) Resolution {
	completed := make(map[domain.PaperType]bool)
	open := make(map[domain.PaperType]bool)
	for _, a := range attempts {
		switch {
		case a.Status == domain.AttemptCompleted:
			completed[a.PaperType] = true
		case a.Status.Open():
			open[a.PaperType] = true
		}
	}

	for _, p := range domain.WrittenSequence {
		if open[p] && trade.Enabled(p) {
			return Resolution{Paper: p, Resumed: true, Reason: ReasonResume}
		}
	}

	offered := 0
	for _, p := range domain.WrittenSequence {
		if !selected.Contains(p) || !trade.Enabled(p) {
			continue
		}
		offered++
		if !completed[p] {
			return Resolution{Paper: p, Reason: ReasonNext}
		}
	}

	if offered == 0 {
		return Resolution{Done: true, Reason: ReasonNothingOffered}
	}
	return Resolution{Done: true, Reason: ReasonAllCompleted}
}

// ResolveActivePaper loads the candidate and reports which paper they may take.
func (s *ExamService) ResolveActivePaper(ctx context.Context, candidateID string) (Resolution, error) {
	if candidateID == "" {
		return Resolution{}, domain.Validationf("candidate id is required")
	}

	var res Resolution
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		res, err = resolveFor(ctx, repo, candidateID)
		return err
	})
	if err != nil {
		return Resolution{}, err
	}

	s.log.Debug("resolved active paper",
		zap.String("candidate_id", candidateID),
		zap.String("paper_type", string(res.Paper)),
		zap.Bool("resumed", res.Resumed),
	)
	return res, nil
}

func resolveFor(ctx context.Context, repo Repository, candidateID string) (Resolution, error) {
	cand, err := repo.GetCandidate(ctx, candidateID)
	if err != nil {
		return Resolution{}, err
	}
	trade, err := repo.GetTrade(ctx, cand.TradeID)
	if err != nil {
		return Resolution{}, err
	}
	attempts, err := repo.ListAttempts(ctx, cand.ID)
	if err != nil {
		return Resolution{}, err
	}
	return ResolveActivePaper(trade, cand.SelectedExamTypes, attempts), nil
}
