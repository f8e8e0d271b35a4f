package app

import (
	"context"
	"errors"
	"fmt"

	"exam-flow-service/internal/domain"
	"go.uber.org/zap"
)

// GradeBand is one row of the grading table.
type GradeBand struct {
	Grade        string
	MinComponent float64
	MinOverall   float64
}

// GradeBands is evaluated from the highest grade down.
var GradeBands = []GradeBand{
	{Grade: "A", MinComponent: 75, MinOverall: 80},
	{Grade: "B", MinComponent: 60, MinOverall: 65},
	{Grade: "C", MinComponent: 50, MinOverall: 55},
	{Grade: "D", MinComponent: 40, MinOverall: 40},
}

const (
	FallbackGrade = "F"
	GradeNA       = "NA"
)

// ComponentResult is one paper's contribution to the overall result.
// Percent is nil when nothing has been entered for the component.
type ComponentResult struct {
	PaperType domain.PaperType    `json:"paperType"`
	Obtained  float64             `json:"obtained"`
	MaxMarks  float64             `json:"maxMarks"`
	Percent   *float64            `json:"percent"`
	Status    domain.ResultStatus `json:"status"`
}

// Overall is the aggregated grade for a candidate.
type Overall struct {
	Grade          string            `json:"grade"`
	GradeOverride  bool              `json:"gradeOverridden"`
	OverallResult  string            `json:"overallResult"`
	ResultOverride bool              `json:"resultOverridden"`
	OverallPercent *float64          `json:"overallPercent"`
	Written        []ComponentResult `json:"written"`
	Practical      []ComponentResult `json:"practical"`
}

// ComputeOverall combines the latest completed written attempts and the practical
// marks into one grade. Components without data are reported as NA and left out
// of both the sums and the per-component thresholds.
func ComputeOverall(trade domain.Trade, attempts []domain.ExamAttempt, practical domain.PracticalMarks) Overall {
	latest := latestCompleted(attempts)
	pass := trade.PassPercent()

	var out Overall
	var obtained, possible float64
	// thresholds are checked on unrounded percentages
	var entered []float64

	for _, p := range domain.WrittenSequence {
		if !trade.Enabled(p) {
			continue
		}
		c := ComponentResult{PaperType: p, Status: domain.ResultNA}
		if a, ok := latest[p]; ok {
			c.Obtained, c.MaxMarks = a.Score, a.TotalMarks
			c.Percent = percentOf(a.Score, a.TotalMarks)
		}
		out.Written = append(out.Written, c)
	}
	for _, p := range domain.PracticalComponents {
		if !trade.Enabled(p) {
			continue
		}
		c := ComponentResult{PaperType: p, MaxMarks: domain.PracticalMaxMarks[p], Status: domain.ResultNA}
		if mark, ok := practical.Mark(p); ok {
			c.Obtained = mark
			c.Percent = percentOf(mark, c.MaxMarks)
		}
		out.Practical = append(out.Practical, c)
	}

	for _, group := range [][]ComponentResult{out.Written, out.Practical} {
		for i := range group {
			c := &group[i]
			if c.Percent == nil {
				continue
			}
			raw := rawPercent(c.Obtained, c.MaxMarks)
			c.Status = domain.ResultFail
			if raw >= pass {
				c.Status = domain.ResultPass
			}
			obtained += c.Obtained
			possible += c.MaxMarks
			entered = append(entered, raw)
		}
	}

	var overall *float64
	if len(entered) > 0 {
		raw := rawPercent(obtained, possible)
		overall = &raw
		out.OverallPercent = percentOf(obtained, possible)
	}

	out.Grade = computedGrade(entered, overall)
	if v, ok := practical.GradeOverride.Value(); ok {
		out.Grade, out.GradeOverride = v, true
	}

	switch {
	case overall == nil:
		out.OverallResult = string(domain.ResultNA)
	case *overall >= pass:
		out.OverallResult = string(domain.ResultPass)
	default:
		out.OverallResult = string(domain.ResultFail)
	}
	if v, ok := practical.ResultOverride.Value(); ok {
		out.OverallResult, out.ResultOverride = v, true
	}
	return out
}

func computedGrade(components []float64, overall *float64) string {
	if overall == nil {
		return GradeNA
	}
	for _, band := range GradeBands {
		if *overall < band.MinOverall {
			continue
		}
		ok := true
		for _, pct := range components {
			if pct < band.MinComponent {
				ok = false
				break
			}
		}
		if ok {
			return band.Grade
		}
	}
	return FallbackGrade
}

func latestCompleted(attempts []domain.ExamAttempt) map[domain.PaperType]domain.ExamAttempt {
	out := make(map[domain.PaperType]domain.ExamAttempt)
	for _, a := range attempts {
		if a.Status != domain.AttemptCompleted {
			continue
		}
		prev, ok := out[a.PaperType]
		if !ok || submittedAfter(a, prev) {
			out[a.PaperType] = a
		}
	}
	return out
}

func submittedAfter(a, b domain.ExamAttempt) bool {
	switch {
	case a.SubmittedAt == nil:
		return false
	case b.SubmittedAt == nil:
		return true
	}
	return a.SubmittedAt.After(*b.SubmittedAt)
}

func rawPercent(obtained, possible float64) float64 {
	if possible <= 0 {
		return 0
	}
	return obtained / possible * 100
}

// percentOf is the rounded percentage shown on result sheets.
func percentOf(obtained, possible float64) *float64 {
	pct := round2(rawPercent(obtained, possible))
	return &pct
}

// CandidateResult is the full result sheet for one candidate.
type CandidateResult struct {
	Candidate domain.Candidate `json:"candidate"`
	TradeName string           `json:"tradeName"`
	Overall
}

// GetCandidateResult aggregates everything recorded for the candidate.
func (s *ExamService) GetCandidateResult(ctx context.Context, candidateID string) (CandidateResult, error) {
	var out CandidateResult
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
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
		marks, err := repo.GetPracticalMarks(ctx, cand.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		out = CandidateResult{
			Candidate: cand,
			TradeName: trade.Name,
			Overall:   ComputeOverall(trade, attempts, marks),
		}
		return nil
	})
	return out, err
}

// PracticalMarksInput is an admin entry of practical marks. A nil mark leaves the
// component unentered; a nil override leaves grading computed.
type PracticalMarksInput struct {
	PR1           *float64 `json:"pr1" validate:"omitempty,gte=0"`
	PR2           *float64 `json:"pr2" validate:"omitempty,gte=0"`
	PR3           *float64 `json:"pr3" validate:"omitempty,gte=0"`
	PR4           *float64 `json:"pr4" validate:"omitempty,gte=0"`
	PR5           *float64 `json:"pr5" validate:"omitempty,gte=0"`
	Oral          *float64 `json:"oral" validate:"omitempty,gte=0"`
	GradeOverride *string  `json:"gradeOverride" validate:"omitempty,max=16"`
	OverallResult *string  `json:"overallResult" validate:"omitempty,max=32"`
}

func (in PracticalMarksInput) marks() map[domain.PaperType]*float64 {
	return map[domain.PaperType]*float64{
		domain.PaperPR1:  in.PR1,
		domain.PaperPR2:  in.PR2,
		domain.PaperPR3:  in.PR3,
		domain.PaperPR4:  in.PR4,
		domain.PaperPR5:  in.PR5,
		domain.PaperOral: in.Oral,
	}
}

// RecordPracticalMarks replaces the candidate's practical marks and overrides.
func (s *ExamService) RecordPracticalMarks(ctx context.Context, candidateID string, in PracticalMarksInput) (domain.PracticalMarks, error) {
	if err := s.validate.Struct(in); err != nil {
		return domain.PracticalMarks{}, domain.Validationf("invalid practical marks: %v", err)
	}

	var saved domain.PracticalMarks
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		cand, err := repo.GetCandidate(ctx, candidateID)
		if err != nil {
			return err
		}
		trade, err := repo.GetTrade(ctx, cand.TradeID)
		if err != nil {
			return err
		}

		marks := domain.PracticalMarks{CandidateID: cand.ID, Marks: map[domain.PaperType]float64{}}
		for p, v := range in.marks() {
			if v == nil {
				continue
			}
			if !trade.Enabled(p) {
				return domain.Validationf("trade %s does not offer %s", trade.Name, p)
			}
			if limit := domain.PracticalMaxMarks[p]; *v > limit {
				return domain.Validationf("%s mark %.2f exceeds maximum %.0f", p, *v, limit)
			}
			marks.Marks[p] = *v
		}
		if in.GradeOverride != nil {
			marks.GradeOverride = domain.Overridden(*in.GradeOverride)
		}
		if in.OverallResult != nil {
			marks.ResultOverride = domain.Overridden(*in.OverallResult)
		}

		if err := repo.SavePracticalMarks(ctx, marks); err != nil {
			return fmt.Errorf("save practical marks: %w", err)
		}
		saved = marks
		return nil
	})
	if err != nil {
		return domain.PracticalMarks{}, err
	}

	_, gradeOverridden := saved.GradeOverride.Value()
	s.log.Info("practical marks recorded",
		zap.String("candidate_id", candidateID),
		zap.Int("components", len(saved.Marks)),
		zap.Bool("grade_override", gradeOverridden),
	)
	return saved, nil
}
