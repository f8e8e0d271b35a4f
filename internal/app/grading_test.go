package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
)

func completed(p domain.PaperType, score, total float64, at time.Time) domain.ExamAttempt {
	return domain.ExamAttempt{
		ID:          string(p) + at.Format("150405"),
		PaperType:   p,
		Status:      domain.AttemptCompleted,
		Score:       score,
		TotalMarks:  total,
		SubmittedAt: &at,
	}
}

func TestComputeOverallRequiresEveryComponent(t *testing.T) {
	trade := domain.Trade{WP1: true, PR1: true}
	attempts := []domain.ExamAttempt{completed(domain.PaperWP1, 80, 100, baseTime)}
	marks := domain.PracticalMarks{Marks: map[domain.PaperType]float64{domain.PaperPR1: 70}}

	got := app.ComputeOverall(trade, attempts, marks)
	if got.OverallPercent == nil || *got.OverallPercent != 75 {
		t.Fatalf("expected 75%% overall, got %v", got.OverallPercent)
	}
	if got.Grade == "A" {
		t.Fatalf("grade A requires every component at 75%%")
	}
	if got.Grade != "B" || got.OverallResult != "PASS" {
		t.Fatalf("expected B/PASS, got %s/%s", got.Grade, got.OverallResult)
	}
}

func TestComputeOverallGradeA(t *testing.T) {
	trade := domain.Trade{WP1: true, Oral: true}
	attempts := []domain.ExamAttempt{completed(domain.PaperWP1, 90, 100, baseTime)}
	marks := domain.PracticalMarks{Marks: map[domain.PaperType]float64{domain.PaperOral: 40}}

	got := app.ComputeOverall(trade, attempts, marks)
	if got.Grade != "A" {
		t.Fatalf("expected A, got %s (%v)", got.Grade, *got.OverallPercent)
	}
	if got.Practical[0].MaxMarks != 50 || *got.Practical[0].Percent != 80 {
		t.Fatalf("oral should be measured against 50, got %+v", got.Practical[0])
	}
}

func TestComputeOverallBandsUseUnroundedPercent(t *testing.T) {
	trade := domain.Trade{WP1: true, Oral: true}
	attempts := []domain.ExamAttempt{completed(domain.PaperWP1, 74.996, 100, baseTime)}
	marks := domain.PracticalMarks{Marks: map[domain.PaperType]float64{domain.PaperOral: 50}}

	got := app.ComputeOverall(trade, attempts, marks)
	if *got.Written[0].Percent != 75 {
		t.Fatalf("expected displayed 75%%, got %v", *got.Written[0].Percent)
	}
	if got.Grade != "B" {
		t.Fatalf("74.996%% must not meet the A component threshold, got %s", got.Grade)
	}
}

func TestComputeOverallUsesLatestAttemptAndSkipsNA(t *testing.T) {
	trade := domain.Trade{WP1: true, WP2: true, PR2: true}
	attempts := []domain.ExamAttempt{
		completed(domain.PaperWP1, 10, 100, baseTime),
		completed(domain.PaperWP1, 45, 100, baseTime.Add(time.Hour)),
		{ID: "open", PaperType: domain.PaperWP2, Status: domain.AttemptInProgress},
	}

	got := app.ComputeOverall(trade, attempts, domain.PracticalMarks{})
	if *got.Written[0].Percent != 45 {
		t.Fatalf("expected latest WP-I attempt, got %+v", got.Written[0])
	}
	if got.Written[1].Percent != nil || got.Written[1].Status != domain.ResultNA {
		t.Fatalf("expected WP-II NA, got %+v", got.Written[1])
	}
	if got.Practical[0].Status != domain.ResultNA {
		t.Fatalf("expected PR-II NA, got %+v", got.Practical[0])
	}
	if got.Grade != "D" {
		t.Fatalf("expected D from a single 45%% component, got %s", got.Grade)
	}
}

func TestComputeOverallFallbackAndNA(t *testing.T) {
	trade := domain.Trade{WP1: true}
	low := app.ComputeOverall(trade, []domain.ExamAttempt{completed(domain.PaperWP1, 1, 10, baseTime)}, domain.PracticalMarks{})
	if low.Grade != app.FallbackGrade || low.OverallResult != "FAIL" {
		t.Fatalf("expected F/FAIL, got %s/%s", low.Grade, low.OverallResult)
	}

	none := app.ComputeOverall(trade, nil, domain.PracticalMarks{})
	if none.Grade != app.GradeNA || none.OverallResult != "NA" || none.OverallPercent != nil {
		t.Fatalf("expected NA with nothing entered, got %+v", none)
	}
}

func TestComputeOverallOverridesWin(t *testing.T) {
	trade := domain.Trade{WP1: true}
	marks := domain.PracticalMarks{
		GradeOverride:  domain.Overridden("B"),
		ResultOverride: domain.Overridden("ABSENT"),
	}
	got := app.ComputeOverall(trade, []domain.ExamAttempt{completed(domain.PaperWP1, 1, 10, baseTime)}, marks)
	if got.Grade != "B" || !got.GradeOverride {
		t.Fatalf("expected grade override, got %+v", got)
	}
	if got.OverallResult != "ABSENT" || !got.ResultOverride {
		t.Fatalf("expected result override, got %+v", got)
	}
}

func TestRecordPracticalMarksAndResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complete(t, domain.PaperWP1)

	pr1, oral := 90.0, 45.0
	if _, err := f.service.RecordPracticalMarks(ctx, "c1", app.PracticalMarksInput{PR1: &pr1, Oral: &oral}); err != nil {
		t.Fatalf("record marks: %v", err)
	}

	res, err := f.service.GetCandidateResult(ctx, "c1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.TradeName != "Clerk" || len(res.Written) != 2 || len(res.Practical) != 2 {
		t.Fatalf("unexpected components %+v", res)
	}
	if res.Written[0].Status != domain.ResultPass || res.Written[1].Status != domain.ResultNA {
		t.Fatalf("unexpected written results %+v", res.Written)
	}
	// WP-I 4/4, PR-I 90/100, ORAL 45/50 -> 139/154
	if res.Grade != "A" || res.OverallResult != "PASS" {
		t.Fatalf("expected A/PASS, got %s/%s", res.Grade, res.OverallResult)
	}
}

func TestRecordPracticalMarksValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tooHigh := 51.0
	if _, err := f.service.RecordPracticalMarks(ctx, "c1", app.PracticalMarksInput{Oral: &tooHigh}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error above max, got %v", err)
	}
	disabled := 10.0
	if _, err := f.service.RecordPracticalMarks(ctx, "c1", app.PracticalMarksInput{PR3: &disabled}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for disabled component, got %v", err)
	}
	negative := -1.0
	if _, err := f.service.RecordPracticalMarks(ctx, "c1", app.PracticalMarksInput{PR1: &negative}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for negative mark, got %v", err)
	}
	if _, err := f.service.RecordPracticalMarks(ctx, "ghost", app.PracticalMarksInput{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
