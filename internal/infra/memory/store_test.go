package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
)

func TestStoreRollsBackFailedTx(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, repo app.Repository) error {
		if err := repo.SaveTrade(ctx, domain.Trade{ID: "t1", Name: "Clerk"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = store.View(ctx, func(ctx context.Context, repo app.Repository) error {
		_, err := repo.GetTrade(ctx, "t1")
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected rolled back trade, got %v", err)
	}
}

func TestStoreRejectsSecondOpenAttempt(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(ctx context.Context, repo app.Repository) error {
		first := domain.ExamAttempt{ID: "a1", CandidateID: "c1", PaperID: "p1", Status: domain.AttemptInProgress, StartedAt: now}
		if err := repo.CreateAttempt(ctx, first); err != nil {
			return err
		}
		second := first
		second.ID = "a2"
		if err := repo.CreateAttempt(ctx, second); !errors.Is(err, domain.ErrDuplicateAttempt) {
			t.Fatalf("expected duplicate attempt, got %v", err)
		}

		first.Status = domain.AttemptCompleted
		if err := repo.UpdateAttempt(ctx, first); err != nil {
			return err
		}
		return repo.CreateAttempt(ctx, second)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestStoreBindingIsIdempotent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(ctx context.Context, repo app.Repository) error {
		if err := repo.SaveCandidate(ctx, domain.Candidate{ID: "c1", ArmyNo: "A1"}); err != nil {
			return err
		}
		if err := repo.CreateSlot(ctx, domain.ExamSlot{ID: "s1", EndTime: end, IsActive: true}); err != nil {
			return err
		}
		for i := 0; i < 2; i++ {
			if err := repo.BindCandidate(ctx, "s1", "c1"); err != nil {
				return err
			}
		}
		n, err := repo.CountBindings(ctx, "s1")
		if err != nil {
			return err
		}
		if n != 1 {
			t.Fatalf("expected one binding, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestStoreFindSlotsCenterFilter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(ctx context.Context, repo app.Repository) error {
		for _, s := range []domain.ExamSlot{
			{ID: "late", TradeID: "t1", PaperType: domain.PaperWP1, CommandID: "C", CenterID: "Z", StartTime: base.Add(2 * time.Hour), EndTime: base.Add(3 * time.Hour), IsActive: true},
			{ID: "early", TradeID: "t1", PaperType: domain.PaperWP1, CommandID: "C", CenterID: "Y", StartTime: base, EndTime: base.Add(time.Hour), IsActive: true},
		} {
			if err := repo.CreateSlot(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	_ = store.View(ctx, func(ctx context.Context, repo app.Repository) error {
		all, _ := repo.FindSlots(ctx, app.SlotFilter{TradeID: "t1", PaperType: domain.PaperWP1, CommandID: "C"})
		if len(all) != 2 || all[0].ID != "early" {
			t.Fatalf("expected both slots ordered by start, got %+v", all)
		}
		scoped, _ := repo.FindSlots(ctx, app.SlotFilter{TradeID: "t1", PaperType: domain.PaperWP1, CommandID: "C", CenterID: "Z"})
		if len(scoped) != 1 || scoped[0].ID != "late" {
			t.Fatalf("expected center Z only, got %+v", scoped)
		}
		return nil
	})
}
