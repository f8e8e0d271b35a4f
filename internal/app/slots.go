package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"exam-flow-service/internal/domain"
	"go.uber.org/zap"
)

// CreateSlotInput is what an admin supplies to open a slot.
type CreateSlotInput struct {
	TradeID       string    `json:"tradeId" validate:"required"`
	PaperType     string    `json:"paperType" validate:"required"`
	CommandID     string    `json:"commandId" validate:"required"`
	CenterID      string    `json:"centerId" validate:"required"`
	StartTime     time.Time `json:"startTime" validate:"required"`
	EndTime       time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	MaxCandidates int       `json:"maxCandidates" validate:"gte=0"`
}

// CreatedSlot is a new slot plus the candidates bound to it on creation.
type CreatedSlot struct {
	Slot     domain.ExamSlot `json:"slot"`
	Assigned []string        `json:"assigned"`
}

// EnsureSlot binds the candidate to a slot for the paper, reusing an existing binding.
func (s *ExamService) EnsureSlot(ctx context.Context, candidateID string, paperType domain.PaperType) (domain.ExamSlot, error) {
	var slot domain.ExamSlot
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockCandidate(ctx, candidateID); err != nil {
			return err
		}
		cand, err := repo.GetCandidate(ctx, candidateID)
		if err != nil {
			return err
		}
		slot, err = s.ensureSlot(ctx, repo, cand, paperType)
		return err
	})
	return slot, err
}

func (s *ExamService) ensureSlot(ctx context.Context, repo Repository, cand domain.Candidate, paperType domain.PaperType) (domain.ExamSlot, error) {
	now := s.now()

	if held, ok, err := heldSlot(ctx, repo, cand.ID, paperType, now); err != nil {
		return domain.ExamSlot{}, err
	} else if ok {
		return held, nil
	}

	slots, err := repo.FindSlots(ctx, SlotFilter{
		TradeID:    cand.TradeID,
		PaperType:  paperType,
		CommandID:  cand.CommandID,
		CenterID:   cand.CenterID,
		ActiveOnly: true,
		EndsAfter:  now,
	})
	if err != nil {
		return domain.ExamSlot{}, err
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].StartTime.Equal(slots[j].StartTime) {
			return slots[i].StartTime.Before(slots[j].StartTime)
		}
		return slots[i].ID < slots[j].ID
	})

	for _, option := range slots {
		if !option.Fits(cand, paperType) || !option.Assignable(now) {
			continue
		}
		slot, err := s.bindWithCapacity(ctx, repo, option.ID, cand.ID)
		if errors.Is(err, domain.ErrCapacity) {
			continue
		}
		if err != nil {
			return domain.ExamSlot{}, err
		}
		s.log.Info("candidate bound to slot",
			zap.String("candidate_id", cand.ID),
			zap.String("slot_id", slot.ID),
			zap.String("paper_type", string(paperType)),
			zap.Int("current_count", slot.CurrentCount),
		)
		return slot, nil
	}

	center := cand.CenterID
	if center == "" {
		center = "any"
	}
	return domain.ExamSlot{}, domain.Capacityf("no slot available for %s (command %s, center %s)", paperType, cand.CommandID, center)
}

// heldSlot finds a binding the candidate already has for the paper type.
func heldSlot(ctx context.Context, repo Repository, candidateID string, paperType domain.PaperType, now time.Time) (domain.ExamSlot, bool, error) {
	held, err := repo.CandidateSlots(ctx, candidateID)
	if err != nil {
		return domain.ExamSlot{}, false, err
	}
	for _, slot := range held {
		if slot.PaperType == paperType && slot.Assignable(now) {
			return slot, true, nil
		}
	}
	return domain.ExamSlot{}, false, nil
}

// bindWithCapacity locks the slot, checks room and binds. Binding a candidate that
// is already on the slot always succeeds.
func (s *ExamService) bindWithCapacity(ctx context.Context, repo Repository, slotID, candidateID string) (domain.ExamSlot, error) {
	slot, err := repo.LockSlot(ctx, slotID)
	if err != nil {
		return domain.ExamSlot{}, err
	}
	count, err := repo.CountBindings(ctx, slotID)
	if err != nil {
		return domain.ExamSlot{}, err
	}
	if !slot.HasRoom(count) && !boundTo(ctx, repo, slotID, candidateID) {
		return domain.ExamSlot{}, domain.Capacityf("slot %s is full", slotID)
	}
	return bindAndRecount(ctx, repo, slot, candidateID)
}

func boundTo(ctx context.Context, repo Repository, slotID, candidateID string) bool {
	held, err := repo.CandidateSlots(ctx, candidateID)
	if err != nil {
		return false
	}
	for _, slot := range held {
		if slot.ID == slotID {
			return true
		}
	}
	return false
}

// bindAndRecount binds idempotently and derives the occupancy from the bindings.
func bindAndRecount(ctx context.Context, repo Repository, slot domain.ExamSlot, candidateID string) (domain.ExamSlot, error) {
	if err := repo.BindCandidate(ctx, slot.ID, candidateID); err != nil {
		return domain.ExamSlot{}, err
	}
	return recount(ctx, repo, slot)
}

func recount(ctx context.Context, repo Repository, slot domain.ExamSlot) (domain.ExamSlot, error) {
	count, err := repo.CountBindings(ctx, slot.ID)
	if err != nil {
		return domain.ExamSlot{}, err
	}
	if err := repo.SetSlotCount(ctx, slot.ID, count); err != nil {
		return domain.ExamSlot{}, err
	}
	slot.CurrentCount = count
	return slot, nil
}

// CreateSlot opens a slot and binds every waiting candidate it fits, up to capacity.
func (s *ExamService) CreateSlot(ctx context.Context, in CreateSlotInput) (CreatedSlot, error) {
	if err := s.validate.Struct(in); err != nil {
		return CreatedSlot{}, domain.Validationf("invalid slot: %v", err)
	}
	paperType, err := domain.ParsePaperType(in.PaperType)
	if err != nil {
		return CreatedSlot{}, err
	}
	if !paperType.IsWritten() {
		return CreatedSlot{}, domain.Validationf("slots are only scheduled for written papers, got %s", paperType)
	}
	now := s.now()
	if !in.EndTime.After(now) {
		return CreatedSlot{}, domain.Validationf("slot ends at %s which is already past", in.EndTime.Format(time.RFC3339))
	}

	var out CreatedSlot
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		trade, err := repo.GetTrade(ctx, in.TradeID)
		if err != nil {
			return err
		}
		if !trade.Enabled(paperType) {
			return domain.Validationf("trade %s does not offer %s", trade.Name, paperType)
		}

		slot := domain.ExamSlot{
			ID:            s.newID(),
			TradeID:       trade.ID,
			PaperType:     paperType,
			CommandID:     in.CommandID,
			CenterID:      in.CenterID,
			StartTime:     in.StartTime,
			EndTime:       in.EndTime,
			MaxCandidates: in.MaxCandidates,
			IsActive:      true,
		}
		if err := repo.CreateSlot(ctx, slot); err != nil {
			return err
		}

		assigned, err := s.autoAssign(ctx, repo, slot, now)
		if err != nil {
			return err
		}
		slot, err = recount(ctx, repo, slot)
		if err != nil {
			return err
		}
		out = CreatedSlot{Slot: slot, Assigned: assigned}
		return nil
	})
	if err != nil {
		return CreatedSlot{}, err
	}

	s.log.Info("slot created",
		zap.String("slot_id", out.Slot.ID),
		zap.String("trade_id", out.Slot.TradeID),
		zap.String("paper_type", string(out.Slot.PaperType)),
		zap.Int("auto_assigned", len(out.Assigned)),
	)
	return out, nil
}

func (s *ExamService) autoAssign(ctx context.Context, repo Repository, slot domain.ExamSlot, now time.Time) ([]string, error) {
	candidates, err := repo.ListCandidates(ctx, slot.TradeID, slot.CommandID)
	if err != nil {
		return nil, err
	}

	assigned := []string{}
	count := 0
	for _, cand := range candidates {
		if !slot.HasRoom(count) {
			break
		}
		if !slot.Fits(cand, slot.PaperType) || !cand.SelectedExamTypes.Contains(slot.PaperType) {
			continue
		}
		_, held, err := heldSlot(ctx, repo, cand.ID, slot.PaperType, now)
		if err != nil {
			return nil, err
		}
		if held {
			continue
		}
		if err := repo.BindCandidate(ctx, slot.ID, cand.ID); err != nil {
			return nil, err
		}
		assigned = append(assigned, cand.ID)
		count++
	}
	return assigned, nil
}

// DeleteSlot removes a slot that has no candidates bound.
func (s *ExamService) DeleteSlot(ctx context.Context, slotID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.LockSlot(ctx, slotID); err != nil {
			return err
		}
		count, err := repo.CountBindings(ctx, slotID)
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.Conflictf("slot %s still has %d candidate(s) bound", slotID, count)
		}
		return repo.DeleteSlot(ctx, slotID)
	})
	if err != nil {
		return err
	}
	s.log.Info("slot deleted", zap.String("slot_id", slotID))
	return nil
}
