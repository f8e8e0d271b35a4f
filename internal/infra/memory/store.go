package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
)

// Store is an in-memory app.Store. Transactions run on a copy of the state that
// replaces the live state only when the unit of work succeeds.
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, &repo{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, repo app.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &repo{st: s.state.clone()})
}

// LoadPaper satisfies PaperLoader so the store can back a PaperCache.
func (s *Store) LoadPaper(ctx context.Context, paperID string) (domain.ExamPaper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&repo{st: s.state}).GetPaper(ctx, paperID)
}

type state struct {
	trades     map[string]domain.Trade
	candidates map[string]domain.Candidate
	slots      map[string]domain.ExamSlot
	bindings   map[string]map[string]bool // slot id -> candidate ids
	papers     map[string]domain.ExamPaper
	attempts   map[string]domain.ExamAttempt
	answers    map[string][]domain.Answer
	marks      map[string]domain.PracticalMarks
}

func newState() *state {
	return &state{
		trades:     map[string]domain.Trade{},
		candidates: map[string]domain.Candidate{},
		slots:      map[string]domain.ExamSlot{},
		bindings:   map[string]map[string]bool{},
		papers:     map[string]domain.ExamPaper{},
		attempts:   map[string]domain.ExamAttempt{},
		answers:    map[string][]domain.Answer{},
		marks:      map[string]domain.PracticalMarks{},
	}
}

// clone copies every map. Slices held in values are never mutated in place,
// so they can be shared.
func (st *state) clone() *state {
	out := newState()
	for k, v := range st.trades {
		out.trades[k] = v
	}
	for k, v := range st.candidates {
		out.candidates[k] = v
	}
	for k, v := range st.slots {
		out.slots[k] = v
	}
	for k, v := range st.bindings {
		set := make(map[string]bool, len(v))
		for c := range v {
			set[c] = true
		}
		out.bindings[k] = set
	}
	for k, v := range st.papers {
		out.papers[k] = v
	}
	for k, v := range st.attempts {
		out.attempts[k] = v
	}
	for k, v := range st.answers {
		out.answers[k] = v
	}
	for k, v := range st.marks {
		out.marks[k] = v
	}
	return out
}

type repo struct {
	st *state
}

func (r *repo) GetTrade(_ context.Context, id string) (domain.Trade, error) {
	t, ok := r.st.trades[id]
	if !ok {
		return domain.Trade{}, domain.NotFoundf("trade %s not found", id)
	}
	return t, nil
}

func (r *repo) FindTradeByName(_ context.Context, name string) (domain.Trade, error) {
	for _, t := range r.st.trades {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return domain.Trade{}, domain.NotFoundf("trade %q not found", name)
}

func (r *repo) SaveTrade(_ context.Context, trade domain.Trade) error {
	r.st.trades[trade.ID] = trade
	return nil
}

func (r *repo) GetCandidate(_ context.Context, id string) (domain.Candidate, error) {
	c, ok := r.st.candidates[id]
	if !ok {
		return domain.Candidate{}, domain.NotFoundf("candidate %s not found", id)
	}
	return c, nil
}

func (r *repo) ListCandidates(_ context.Context, tradeID, commandID string) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for _, c := range r.st.candidates {
		if c.TradeID == tradeID && c.CommandID == commandID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) SaveCandidate(_ context.Context, candidate domain.Candidate) error {
	for id, c := range r.st.candidates {
		if id != candidate.ID && candidate.ArmyNo != "" && c.ArmyNo == candidate.ArmyNo {
			return domain.Conflictf("army number %s already registered", candidate.ArmyNo)
		}
	}
	r.st.candidates[candidate.ID] = candidate
	return nil
}

// LockCandidate only checks existence; the store mutex already serializes transactions.
func (r *repo) LockCandidate(ctx context.Context, id string) error {
	_, err := r.GetCandidate(ctx, id)
	return err
}

func (r *repo) GetSlot(_ context.Context, id string) (domain.ExamSlot, error) {
	s, ok := r.st.slots[id]
	if !ok {
		return domain.ExamSlot{}, domain.NotFoundf("slot %s not found", id)
	}
	return s, nil
}

func (r *repo) LockSlot(ctx context.Context, id string) (domain.ExamSlot, error) {
	return r.GetSlot(ctx, id)
}

func (r *repo) FindSlots(_ context.Context, f app.SlotFilter) ([]domain.ExamSlot, error) {
	var out []domain.ExamSlot
	for _, s := range r.st.slots {
		switch {
		case f.TradeID != "" && s.TradeID != f.TradeID,
			f.PaperType != "" && s.PaperType != f.PaperType,
			f.CommandID != "" && s.CommandID != f.CommandID,
			f.CenterID != "" && s.CenterID != f.CenterID,
			f.ActiveOnly && !s.IsActive,
			!f.EndsAfter.IsZero() && !s.EndTime.After(f.EndsAfter):
			continue
		}
		out = append(out, s)
	}
	sortSlots(out)
	return out, nil
}

func (r *repo) CreateSlot(_ context.Context, slot domain.ExamSlot) error {
	if _, ok := r.st.slots[slot.ID]; ok {
		return domain.Conflictf("slot %s already exists", slot.ID)
	}
	r.st.slots[slot.ID] = slot
	return nil
}

func (r *repo) DeleteSlot(_ context.Context, id string) error {
	if _, ok := r.st.slots[id]; !ok {
		return domain.NotFoundf("slot %s not found", id)
	}
	delete(r.st.slots, id)
	delete(r.st.bindings, id)
	for attemptID, a := range r.st.attempts {
		if a.SlotID == id {
			a.SlotID = ""
			r.st.attempts[attemptID] = a
		}
	}
	return nil
}

func (r *repo) BindCandidate(_ context.Context, slotID, candidateID string) error {
	if _, ok := r.st.slots[slotID]; !ok {
		return domain.NotFoundf("slot %s not found", slotID)
	}
	if _, ok := r.st.candidates[candidateID]; !ok {
		return domain.NotFoundf("candidate %s not found", candidateID)
	}
	set, ok := r.st.bindings[slotID]
	if !ok {
		set = map[string]bool{}
		r.st.bindings[slotID] = set
	}
	set[candidateID] = true
	return nil
}

func (r *repo) CountBindings(_ context.Context, slotID string) (int, error) {
	return len(r.st.bindings[slotID]), nil
}

func (r *repo) SetSlotCount(_ context.Context, slotID string, count int) error {
	s, ok := r.st.slots[slotID]
	if !ok {
		return domain.NotFoundf("slot %s not found", slotID)
	}
	s.CurrentCount = count
	r.st.slots[slotID] = s
	return nil
}

func (r *repo) CandidateSlots(_ context.Context, candidateID string) ([]domain.ExamSlot, error) {
	var out []domain.ExamSlot
	for slotID, set := range r.st.bindings {
		if set[candidateID] {
			out = append(out, r.st.slots[slotID])
		}
	}
	sortSlots(out)
	return out, nil
}

func sortSlots(slots []domain.ExamSlot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].StartTime.Equal(slots[j].StartTime) {
			return slots[i].StartTime.Before(slots[j].StartTime)
		}
		return slots[i].ID < slots[j].ID
	})
}

func (r *repo) GetPaper(_ context.Context, id string) (domain.ExamPaper, error) {
	p, ok := r.st.papers[id]
	if !ok {
		return domain.ExamPaper{}, domain.NotFoundf("paper %s not found", id)
	}
	return p, nil
}

func (r *repo) FindPaper(_ context.Context, tradeID string, paperType domain.PaperType) (domain.ExamPaper, error) {
	for _, p := range r.st.papers {
		if p.TradeID == tradeID && p.PaperType == paperType {
			return p, nil
		}
	}
	return domain.ExamPaper{}, domain.NotFoundf("no %s paper for trade %s", paperType, tradeID)
}

// SavePaper upserts the paper header and keeps the questions already stored.
func (r *repo) SavePaper(_ context.Context, paper domain.ExamPaper) error {
	for id, p := range r.st.papers {
		if id != paper.ID && p.TradeID == paper.TradeID && p.PaperType == paper.PaperType {
			return domain.Conflictf("trade %s already has a %s paper", paper.TradeID, paper.PaperType)
		}
	}
	if existing, ok := r.st.papers[paper.ID]; ok {
		paper.Questions = existing.Questions
	} else {
		paper.Questions = nil
	}
	r.st.papers[paper.ID] = paper
	return nil
}

func (r *repo) AddQuestions(_ context.Context, paperID string, questions []domain.Question) error {
	p, ok := r.st.papers[paperID]
	if !ok {
		return domain.NotFoundf("paper %s not found", paperID)
	}
	merged := make([]domain.Question, 0, len(p.Questions)+len(questions))
	merged = append(merged, p.Questions...)
	for _, q := range questions {
		q.PaperID = paperID
		merged = append(merged, q)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Order < merged[j].Order })
	p.Questions = merged
	r.st.papers[paperID] = p
	return nil
}

func (r *repo) GetAttempt(_ context.Context, id string) (domain.ExamAttempt, error) {
	a, ok := r.st.attempts[id]
	if !ok {
		return domain.ExamAttempt{}, domain.NotFoundf("attempt %s not found", id)
	}
	return a, nil
}

func (r *repo) LockAttempt(ctx context.Context, id string) (domain.ExamAttempt, error) {
	return r.GetAttempt(ctx, id)
}

func (r *repo) ListAttempts(_ context.Context, candidateID string) ([]domain.ExamAttempt, error) {
	var out []domain.ExamAttempt
	for _, a := range r.st.attempts {
		if a.CandidateID == candidateID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *repo) FindOpenAttempt(_ context.Context, candidateID, paperID string) (domain.ExamAttempt, error) {
	for _, a := range r.st.attempts {
		if a.CandidateID == candidateID && a.PaperID == paperID && a.Status.Open() {
			return a, nil
		}
	}
	return domain.ExamAttempt{}, domain.NotFoundf("no open attempt for candidate %s", candidateID)
}

func (r *repo) CreateAttempt(ctx context.Context, attempt domain.ExamAttempt) error {
	if attempt.Status.Open() {
		if _, err := r.FindOpenAttempt(ctx, attempt.CandidateID, attempt.PaperID); err == nil {
			return domain.ErrDuplicateAttempt
		}
	}
	if _, ok := r.st.attempts[attempt.ID]; ok {
		return domain.Conflictf("attempt %s already exists", attempt.ID)
	}
	r.st.attempts[attempt.ID] = attempt
	return nil
}

func (r *repo) UpdateAttempt(_ context.Context, attempt domain.ExamAttempt) error {
	if _, ok := r.st.attempts[attempt.ID]; !ok {
		return domain.NotFoundf("attempt %s not found", attempt.ID)
	}
	r.st.attempts[attempt.ID] = attempt
	return nil
}

func (r *repo) DeleteAttempt(_ context.Context, id string) error {
	if _, ok := r.st.attempts[id]; !ok {
		return domain.NotFoundf("attempt %s not found", id)
	}
	delete(r.st.attempts, id)
	delete(r.st.answers, id)
	return nil
}

func (r *repo) ReplaceAnswers(_ context.Context, attemptID string, answers []domain.Answer) error {
	r.st.answers[attemptID] = append([]domain.Answer(nil), answers...)
	return nil
}

func (r *repo) ListAnswers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	return append([]domain.Answer(nil), r.st.answers[attemptID]...), nil
}

func (r *repo) GetPracticalMarks(_ context.Context, candidateID string) (domain.PracticalMarks, error) {
	m, ok := r.st.marks[candidateID]
	if !ok {
		return domain.PracticalMarks{}, domain.NotFoundf("no practical marks for candidate %s", candidateID)
	}
	return m, nil
}

func (r *repo) SavePracticalMarks(_ context.Context, marks domain.PracticalMarks) error {
	copied := make(map[domain.PaperType]float64, len(marks.Marks))
	for k, v := range marks.Marks {
		copied[k] = v
	}
	marks.Marks = copied
	r.st.marks[marks.CandidateID] = marks
	return nil
}
