package app

import (
	"context"
	"time"

	"exam-flow-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Catalog reads (and, for seeding, writes) master data.
type Catalog interface {
	GetTrade(ctx context.Context, id string) (domain.Trade, error)
	FindTradeByName(ctx context.Context, name string) (domain.Trade, error)
	SaveTrade(ctx context.Context, trade domain.Trade) error
	GetCandidate(ctx context.Context, id string) (domain.Candidate, error)
	// ListCandidates returns every candidate of a trade and command, ordered by id.
	ListCandidates(ctx context.Context, tradeID, commandID string) ([]domain.Candidate, error)
	SaveCandidate(ctx context.Context, candidate domain.Candidate) error
	// LockCandidate serializes concurrent requests for one candidate inside a transaction.
	LockCandidate(ctx context.Context, id string) error
}

// SlotFilter selects slots by scope. An empty CenterID matches any center.
type SlotFilter struct {
	TradeID    string
	PaperType  domain.PaperType
	CommandID  string
	CenterID   string
	ActiveOnly bool
	EndsAfter  time.Time
}

// SlotRepository stores slots and their candidate bindings.
type SlotRepository interface {
	GetSlot(ctx context.Context, id string) (domain.ExamSlot, error)
	LockSlot(ctx context.Context, id string) (domain.ExamSlot, error)
	// FindSlots returns matching slots ordered by start time.
	FindSlots(ctx context.Context, filter SlotFilter) ([]domain.ExamSlot, error)
	CreateSlot(ctx context.Context, slot domain.ExamSlot) error
	DeleteSlot(ctx context.Context, id string) error
	// BindCandidate is idempotent; binding twice is not an error.
	BindCandidate(ctx context.Context, slotID, candidateID string) error
	CountBindings(ctx context.Context, slotID string) (int, error)
	SetSlotCount(ctx context.Context, slotID string, count int) error
	CandidateSlots(ctx context.Context, candidateID string) ([]domain.ExamSlot, error)
}

// PaperRepository stores papers and their questions.
type PaperRepository interface {
	GetPaper(ctx context.Context, id string) (domain.ExamPaper, error)
	FindPaper(ctx context.Context, tradeID string, paperType domain.PaperType) (domain.ExamPaper, error)
	SavePaper(ctx context.Context, paper domain.ExamPaper) error
	AddQuestions(ctx context.Context, paperID string, questions []domain.Question) error
}

// AttemptRepository stores attempts and answers.
type AttemptRepository interface {
	GetAttempt(ctx context.Context, id string) (domain.ExamAttempt, error)
	LockAttempt(ctx context.Context, id string) (domain.ExamAttempt, error)
	ListAttempts(ctx context.Context, candidateID string) ([]domain.ExamAttempt, error)
	FindOpenAttempt(ctx context.Context, candidateID, paperID string) (domain.ExamAttempt, error)
	// CreateAttempt returns domain.ErrDuplicateAttempt when an open attempt for
	// the same (candidate, paper) already exists.
	CreateAttempt(ctx context.Context, attempt domain.ExamAttempt) error
	UpdateAttempt(ctx context.Context, attempt domain.ExamAttempt) error
	// DeleteAttempt removes the attempt together with its answers.
	DeleteAttempt(ctx context.Context, id string) error
	ReplaceAnswers(ctx context.Context, attemptID string, answers []domain.Answer) error
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
}

// MarksRepository stores admin-entered practical marks.
type MarksRepository interface {
	GetPracticalMarks(ctx context.Context, candidateID string) (domain.PracticalMarks, error)
	SavePracticalMarks(ctx context.Context, marks domain.PracticalMarks) error
}

// Repository is the full set of operations available inside a transaction.
type Repository interface {
	Catalog
	SlotRepository
	PaperRepository
	AttemptRepository
	MarksRepository
}

// Store runs units of work atomically (Postgres, in-memory).
type Store interface {
	// WithinTx commits when fn returns nil and rolls everything back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	// View runs read-only work.
	View(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// PaperSource loads full papers for display (cache in front of the store).
type PaperSource interface {
	GetPaper(ctx context.Context, paperID string) (domain.ExamPaper, error)
	Invalidate(ctx context.Context, paperID string)
}

// StartGuard serializes start requests for one key across service instances.
type StartGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ExamService contains the exam-flow use cases.
type ExamService struct {
	store    Store
	papers   PaperSource
	guard    StartGuard
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// Option customizes an ExamService.
type Option func(*ExamService)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *ExamService) { s.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *ExamService) { s.newID = newID }
}

func NewExamService(store Store, papers PaperSource, guard StartGuard, log *zap.Logger, opts ...Option) *ExamService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ExamService{
		store:    store,
		papers:   papers,
		guard:    guard,
		log:      log,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
