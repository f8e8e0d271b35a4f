package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
	"exam-flow-service/internal/infra/postgres"
	pgmigrations "exam-flow-service/internal/infra/postgres/migrations"
	infraredis "exam-flow-service/internal/infra/redis"
	"exam-flow-service/internal/ingest"
	"exam-flow-service/internal/seed"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

type stack struct {
	db      *bun.DB
	store   *postgres.Store
	service *app.ExamService
}

func TestExamFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	res, err := s.service.ResolveActivePaper(ctx, "c1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Paper != domain.PaperWP1 {
		t.Fatalf("expected WP-I, got %+v", res)
	}

	if _, err := s.service.StartExam(ctx, "c1", domain.PaperWP2, ""); !errors.Is(err, domain.ErrSequenceViolation) {
		t.Fatalf("expected sequence violation, got %v", err)
	}

	attempt, err := s.service.StartExam(ctx, "c1", domain.PaperWP1, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if attempt.SlotID != "s-wp1" {
		t.Fatalf("expected slot s-wp1, got %q", attempt.SlotID)
	}
	again, err := s.service.StartExam(ctx, "c1", domain.PaperWP1, "")
	if err != nil || again.ID != attempt.ID {
		t.Fatalf("expected same attempt on restart, got %+v err=%v", again, err)
	}

	paper, err := s.service.GetExamPaper(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("paper: %v", err)
	}
	if len(paper.Questions) != 2 || paper.Questions[0].CorrectAnswer != "" {
		t.Fatalf("unexpected paper %+v", paper)
	}

	result, err := s.service.SubmitExam(ctx, attempt.ID, []domain.AnswerSubmission{
		{QuestionID: "q1", SelectedAnswer: "a"},
		{QuestionID: "q2", SelectedAnswer: "A"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 1.5 || result.Percentage != 37.5 || result.Status != domain.ResultFail {
		t.Fatalf("unexpected result %+v", result)
	}
	stored, err := s.service.SubmitExam(ctx, attempt.ID, nil)
	if err != nil || stored.Score != 1.5 || len(stored.Answers) != 2 {
		t.Fatalf("expected stored result on resubmit, got %+v err=%v", stored, err)
	}

	var slot domain.ExamSlot
	err = s.store.View(ctx, func(ctx context.Context, repo app.Repository) error {
		var err error
		slot, err = repo.GetSlot(ctx, "s-wp1")
		return err
	})
	if err != nil || slot.CurrentCount != 1 {
		t.Fatalf("expected occupancy 1, got %+v err=%v", slot, err)
	}

	sheet, err := s.service.GetCandidateResult(ctx, "c1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if sheet.OverallResult != string(domain.ResultFail) {
		t.Fatalf("unexpected overall %+v", sheet.Overall)
	}
}

func TestConcurrentStartsCreateOneAttempt(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := s.service.StartExam(ctx, "c1", domain.PaperWP1, "")
			ids[i], errs[i] = a.ID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("workers got different attempts: %v", ids)
		}
	}
	n, err := s.db.NewSelect().Table("exam_attempts").Where("candidate_id = ?", "c1").Count(ctx)
	if err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one attempt row, got %d", n)
	}
}

func TestImportAndPracticalMarks(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	sheet := "trade,paper_type,question,option_a,option_b,correct_answer,marks\n" +
		"Clerk,WP-II,Imported?,yes,no,yes,2\n" +
		"Clerk,WP-III,Disabled?,yes,no,A,1\n"
	summary, err := ingest.ImportCSV(ctx, s.service, strings.NewReader(sheet))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Created != 1 || summary.ByReason[domain.ReasonPaperDisabled] != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	err = s.store.View(ctx, func(ctx context.Context, repo app.Repository) error {
		paper, err := repo.FindPaper(ctx, "t-clerk", domain.PaperWP2)
		if err != nil {
			return err
		}
		if len(paper.Questions) != 2 || paper.Questions[1].CorrectAnswer != "A" {
			return fmt.Errorf("unexpected questions %+v", paper.Questions)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	pr1, oral := 70.0, 40.0
	marks, err := s.service.RecordPracticalMarks(ctx, "c1", app.PracticalMarksInput{PR1: &pr1, Oral: &oral})
	if err != nil {
		t.Fatalf("practical marks: %v", err)
	}
	if v, ok := marks.Mark(domain.PaperPR1); !ok || v != 70 {
		t.Fatalf("unexpected marks %+v", marks)
	}
	sheetResult, err := s.service.GetCandidateResult(ctx, "c1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(sheetResult.Practical) != 2 || sheetResult.Practical[0].Percent == nil {
		t.Fatalf("practical marks missing from result %+v", sheetResult.Practical)
	}
}

func newStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(pgURL))), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	store := postgres.NewStore(db)
	if _, err := seed.Apply(ctx, store, fixture()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	log := zap.NewNop()
	papers := infraredis.NewPaperCache(redisClient, postgres.NewPaperLoader(pool), 5*time.Minute, log)
	guard := infraredis.NewStartGuard(redisClient, 10*time.Second, 2*time.Second, log)
	return &stack{db: db, store: store, service: app.NewExamService(store, papers, guard, log)}
}

func fixture() seed.Fixture {
	now := time.Now().UTC()
	return seed.Fixture{
		Trades: []domain.Trade{{
			ID: "t-clerk", Name: "Clerk", WP1: true, WP2: true, PR1: true, Oral: true,
			NegativeMarking: 0.5,
		}},
		Candidates: []domain.Candidate{{
			ID: "c1", ArmyNo: "A-1001", Name: "Ravi", TradeID: "t-clerk", CommandID: "C", CenterID: "Z",
			SelectedExamTypes: domain.NewExamTypeSet(domain.PaperWP1, domain.PaperWP2),
		}},
		Papers: []seed.Paper{
			{ID: "p-wp1", TradeID: "t-clerk", PaperType: "WP-I", Title: "Clerk WP-I", Questions: []seed.Question{
				{ID: "q1", Text: "First?", Options: []string{"yes", "no"}, CorrectAnswer: "A", Marks: 2},
				{ID: "q2", Text: "Second?", Options: []string{"yes", "no"}, CorrectAnswer: "B", Marks: 2},
			}},
			{ID: "p-wp2", TradeID: "t-clerk", PaperType: "WP-II", Title: "Clerk WP-II", Questions: []seed.Question{
				{ID: "q3", Text: "Third?", Options: []string{"a", "b", "c"}, CorrectAnswer: "C", Marks: 1},
			}},
		},
		Slots: []seed.Slot{
			{ID: "s-wp1", TradeID: "t-clerk", PaperType: "WP-I", CommandID: "C", CenterID: "Z",
				StartTime: now.Add(-time.Hour), EndTime: now.Add(2 * time.Hour), MaxCandidates: 10},
			{ID: "s-wp2", TradeID: "t-clerk", PaperType: "WP-II", CommandID: "C", CenterID: "Z",
				StartTime: now.Add(-time.Hour), EndTime: now.Add(2 * time.Hour), MaxCandidates: 10},
		},
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
