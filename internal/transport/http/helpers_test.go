package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
	"exam-flow-service/internal/infra/memory"
	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	seedStore(t, store)
	service := app.NewExamService(store, memory.NewPaperCache(store, time.Minute), memory.NewStartGuard(), nil)

	server := httptest.NewServer(NewRouter(NewAPI(service, nil), NewWSHandler(service, nil), nil))
	t.Cleanup(server.Close)
	return server
}

func seedStore(t *testing.T, store *memory.Store) {
	t.Helper()
	now := time.Now()
	err := store.WithinTx(context.Background(), func(ctx context.Context, repo app.Repository) error {
		if err := repo.SaveTrade(ctx, domain.Trade{
			ID: "t-clerk", Name: "Clerk", WP1: true, WP2: true, NegativeMarking: 0.5,
		}); err != nil {
			return err
		}
		if err := repo.SaveCandidate(ctx, domain.Candidate{
			ID:                "c1",
			ArmyNo:            "A-1001",
			Name:              "Ravi",
			TradeID:           "t-clerk",
			CommandID:         "C",
			CenterID:          "Z",
			SelectedExamTypes: domain.NewExamTypeSet(domain.PaperWP1, domain.PaperWP2),
		}); err != nil {
			return err
		}
		papers := []domain.ExamPaper{
			{ID: "p-wp1", TradeID: "t-clerk", PaperType: domain.PaperWP1, Title: "Clerk WP-I", DurationMinutes: 60, IsActive: true},
			{ID: "p-wp2", TradeID: "t-clerk", PaperType: domain.PaperWP2, Title: "Clerk WP-II", DurationMinutes: 60, IsActive: true},
		}
		for _, p := range papers {
			if err := repo.SavePaper(ctx, p); err != nil {
				return err
			}
		}
		if err := repo.AddQuestions(ctx, "p-wp1", []domain.Question{
			{ID: "q1", Text: "First?", Options: []string{"yes", "no"}, CorrectAnswer: "A", Marks: 2, Order: 1},
			{ID: "q2", Text: "Second?", Options: []string{"yes", "no"}, CorrectAnswer: "B", Marks: 2, Order: 2},
		}); err != nil {
			return err
		}
		if err := repo.AddQuestions(ctx, "p-wp2", []domain.Question{
			{ID: "q3", Text: "Third?", Options: []string{"a", "b", "c"}, CorrectAnswer: "C", Marks: 1, Order: 1},
		}); err != nil {
			return err
		}
		for _, p := range []domain.PaperType{domain.PaperWP1, domain.PaperWP2} {
			if err := repo.CreateSlot(ctx, domain.ExamSlot{
				ID:        "s-" + string(p),
				TradeID:   "t-clerk",
				PaperType: p,
				CommandID: "C",
				CenterID:  "Z",
				StartTime: now.Add(-time.Hour),
				EndTime:   now.Add(2 * time.Hour),
				IsActive:  true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

// doJSON sends body as JSON (when non-nil) and decodes the response into out.
func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

type errorResponse struct {
	Error errorBody `json:"error"`
}
