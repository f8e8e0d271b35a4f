// Package seed loads master data fixtures (trades, candidates, papers, slots)
// from YAML into a store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
	"gopkg.in/yaml.v3"
)

type Fixture struct {
	Trades     []domain.Trade     `yaml:"trades"`
	Candidates []domain.Candidate `yaml:"candidates"`
	Papers     []Paper            `yaml:"papers"`
	Slots      []Slot             `yaml:"slots"`
}

type Paper struct {
	ID              string     `yaml:"id"`
	TradeID         string     `yaml:"trade_id"`
	PaperType       string     `yaml:"paper_type"`
	Title           string     `yaml:"title"`
	DurationMinutes int        `yaml:"duration_minutes"`
	Inactive        bool       `yaml:"inactive"`
	Questions       []Question `yaml:"questions"`
}

type Question struct {
	ID            string   `yaml:"id"`
	Text          string   `yaml:"text"`
	Options       []string `yaml:"options"`
	CorrectAnswer string   `yaml:"correct_answer"`
	Marks         float64  `yaml:"marks"`
}

type Slot struct {
	ID            string    `yaml:"id"`
	TradeID       string    `yaml:"trade_id"`
	PaperType     string    `yaml:"paper_type"`
	CommandID     string    `yaml:"command_id"`
	CenterID      string    `yaml:"center_id"`
	StartTime     time.Time `yaml:"start_time"`
	EndTime       time.Time `yaml:"end_time"`
	MaxCandidates int       `yaml:"max_candidates"`
	Inactive      bool      `yaml:"inactive"`
}

// Stats counts what Apply wrote.
type Stats struct {
	Trades     int
	Candidates int
	Papers     int
	Questions  int
	Slots      int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d trades, %d candidates, %d papers, %d questions, %d slots",
		s.Trades, s.Candidates, s.Papers, s.Questions, s.Slots)
}

// Parse decodes a fixture document.
func Parse(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return f, nil
}

// LoadFile reads a fixture from disk.
func LoadFile(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Apply upserts the fixture in one transaction. Questions are only added to
// papers that have none yet, so reapplying a fixture is harmless.
func Apply(ctx context.Context, store app.Store, f Fixture) (Stats, error) {
	var stats Stats
	err := store.WithinTx(ctx, func(ctx context.Context, repo app.Repository) error {
		stats = Stats{}
		for _, t := range f.Trades {
			if err := repo.SaveTrade(ctx, t); err != nil {
				return fmt.Errorf("trade %s: %w", t.ID, err)
			}
			stats.Trades++
		}
		for _, c := range f.Candidates {
			c.SelectedExamTypes = domain.NewExamTypeSet(c.SelectedExamTypes...)
			if err := repo.SaveCandidate(ctx, c); err != nil {
				return fmt.Errorf("candidate %s: %w", c.ID, err)
			}
			stats.Candidates++
		}
		for _, p := range f.Papers {
			n, err := applyPaper(ctx, repo, p)
			if err != nil {
				return fmt.Errorf("paper %s: %w", p.ID, err)
			}
			stats.Papers++
			stats.Questions += n
		}
		for _, s := range f.Slots {
			if err := applySlot(ctx, repo, s); err != nil {
				return fmt.Errorf("slot %s: %w", s.ID, err)
			}
			stats.Slots++
		}
		return nil
	})
	return stats, err
}

func applyPaper(ctx context.Context, repo app.Repository, p Paper) (int, error) {
	paperType, err := domain.ParsePaperType(p.PaperType)
	if err != nil {
		return 0, err
	}
	if !paperType.IsWritten() {
		return 0, domain.Validationf("%s is not a written paper", paperType)
	}
	minutes := p.DurationMinutes
	if minutes <= 0 {
		minutes = 60
	}
	paper := domain.ExamPaper{
		ID:              p.ID,
		TradeID:         p.TradeID,
		PaperType:       paperType,
		Title:           p.Title,
		DurationMinutes: minutes,
		IsActive:        !p.Inactive,
	}
	existing, err := repo.GetPaper(ctx, p.ID)
	switch {
	case err == nil && len(existing.Questions) > 0:
		return 0, repo.SavePaper(ctx, paper)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return 0, err
	}
	if err := repo.SavePaper(ctx, paper); err != nil {
		return 0, err
	}

	questions := make([]domain.Question, 0, len(p.Questions))
	for i, q := range p.Questions {
		id := q.ID
		if id == "" {
			id = fmt.Sprintf("%s-q%d", p.ID, i+1)
		}
		questions = append(questions, domain.Question{
			ID:            id,
			PaperID:       p.ID,
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Marks:         q.Marks,
			Order:         i + 1,
		})
	}
	return len(questions), repo.AddQuestions(ctx, p.ID, questions)
}

func applySlot(ctx context.Context, repo app.Repository, s Slot) error {
	paperType, err := domain.ParsePaperType(s.PaperType)
	if err != nil {
		return err
	}
	_, err = repo.GetSlot(ctx, s.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return repo.CreateSlot(ctx, domain.ExamSlot{
		ID:            s.ID,
		TradeID:       s.TradeID,
		PaperType:     paperType,
		CommandID:     s.CommandID,
		CenterID:      s.CenterID,
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		MaxCandidates: s.MaxCandidates,
		IsActive:      !s.Inactive,
	})
}
