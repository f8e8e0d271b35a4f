package postgres

import (
	"time"

	"exam-flow-service/internal/domain"
	"github.com/uptrace/bun"
)

type tradeRow struct {
	bun.BaseModel `bun:"table:trades,alias:t"`

	ID              string  `bun:"id,pk"`
	Name            string  `bun:"name"`
	WP1             bool    `bun:"wp1"`
	WP2             bool    `bun:"wp2"`
	WP3             bool    `bun:"wp3"`
	PR1             bool    `bun:"pr1"`
	PR2             bool    `bun:"pr2"`
	PR3             bool    `bun:"pr3"`
	PR4             bool    `bun:"pr4"`
	PR5             bool    `bun:"pr5"`
	Oral            bool    `bun:"oral"`
	NegativeMarking float64 `bun:"negative_marking"`
	MinPercent      float64 `bun:"min_percent"`
}

func (r tradeRow) toDomain() domain.Trade {
	return domain.Trade{
		ID: r.ID, Name: r.Name,
		WP1: r.WP1, WP2: r.WP2, WP3: r.WP3,
		PR1: r.PR1, PR2: r.PR2, PR3: r.PR3, PR4: r.PR4, PR5: r.PR5,
		Oral:            r.Oral,
		NegativeMarking: r.NegativeMarking,
		MinPercent:      &r.MinPercent,
	}
}

func tradeFromDomain(t domain.Trade) tradeRow {
	return tradeRow{
		ID: t.ID, Name: t.Name,
		WP1: t.WP1, WP2: t.WP2, WP3: t.WP3,
		PR1: t.PR1, PR2: t.PR2, PR3: t.PR3, PR4: t.PR4, PR5: t.PR5,
		Oral:            t.Oral,
		NegativeMarking: t.NegativeMarking,
		MinPercent:      t.PassPercent(),
	}
}

type candidateRow struct {
	bun.BaseModel `bun:"table:candidates,alias:c"`

	ID                string             `bun:"id,pk"`
	ArmyNo            string             `bun:"army_no"`
	Name              string             `bun:"name"`
	Rank              string             `bun:"rank"`
	TradeID           string             `bun:"trade_id"`
	CommandID         string             `bun:"command_id"`
	CenterID          string             `bun:"center_id,nullzero"`
	SelectedExamTypes domain.ExamTypeSet `bun:"selected_exam_types,type:jsonb"`
}

func (r candidateRow) toDomain() domain.Candidate {
	return domain.Candidate{
		ID:                r.ID,
		ArmyNo:            r.ArmyNo,
		Name:              r.Name,
		Rank:              r.Rank,
		TradeID:           r.TradeID,
		CommandID:         r.CommandID,
		CenterID:          r.CenterID,
		SelectedExamTypes: r.SelectedExamTypes,
	}
}

func candidateFromDomain(c domain.Candidate) candidateRow {
	selected := c.SelectedExamTypes
	if selected == nil {
		selected = domain.ExamTypeSet{}
	}
	return candidateRow{
		ID:                c.ID,
		ArmyNo:            c.ArmyNo,
		Name:              c.Name,
		Rank:              c.Rank,
		TradeID:           c.TradeID,
		CommandID:         c.CommandID,
		CenterID:          c.CenterID,
		SelectedExamTypes: selected,
	}
}

type slotRow struct {
	bun.BaseModel `bun:"table:exam_slots,alias:s"`

	ID            string    `bun:"id,pk"`
	TradeID       string    `bun:"trade_id"`
	PaperType     string    `bun:"paper_type"`
	CommandID     string    `bun:"command_id"`
	CenterID      string    `bun:"center_id"`
	StartTime     time.Time `bun:"start_time"`
	EndTime       time.Time `bun:"end_time"`
	MaxCandidates int       `bun:"max_candidates"`
	CurrentCount  int       `bun:"current_count"`
	IsActive      bool      `bun:"is_active"`
}

func (r slotRow) toDomain() domain.ExamSlot {
	return domain.ExamSlot{
		ID:            r.ID,
		TradeID:       r.TradeID,
		PaperType:     domain.PaperType(r.PaperType),
		CommandID:     r.CommandID,
		CenterID:      r.CenterID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		MaxCandidates: r.MaxCandidates,
		CurrentCount:  r.CurrentCount,
		IsActive:      r.IsActive,
	}
}

func slotFromDomain(s domain.ExamSlot) slotRow {
	return slotRow{
		ID:            s.ID,
		TradeID:       s.TradeID,
		PaperType:     string(s.PaperType),
		CommandID:     s.CommandID,
		CenterID:      s.CenterID,
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		MaxCandidates: s.MaxCandidates,
		CurrentCount:  s.CurrentCount,
		IsActive:      s.IsActive,
	}
}

type bindingRow struct {
	bun.BaseModel `bun:"table:exam_slot_candidates,alias:sc"`

	SlotID      string `bun:"slot_id,pk"`
	CandidateID string `bun:"candidate_id,pk"`
}

type paperRow struct {
	bun.BaseModel `bun:"table:exam_papers,alias:p"`

	ID              string `bun:"id,pk"`
	TradeID         string `bun:"trade_id"`
	PaperType       string `bun:"paper_type"`
	Title           string `bun:"title"`
	DurationMinutes int    `bun:"duration_minutes"`
	IsActive        bool   `bun:"is_active"`
}

func (r paperRow) toDomain(questions []questionRow) domain.ExamPaper {
	p := domain.ExamPaper{
		ID:              r.ID,
		TradeID:         r.TradeID,
		PaperType:       domain.PaperType(r.PaperType),
		Title:           r.Title,
		DurationMinutes: r.DurationMinutes,
		IsActive:        r.IsActive,
	}
	for _, q := range questions {
		p.Questions = append(p.Questions, q.toDomain())
	}
	return p
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID            string   `bun:"id,pk"`
	PaperID       string   `bun:"paper_id"`
	Text          string   `bun:"text"`
	Options       []string `bun:"options,type:jsonb"`
	CorrectAnswer string   `bun:"correct_answer"`
	Marks         float64  `bun:"marks"`
	Order         int      `bun:"order_index"`
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question{
		ID:            r.ID,
		PaperID:       r.PaperID,
		Text:          r.Text,
		Options:       r.Options,
		CorrectAnswer: r.CorrectAnswer,
		Marks:         r.Marks,
		Order:         r.Order,
	}
}

type attemptRow struct {
	bun.BaseModel `bun:"table:exam_attempts,alias:a"`

	ID          string     `bun:"id,pk"`
	CandidateID string     `bun:"candidate_id"`
	PaperID     string     `bun:"exam_paper_id"`
	PaperType   string     `bun:"paper_type"`
	SlotID      string     `bun:"slot_id,nullzero"`
	Status      string     `bun:"status"`
	Score       float64    `bun:"score"`
	TotalMarks  float64    `bun:"total_marks"`
	Percentage  float64    `bun:"percentage"`
	Result      string     `bun:"result,nullzero"`
	StartedAt   time.Time  `bun:"started_at"`
	SubmittedAt *time.Time `bun:"submitted_at"`
}

func (r attemptRow) toDomain() domain.ExamAttempt {
	return domain.ExamAttempt{
		ID:          r.ID,
		CandidateID: r.CandidateID,
		PaperID:     r.PaperID,
		PaperType:   domain.PaperType(r.PaperType),
		SlotID:      r.SlotID,
		Status:      domain.AttemptStatus(r.Status),
		Score:       r.Score,
		TotalMarks:  r.TotalMarks,
		Percentage:  r.Percentage,
		Result:      domain.ResultStatus(r.Result),
		StartedAt:   r.StartedAt,
		SubmittedAt: r.SubmittedAt,
	}
}

func attemptFromDomain(a domain.ExamAttempt) attemptRow {
	return attemptRow{
		ID:          a.ID,
		CandidateID: a.CandidateID,
		PaperID:     a.PaperID,
		PaperType:   string(a.PaperType),
		SlotID:      a.SlotID,
		Status:      string(a.Status),
		Score:       a.Score,
		TotalMarks:  a.TotalMarks,
		Percentage:  a.Percentage,
		Result:      string(a.Result),
		StartedAt:   a.StartedAt,
		SubmittedAt: a.SubmittedAt,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:ans"`

	AttemptID      string  `bun:"attempt_id,pk"`
	QuestionID     string  `bun:"question_id,pk"`
	SelectedAnswer string  `bun:"selected_answer"`
	IsCorrect      bool    `bun:"is_correct"`
	MarksObtained  float64 `bun:"marks_obtained"`
}

type marksRow struct {
	bun.BaseModel `bun:"table:practical_marks,alias:pm"`

	CandidateID   string   `bun:"candidate_id,pk"`
	PR1           *float64 `bun:"pr1"`
	PR2           *float64 `bun:"pr2"`
	PR3           *float64 `bun:"pr3"`
	PR4           *float64 `bun:"pr4"`
	PR5           *float64 `bun:"pr5"`
	Oral          *float64 `bun:"oral"`
	GradeOverride *string  `bun:"grade_override"`
	OverallResult *string  `bun:"overall_result"`
}

func (r *marksRow) fields() map[domain.PaperType]**float64 {
	return map[domain.PaperType]**float64{
		domain.PaperPR1:  &r.PR1,
		domain.PaperPR2:  &r.PR2,
		domain.PaperPR3:  &r.PR3,
		domain.PaperPR4:  &r.PR4,
		domain.PaperPR5:  &r.PR5,
		domain.PaperOral: &r.Oral,
	}
}

func (r marksRow) toDomain() domain.PracticalMarks {
	m := domain.PracticalMarks{CandidateID: r.CandidateID, Marks: map[domain.PaperType]float64{}}
	for p, v := range r.fields() {
		if *v != nil {
			m.Marks[p] = **v
		}
	}
	if r.GradeOverride != nil {
		m.GradeOverride = domain.Overridden(*r.GradeOverride)
	}
	if r.OverallResult != nil {
		m.ResultOverride = domain.Overridden(*r.OverallResult)
	}
	return m
}

func marksFromDomain(m domain.PracticalMarks) marksRow {
	r := marksRow{CandidateID: m.CandidateID}
	for p, field := range r.fields() {
		if v, ok := m.Mark(p); ok {
			v := v
			*field = &v
		}
	}
	if v, ok := m.GradeOverride.Value(); ok {
		r.GradeOverride = &v
	}
	if v, ok := m.ResultOverride.Value(); ok {
		r.OverallResult = &v
	}
	return r
}
