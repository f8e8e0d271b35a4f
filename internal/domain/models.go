package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultMinPercent applies when a trade has no pass threshold configured.
const DefaultMinPercent = 40

// Trade is the business configuration shared by every candidate of a trade.
type Trade struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	WP1             bool     `json:"wp1" yaml:"wp1"`
	WP2             bool     `json:"wp2" yaml:"wp2"`
	WP3             bool     `json:"wp3" yaml:"wp3"`
	PR1             bool     `json:"pr1" yaml:"pr1"`
	PR2             bool     `json:"pr2" yaml:"pr2"`
	PR3             bool     `json:"pr3" yaml:"pr3"`
	PR4             bool     `json:"pr4" yaml:"pr4"`
	PR5             bool     `json:"pr5" yaml:"pr5"`
	Oral            bool     `json:"oral" yaml:"oral"`
	NegativeMarking float64  `json:"negativeMarking" yaml:"negative_marking"`
	MinPercent      *float64 `json:"minPercent,omitempty" yaml:"min_percent"`
}

// Enabled reports whether the trade offers the paper.
func (t Trade) Enabled(p PaperType) bool {
	switch p {
	case PaperWP1:
		return t.WP1
	case PaperWP2:
		return t.WP2
	case PaperWP3:
		return t.WP3
	case PaperPR1:
		return t.PR1
	case PaperPR2:
		return t.PR2
	case PaperPR3:
		return t.PR3
	case PaperPR4:
		return t.PR4
	case PaperPR5:
		return t.PR5
	case PaperOral:
		return t.Oral
	}
	return false
}

// EnabledPapers lists written papers first, then practical components.
func (t Trade) EnabledPapers() []PaperType {
	var out []PaperType
	for _, p := range WrittenSequence {
		if t.Enabled(p) {
			out = append(out, p)
		}
	}
	for _, p := range PracticalComponents {
		if t.Enabled(p) {
			out = append(out, p)
		}
	}
	return out
}

// PassPercent is the pass threshold. An unset MinPercent means
// DefaultMinPercent; an explicit 0 passes everyone.
func (t Trade) PassPercent() float64 {
	if t.MinPercent == nil {
		return DefaultMinPercent
	}
	return *t.MinPercent
}

// Candidate is a registered examinee. CenterID is empty for centerless candidates.
type Candidate struct {
	ID                string      `json:"id" yaml:"id"`
	ArmyNo            string      `json:"armyNo" yaml:"army_no"`
	Name              string      `json:"name" yaml:"name"`
	Rank              string      `json:"rank" yaml:"rank"`
	TradeID           string      `json:"tradeId" yaml:"trade_id"`
	CommandID         string      `json:"commandId" yaml:"command_id"`
	CenterID          string      `json:"centerId,omitempty" yaml:"center_id"`
	SelectedExamTypes ExamTypeSet `json:"selectedExamTypes" yaml:"selected_exam_types"`
}

// ExamSlot is a time-boxed sitting for one (trade, paper, command, center).
type ExamSlot struct {
	ID            string    `json:"id"`
	TradeID       string    `json:"tradeId"`
	PaperType     PaperType `json:"paperType"`
	CommandID     string    `json:"commandId"`
	CenterID      string    `json:"centerId"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	MaxCandidates int       `json:"maxCandidates"`
	CurrentCount  int       `json:"currentCount"`
	IsActive      bool      `json:"isActive"`
}

// Assignable reports whether candidates may still be bound at now. A slot that
// already started stays assignable until it ends.
func (s ExamSlot) Assignable(now time.Time) bool {
	return s.IsActive && now.Before(s.EndTime)
}

// HasRoom reports whether count bindings leave space. MaxCandidates <= 0 is unlimited.
func (s ExamSlot) HasRoom(count int) bool {
	return s.MaxCandidates <= 0 || count < s.MaxCandidates
}

// Fits reports whether the slot is scoped to the candidate and paper.
func (s ExamSlot) Fits(c Candidate, p PaperType) bool {
	if s.TradeID != c.TradeID || s.PaperType != p || s.CommandID != c.CommandID {
		return false
	}
	return c.CenterID == "" || s.CenterID == c.CenterID
}

// Option letters in display order.
var OptionLetters = []string{"A", "B", "C", "D"}

// Question is a single-answer MCQ.
type Question struct {
	ID            string   `json:"id"`
	PaperID       string   `json:"paperId"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
	Marks         float64  `json:"marks"`
	Order         int      `json:"order"`
}

// ExamPaper is the question set for one (trade, paper type).
type ExamPaper struct {
	ID              string     `json:"id"`
	TradeID         string     `json:"tradeId"`
	PaperType       PaperType  `json:"paperType"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"durationMinutes"`
	IsActive        bool       `json:"isActive"`
	Questions       []Question `json:"questions"`
}

// TotalMarks sums the marks of every question.
func (p ExamPaper) TotalMarks() float64 {
	total := 0.0
	for _, q := range p.Questions {
		total += q.Marks
	}
	return total
}

// WithoutKey returns a copy safe to show a candidate.
func (p ExamPaper) WithoutKey() ExamPaper {
	out := p
	out.Questions = make([]Question, len(p.Questions))
	for i, q := range p.Questions {
		q.CorrectAnswer = ""
		out.Questions[i] = q
	}
	return out
}

type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "PENDING"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptCompleted  AttemptStatus = "COMPLETED"
)

// Open reports whether the attempt still blocks a new one for the same paper.
func (s AttemptStatus) Open() bool {
	return s == AttemptPending || s == AttemptInProgress
}

type ResultStatus string

const (
	ResultPass ResultStatus = "PASS"
	ResultFail ResultStatus = "FAIL"
	ResultNA   ResultStatus = "NA"
)

// ExamAttempt is one sitting of one paper by one candidate.
type ExamAttempt struct {
	ID          string        `json:"id"`
	CandidateID string        `json:"candidateId"`
	PaperID     string        `json:"paperId"`
	PaperType   PaperType     `json:"paperType"`
	SlotID      string        `json:"slotId,omitempty"`
	Status      AttemptStatus `json:"status"`
	Score       float64       `json:"score"`
	TotalMarks  float64       `json:"totalMarks"`
	Percentage  float64       `json:"percentage"`
	Result      ResultStatus  `json:"result,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	SubmittedAt *time.Time    `json:"submittedAt,omitempty"`
}

// Answer is the scored response to one question.
type Answer struct {
	AttemptID      string  `json:"attemptId"`
	QuestionID     string  `json:"questionId"`
	SelectedAnswer string  `json:"selectedAnswer"`
	IsCorrect      bool    `json:"isCorrect"`
	MarksObtained  float64 `json:"marksObtained"`
}

// AnswerSubmission is what the candidate sends for one question.
type AnswerSubmission struct {
	QuestionID     string `json:"questionId"`
	SelectedAnswer string `json:"selectedAnswer"`
}

// ScoreResult summarizes a scored attempt.
type ScoreResult struct {
	AttemptID  string       `json:"attemptId"`
	Score      float64      `json:"score"`
	TotalMarks float64      `json:"totalMarks"`
	Percentage float64      `json:"percentage"`
	Status     ResultStatus `json:"status"`
	Answers    []Answer     `json:"answers,omitempty"`
}

// Override is either Computed (no admin value) or Overridden with a value that
// replaces whatever grading would compute.
type Override struct {
	value string
	set   bool
}

// Computed is the absent override.
func Computed() Override { return Override{} }

// Overridden wraps an admin-entered value. Blank values collapse to Computed.
func Overridden(v string) Override {
	v = strings.TrimSpace(v)
	if v == "" {
		return Override{}
	}
	return Override{value: v, set: true}
}

// Value returns the admin value and whether one is set.
func (o Override) Value() (string, bool) {
	return o.value, o.set
}

func (o Override) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Override) UnmarshalJSON(data []byte) error {
	var v *string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*o = Computed()
		return nil
	}
	*o = Overridden(*v)
	return nil
}

// PracticalMarks holds admin-entered offline component marks for a candidate.
type PracticalMarks struct {
	CandidateID    string                `json:"candidateId"`
	Marks          map[PaperType]float64 `json:"marks"`
	GradeOverride  Override              `json:"gradeOverride"`
	ResultOverride Override              `json:"overallResult"`
}

// Mark returns the recorded value for a component.
func (m PracticalMarks) Mark(p PaperType) (float64, bool) {
	v, ok := m.Marks[p]
	return v, ok
}
