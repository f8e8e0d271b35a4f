package domain

// Import reason codes attached to rejected question rows.
const (
	ReasonMissingField     = "missing_field"
	ReasonInvalidPaperType = "invalid_paper_type"
	ReasonInvalidAnswer    = "invalid_answer"
	ReasonInvalidMarks     = "invalid_marks"
	ReasonUnknownTrade     = "unknown_trade"
	ReasonPaperDisabled    = "paper_disabled"
	ReasonStoreError       = "store_error"
)

// QuestionRow is one parsed line of a question upload.
type QuestionRow struct {
	Line          int      `json:"line"`
	TradeName     string   `json:"tradeName" validate:"required"`
	PaperType     string   `json:"paperType" validate:"required"`
	QuestionText  string   `json:"questionText" validate:"required"`
	Options       []string `json:"options" validate:"min=2,max=4,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
	Marks         float64  `json:"marks" validate:"gt=0"`
}

// RowError explains why one row was not imported.
type RowError struct {
	Line    int    `json:"line"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ImportSummary is the partial-success outcome of a bulk import.
type ImportSummary struct {
	Created  int            `json:"created"`
	Errors   []RowError     `json:"errors"`
	ByReason map[string]int `json:"byReason"`
}

// Reject records a failed row.
func (s *ImportSummary) Reject(line int, reason, message string) {
	if s.ByReason == nil {
		s.ByReason = map[string]int{}
	}
	s.Errors = append(s.Errors, RowError{Line: line, Reason: reason, Message: message})
	s.ByReason[reason]++
}

// Merge folds row errors found before the rows reached the importer.
func (s *ImportSummary) Merge(errs []RowError) {
	for _, e := range errs {
		s.Reject(e.Line, e.Reason, e.Message)
	}
}
