package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PaperType identifies one examinable component of a trade.
type PaperType string

const (
	PaperWP1  PaperType = "WP-I"
	PaperWP2  PaperType = "WP-II"
	PaperWP3  PaperType = "WP-III"
	PaperPR1  PaperType = "PR-I"
	PaperPR2  PaperType = "PR-II"
	PaperPR3  PaperType = "PR-III"
	PaperPR4  PaperType = "PR-IV"
	PaperPR5  PaperType = "PR-V"
	PaperOral PaperType = "ORAL"
)

// WrittenSequence is the fixed order in which written papers must be taken.
var WrittenSequence = []PaperType{PaperWP1, PaperWP2, PaperWP3}

// PracticalComponents lists the admin-scored components in report order.
var PracticalComponents = []PaperType{PaperPR1, PaperPR2, PaperPR3, PaperPR4, PaperPR5, PaperOral}

// PracticalMaxMarks is the fixed maximum per practical/oral component.
var PracticalMaxMarks = map[PaperType]float64{
	PaperPR1:  100,
	PaperPR2:  100,
	PaperPR3:  100,
	PaperPR4:  100,
	PaperPR5:  100,
	PaperOral: 50,
}

var paperAliases = map[string]PaperType{
	"WP-I": PaperWP1, "WP1": PaperWP1, "WPI": PaperWP1,
	"WP-II": PaperWP2, "WP2": PaperWP2, "WPII": PaperWP2,
	"WP-III": PaperWP3, "WP3": PaperWP3, "WPIII": PaperWP3,
	"PR-I": PaperPR1, "PR1": PaperPR1, "PRI": PaperPR1,
	"PR-II": PaperPR2, "PR2": PaperPR2, "PRII": PaperPR2,
	"PR-III": PaperPR3, "PR3": PaperPR3, "PRIII": PaperPR3,
	"PR-IV": PaperPR4, "PR4": PaperPR4, "PRIV": PaperPR4,
	"PR-V": PaperPR5, "PR5": PaperPR5, "PRV": PaperPR5,
	"ORAL": PaperOral,
}

// ParsePaperType accepts the canonical names plus the short forms found in uploads
// ("wp1", "WP_II", "pr 3").
func ParsePaperType(raw string) (PaperType, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	if p, ok := paperAliases[key]; ok {
		return p, nil
	}
	if p, ok := paperAliases[strings.ReplaceAll(key, "-", "")]; ok {
		return p, nil
	}
	return "", Validationf("unknown paper type %q", raw)
}

// IsWritten reports whether the paper is taken through the candidate exam flow.
func (p PaperType) IsWritten() bool {
	return p == PaperWP1 || p == PaperWP2 || p == PaperWP3
}

// sequenceIndex returns the position in WrittenSequence, or -1.
func (p PaperType) sequenceIndex() int {
	for i, w := range WrittenSequence {
		if w == p {
			return i
		}
	}
	return -1
}

// ExamTypeSet is the ordered set of written papers a candidate registered for.
// Members are unique and always kept in WrittenSequence order.
type ExamTypeSet []PaperType

// NewExamTypeSet normalizes the given papers, dropping duplicates and anything
// that is not a written paper.
func NewExamTypeSet(papers ...PaperType) ExamTypeSet {
	seen := make(map[PaperType]struct{}, len(papers))
	out := make(ExamTypeSet, 0, len(papers))
	for _, p := range papers {
		if !p.IsWritten() {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sequenceIndex() < out[j].sequenceIndex() })
	return out
}

// ParseExamTypeSet is the single parser for stored or submitted selections. It
// accepts a JSON array, a JSON-encoded string holding an array, or a comma list.
func ParseExamTypeSet(raw string) (ExamTypeSet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ExamTypeSet{}, nil
	}
	var names []string
	switch raw[0] {
	case '[':
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			return nil, Validationf("invalid exam types: %v", err)
		}
	case '"':
		var inner string
		if err := json.Unmarshal([]byte(raw), &inner); err != nil {
			return nil, Validationf("invalid exam types: %v", err)
		}
		return ParseExamTypeSet(inner)
	default:
		names = strings.Split(raw, ",")
	}

	papers := make([]PaperType, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		p, err := ParsePaperType(name)
		if err != nil {
			return nil, err
		}
		if !p.IsWritten() {
			return nil, Validationf("%s is not a written paper", p)
		}
		papers = append(papers, p)
	}
	return NewExamTypeSet(papers...), nil
}

// Contains reports membership.
func (s ExamTypeSet) Contains(p PaperType) bool {
	for _, m := range s {
		if m == p {
			return true
		}
	}
	return false
}

// String is the canonical serialized form, a JSON array.
func (s ExamTypeSet) String() string {
	data, _ := s.MarshalJSON()
	return string(data)
}

func (s ExamTypeSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(s))
	for _, p := range NewExamTypeSet(s...) {
		names = append(names, string(p))
	}
	return json.Marshal(names)
}

func (s *ExamTypeSet) UnmarshalJSON(data []byte) error {
	parsed, err := ParseExamTypeSet(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnmarshalYAML lets seed files list selections either as a sequence or a string.
func (s *ExamTypeSet) UnmarshalYAML(unmarshal func(any) error) error {
	var list []string
	if err := unmarshal(&list); err == nil {
		parsed, err := ParseExamTypeSet(strings.Join(list, ","))
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var raw string
	if err := unmarshal(&raw); err != nil {
		return fmt.Errorf("exam types: %w", err)
	}
	parsed, err := ParseExamTypeSet(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
