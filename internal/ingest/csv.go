// Package ingest turns uploaded question sheets into rows for the importer.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"exam-flow-service/internal/domain"
)

const (
	colTrade   = "trade"
	colPaper   = "papertype"
	colText    = "question"
	colAnswer  = "correctanswer"
	colMarks   = "marks"
	colOptionA = "optiona"
	colOptionB = "optionb"
	colOptionC = "optionc"
	colOptionD = "optiond"
)

var headerAliases = map[string]string{
	"trade":         colTrade,
	"tradename":     colTrade,
	"papertype":     colPaper,
	"paper":         colPaper,
	"examtype":      colPaper,
	"question":      colText,
	"questiontext":  colText,
	"correctanswer": colAnswer,
	"answer":        colAnswer,
	"marks":         colMarks,
	"mark":          colMarks,
	"optiona":       colOptionA,
	"a":             colOptionA,
	"optionb":       colOptionB,
	"b":             colOptionB,
	"optionc":       colOptionC,
	"c":             colOptionC,
	"optiond":       colOptionD,
	"d":             colOptionD,
}

var requiredColumns = []string{colTrade, colPaper, colText, colOptionA, colOptionB, colAnswer, colMarks}

// ErrBadHeader is returned when the sheet cannot be mapped to question columns.
var ErrBadHeader = errors.New("question sheet header is missing required columns")

// ParseQuestions reads a CSV sheet with a header row. Lines whose marks cannot
// be parsed are reported as row errors; every other check belongs to the importer.
func ParseQuestions(r io.Reader) ([]domain.QuestionRow, []domain.RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	index, err := mapHeader(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		rows    []domain.QuestionRow
		rowErrs []domain.RowError
	)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rowErrs = append(rowErrs, domain.RowError{Line: line, Reason: domain.ReasonMissingField, Message: perr.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if blank(record) {
			continue
		}

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := domain.QuestionRow{
			Line:          line,
			TradeName:     get(colTrade),
			PaperType:     get(colPaper),
			QuestionText:  get(colText),
			CorrectAnswer: get(colAnswer),
		}
		// options keep their column position; only trailing blanks are dropped
		for _, col := range []string{colOptionA, colOptionB, colOptionC, colOptionD} {
			row.Options = append(row.Options, get(col))
		}
		row.Options = trimTrailingBlank(row.Options)

		marks, err := strconv.ParseFloat(get(colMarks), 64)
		if err != nil {
			rowErrs = append(rowErrs, domain.RowError{
				Line:    line,
				Reason:  domain.ReasonInvalidMarks,
				Message: fmt.Sprintf("marks %q is not a number", get(colMarks)),
			})
			continue
		}
		row.Marks = marks
		rows = append(rows, row)
	}
	return rows, rowErrs, nil
}

func trimTrailingBlank(options []string) []string {
	n := len(options)
	for n > 0 && options[n-1] == "" {
		n--
	}
	return options[:n]
}

func mapHeader(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if col, ok := headerAliases[key]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadHeader, strings.Join(missing, ", "))
	}
	return index, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer("_", "", " ", "", "-", "").Replace(h)
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// QuestionImporter stores validated question rows.
type QuestionImporter interface {
	ImportQuestions(ctx context.Context, rows []domain.QuestionRow) domain.ImportSummary
}

// ImportCSV parses a sheet and hands its rows to imp. Lines rejected while
// parsing are folded into the summary, which is ordered by line.
func ImportCSV(ctx context.Context, imp QuestionImporter, r io.Reader) (domain.ImportSummary, error) {
	rows, rowErrs, err := ParseQuestions(r)
	if err != nil {
		return domain.ImportSummary{}, err
	}
	summary := imp.ImportQuestions(ctx, rows)
	summary.Merge(rowErrs)
	sort.SliceStable(summary.Errors, func(i, j int) bool {
		return summary.Errors[i].Line < summary.Errors[j].Line
	})
	return summary, nil
}
