package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
	"exam-flow-service/internal/ingest"
	"exam-flow-service/internal/seed"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSeedCmd loads a YAML fixture of master data into the configured store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load trades, candidates, papers and slots from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.log.Sync() //nolint:errcheck
			if rt.cfg.Postgres.URL == "" {
				return fmt.Errorf("seeding needs a postgres url; the in-memory store loads exam.seed_file on start")
			}
			fixture, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), rt)
			if err != nil {
				return err
			}
			defer b.Close()

			stats, err := seed.Apply(cmd.Context(), b.store, fixture)
			if err != nil {
				return err
			}
			rt.log.Info("fixture applied", zap.String("file", file), zap.Stringer("stats", stats))
			color.Green("Seeded %s", stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/seed.yaml", "fixture file")
	return cmd
}

// NewImportQuestionsCmd bulk-loads questions from a CSV sheet.
func NewImportQuestionsCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import-questions",
		Short: "Import MCQ questions from a CSV sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.log.Sync() //nolint:errcheck

			sheet, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open sheet: %w", err)
			}
			defer sheet.Close()

			b, err := openBackend(cmd.Context(), rt)
			if err != nil {
				return err
			}
			defer b.Close()

			summary, err := ingest.ImportCSV(cmd.Context(), b.service(rt.log), sheet)
			if err != nil {
				return err
			}
			printImportSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file with a header row")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printImportSummary(w io.Writer, summary domain.ImportSummary) {
	color.New(color.FgGreen).Fprintf(w, "Created %d question(s)\n", summary.Created)
	if len(summary.Errors) == 0 {
		return
	}
	color.New(color.FgRed).Fprintf(w, "Rejected %d row(s)\n", len(summary.Errors))

	reasons := make([]string, 0, len(summary.ByReason))
	for r := range summary.ByReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	counts := tablewriter.NewWriter(w)
	counts.SetHeader([]string{"Reason", "Rows"})
	for _, r := range reasons {
		counts.Append([]string{r, strconv.Itoa(summary.ByReason[r])})
	}
	counts.Render()

	rows := tablewriter.NewWriter(w)
	rows.SetHeader([]string{"Line", "Reason", "Message"})
	for _, e := range summary.Errors {
		rows.Append([]string{strconv.Itoa(e.Line), e.Reason, e.Message})
	}
	rows.Render()
}

// NewResultCmd prints a candidate's result sheet.
func NewResultCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "result <candidate-id>",
		Short: "Show a candidate's written, practical and overall result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.log.Sync() //nolint:errcheck

			b, err := openBackend(cmd.Context(), rt)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := b.service(rt.log).GetCandidateResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printResult(w io.Writer, res app.CandidateResult) {
	color.New(color.FgCyan).Fprintf(w, "\n%s (%s) - %s\n", res.Candidate.Name, res.Candidate.ArmyNo, res.TradeName)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Paper", "Obtained", "Max", "Percent", "Status"})
	for _, group := range [][]app.ComponentResult{res.Written, res.Practical} {
		for _, c := range group {
			table.Append([]string{
				string(c.PaperType),
				formatMarks(c.Obtained, c.Percent != nil),
				formatMarks(c.MaxMarks, c.MaxMarks > 0),
				formatPercent(c.Percent),
				string(c.Status),
			})
		}
	}
	table.Render()

	paint := color.New(color.FgYellow)
	switch res.OverallResult {
	case string(domain.ResultPass):
		paint = color.New(color.FgGreen)
	case string(domain.ResultFail):
		paint = color.New(color.FgRed)
	}
	paint.Fprintf(w, "Grade %s, overall %s (%s)\n", res.Grade, res.OverallResult, formatPercent(res.OverallPercent))
}

func formatMarks(v float64, known bool) string {
	if !known {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPercent(p *float64) string {
	if p == nil {
		return "NA"
	}
	return strconv.FormatFloat(*p, 'f', 2, 64) + "%"
}
