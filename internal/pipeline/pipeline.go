// Package pipeline runs one fee sheet through read, reconcile, amount
// resolution and write.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feerecon/internal/amount"
	"github.com/sells-group/feerecon/internal/directory"
	"github.com/sells-group/feerecon/internal/model"
	"github.com/sells-group/feerecon/internal/reconcile"
	"github.com/sells-group/feerecon/internal/sheet"
)

// Phase is a coarse step of a run, reported before the step starts.
type Phase string

const (
	PhaseReading    Phase = "reading"
	PhaseProcessing Phase = "processing"
	PhaseWriting    Phase = "writing"
)

// Input is one uploaded workbook and the sheet to process.
type Input struct {
	Contents  []byte
	SheetName string
	Filename  string
	HeaderRow int
}

// Output is the annotated workbook and what happened along the way.
type Output struct {
	Contents []byte
	Filename string
	Report   Report
}

// Report summarizes a run.
type Report struct {
	InputRecords    int                    `json:"input_records"`
	OutputRecords   int                    `json:"output_records"`
	Dropped         int                    `json:"dropped"`
	Skipped         int                    `json:"skipped"`
	DuplicateGroups int                    `json:"duplicate_groups"`
	Unmatched       int                    `json:"unmatched"`
	Amounts         amount.Summary         `json:"amounts"`
	Classifications []model.Classification `json:"classifications"`
	DurationMs      int64                  `json:"duration_ms"`
}

// Pipeline holds the collaborators shared by every run. Runs share no
// mutable state and may execute concurrently.
type Pipeline struct {
	lookup   directory.Lookup
	resolver *amount.Resolver
}

// New creates a Pipeline.
func New(lookup directory.Lookup, resolver *amount.Resolver) *Pipeline {
	return &Pipeline{lookup: lookup, resolver: resolver}
}

// Run processes one sheet. progress, if non-nil, is called as each phase
// begins. Errors wrap model.ErrInputValidation or model.ErrLookupFailure
// when they stem from bad input or an unreachable directory.
func (p *Pipeline) Run(ctx context.Context, in Input, progress func(Phase)) (*Output, error) {
	if progress == nil {
		progress = func(Phase) {}
	}
	log := zap.L().With(zap.String("file", in.Filename), zap.String("sheet", in.SheetName))
	start := time.Now()

	progress(PhaseReading)
	table, err := sheet.ReadRecords(in.Contents, sheet.ReadOptions{SheetName: in.SheetName, HeaderRow: in.HeaderRow})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read")
	}
	if len(table.Records) == 0 {
		return nil, eris.Wrapf(model.ErrInputValidation, "pipeline: sheet %q has no records", in.SheetName)
	}
	log.Info("pipeline: sheet read", zap.Int("records", len(table.Records)), zap.Int("columns", len(table.Header)))

	progress(PhaseProcessing)
	res, err := reconcile.Reconcile(ctx, table.Records, p.lookup)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: reconcile")
	}
	summary := p.resolver.Resolve(ctx, res.Records)

	progress(PhaseWriting)
	data, err := sheet.WriteRecords(in.SheetName, res.Records, sheet.Annotations{
		Duplicates: res.Duplicates,
		Unmatched:  res.Unmatched,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: write")
	}

	report := Report{
		InputRecords:    len(table.Records),
		OutputRecords:   len(res.Records),
		Dropped:         res.Dropped,
		Skipped:         res.Skipped,
		DuplicateGroups: len(res.Duplicates),
		Unmatched:       len(res.Unmatched),
		Amounts:         summary,
		Classifications: res.Classifications,
		DurationMs:      time.Since(start).Milliseconds(),
	}
	log.Info("pipeline: run complete",
		zap.Int("output_records", report.OutputRecords),
		zap.Int("dropped", report.Dropped),
		zap.Int("duplicate_groups", report.DuplicateGroups),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("amount_failures", summary.Failed),
		zap.Int64("duration_ms", report.DurationMs),
	)

	return &Output{Contents: data, Filename: OutputFilename(in.Filename), Report: report}, nil
}

// OutputFilename names the processed workbook after the upload.
func OutputFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "result.xlsx"
	}
	return "processed_" + base
}
