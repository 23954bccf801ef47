package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feerecon/internal/pipeline"
	"github.com/sells-group/feerecon/internal/task"
)

var (
	reconcileFile      string
	reconcileSheet     string
	reconcileOut       string
	reconcileHeaderRow int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Process one fee workbook locally and write the annotated copy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		return reconcileWorkbook(ctx, env.Pipeline, reconcileOpts{
			Path:      reconcileFile,
			Sheet:     reconcileSheet,
			Out:       reconcileOut,
			HeaderRow: reconcileHeaderRow,
		}, cmd.OutOrStdout())
	},
}

type reconcileOpts struct {
	Path      string
	Sheet     string
	Out       string
	HeaderRow int
}

// reconcileWorkbook runs one file through runner, writes the result next
// to the input unless Out is set, and prints the run report as JSON.
func reconcileWorkbook(ctx context.Context, runner task.Runner, opts reconcileOpts, w io.Writer) error {
	contents, err := os.ReadFile(opts.Path)
	if err != nil {
		return eris.Wrapf(err, "read %s", opts.Path)
	}

	in := pipeline.Input{
		Contents:  contents,
		SheetName: opts.Sheet,
		Filename:  filepath.Base(opts.Path),
		HeaderRow: opts.HeaderRow,
	}
	if err := task.Validate(in); err != nil {
		return err
	}

	out, err := runner.Run(ctx, in, func(p pipeline.Phase) {
		zap.L().Info("reconcile: phase", zap.String("phase", string(p)))
	})
	if err != nil {
		return err
	}

	dest := opts.Out
	if dest == "" {
		dest = filepath.Join(filepath.Dir(opts.Path), out.Filename)
	}
	if err := os.WriteFile(dest, out.Contents, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", dest)
	}
	zap.L().Info("reconcile: written", zap.String("out", dest))

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(struct {
		Out    string          `json:"out"`
		Report pipeline.Report `json:"report"`
	}{dest, out.Report})
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileFile, "file", "", "path to the .xlsx fee workbook (required)")
	reconcileCmd.Flags().StringVar(&reconcileSheet, "sheet", "", "sheet to process (required)")
	reconcileCmd.Flags().StringVar(&reconcileOut, "out", "", "output path (default processed_<file> next to the input)")
	reconcileCmd.Flags().IntVar(&reconcileHeaderRow, "header-row", 0, "zero-based header row")
	_ = reconcileCmd.MarkFlagRequired("file")
	_ = reconcileCmd.MarkFlagRequired("sheet")
	rootCmd.AddCommand(reconcileCmd)
}
