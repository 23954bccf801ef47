package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feerecon/internal/directory"
	"github.com/sells-group/feerecon/internal/model"
	"github.com/sells-group/feerecon/internal/sheet"
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the personnel directory",
}

var directoryMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the directory schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openDirectory(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("directory migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var (
	importFile      string
	importSheets    []string
	importHeaderRow int
	importCategory  string
)

var directoryImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load profiles from a staff workbook or a YAML seed file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openDirectory(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := importProfiles(ctx, st, importOpts{
			Path:      importFile,
			Sheets:    importSheets,
			HeaderRow: importHeaderRow,
			Category:  importCategory,
		})
		if err != nil {
			return err
		}

		zap.L().Info("import complete", zap.Int("inserted", n), zap.String("file", importFile))
		return nil
	},
}

var directoryFindCmd = &cobra.Command{
	Use:   "find NAME",
	Short: "Print every profile registered under a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openDirectory(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		name := model.NormalizeName(args[0])
		found, err := st.FindByNames(ctx, []string{name})
		if err != nil {
			return eris.Wrap(err, "find profiles")
		}
		profiles := found[name]
		if profiles == nil {
			profiles = []model.Profile{}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(profiles)
	},
}

func openDirectory(ctx context.Context) (directory.Store, error) {
	if err := cfg.Validate("directory"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate directory")
	}
	return st, nil
}

type importOpts struct {
	Path      string
	Sheets    []string // empty means every sheet
	HeaderRow int
	Category  string
}

// importProfiles reads profiles from opts.Path and inserts them. YAML
// files hold a profile list; anything else is read as an xlsx workbook.
func importProfiles(ctx context.Context, st directory.Store, opts importOpts) (int, error) {
	var profiles []model.Profile

	switch strings.ToLower(filepath.Ext(opts.Path)) {
	case ".yaml", ".yml":
		ps, err := directory.LoadProfilesYAML(opts.Path)
		if err != nil {
			return 0, err
		}
		for i := range ps {
			if ps[i].Category == "" {
				ps[i].Category = opts.Category
			}
		}
		profiles = ps
	default:
		contents, err := os.ReadFile(opts.Path)
		if err != nil {
			return 0, eris.Wrapf(err, "read %s", opts.Path)
		}
		sheets := opts.Sheets
		if len(sheets) == 0 {
			if sheets, err = sheet.SheetNames(contents); err != nil {
				return 0, err
			}
		}
		for _, name := range sheets {
			table, err := sheet.ReadRecords(contents, sheet.ReadOptions{SheetName: name, HeaderRow: opts.HeaderRow})
			if err != nil {
				return 0, eris.Wrapf(err, "import sheet %q", name)
			}
			ps := directory.ProfilesFromRecords(table.Records, opts.Category)
			zap.L().Info("import: sheet parsed", zap.String("sheet", name), zap.Int("profiles", len(ps)))
			profiles = append(profiles, ps...)
		}
	}

	if len(profiles) == 0 {
		return 0, nil
	}
	return st.Insert(ctx, profiles)
}

func init() {
	directoryImportCmd.Flags().StringVar(&importFile, "file", "", "staff .xlsx workbook or .yaml seed (required)")
	directoryImportCmd.Flags().StringSliceVar(&importSheets, "sheet", nil, "sheet to import, repeatable (default all sheets)")
	directoryImportCmd.Flags().IntVar(&importHeaderRow, "header-row", 0, "zero-based header row")
	directoryImportCmd.Flags().StringVar(&importCategory, "category", "", "category stored on every imported profile")
	_ = directoryImportCmd.MarkFlagRequired("file")

	directoryCmd.AddCommand(directoryMigrateCmd, directoryImportCmd, directoryFindCmd)
	rootCmd.AddCommand(directoryCmd)
}
