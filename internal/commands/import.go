package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qazaqfin/bankimport/internal/categorize"
	"github.com/qazaqfin/bankimport/internal/importer"
	"github.com/qazaqfin/bankimport/internal/output"
	"github.com/qazaqfin/bankimport/internal/scanner"
	"github.com/qazaqfin/bankimport/internal/ui"
)

func newImportCommand(store *storeFlags) *cobra.Command {
	var (
		autoCreate    bool
		activeAccount string
		rulesFile     string
		jsonOut       bool
		jsonFile      string
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:   "import <file-or-directory>...",
		Short: "Import bank statement files into the ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rules, err := loadRules(rulesFile)
			if err != nil {
				return err
			}

			ledgerStore, closeStore, err := store.open(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			im := importer.New(ledgerStore, rules)
			im.AutoCreate = autoCreate
			im.ActiveAccountID = activeAccount
			im.Verbose = verbose

			paths, err := collectPaths(args)
			if err != nil {
				return err
			}

			var failed int
			for _, path := range paths {
				report, err := im.ImportFile(ctx, path)
				if err != nil {
					ui.Error("%s: %v", path, err)
					failed++
					continue
				}
				if jsonOut || jsonFile != "" {
					if err := output.WriteReportToFile(report, jsonFile); err != nil {
						return err
					}
				} else {
					ui.Summary(report)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed to import", failed, len(paths))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoCreate, "auto-create", false, "create accounts for unknown statement identifiers")
	cmd.Flags().StringVar(&activeAccount, "account", "", "attach tabular rows to this account ID")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "category rules YAML (default: embedded rules)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON instead of a summary")
	cmd.Flags().StringVar(&jsonFile, "json-file", "", "write the JSON report to this path")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log per-row skips")

	return cmd
}

func loadRules(path string) (*categorize.Engine, error) {
	if path == "" {
		return categorize.LoadEmbedded()
	}
	return categorize.LoadFromFile(path)
}

// collectPaths expands directory arguments into their statement files.
func collectPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := scanner.New(arg).Scan()
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no statement files found")
	}
	return paths, nil
}
