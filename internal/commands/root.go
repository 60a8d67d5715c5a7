// Package commands wires the CLI surface.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qazaqfin/bankimport/internal/firestore"
	"github.com/qazaqfin/bankimport/internal/ledger"
)

const version = "0.1.0"

// storeFlags carries the ledger-backend selection shared by subcommands.
type storeFlags struct {
	backend     string
	dbPath      string
	projectID   string
	credentials string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.backend, "store", "sqlite", "ledger backend: memory, sqlite, firestore")
	cmd.PersistentFlags().StringVar(&f.dbPath, "db", "bankimport.db", "SQLite database path")
	cmd.PersistentFlags().StringVar(&f.projectID, "project", "", "Firestore project ID")
	cmd.PersistentFlags().StringVar(&f.credentials, "credentials", "", "Firestore credentials file")
}

func (f *storeFlags) open(ctx context.Context) (ledger.Store, func() error, error) {
	switch f.backend {
	case "memory":
		return ledger.NewMemoryStore(), noClose, nil
	case "sqlite":
		store, err := ledger.OpenSQLite(f.dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, store.Close, nil
	case "firestore":
		if f.projectID == "" {
			return nil, nil, fmt.Errorf("--project is required for the firestore store")
		}
		store, err := firestore.NewStore(ctx, f.projectID, f.credentials)
		if err != nil {
			return nil, nil, fmt.Errorf("opening firestore store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", f.backend)
	}
}

func noClose() error { return nil }

// NewRootCommand creates the root CLI command with all subcommands
// registered.
func NewRootCommand() *cobra.Command {
	flags := &storeFlags{}

	rootCmd := &cobra.Command{
		Use:     "bankimport",
		Short:   "Bank statement import for the qazaqfin ledger",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	flags.register(rootCmd)

	rootCmd.AddCommand(newImportCommand(flags))
	rootCmd.AddCommand(newAccountsCommand(flags))

	return rootCmd
}
