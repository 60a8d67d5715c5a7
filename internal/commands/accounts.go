package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qazaqfin/bankimport/internal/domain"
	"github.com/qazaqfin/bankimport/internal/ui"
)

func newAccountsCommand(store *storeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List ledger accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ledgerStore, closeStore, err := store.open(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			accounts, err := ledgerStore.FindAccounts(ctx)
			if err != nil {
				return fmt.Errorf("listing accounts: %w", err)
			}
			if len(accounts) == 0 {
				ui.Info("no accounts")
				return nil
			}
			for _, acc := range accounts {
				printAccount(acc)
			}
			return nil
		},
	}

	cmd.AddCommand(newAccountsAddCommand(store))
	return cmd
}

func newAccountsAddCommand(store *storeFlags) *cobra.Command {
	var (
		accType  string
		currency string
		number   string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a ledger account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ledgerStore, closeStore, err := store.open(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if !domain.ValidateAccountType(domain.AccountType(accType)) {
				return fmt.Errorf("invalid account type: %s", accType)
			}
			created, err := ledgerStore.CreateAccount(ctx, domain.Account{
				Name:          args[0],
				Type:          domain.AccountType(accType),
				Currency:      currency,
				AccountNumber: number,
			})
			if err != nil {
				return fmt.Errorf("creating account: %w", err)
			}
			ui.Success("created account %s (%s)", created.Name, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&accType, "type", "bank", "account type: bank, cash, wallet, other")
	cmd.Flags().StringVar(&currency, "currency", "KZT", "account currency")
	cmd.Flags().StringVar(&number, "number", "", "external account number (IIK)")

	return cmd
}

func printAccount(acc domain.Account) {
	number := acc.AccountNumber
	if number == "" {
		number = "-"
	}
	ui.Info("%-30s %-6s %-22s %s %s", acc.Name, acc.Type, number, acc.Balance, acc.Currency)
}
