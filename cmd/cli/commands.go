package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/app"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configure()
			if err != nil {
				return err
			}
			if strings.TrimSpace(dir) == "" {
				dir = cfg.MigrationsDir
			}
			_, write := app.PostgresConfigs(cfg)
			return pg.Migrate(write, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
	return cmd
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureServices()
			if err != nil {
				return err
			}
			report, err := svc.Jobs.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newBalanceCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "balance <principal-id>",
		Short: "Show the balance, its consistency with the ledger and recent transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureServices()
			if err != nil {
				return err
			}
			b, err := svc.Ledger.GetBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			txs, err := svc.Ledger.ListTransactions(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			check, err := svc.Ledger.VerifyBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"balance":        b.Balance,
				"isUnlimited":    b.IsUnlimited,
				"transactionSum": check.TransactionSum,
				"consistent":     check.Consistent,
				"transactions":   txs,
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", model.DefaultTransactionLimit, "Number of transactions to list")
	return cmd
}

func newGrantCommand(ctx *commandContext) *cobra.Command {
	var reason, refID string
	cmd := &cobra.Command{
		Use:   "grant <principal-id> <credits>",
		Short: "Credit bonus credits to a principal",
		Long: "Credit bonus credits to a principal. Pass --ref to make the grant " +
			"idempotent; running it again with the same ref changes nothing.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("credits must be an integer: %w", err)
			}
			if strings.TrimSpace(refID) == "" {
				refID = uuid.NewString()
			}
			svc, err := ctx.ensureServices()
			if err != nil {
				return err
			}
			b, err := svc.Ledger.Credit(cmd.Context(), args[0], amount, reason, &model.Ref{Type: model.RefBonus, ID: refID})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"balance":  b.Balance,
				"ref":      refID,
				"replayed": b.Replayed,
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "bonus", "Transaction reason")
	cmd.Flags().StringVar(&refID, "ref", "", "Idempotency reference (random when empty)")
	return cmd
}

func newUnlimitedCommand(ctx *commandContext) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "unlimited <principal-id>",
		Short: "Exempt a principal from charges, or lift the exemption with --off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureServices()
			if err != nil {
				return err
			}
			b, err := svc.Ledger.SetUnlimited(cmd.Context(), args[0], !off)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"balance":     b.Balance,
				"isUnlimited": b.IsUnlimited,
			})
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "Charge the principal again")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue-stats",
		Short: "Show job stream length, pending entries and dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureServices()
			if err != nil {
				return err
			}
			stats, err := svc.Queue.GetStats()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
