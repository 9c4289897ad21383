package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/report"
	"github.com/Nell373/linebot-ai/internal/transport"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Serve or inspect the ledger",
}

var ledgerServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer ledger commands over NATS",
	Long:  `Opens the SQLite ledger and answers exec and query requests from daemons configured with ledger.backend=nats.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		timeout, err := config.DurationOrDefault(loadedCfg.Ledger.RequestTimeout, config.DefaultLedgerRequestTimeout)
		if err != nil {
			return fmt.Errorf("parse ledger request timeout: %w", err)
		}

		signals := NewSignalHandler(cmd.Context())
		signals.Start()
		defer signals.Stop()
		ctx := signals.Context()

		st, err := openLedger(ctx, loadedCfg)
		if err != nil {
			return err
		}
		defer st.Close()

		conn, err := transport.Connect(loadedCfg.Ledger.NatsURL, "kimi-ledger", timeout)
		if err != nil {
			return err
		}
		defer conn.Close()

		svc := transport.NewService(conn, loadedCfg.Ledger.Subject, st, timeout)
		if err := svc.Start(); err != nil {
			return err
		}
		defer svc.Close()

		slog.Info("Ledger service running", "subject", loadedCfg.Ledger.Subject, "path", loadedCfg.Ledger.Path)
		<-ctx.Done()
		slog.Info("Ledger service stopping")
		return nil
	},
}

var ledgerReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a monthly summary",
	Long:  `Prints income, expense, balance and the per-category breakdown of one month for a user, e.g. kimi ledger report -u line:U123 -m 2024-05.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		month, _ := cmd.Flags().GetString("month")
		formatFlag, _ := cmd.Flags().GetString("format")
		withTx, _ := cmd.Flags().GetBool("transactions")

		if strings.TrimSpace(user) == "" {
			return fmt.Errorf("--user is required")
		}
		format, err := report.ParseOutputFormat(formatFlag)
		if err != nil {
			return err
		}
		formatter, err := report.New(format)
		if err != nil {
			return err
		}

		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		loc := config.LocationOrDefault(loadedCfg.Locale.Timezone)
		from, to, err := monthBounds(month, time.Now().In(loc), loc)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openLedger(ctx, loadedCfg)
		if err != nil {
			return err
		}
		defer st.Close()

		summary, err := st.Summary(ctx, user, from, to)
		if err != nil {
			return fmt.Errorf("load summary: %w", err)
		}
		out, err := formatter.FormatSummary(summary)
		if err != nil {
			return err
		}
		if format == report.OutputFormatTable {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", user, from.Format("2006-01"))
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)

		if !withTx {
			return nil
		}
		txs, err := st.Transactions(ctx, user, from, to)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		out, err = formatter.FormatTransactions(txs)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

// monthBounds returns [first day of month, first day of next month) in loc.
// An empty month means the month of now.
func monthBounds(month string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	var start time.Time
	if strings.TrimSpace(month) == "" {
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	} else {
		t, err := time.ParseInLocation("2006-01", strings.TrimSpace(month), loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --month %q (want YYYY-MM)", month)
		}
		start = t
	}
	return start, start.AddDate(0, 1, 0), nil
}

func init() {
	ledgerReportCmd.Flags().StringP("user", "u", "", "namespaced user id, e.g. line:U123")
	ledgerReportCmd.Flags().StringP("month", "m", "", "month as YYYY-MM (default: current month)")
	ledgerReportCmd.Flags().StringP("format", "f", string(report.OutputFormatTable), "output format (table, json, yaml)")
	ledgerReportCmd.Flags().Bool("transactions", false, "also list the month's transactions")

	ledgerCmd.AddCommand(ledgerServeCmd)
	ledgerCmd.AddCommand(ledgerReportCmd)
	rootCmd.AddCommand(ledgerCmd)
}
