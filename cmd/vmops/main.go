package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/opscart/vm-billing-platform/pkg/aggregator"
	"github.com/opscart/vm-billing-platform/pkg/alerting"
	"github.com/opscart/vm-billing-platform/pkg/cloud"
	"github.com/opscart/vm-billing-platform/pkg/collector"
	"github.com/opscart/vm-billing-platform/pkg/config"
	"github.com/opscart/vm-billing-platform/pkg/metering"
	"github.com/opscart/vm-billing-platform/pkg/notifier"
	"github.com/opscart/vm-billing-platform/pkg/reconciler"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

var (
	// Reconcile flags
	dryRun         bool
	createMissing  bool
	cleanupDeleted bool

	// Metering flags
	targetDate string
	accountID  string
	billYear   int
	billMonth  int
	payAmount  string

	verbose bool

	// Global wiring
	cfg    *config.Config
	store  storage.Store
	events notifier.Publisher
	logger *slog.Logger
)

func main() {
	cfg = config.NewConfig()

	rootCmd := &cobra.Command{
		Use:   "vmops",
		Short: "VM inventory reconciliation, metering and alerting jobs",
		Long:  `Batch jobs keeping the local VM inventory in sync with the cloud control plane, deriving billing records from resource usage, and evaluating threshold alerts.`,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Converge local VM records to the remote inventory",
		Run:   runReconcile,
	}
	reconcileCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute changes without persisting")
	reconcileCmd.Flags().BoolVar(&createMissing, "create-missing", false, "Import remote-only instances")
	reconcileCmd.Flags().BoolVar(&cleanupDeleted, "cleanup-deleted", false, "Delete local records no longer present remotely")

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute per-system resource totals",
		Run:   runAggregate,
	}

	meterCmd := &cobra.Command{
		Use:   "meter",
		Short: "Create daily billing records",
		Run:   runMeter,
	}
	meterCmd.Flags().StringVar(&targetDate, "date", "", "Target date YYYY-MM-DD (default: yesterday)")

	billCmd := &cobra.Command{
		Use:   "bill",
		Short: "Build or refresh a monthly bill",
		Run:   runBill,
	}
	billCmd.Flags().StringVar(&accountID, "account", "", "Billing account id")
	billCmd.Flags().IntVar(&billYear, "year", 0, "Billing year")
	billCmd.Flags().IntVar(&billMonth, "month", 0, "Billing month (1-12)")
	billCmd.Flags().StringVar(&payAmount, "pay", "", "Record a payment of this amount instead of rebuilding")

	mtdCmd := &cobra.Command{
		Use:   "month-to-date",
		Short: "Print an account's month-to-date amount",
		Run:   runMonthToDate,
	}
	mtdCmd.Flags().StringVar(&accountID, "account", "", "Billing account id")
	mtdCmd.Flags().StringVar(&targetDate, "date", "", "Query date YYYY-MM-DD (default: today)")

	alertsCmd := &cobra.Command{
		Use:   "evaluate-alerts",
		Short: "Evaluate threshold rules against recent metric samples",
		Run:   runAlerts,
	}

	collectCmd := &cobra.Command{
		Use:   "collect-metrics",
		Short: "Sample per-VM usage metrics from Prometheus",
		Run:   runCollect,
	}

	rootCmd.AddCommand(reconcileCmd, aggregateCmd, meterCmd, billCmd, mtdCmd, alertsCmd, collectCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initWiring() {
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	level := slog.LevelInfo
	if verbose || cfg.Verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var err error
	store, err = storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		fatal(fmt.Errorf("failed to initialize storage: %w", err))
	}

	if len(cfg.KafkaBrokers) > 0 {
		events = notifier.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		events = notifier.Noop{}
	}
}

func teardown() {
	if store != nil {
		store.Close()
	}
	if events != nil {
		events.Close()
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runReconcile(cmd *cobra.Command, args []string) {
	initWiring()
	defer teardown()

	client := cloud.NewHTTPClient(cfg.CloudAPIURL, cfg.CloudAPIToken)
	job := reconciler.New(store, client, events, logger, cfg.FallbackSystemID, cfg.ItemTimeout)

	summary, err := job.Run(context.Background(), reconciler.Options{
		DryRun:         dryRun,
		CreateMissing:  createMissing,
		CleanupDeleted: cleanupDeleted,
	})
	if err != nil {
		fatal(err)
	}

	if dryRun {
		fmt.Println("Dry run: no changes were persisted")
	}
	for _, change := range summary.Changes {
		fmt.Printf("%s (%s):\n", change.Name, change.ExternalID)
		for _, c := range change.Changes {
			fmt.Printf("  - %s\n", c)
		}
	}
	fmt.Printf("updated=%d created=%d deleted=%d not_found=%d errored=%d\n",
		summary.Updated, summary.Created, summary.Deleted, summary.NotFound, summary.Errored)
}

func runAggregate(cmd *cobra.Command, args []string) {
	initWiring()
	defer teardown()

	summary, err := aggregator.New(store, logger).Run(context.Background())
	if err != nil {
		fatal(err)
	}
	fmt.Printf("checked=%d adjusted=%d errored=%d\n", summary.Checked, summary.Adjusted, summary.Errored)
}

func parseDate(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		fatal(fmt.Errorf("invalid date %q: %w", value, err))
	}
	return t
}

func runMeter(cmd *cobra.Command, args []string) {
	initWiring()
	defer teardown()

	date := parseDate(targetDate, time.Now().UTC().AddDate(0, 0, -1))
	summary, err := metering.New(store, logger).RunDaily(context.Background(), date)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("created=%d skipped=%d errored=%d\n", summary.Created, summary.Skipped, summary.Errored)
}

func runBill(cmd *cobra.Command, args []string) {
	initWiring()
	defer teardown()

	if accountID == "" || billYear == 0 || billMonth < 1 || billMonth > 12 {
		fatal(fmt.Errorf("--account, --year and --month are required"))
	}

	engine := metering.New(store, logger)
	ctx := context.Background()

	if payAmount != "" {
		amount, perr := decimal.NewFromString(payAmount)
		if perr != nil {
			fatal(fmt.Errorf("invalid payment amount %q: %w", payAmount, perr))
		}
		b, perr := engine.RecordPayment(ctx, accountID, billYear, time.Month(billMonth), amount)
		if perr != nil {
			fatal(perr)
		}
		fmt.Printf("%s: total=%s paid=%s remaining=%s status=%s\n",
			b.BillNumber, b.TotalAmount, b.PaidAmount, b.Remaining(), b.Status)
		return
	}

	b, err := engine.BuildMonthlyBill(ctx, accountID, billYear, time.Month(billMonth))
	if err != nil {
		fatal(err)
	}
	fmt.Printf("%s: total=%s paid=%s remaining=%s progress=%s%% status=%s due=%s\n",
		b.BillNumber, b.TotalAmount, b.PaidAmount, b.Remaining(),
		b.PaymentProgress().StringFixed(1), b.Status, b.DueDate.Format("2006-01-02"))
}

func runMonthToDate(cmd *cobra.Command, args []string) {
	initWiring()
	defer teardown()

	if accountID == "" {
		fatal(fmt.Errorf("--account is required"))
	}

	date := parseDate(targetDate, time.Now().UTC())
	amount, err := metering.New(store, logger).MonthToDate(context.Background(), accountID, date)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("month-to-date for %s as of %s: %s\n", accountID, date.Format("2006-01-02"), amount)
}

func runAlerts(cmd *cobra.Command, args []string) {
	initWiring()
	defer teardown()

	summary, err := alerting.New(store, logger, cfg.AlertMinSamples).Run(context.Background())
	if err != nil {
		fatal(err)
	}
	fmt.Printf("evaluated=%d fired=%d resolved=%d indeterminate=%d\n",
		summary.Evaluated, summary.Fired, summary.Resolved, summary.Indeterminate)
}

func runCollect(cmd *cobra.Command, args []string) {
	initWiring()
	defer teardown()

	col, err := collector.NewPrometheusCollector(store, cfg.PrometheusURL, logger)
	if err != nil {
		fatal(err)
	}
	summary, err := col.Run(context.Background())
	if err != nil {
		fatal(err)
	}
	fmt.Printf("collected=%d errored=%d\n", summary.Collected, summary.Errored)
}
