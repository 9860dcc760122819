package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Bendy545/charging-stations/internal/analytics"
	"github.com/Bendy545/charging-stations/internal/config"
	"github.com/Bendy545/charging-stations/internal/export"
	"github.com/Bendy545/charging-stations/internal/httpapi"
	"github.com/Bendy545/charging-stations/internal/logger"
	"github.com/Bendy545/charging-stations/internal/service"
)

const serviceName = "charging-stations"

var version = "dev"

var (
	logLevel  string
	addr      string
	stationID string
	startDate string
	endDate   string
	month     string
	asJSON    bool
	output    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "EV charging station loss analytics",
		Long:          "charging-stations serves and prints energy loss analytics (consumption vs. delivered energy) for a fleet of EV charging stations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print summary statistics and the daily loss series",
		RunE:  runReport,
	}
	addSelectionFlags(reportCmd)
	reportCmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	recalculateCmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Rebuild daily loss records from consumption and sessions",
		RunE:  runRecalculate,
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the report as an XLSX workbook",
		RunE:  runExport,
	}
	addSelectionFlags(exportCmd)
	exportCmd.Flags().StringVar(&output, "output", "", "Output .xlsx file (required)")
	_ = exportCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(serveCmd, reportCmd, recalculateCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&stationID, "station", "all", "Station id or \"all\"")
	cmd.Flags().StringVar(&startDate, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "End date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&month, "month", "", "Month (YYYY-MM); replaces --start/--end")
}

// setup loads config, builds the logger and wires the app.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

func selection() (analytics.Scope, analytics.Interval, error) {
	scope, err := analytics.ParseScope(stationID)
	if err != nil {
		return analytics.Scope{}, analytics.Interval{}, err
	}
	if month != "" {
		if startDate != "" || endDate != "" {
			return analytics.Scope{}, analytics.Interval{}, &analytics.ValidationError{Field: "month", Message: "cannot be combined with --start/--end"}
		}
		iv, err := analytics.ParseMonth(month)
		return scope, iv, err
	}
	iv, err := analytics.ParseInterval(startDate, endDate)
	return scope, iv, err
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.logger.Sync()

	listen := a.cfg.HTTP.Addr
	if addr != "" {
		listen = addr
	}
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Service:     a.svc,
		Guard:       service.NewLatestGuard(),
		Metrics:     a.metrics,
		CORSOrigins: a.cfg.HTTP.CORSOrigins,
		Version:     version,
		Logger:      a.logger,
	})
	server := service.NewServer(listen, router, a.logger)

	errChan := make(chan error, 2)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()
	if consumer := a.streamConsumer(); consumer != nil {
		go func() {
			if err := consumer.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		a.logger.Error("Service error", zap.Error(err))
		return err
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	a.logger.Info("Charging stations service stopped")
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	scope, iv, err := selection()
	if err != nil {
		return err
	}
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.svc.Report(cmd.Context(), scope, iv)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return printReport(cmd.OutOrStdout(), rep)
}

func runRecalculate(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.Recalculate(cmd.Context())
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "Skipped: %s\n", res.Message)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d loss records for %d stations\n", res.RecordsWritten, res.Stations)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	scope, iv, err := selection()
	if err != nil {
		return err
	}
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.svc.Report(cmd.Context(), scope, iv)
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	if err := export.WriteReport(f, rep); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", output, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s report to %s\n", rep.Scope, output)
	return nil
}

func printReport(w io.Writer, rep *service.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Scope:\t%s\n", rep.Scope)
	if rep.Station != nil {
		fmt.Fprintf(tw, "Station:\t%s %s\n", rep.Station.StationCode, rep.Station.StationName)
	}
	if s := rep.Summary; s != nil {
		fmt.Fprintf(tw, "Records:\t%d\n", s.RecordCount)
		fmt.Fprintf(tw, "Consumption:\t%.2f kWh\n", s.TotalConsumptionKWh)
		fmt.Fprintf(tw, "Delivered:\t%.2f kWh\n", s.TotalDeliveredKWh)
		fmt.Fprintf(tw, "Loss:\t%.2f kWh\n", s.TotalLossKWh)
		fmt.Fprintf(tw, "Avg loss:\t%.2f %%\n", s.AvgLossPercentage)
		fmt.Fprintf(tw, "Efficiency:\t%s\n", s.Efficiency)
	} else {
		fmt.Fprintln(tw, "Records:\tno data")
	}
	fmt.Fprintf(tw, "Sessions:\t%d\n", rep.SessionCount)
	for _, f := range rep.Failures {
		fmt.Fprintf(tw, "Unavailable:\t%s (%s)\n", f.Stream, f.Error)
	}

	if len(rep.DailySeries) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "DATE\tCONSUMPTION\tDELIVERED\tLOSS\tLOSS %")
		for _, p := range rep.DailySeries {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\n", p.Date, p.ConsumptionKWh, p.DeliveredKWh, p.LossKWh, p.LossPercentage)
		}
	}
	return tw.Flush()
}
