package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"stock_screener/api"
	"stock_screener/config"
	"stock_screener/db"
	"stock_screener/jobs"
	"stock_screener/models"
	"stock_screener/monitoring"
	"stock_screener/nasdaq"
	"stock_screener/output"
	"stock_screener/screener"
	"stock_screener/utils"
	"stock_screener/yahoo"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "screener",
		Short:         "Score NASDAQ-listed stocks on technical and fundamental rules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			*cfg = *loaded
			return applyFlags(cmd, cfg)
		},
	}

	root.PersistentFlags().StringP("output", "o", "", "results file (overrides OUTPUT_PATH)")
	root.PersistentFlags().String("format", "", "results format: json or csv (default from file extension)")
	root.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(newRunCmd(cfg), newServeCmd(cfg))
	return root
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Screener.OutputPath = v
	}
	if v, _ := cmd.Flags().GetString("format"); v != "" {
		cfg.Screener.OutputFormat = strings.ToLower(v)
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.App.LogLevel = v
	}
	if cmd.Flags().Lookup("addr") != nil {
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			cfg.Server.Addr = v
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return utils.InitLogger(cfg.App.LogDir, cfg.App.LogLevel)
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one screen and write the results file",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer utils.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, closeFn, err := buildRunner(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := runner.RunOnce(ctx)
			if err != nil {
				utils.Error(err, "Screen failed")
				fmt.Fprintln(cmd.ErrOrStderr(), models.ErrorStatus(err))
				return err
			}
			printSummary(cmd.OutOrStdout(), cfg.Screener.OutputPath, res)
			return nil
		},
	}
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger, status and download endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer utils.Sync()

			// JSON is what /download_json reads back.
			if cfg.Screener.OutputFormat == config.FormatCSV || output.FormatFromPath(cfg.Screener.OutputPath) == config.FormatCSV {
				return errors.New("serve writes JSON results; use a .json output path")
			}
			cfg.Screener.OutputFormat = config.FormatJSON

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, closeFn, err := buildRunner(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			return serve(ctx, cfg, runner)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides SERVER_ADDR)")
	return cmd
}

var health = monitoring.NewHealth()

// buildRunner wires the data sources, the screener and the optional archive.
func buildRunner(ctx context.Context, cfg *config.Config) (*jobs.Runner, func(), error) {
	closeFn := func() {}
	opts := jobs.Options{
		OutputPath:   cfg.Screener.OutputPath,
		OutputFormat: cfg.Screener.OutputFormat,
	}

	if cfg.ClickHouse.Enabled {
		archive, err := db.NewClickHouseDB(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		opts.Archive = archive
		health.RegisterHealthCheck("clickhouse", archive.Ping)
		closeFn = func() {
			if err := archive.Close(); err != nil {
				utils.Error(err, "Closing ClickHouse failed")
			}
		}
	}

	s := screener.New(
		yahoo.NewHistoryClient(cfg),
		yahoo.NewSummaryClient(cfg),
		screener.OptionsFromConfig(cfg),
	)
	runner := jobs.NewRunner(ctx, nasdaq.NewClient(cfg), s, opts)

	utils.Logger.Infow("Screener configured",
		"listing_url", cfg.Screener.ListingURL,
		"batch_size", cfg.Screener.BatchSize,
		"batch_interval", cfg.Screener.BatchInterval,
		"top_n", cfg.Screener.TopN,
		"output", cfg.Screener.OutputPath,
		"archive", cfg.ClickHouse.Enabled,
	)
	return runner, closeFn, nil
}

func serve(ctx context.Context, cfg *config.Config, runner *jobs.Runner) error {
	health.RegisterHealthCheck("runner", func(context.Context) error {
		if p := runner.Snapshot(); p.Failed() {
			return errors.New(p.Status)
		}
		return nil
	})
	monitoring.StartMetricsCollection(ctx)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewHandler(runner, cfg.Screener.OutputPath, health).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Logger.Infow("HTTP server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			utils.Error(err, "HTTP server error")
			return err
		}
	case <-ctx.Done():
	}

	utils.Logger.Infow("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.Error(err, "HTTP shutdown failed")
	}
	runner.Wait()
	return nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func printSummary(w io.Writer, path string, res screener.Result) {
	st := res.Stats
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Top %d of %d symbols", len(res.Rows), st.Symbols)))
	fmt.Fprintf(w, "batches %d (failed %d) · scored %d · duration %s · saved to %s\n\n",
		st.Batches, st.FailedBatches, st.Scored, st.Duration.Round(time.Second), path)

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-4s %-6s %10s %7s %7s %6s", "#", "SYMBOL", "PRICE", "PE", "RSI", "SCORE")))
	for i, r := range res.Rows {
		fmt.Fprintf(w, "%-4d %-6s %10.2f %7s %7s %s\n",
			i+1, r.Symbol, r.Price, optional(r.PE), optional(r.RSI),
			scoreStyle.Render(fmt.Sprintf("%6d", r.Score)))
	}
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
