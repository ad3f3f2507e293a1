// Command gastos-export appends one month of an account's expenses to a
// Google Sheet.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gastos/internal/backend"
	"gastos/internal/cli"
	"gastos/internal/config"
	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/sheets"
	"gastos/internal/sheets/google"
)

func main() {
	now := time.Now()
	var (
		accountID = flag.String("account", "", "account id whose expenses are exported")
		year      = flag.Int("year", now.Year(), "calendar year")
		month0    = flag.Int("month0", int(now.Month())-1, "zero-based month (0 = January)")
		timeout   = flag.Duration("timeout", time.Minute, "overall export timeout")
		header    = flag.Bool("header", false, "start the appended block with a header row")
	)
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentSheets)
	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration invalid", applog.FieldError, err)
		os.Exit(1)
	}
	if *accountID == "" {
		fmt.Fprintln(os.Stderr, "usage: gastos-export -account <id> [-year 2024] [-month0 2]")
		os.Exit(2)
	}

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, logger, cfg, *accountID, *year, *month0, *header); err != nil {
		logger.Error("Export failed", applog.FieldError, err,
			applog.FieldAccountID, *accountID,
			applog.FieldMonth, core.MonthKey(core.NormalizeMonth(*year, *month0)))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *applog.Logger, cfg *config.Config, accountID string, year, month0 int, header bool) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	// The export only reads; it never needs to announce changes.
	backendCfg.AMQPURL = ""

	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize backend: %w", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	creds, err := cfg.ServiceAccountCredentials()
	if err != nil {
		return err
	}
	client, err := google.New(ctx, cfg.GoogleSpreadsheetID, creds)
	if err != nil {
		return fmt.Errorf("initialize sheets client: %w", err)
	}

	exporter := sheets.NewExporter(res.Service, client, cfg.GoogleSheetName, cfg.Location())
	if header {
		exporter = exporter.WithHeader()
	}
	result, err := exporter.ExportMonth(ctx, accountID, year, month0)
	if err != nil {
		return err
	}

	logger.Info("Export complete",
		applog.FieldAccountID, accountID,
		applog.FieldMonth, result.Month,
		"rows", result.Rows,
		"total", core.FormatAmount(result.Total),
		"range", result.UpdatedRange)
	return nil
}
