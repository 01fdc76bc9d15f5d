// Command reach-report runs the lifetime reach report per line item and
// prints the download URL of the CSV file.
//
// Configuration comes from the environment or a .env file:
//
//	ADSERVER_URL, ADSERVER_NETWORK_CODE  required
//	REPORT_POLL_INTERVAL                 optional, default 30s
//	REDIS_URL, METRICS_ADDR              optional, see internal/app
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/adserver-client/internal/app"
	"github.com/Sternrassler/adserver-client/pkg/logging"
	"github.com/Sternrassler/adserver-client/pkg/metrics"
	"github.com/Sternrassler/adserver-client/pkg/report"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	godotenv.Load()
	logging.Setup(logging.ConfigFromEnv(os.Getenv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Reach report failed")
	}
}

func run(ctx context.Context, getenv func(string) string, out io.Writer) error {
	cfg, err := app.Load(getenv)
	if err != nil {
		return err
	}

	adClient, closeFn, err := cfg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.Warn().Err(err).Msg("Metrics server failed")
		}
	}()

	svc := report.NewService(adClient)
	if v := getenv("REPORT_POLL_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REPORT_POLL_INTERVAL %q: %w", v, err)
		}
		svc.PollInterval = interval
	}

	job, url, err := svc.Run(ctx, report.ReachQuery(), report.FormatCSVDump)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Report job with ID %d completed.\n", job.ID)
	fmt.Fprintf(out, "Report can be downloaded from: %s\n", url)
	return nil
}
