// Command approve-requests approves every workflow approval request of a
// proposal.
//
// Configuration comes from the environment or a .env file:
//
//	ADSERVER_URL, ADSERVER_NETWORK_CODE  required
//	PROPOSAL_ID                          required
//	APPROVE_COMMENT                      optional, defaults to defaultComment
//	REDIS_URL, METRICS_ADDR, PAGE_SIZE   optional, see internal/app
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Sternrassler/adserver-client/internal/app"
	"github.com/Sternrassler/adserver-client/pkg/logging"
	"github.com/Sternrassler/adserver-client/pkg/metrics"
	"github.com/Sternrassler/adserver-client/pkg/workflow"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// defaultComment is sent with the approval when APPROVE_COMMENT is unset.
const defaultComment = "The proposal looks good to me. Approved."

func main() {
	godotenv.Load()
	logging.Setup(logging.ConfigFromEnv(os.Getenv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Approving workflow requests failed")
	}
}

func run(ctx context.Context, getenv func(string) string, out io.Writer) error {
	cfg, err := app.Load(getenv)
	if err != nil {
		return err
	}

	proposalID, err := strconv.ParseInt(getenv("PROPOSAL_ID"), 10, 64)
	if err != nil {
		return fmt.Errorf("PROPOSAL_ID must be a number: %w", err)
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

	svc := workflow.NewService(adClient).WithPagination(cfg.Pagination())
	summary, err := svc.ApproveForProposal(ctx, proposalID, approveComment(getenv), out)
	if err != nil {
		return err
	}

	log.Info().
		Int64("proposal_id", proposalID).
		Uint32("total", summary.Total).
		Str("outcome", string(summary.Result.Outcome)).
		Msg("Done")
	return nil
}

func approveComment(getenv func(string) string) string {
	if comment := getenv("APPROVE_COMMENT"); comment != "" {
		return comment
	}
	return defaultComment
}
