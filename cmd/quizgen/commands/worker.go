package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/quizgen/internal/observability"
	"github.com/spherical/quizgen/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run one task read from stdin (used by run)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Ctrl+C reaches the whole process group; the parent turns it into a
	// stop message instead.
	signal.Ignore(os.Interrupt)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	// Worker stderr is relayed into the batch progress; keep it to problems.
	if !verbose {
		logger = observability.NewLogger(observability.LogConfig{
			Level:       "warn",
			Format:      "json",
			ServiceName: "quizgen-worker",
		})
	}

	cacheClient, err := openCache()
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	return worker.Serve(ctx, os.Stdin, os.Stdout, newWorkerService(cacheClient))
}
