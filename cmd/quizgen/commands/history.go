package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/quizgen/cmd/quizgen/ui"
	"github.com/spherical/quizgen/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [batch-id]",
	Short: "List recorded batches, or show one batch's tasks",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "number of batches to list")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	if ledger == nil {
		return fmt.Errorf("the batch ledger is disabled (set ledger.enabled)")
	}
	defer ledger.Close()

	if len(args) == 1 {
		return showBatch(ctx, ledger, args[0])
	}

	batches, err := ledger.ListBatches(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		ui.Info("No batches recorded yet")
		return nil
	}
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			b.ID,
			b.Name,
			string(b.Status),
			strconv.Itoa(b.TaskCount),
			fmt.Sprintf("%d/%d/%d", b.Succeeded, b.Failed, b.Cancelled),
			b.StartedAt.Local().Format("2006-01-02 15:04"),
			ui.FormatDuration(b.Duration),
		})
	}
	ui.Table([]string{"ID", "Name", "Status", "Tasks", "OK/Failed/Cancelled", "Started", "Took"}, rows)
	return nil
}

func showBatch(ctx context.Context, ledger *storage.Ledger, id string) error {
	detail, err := ledger.GetBatch(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no batch %q", id)
	}
	if err != nil {
		return err
	}

	ui.Section(fmt.Sprintf("Batch %s (%s)", detail.Name, detail.Status))
	rows := make([][]string, 0, len(detail.Tasks))
	for _, t := range detail.Tasks {
		path := t.ArtifactPath
		if t.ErrorMessage != "" {
			path = fmt.Sprintf("%s %s", path, t.ErrorMessage)
		}
		rows = append(rows, []string{t.OutputName, t.Kind.Label(), string(t.State), t.Tier.String(), path})
	}
	ui.Table([]string{"Output", "Kind", "State", "Tier", "Artifact"}, rows)
	return nil
}
