package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/quizgen/cmd/quizgen/ui"
	"github.com/spherical/quizgen/internal/batch"
	"github.com/spherical/quizgen/internal/cache"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/llm"
	"github.com/spherical/quizgen/internal/orchestrator"
)

var (
	runKinds       string
	runName        string
	runInProcess   bool
	runMultiBar    bool
	runConcurrency int
)

var runCmd = &cobra.Command{
	Use:   "run [files or directories...]",
	Short: "Generate question sets for a batch of documents",
	Long: `Run generates one document per input group and question kind.

Each file is its own group; a directory becomes one group of all the
supported files it contains. Press Ctrl+C once to stop: running tasks
finish their current step and unstarted tasks are cancelled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringVarP(&runKinds, "kinds", "k", "all", "question kinds to generate (all or a comma list: tn,ds,tln,tl)")
	runCmd.Flags().StringVarP(&runName, "name", "n", "", "batch name and output folder (default: per group)")
	runCmd.Flags().BoolVar(&runInProcess, "in-process", false, "run workers as goroutines instead of processes")
	runCmd.Flags().BoolVar(&runMultiBar, "multi-bar", false, "show one progress bar per task")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "maximum tasks running at once (default from config)")
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kinds, err := batch.ParseKinds(runKinds)
	if err != nil {
		return err
	}
	prompts, err := batch.LoadPrompts(cfg.Prompts, kinds)
	if err != nil {
		return err
	}
	groups, err := batch.Groups(args)
	if err != nil {
		return err
	}
	b := batch.Plan(runName, groups, prompts)
	if len(cfg.AI.APIKeys) == 0 {
		ui.Warning("No API keys configured; every task will fail at the AI call")
	}

	cacheClient, err := openCache()
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	orchCfg := cfg.Orchestrator
	if runConcurrency > 0 {
		orchCfg.Concurrency = runConcurrency
	}

	var launcher orchestrator.Launcher
	if runInProcess || orchCfg.InProcess {
		launcher = orchestrator.NewInProcessLauncher(newWorkerService(cacheClient))
	} else {
		launcher = orchestrator.NewProcessLauncher("", workerArgs(), nil, logger)
	}
	orch := orchestrator.New(launcher, llm.NewRotationState(cfg.AI.APIKeys), orchCfg, logger)

	var opts []orchestrator.SupervisorOption
	ledger, err := openLedger(ctx)
	if err != nil {
		ui.Warning("Ledger unavailable: %v", err)
	} else if ledger != nil {
		defer ledger.Close()
		opts = append(opts, orchestrator.WithLedger(ledger))
	}
	if rc, ok := cacheClient.(*cache.RedisClient); ok {
		opts = append(opts, orchestrator.WithSinks(orchestrator.NewChannelSink(rc)))
	}
	sup := orchestrator.NewSupervisor(orch, orchCfg, logger, opts...)

	ui.Section("Batch " + b.Name)
	ui.Info("%d task(s) over %d group(s), %d kind(s)", len(b.Tasks), len(groups), len(kinds))
	ui.Info("Batch ID: %s", b.ID)
	ui.Newline()

	view := ui.NewBatchView(b, runMultiBar)
	report, err := sup.Run(ctx, b, view)
	view.Close()
	if err != nil {
		return err
	}

	printReport(report)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d task(s) did not succeed", report.Failed, len(report.Results))
	}
	return nil
}

// workerArgs is the command line of a worker process.
func workerArgs() []string {
	args := []string{"worker"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}

func printReport(report *domain.BatchReport) {
	ui.Section("Summary")
	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		detail := r.ArtifactPath
		if r.ErrorMessage != "" {
			detail = r.ErrorMessage
			if r.ArtifactPath != "" {
				detail = fmt.Sprintf("%s (%s)", r.ArtifactPath, r.ErrorMessage)
			}
		}
		rows = append(rows, []string{r.OutputName, string(r.State()), r.Tier.String(), ui.FormatDuration(r.Duration), detail})
	}
	ui.Table([]string{"Output", "State", "Tier", "Time", "Artifact"}, rows)
	ui.Newline()

	switch {
	case report.Cancelled > 0:
		ui.Warning("Stopped: %d succeeded, %d failed, %d cancelled in %s", report.Succeeded, report.Failed, report.Cancelled, ui.FormatDuration(report.Duration))
	case report.Failed > 0:
		ui.Warning("Done: %d succeeded, %d failed in %s", report.Succeeded, report.Failed, ui.FormatDuration(report.Duration))
	default:
		ui.Success("Done: %d succeeded in %s", report.Succeeded, ui.FormatDuration(report.Duration))
	}
}
