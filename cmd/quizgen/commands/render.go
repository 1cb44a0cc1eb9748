package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spherical/quizgen/cmd/quizgen/ui"
	"github.com/spherical/quizgen/internal/artifact"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/failsafe"
	"github.com/spherical/quizgen/internal/llm"
	"github.com/spherical/quizgen/internal/questions"
)

var (
	renderKind  string
	renderBatch string
	renderName  string
)

var renderCmd = &cobra.Command{
	Use:   "render <reply-file|->",
	Short: "Render a saved AI reply into a document",
	Long: `Render runs a saved AI reply through the same parse, render and save
chain as a batch task, without calling the generation model. A repair call
is still made when the reply needs one and an API key is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderKind, "kind", "k", "tn", "question kind of the reply")
	renderCmd.Flags().StringVarP(&renderBatch, "batch", "b", "render", "output folder")
	renderCmd.Flags().StringVarP(&renderName, "name", "n", "", "output name (default: reply file name plus kind suffix)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	kind, err := domain.ParseKind(renderKind)
	if err != nil {
		return err
	}
	reply, err := readInput(args[0])
	if err != nil {
		return err
	}

	name := renderName
	if name == "" {
		base := "stdin"
		if args[0] != "-" {
			base = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
		name = base + kind.Suffix()
	}
	task := domain.Task{
		ID:         uuid.New().String(),
		BatchName:  artifact.SanitizeFilename(renderBatch),
		OutputName: artifact.SanitizeFilename(name),
		Kind:       kind,
	}

	cacheClient, err := openCache()
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	var repairer questions.Repairer
	renderer, store := newChainParts(cacheClient)
	if len(cfg.AI.APIKeys) > 0 {
		client := llm.NewClient(cfg.AI, logger)
		repairer = questions.NewAIRepairer(client, cfg.AI.RepairModel, cfg.AI.APIKeys[0], cfg.AI.RepairTimeout)
		if cfg.Render.Images {
			renderer = renderer.WithImages(client.Images(""))
		}
	}
	chain := failsafe.NewChain(questions.NewParser(repairer, logger), renderer, store, failsafe.Options{DebugJSON: cfg.Output.DebugJSON}, logger)

	spinner := ui.NewSpinner("Rendering " + task.OutputName + "...")
	spinner.Start()
	result := chain.Produce(ctx, task, reply)
	spinner.Stop()

	switch {
	case result.Succeeded():
		ui.Success("Saved %s", result.ArtifactPath)
	case result.ArtifactPath != "":
		ui.Warning("Saved %s (%s tier): %s", result.ArtifactPath, result.Tier, result.ErrorMessage)
	default:
		ui.Error("Nothing could be saved: %s", result.ErrorMessage)
	}
	if result.DebugPath != "" {
		ui.Info("Debug JSON: %s", result.DebugPath)
	}
	if !result.Succeeded() {
		return fmt.Errorf("render %s: %s", task.OutputName, result.ErrorMessage)
	}
	return nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", domain.IOError("read "+path, err)
	}
	return string(data), nil
}
