package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andywolf/agentbench/internal/config"
	"github.com/andywolf/agentbench/internal/envs"
	"github.com/andywolf/agentbench/internal/results"
	"github.com/andywolf/agentbench/internal/role"
	"github.com/andywolf/agentbench/internal/verify"
)

var replayCmd = &cobra.Command{
	Use:   "replay <episodes.jsonl>",
	Short: "Re-verify recorded episodes offline",
	Long: `Re-run the early-exit verifier over recorded trajectories without
touching the actor or the environment. For each episode this reports the
step at which verification would have stopped it, which is how a new
verification cadence or format is evaluated against old runs.

Task scripts supply the goal text the verifier prompts with, matched to
records by task id.

Example:
  agentbench replay results/episodes.jsonl --tasks tasks/`,
	Args: cobra.ExactArgs(1),
	RunE: replayEpisodes,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().String("tasks", "", "Directory of task script YAML files (required)")
	replayCmd.Flags().String("task", "", "Replay only this task id")
	replayCmd.Flags().Int("window", 0, "Turns visible per checkpoint (default: preset stored_memory_max)")
	_ = replayCmd.MarkFlagRequired("tasks")
}

func replayEpisodes(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	records, err := results.ReadRecords(args[0])
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	if taskID, _ := cmd.Flags().GetString("task"); taskID != "" {
		records = results.FilterByTask(records, taskID)
	}
	if len(records) == 0 {
		return fmt.Errorf("no matching records in %s", args[0])
	}

	tasksDir, _ := cmd.Flags().GetString("tasks")
	tasks, err := loadTaskIndex(tasksDir)
	if err != nil {
		return err
	}

	window, _ := cmd.Flags().GetInt("window")
	if window <= 0 {
		window = cfg.Preset.StoredMemoryMax
	}

	client, err := buildClient(ctx, cfg, config.RoleFeatures)
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)
	verifier := role.NewVerifier(client, cfg.Preset.VerificationFormat)
	checker := verify.NewChecker(verifier, cfg.Preset.VerificationFormat,
		cfg.Preset.VerificationIter, logger)

	fmt.Printf("Replaying %d episodes (cadence %d, format %s, window %d)\n",
		len(records), cfg.Preset.VerificationIter, cfg.Preset.VerificationFormat, window)

	var exits int
	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		task, ok := tasks[rec.TaskID]
		if !ok {
			logger.Printf("task %s: no script found, skipping", rec.TaskID)
			continue
		}
		res := checker.Replay(ctx, task.SystemMsg, task.Instruction, task.Goal, rec.Turns, window)
		if res.ExitStep > 0 {
			exits++
			fmt.Printf("  %s (%s, %d steps): exit at step %d after %d checks\n",
				rec.TaskID, rec.Status, rec.Steps, res.ExitStep, res.Checks)
		} else {
			fmt.Printf("  %s (%s, %d steps): no exit in %d checks\n",
				rec.TaskID, rec.Status, rec.Steps, res.Checks)
		}
	}
	fmt.Printf("Done: %d of %d episodes would have exited early\n", exits, len(records))
	return nil
}

// loadTaskIndex loads every task script under dir, keyed by task id.
func loadTaskIndex(dir string) (map[string]envs.Task, error) {
	scripts, err := collectTaskScripts(dir, nil)
	if err != nil {
		return nil, err
	}
	tasks := make(map[string]envs.Task, len(scripts))
	for _, path := range scripts {
		script, err := envs.LoadScript(path)
		if err != nil {
			return nil, fmt.Errorf("load task script %s: %w", path, err)
		}
		tasks[script.Task.ID] = script.Task
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no task scripts under %s", filepath.Clean(dir))
	}
	return tasks, nil
}
