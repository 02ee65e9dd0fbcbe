package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/agentbench/internal/backend"
	"github.com/andywolf/agentbench/internal/config"
	"github.com/andywolf/agentbench/internal/envs"
	"github.com/andywolf/agentbench/internal/episode"
	"github.com/andywolf/agentbench/internal/memory"
	"github.com/andywolf/agentbench/internal/results"
	"github.com/andywolf/agentbench/internal/role"
	"github.com/andywolf/agentbench/internal/toolcall"
	"github.com/andywolf/agentbench/internal/verify"
)

var runCmd = &cobra.Command{
	Use:   "run [task-script...]",
	Short: "Run evaluation episodes",
	Long: `Run evaluation episodes against the configured backends.

Each task script is a YAML file describing one task instance and its
scripted environment. Episodes run in parallel up to the configured
worker count, and every episode appends one record to the results file.

Example:
  agentbench run --tasks tasks/ --results results/`,
	RunE: runEpisodes,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("tasks", "", "Directory of task script YAML files")
	runCmd.Flags().Int("workers", 0, "Parallel episode workers")
	runCmd.Flags().Int("step-budget", 0, "Maximum steps per episode")
	runCmd.Flags().String("results", "", "Results directory")
	runCmd.Flags().String("catalog", "", "Tool catalog YAML (enables the tool-call pipeline)")
	runCmd.Flags().String("preset", "", "Preset name label for records and traces")

	_ = viper.BindPFlag("runner.workers", runCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("runner.step_budget", runCmd.Flags().Lookup("step-budget"))
	_ = viper.BindPFlag("runner.results_dir", runCmd.Flags().Lookup("results"))
	_ = viper.BindPFlag("runner.tool_catalog", runCmd.Flags().Lookup("catalog"))
	_ = viper.BindPFlag("preset.name", runCmd.Flags().Lookup("preset"))
}

func runEpisodes(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, finishing in-flight steps...")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tasksDir, _ := cmd.Flags().GetString("tasks")
	scripts, err := collectTaskScripts(tasksDir, args)
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		return fmt.Errorf("no task scripts given; pass files or --tasks <dir>")
	}

	logger := log.New(os.Stderr, "[run] ", log.LstdFlags)

	mainClient, err := buildClient(ctx, cfg, config.RoleMainAgent)
	if err != nil {
		return err
	}
	featClient, err := buildClient(ctx, cfg, config.RoleFeatures)
	if err != nil {
		return err
	}
	mainBackend, _ := cfg.Backend(config.RoleMainAgent)
	featBackend, _ := cfg.Backend(config.RoleFeatures)

	actor := role.NewActor(mainClient, log.New(os.Stderr, "[actor] ", log.LstdFlags))
	summarizer := role.NewSummarizer(featClient)

	var checker *verify.Checker
	if cfg.Preset.EarlyExit {
		verifier := role.NewVerifier(featClient, cfg.Preset.VerificationFormat)
		checker = verify.NewChecker(verifier, cfg.Preset.VerificationFormat,
			cfg.Preset.VerificationIter, log.New(os.Stderr, "[verify] ", log.LstdFlags))
	}

	pipeline, err := buildPipeline(cfg, featClient, featBackend)
	if err != nil {
		return err
	}

	tracer := buildTracer(cfg, log.New(os.Stderr, "[langfuse] ", log.LstdFlags))
	defer func() {
		if err := tracer.Stop(context.Background()); err != nil {
			logger.Printf("tracer shutdown: %v", err)
		}
	}()

	sink, err := results.NewFileSink(cfg.Runner.ResultsDir)
	if err != nil {
		return fmt.Errorf("open results sink: %w", err)
	}
	defer sink.Close()

	runID := uuid.New().String()
	backendLabel := fmt.Sprintf("%s/%s", mainBackend.Kind, mainBackend.Engine)

	loops := make([]*episode.Loop, 0, len(scripts))
	for _, path := range scripts {
		script, err := envs.LoadScript(path)
		if err != nil {
			return fmt.Errorf("load task script %s: %w", path, err)
		}
		loops = append(loops, &episode.Loop{
			Actor:      actor,
			Env:        envs.NewScripted(script),
			Memory:     memory.NewManager(cfg.Preset.StoredMemoryMax, cfg.Preset.UpdateNum, summarizer, logger),
			Pipeline:   pipeline,
			Checker:    checkerOrNil(checker),
			Tracer:     tracer,
			Logger:     log.New(os.Stderr, "[episode] ", log.LstdFlags),
			StepBudget: cfg.Runner.StepBudget,
			RunID:      runID,
			Preset:     cfg.Preset.Name,
			Backend:    backendLabel,
		})
	}

	maxDur, err := cfg.Runner.MaxRunDuration()
	if err != nil {
		return fmt.Errorf("runner.max_duration: %w", err)
	}

	runner := &episode.Runner{
		Workers:     cfg.Runner.Workers,
		MaxDuration: maxDur,
		Sink:        sink,
		Logger:      logger,
	}

	fmt.Printf("Run %s: %d episodes, %d workers, preset %q, backend %s\n",
		runID, len(loops), cfg.Runner.Workers, cfg.Preset.Name, backendLabel)

	summary, err := runner.Run(ctx, loops)
	if err != nil {
		return err
	}

	fmt.Printf("Done: %d episodes, %d succeeded, %d failed, %d early-exit, %d truncated\n",
		summary.Total, summary.Succeeded, summary.Failed, summary.EarlyExit, summary.Truncated)
	fmt.Printf("Results: %s\n", filepath.Join(cfg.Runner.ResultsDir, results.DefaultFilename))
	return nil
}

// buildPipeline assembles the tool-call pipeline when a catalog is
// configured. Selector and editor are attached per the preset toggles.
func buildPipeline(cfg *config.Config, featClient backend.Client, featBackend config.BackendConfig) (*toolcall.Pipeline, error) {
	if cfg.Runner.ToolCatalog == "" {
		return nil, nil
	}
	catalog, err := toolcall.LoadCatalog(cfg.Runner.ToolCatalog)
	if err != nil {
		return nil, fmt.Errorf("load tool catalog: %w", err)
	}

	var selector toolcall.Selector
	if cfg.Preset.UseSelector {
		selector = role.NewSelector(featClient, featBackend.ContextLength,
			cfg.Preset.SelectorTopK, log.New(os.Stderr, "[selector] ", log.LstdFlags))
	}
	var editor toolcall.Editor
	if cfg.Preset.UseEditor {
		editor = role.NewEditor(featClient, featBackend.ContextLength,
			log.New(os.Stderr, "[editor] ", log.LstdFlags))
	}
	return toolcall.NewPipeline(catalog, selector, editor,
		log.New(os.Stderr, "[toolcall] ", log.LstdFlags)), nil
}

// checkerOrNil keeps a disabled checker as a true nil interface so the
// loop skips verification entirely.
func checkerOrNil(c *verify.Checker) episode.Checker {
	if c == nil {
		return nil
	}
	return c
}

// collectTaskScripts merges positional script paths with a --tasks
// directory scan, sorted for a stable episode order.
func collectTaskScripts(dir string, args []string) ([]string, error) {
	scripts := append([]string(nil), args...)
	if dir != "" {
		for _, pat := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(dir, pat))
			if err != nil {
				return nil, err
			}
			scripts = append(scripts, matches...)
		}
	}
	sort.Strings(scripts)
	return scripts, nil
}
