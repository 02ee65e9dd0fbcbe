// Package cli wires the agentbench commands: run, replay, version.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/agentbench/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentbench",
	Short: "Agentbench - LLM agent evaluation runner",
	Long: `Agentbench evaluates language-model-driven agents on long-horizon
embodied tasks and tool-calling tasks. It drives a memory-bounded control
loop against causal or diffusion backends, with optional early-exit
verification, tool selection and tool-call repair.

Example:
  agentbench run --tasks tasks/ --results results/`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .agentbench.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	// Local .env files carry backend credentials during development.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".agentbench")
	}

	viper.SetEnvPrefix("AGENTBENCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
