package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/crucible-eval/crucible/internal/config"
)

var (
	cfgFile string
	envFile string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crucible",
		Short: "Evaluation harness for LLM coding agents",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile == "" {
				return
			}
			if _, err := os.Stat(envFile); os.IsNotExist(err) {
				return
			}
			if err := config.LoadEnv(envFile); err != nil {
				log.Printf("warning: loading env file %s: %v", envFile, err)
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "crucible.yaml", "config file path")
	root.PersistentFlags().StringVar(&envFile, "env", "env.yaml", "env file with provider API keys")
	root.AddCommand(newRunCmd())
	root.AddCommand(newGradeCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	return root
}
