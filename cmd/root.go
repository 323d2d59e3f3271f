package cmd

import (
	"os"

	"github.com/mezonai/bitvm20/logx"
	"github.com/spf13/cobra"
)

var logStderr bool

var rootCmd = &cobra.Command{
	Use:   "bitvm20",
	Short: "BitVM20 off-chain ledger CLI",
	Long:  "Command line interface for running the BitVM20 operator and verifiers and inspecting their artifacts.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logStderr {
			logx.SetOutput(cmd.ErrOrStderr())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logStderr, "log-stderr", false, "write logs to stderr instead of the rotating log file")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed: ", err)
		os.Exit(1)
	}
}
