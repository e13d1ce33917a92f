package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var (
		cfgPath string
		envFile string
	)
	rootCmd := &cobra.Command{
		Use:     "remindbot",
		Short:   "Telegram bot that reminds specialists about recurring project tasks",
		Version: version,
		Long: `remindbot keeps a per-specialist schedule of recurring tasks, reminds about
due tasks on workdays inside the working window and records connect/disconnect
events in a Google Sheets ledger.

Configuration comes from an optional JSON/YAML file plus the environment
(BOT_TOKEN, TASKS_FILE, SPECIALISTS_FILE, SPREADSHEET_ID, RENDER, PORT, ...).`,
		SilenceUsage: true,
		// Bare invocation runs the bot.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), cfgPath, envFile)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config json/yaml (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	rootCmd.AddCommand(runCmd(&cfgPath, &envFile))
	rootCmd.AddCommand(checkCmd(&cfgPath, &envFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
