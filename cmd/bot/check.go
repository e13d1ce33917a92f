package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"remindbot/internal/catalog"
	"remindbot/internal/config"
)

func checkCmd(cfgPath, envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate config, task catalog and specialist roster without connecting",
		Long: `Load the configuration the same way "run" does, then read both catalog
files and report every problem found:
  OK    - section is usable
  WARN  - entry will be skipped at runtime
  FAIL  - the bot would not start or would run without data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(*envFile); err != nil {
				return err
			}
			failures := runCheck(cmd.OutOrStdout(), config.NewConfigManager(*cfgPath))
			if failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}
			return nil
		},
	}
}

func okMark() string   { return color.GreenString("OK  ") }
func warnMark() string { return color.YellowString("WARN") }
func failMark() string { return color.RedString("FAIL") }

// runCheck prints a report and returns the number of failures.
func runCheck(w io.Writer, m *config.ConfigManager) int {
	failures := 0
	fail := func(format string, args ...any) {
		failures++
		fmt.Fprintf(w, "%s %s\n", failMark(), fmt.Sprintf(format, args...))
	}

	cfg, err := m.Parse()
	if err != nil {
		fail("config: %v", err)
		return failures
	}
	if err := cfg.Validate(); err != nil {
		fail("config: %v", err)
	} else {
		mode := config.ModePolling
		if cfg.WebhookMode() {
			mode = config.ModeWebhook
		}
		fmt.Fprintf(w, "%s config (mode %s, storage %s)\n", okMark(), mode, cfg.Storage.Path)
	}
	if cfg.Ledger.Enabled {
		fmt.Fprintf(w, "%s ledger -> spreadsheet %s\n", okMark(), cfg.Ledger.SpreadsheetID)
	} else {
		fmt.Fprintf(w, "%s ledger disabled (set SPREADSHEET_ID to enable)\n", warnMark())
	}

	if defs, err := catalog.LoadTasks(cfg.Catalog.TasksFile); err != nil {
		fail("tasks %q: %v", cfg.Catalog.TasksFile, err)
	} else {
		valid := 0
		for i, d := range defs {
			if err := d.Validate(); err != nil {
				fmt.Fprintf(w, "%s task #%d %q: %v\n", warnMark(), i+1, d.Name, err)
				continue
			}
			valid++
		}
		if valid == 0 {
			fail("tasks %q: no valid tasks", cfg.Catalog.TasksFile)
		} else {
			fmt.Fprintf(w, "%s tasks: %d valid of %d\n", okMark(), valid, len(defs))
		}
	}

	if roster, err := catalog.LoadSpecialists(cfg.Catalog.SpecialistsFile); err != nil {
		fail("specialists %q: %v", cfg.Catalog.SpecialistsFile, err)
	} else if len(roster) == 0 {
		fail("specialists %q: roster is empty", cfg.Catalog.SpecialistsFile)
	} else {
		for _, s := range roster {
			if len(s.Projects) == 0 {
				fmt.Fprintf(w, "%s specialist %s has no projects\n", warnMark(), s.Surname)
			}
		}
		names := make([]string, 0, len(roster))
		for _, s := range roster {
			names = append(names, s.Surname)
		}
		fmt.Fprintf(w, "%s specialists: %s\n", okMark(), strings.Join(names, ", "))
	}
	return failures
}
