package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/trackbridge/trackbridge/internal/config"
	"github.com/trackbridge/trackbridge/internal/identity"
	"github.com/trackbridge/trackbridge/internal/lockfile"
	"github.com/trackbridge/trackbridge/internal/migrate"
	"github.com/trackbridge/trackbridge/internal/ratelimit"
	"github.com/trackbridge/trackbridge/internal/reconcile"
	"github.com/trackbridge/trackbridge/internal/translate"
	"github.com/trackbridge/trackbridge/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy GForge tracker items into GitHub issues",
	Long: `Migrate every tracker of the configured GForge project into the target
repository. Each trackeritem becomes the issue with the same number; missing
numbers are filled with closed placeholder issues.

Interrupted runs can simply be repeated. Items whose issue already exists are
left alone, so nothing is duplicated.`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		runMigrate(cmd, dryRun)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what migrate would do without writing to GitHub",
	Run: func(cmd *cobra.Command, args []string) {
		runMigrate(cmd, true)
	},
}

// migrateFlagKeys maps the shared migrate/plan flags onto config keys.
var migrateFlagKeys = map[string]string{
	"tracker": "migrate.trackers",
	"floor":   "migrate.skip_floor",
	"strict":  "migrate.strict_numbering",
}

func addMigrateFlags(cmd *cobra.Command) {
	cmd.Flags().IntSlice("tracker", nil, "Only migrate these tracker IDs (repeatable)")
	cmd.Flags().Int("floor", reconcile.DefaultFloor, "Lowest trackeritem ID to migrate")
	cmd.Flags().Bool("strict", false, "Abort when an issue number does not match its trackeritem")
	cmd.Flags().String("report", "", "Also write the run report to this YAML file")
}

func runMigrate(cmd *cobra.Command, dryRun bool) {
	bindFlags(cmd, settings, migrateFlagKeys)
	cfg := loadConfig(true)

	if !dryRun {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !jsonOutput && ui.IsInteractive() && !confirmMigration(cfg) {
			fmt.Fprintln(os.Stderr, "Migration cancelled.")
			return
		}
	}

	ctx := rootCtx
	tgt, err := openTarget(ctx, cfg)
	if err != nil {
		FatalError("%v", err)
	}
	src, err := openSource(ctx, cfg)
	if err != nil {
		FatalError("%v", err)
	}

	var lock *lockfile.Lock
	if !dryRun {
		lock, err = lockfile.Acquire(lockfile.PathFor(os.TempDir(), cfg.Target.Repo),
			lockfile.LockInfo{Repo: cfg.Target.Repo, Version: Version})
		if err != nil {
			FatalError("%v", err)
		}
		logger.Debug("run lock acquired", "path", lock.Path())
	}

	runCfg := cfg.RunConfig()
	runCfg.DryRun = dryRun
	run := migrate.New(src, tgt, runCfg, logger)
	run.OnMessage = func(msg string) {
		if !quietFlag && !jsonOutput {
			fmt.Fprintln(os.Stderr, ui.RenderMuted(msg))
		}
	}
	run.OnWarning = func(msg string) {
		fmt.Fprintln(os.Stderr, ui.StatusWarn.Line(msg))
	}

	report, runErr := run.Execute(ctx)
	// FatalError exits without running defers.
	if err := lock.Release(); err != nil {
		WarnError("releasing run lock: %v", err)
	}

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := report.SaveYAML(path); err != nil {
			WarnError("%v", err)
		} else {
			logger.Info("report written", "path", path)
		}
	}
	if jsonOutput {
		outputJSON(report)
	} else if !quietFlag {
		ui.RenderReport(os.Stdout, report)
	}

	if runErr != nil {
		var verr *identity.ValidationError
		if errors.As(runErr, &verr) {
			ui.RenderValidation(os.Stderr, verr)
		}
		if hint := errorHint(runErr); hint != "" {
			FatalErrorWithHint(runErr.Error(), hint)
		}
		FatalError("%v", runErr)
	}
}

// errorHint suggests the next step for the failures a user can act on.
func errorHint(err error) string {
	var (
		verr     *identity.ValidationError
		budget   *ratelimit.BudgetExhaustedError
		misalign *reconcile.MisalignedError
		terr     *translate.TranslationError
		missing  *config.MissingKeysError
	)
	switch {
	case errors.As(err, &verr):
		return "Add the users to users.mapping or the repository collaborators, then run again"
	case errors.As(err, &budget):
		return "Wait for the rate limit to reset and run again; the migration resumes where it stopped"
	case errors.As(err, &misalign):
		return "Another process created issues in the repository; check the numbering before running again"
	case errors.As(err, &terr):
		return fmt.Sprintf("Fix trackeritem %d in GForge or its element labels, then run again", terr.ItemID)
	case errors.As(err, &missing):
		return "Set the keys in trackbridge.yaml or as TRACKBRIDGE_<SECTION>_<KEY>"
	}
	return ""
}

func confirmMigration(cfg *config.Config) bool {
	confirmed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Migrate GForge project %q into %s?", cfg.Source.Project, cfg.Target.Repo)).
				Description("Issues created on GitHub cannot be deleted through the API.").
				Affirmative("Migrate").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(huh.ThemeDracula())

	err := form.Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false
		}
		FatalError("confirmation prompt: %v", err)
	}
	return confirmed
}

func init() {
	addMigrateFlags(migrateCmd)
	migrateCmd.Flags().Bool("dry-run", false, "Plan the run without writing to GitHub")
	migrateCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	addMigrateFlags(planCmd)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(planCmd)
}
