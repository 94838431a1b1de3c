package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trackbridge/trackbridge/internal/identity"
	"github.com/trackbridge/trackbridge/internal/migrate"
	"github.com/trackbridge/trackbridge/internal/types"
	"github.com/trackbridge/trackbridge/internal/ui"
)

// userStatus is one row of the check-users listing.
type userStatus struct {
	ID       int    `json:"user_id"`
	UnixName string `json:"unix_name"`
	Login    string `json:"login,omitempty"`
	Status   string `json:"status"` // ok, unmapped or not-collaborator
}

const (
	statusOK              = "ok"
	statusUnmapped        = "unmapped"
	statusNotCollaborator = "not-collaborator"
)

var checkUsersCmd = &cobra.Command{
	Use:   "check-users",
	Short: "Verify that every GForge user maps to a GitHub collaborator",
	Long: `Read every selected tracker and list the GForge users its items refer to,
with the GitHub login each one maps to. Nothing is written to GitHub.
Exits non-zero when a user is unmapped or lacks repository access.`,
	Run: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd, settings, map[string]string{"tracker": "migrate.trackers"})
		cfg := loadConfig(true)

		ctx := rootCtx
		tgt, err := openTarget(ctx, cfg)
		if err != nil {
			FatalError("%v", err)
		}
		src, err := openSource(ctx, cfg)
		if err != nil {
			FatalError("%v", err)
		}

		runCfg := cfg.RunConfig()
		runCfg.DryRun = true
		run := migrate.New(src, tgt, runCfg, logger)
		run.OnWarning = func(msg string) {
			fmt.Fprintln(os.Stderr, ui.StatusWarn.Line(msg))
		}

		users, checkErr := run.CheckUsers(ctx)
		var verr *identity.ValidationError
		if checkErr != nil && !errors.As(checkErr, &verr) {
			FatalError("%v", checkErr)
		}

		rows := userStatuses(run.Mapper, users)
		if jsonOutput {
			outputJSON(rows)
		} else {
			renderUserStatuses(rows)
		}
		if verr != nil {
			if !jsonOutput {
				ui.RenderValidation(os.Stderr, verr)
			}
			os.Exit(1)
		}
	},
}

// userStatuses classifies each user the way the migration gate does.
func userStatuses(m *identity.Mapper, users []types.SourceUser) []userStatus {
	rows := make([]userStatus, 0, len(users))
	for _, u := range users {
		row := userStatus{ID: u.ID, UnixName: u.UnixName, Status: statusOK}
		login, err := m.ResolveCollaborator(u.ID)
		var nc *identity.NotACollaboratorError
		switch {
		case err == nil:
			row.Login = login
		case errors.As(err, &nc):
			row.Login = nc.Login
			row.Status = statusNotCollaborator
		default:
			row.Status = statusUnmapped
		}
		rows = append(rows, row)
	}
	return rows
}

func renderUserStatuses(rows []userStatus) {
	ok := 0
	for _, r := range rows {
		switch r.Status {
		case statusOK:
			ok++
			printf("%s %-20s %s\n", ui.StatusOK.Icon(), r.UnixName, r.Login)
		case statusNotCollaborator:
			printf("%s %-20s %s %s\n", ui.StatusWarn.Icon(), r.UnixName, r.Login, ui.RenderMuted("(not a collaborator)"))
		default:
			printf("%s %-20s %s\n", ui.StatusFail.Icon(), r.UnixName, ui.RenderMuted("(no mapping)"))
		}
	}
	printf("\n%d of %d users ready\n", ok, len(rows))
}

func init() {
	checkUsersCmd.Flags().IntSlice("tracker", nil, "Only check these tracker IDs (repeatable)")
	rootCmd.AddCommand(checkUsersCmd)
}
