package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/identity"
	"github.com/trackbridge/trackbridge/internal/migrate"
	"github.com/trackbridge/trackbridge/internal/reconcile"
)

func resultLine(r *reconcile.Result) string {
	parts := []string{
		fmt.Sprintf("%d created", r.Created),
		fmt.Sprintf("%d placeholders", r.Placeholders),
		fmt.Sprintf("%d already migrated", r.AlreadyMigrated),
	}
	if r.FloorSkipped > 0 {
		parts = append(parts, fmt.Sprintf("%d below floor", r.FloorSkipped))
	}
	if r.Comments > 0 {
		parts = append(parts, fmt.Sprintf("%d comments", r.Comments))
	}
	if r.Closed > 0 {
		parts = append(parts, fmt.Sprintf("%d closed", r.Closed))
	}
	return strings.Join(parts, RenderMuted(" · "))
}

// RenderReport writes a human-readable run summary.
func RenderReport(w io.Writer, report *migrate.Report) {
	title := "Migration summary"
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(w, Heading(title))

	for _, t := range report.Trackers {
		name := fmt.Sprintf("%s %s", t.Name, RenderMuted(fmt.Sprintf("#%d", t.ID)))
		if t.Result == nil {
			fmt.Fprintf(w, "%s %s: %d items, not migrated\n", StatusFail.Icon(), name, t.Items)
			continue
		}
		status := StatusOK
		if t.Result.Created == 0 && t.Result.Placeholders == 0 {
			status = StatusSkip // nothing new
		}
		fmt.Fprintf(w, "%s %s: %d items\n", status.Icon(), name, t.Items)
		fmt.Fprintf(w, "%s%s%s\n", TreeIndent, RenderMuted(TreeLast), resultLine(t.Result))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", RenderAccent("Total:"), resultLine(&report.Total))
	if report.Total.Truncated > 0 {
		fmt.Fprintf(w, "%s %d bodies truncated\n", StatusWarn.Icon(), report.Total.Truncated)
	}
	if report.Total.Mismatches > 0 {
		fmt.Fprintf(w, "%s %s\n", StatusWarn.Icon(),
			StatusWarn.Render(fmt.Sprintf("%d issues do not match their trackeritem number", report.Total.Mismatches)))
	}
	if len(report.Total.Duplicates) > 0 {
		fmt.Fprintf(w, "%s duplicate trackeritem IDs: %s\n", StatusWarn.Icon(), joinInts(report.Total.Duplicates))
	}
	if d := report.Duration(); d > 0 {
		fmt.Fprintln(w, RenderMuted(fmt.Sprintf("finished in %s", d.Round(time.Second))))
	}
	if report.RunID != "" {
		fmt.Fprintln(w, RenderMuted("run "+report.RunID))
	}
}

// RenderValidation explains a failed identity gate, listing every user.
func RenderValidation(w io.Writer, verr *identity.ValidationError) {
	fmt.Fprintf(w, "%s %s\n", StatusFail.Icon(), StatusFail.Render("user mapping is not complete"))
	if len(verr.Unmapped) > 0 {
		fmt.Fprintln(w, "Need to be added to users.mapping:")
		for _, name := range verr.Unmapped {
			fmt.Fprintf(w, "%s%s%s\n", TreeIndent, RenderMuted(TreeLast), name)
		}
	}
	if len(verr.NonCollaborators) > 0 {
		fmt.Fprintln(w, "Need to be added as GitHub collaborators:")
		for _, nc := range verr.NonCollaborators {
			fmt.Fprintf(w, "%s%s%s %s\n", TreeIndent, RenderMuted(TreeLast), nc.Login, RenderMuted("("+nc.Username+")"))
		}
	}
	if len(verr.Unresolved) > 0 {
		fmt.Fprintln(w, "Unknown to GForge (user IDs):")
		fmt.Fprintf(w, "%s%s%s\n", TreeIndent, RenderMuted(TreeLast), joinInts(verr.Unresolved))
	}
}

// RenderRateLimit writes the budget as "remaining/limit" with a reset time.
func RenderRateLimit(w io.Writer, rl *github.RateLimit, spare int) {
	status := StatusOK
	if rl.Remaining < spare {
		status = StatusFail
	}
	fmt.Fprintf(w, "GitHub rate limit (remaining/total): %s\n", status.Render(rl.String()))
	if !rl.Reset.IsZero() {
		fmt.Fprintln(w, RenderMuted("resets at "+rl.Reset.Local().Format(time.Kitchen)))
	}
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
