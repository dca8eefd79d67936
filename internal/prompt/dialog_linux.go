//go:build linux

package prompt

import (
	"context"
	"os/exec"
)

// showNative tries zenity, then kdialog. Exit status 0 means allow.
func showNative(ctx context.Context, title, message string) (bool, error) {
	if path, err := exec.LookPath("zenity"); err == nil {
		cmd := exec.CommandContext(ctx, path,
			"--question",
			"--no-markup",
			"--title="+title,
			"--text="+message,
			"--ok-label=Allow",
			"--cancel-label=Deny",
		)
		return exitAllowed(cmd.Run())
	}

	if path, err := exec.LookPath("kdialog"); err == nil {
		cmd := exec.CommandContext(ctx, path,
			"--title", title,
			"--yesno", message,
			"--yes-label", "Allow",
			"--no-label", "Deny",
		)
		return exitAllowed(cmd.Run())
	}

	return false, ErrNoBackend
}
