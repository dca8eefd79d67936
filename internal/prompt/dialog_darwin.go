//go:build darwin

package prompt

import (
	"context"
	"os/exec"
	"strings"
)

func showNative(ctx context.Context, title, message string) (bool, error) {
	path, err := exec.LookPath("osascript")
	if err != nil {
		return false, ErrNoBackend
	}

	script := `display dialog "` + escapeAppleScript(message) + `" with title "` + escapeAppleScript(title) +
		`" buttons {"Deny", "Allow"} default button "Deny"`
	out, err := exec.CommandContext(ctx, path, "-e", script).Output()
	if err != nil {
		// Deny and Cmd-. both exit non-zero.
		return exitAllowed(err)
	}
	return strings.Contains(string(out), "button returned:Allow"), nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
