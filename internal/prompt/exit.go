package prompt

import (
	"errors"
	"os/exec"
)

// exitAllowed maps a dialog process result to a verdict. A clean exit is an
// allow, any other exit status a deny; failing to start is an error.
func exitAllowed(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}
