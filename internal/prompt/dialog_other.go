//go:build !linux && !darwin

package prompt

import "context"

func showNative(context.Context, string, string) (bool, error) {
	return false, ErrNoBackend
}
