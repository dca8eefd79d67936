package clipboard

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultWriteAttempts = 20
	DefaultWriteDelay    = 25 * time.Millisecond
)

// WithRetry runs fn until it succeeds, fails with something other than
// ErrLocked, or runs out of attempts.
func WithRetry(attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, ErrLocked) {
			return err
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

// Restore writes a snapshot back, clearing when it has nothing restorable.
func Restore(cb Clipboard, s Snapshot) error {
	return WithRetry(DefaultWriteAttempts, DefaultWriteDelay, func() error {
		if !s.Restorable() {
			return cb.Clear()
		}
		return cb.Write(s.Content())
	})
}

func ClearWithRetry(cb Clipboard) error {
	return WithRetry(DefaultWriteAttempts, DefaultWriteDelay, cb.Clear)
}

func WriteWithRetry(cb Clipboard, c Content) error {
	return WithRetry(DefaultWriteAttempts, DefaultWriteDelay, func() error {
		return cb.Write(c)
	})
}
