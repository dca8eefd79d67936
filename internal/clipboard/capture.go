package clipboard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	TruncationMarker = "…"

	DefaultPreviewMaxChars = 400
	DefaultMaxAttempts     = 10
	DefaultRetryDelay      = 25 * time.Millisecond

	maxPreviewFiles = 20
)

type CaptureOptions struct {
	MaxAttempts     int
	RetryDelay      time.Duration
	PreviewMaxChars int
}

func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		MaxAttempts:     DefaultMaxAttempts,
		RetryDelay:      DefaultRetryDelay,
		PreviewMaxChars: DefaultPreviewMaxChars,
	}
}

// Capture reads src and classifies the result. It never returns an error:
// failures degrade to an Unsupported snapshot whose preview says why. Only
// ErrLocked is retried, so the worst case is about MaxAttempts*RetryDelay.
func Capture(src Source, opts CaptureOptions) Snapshot {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		content, err := src.Read()
		if err == nil {
			return Classify(content, opts.PreviewMaxChars)
		}
		if !errors.Is(err, ErrLocked) {
			return unsupported(fmt.Sprintf("Clipboard could not be read: %v", err))
		}
		if i < attempts-1 {
			time.Sleep(opts.RetryDelay)
		}
	}

	return unsupported("Clipboard is busy (held by another application).")
}

// Classify prefers files over text; anything else present is Unsupported.
func Classify(c Content, previewMax int) Snapshot {
	if len(c.Files) > 0 {
		files := append([]string(nil), c.Files...)
		return Snapshot{Kind: KindFiles, Files: files, Preview: Truncate(filesPreview(files), previewMax)}
	}

	if strings.TrimSpace(c.Text) != "" {
		return Snapshot{Kind: KindText, Text: c.Text, Preview: Truncate(c.Text, previewMax)}
	}

	if len(c.Formats) > 0 {
		return unsupported(fmt.Sprintf("No supported content (%s).", strings.Join(c.Formats, ", ")))
	}

	return Snapshot{Kind: KindEmpty, Preview: "Empty"}
}

// Truncate caps s at max runes including the trailing marker. It cuts on rune
// boundaries only. A max of zero or less disables the cap.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(TruncationMarker)
	if keep <= 0 {
		return TruncationMarker
	}

	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

func filesPreview(files []string) string {
	var b strings.Builder
	b.WriteString("Files:")
	for i, f := range files {
		if i == maxPreviewFiles {
			fmt.Fprintf(&b, "\n…and %d more", len(files)-maxPreviewFiles)
			break
		}
		b.WriteString("\n• ")
		b.WriteString(filepath.Base(f))
	}
	return b.String()
}

func unsupported(reason string) Snapshot {
	return Snapshot{Kind: KindUnsupported, Preview: reason}
}
