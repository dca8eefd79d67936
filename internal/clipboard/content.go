// Package clipboard models the guarded resource: its content, point-in-time
// snapshots of it, and the backends that hold it.
package clipboard

import (
	"errors"
	"strings"
	"time"
)

// ErrLocked means another owner holds the clipboard right now. It is the only
// error worth retrying.
var ErrLocked = errors.New("clipboard: locked by another owner")

type Content struct {
	Text  string   `json:"text,omitempty"`
	Files []string `json:"files,omitempty"`
	// Formats names representations the guardian cannot carry, e.g. "image/png".
	Formats []string `json:"formats,omitempty"`
}

func (c Content) IsEmpty() bool {
	return strings.TrimSpace(c.Text) == "" && len(c.Files) == 0 && len(c.Formats) == 0
}

type Kind string

const (
	KindText        Kind = "text"
	KindFiles       Kind = "files"
	KindEmpty       Kind = "empty"
	KindUnsupported Kind = "unsupported"
)

// Snapshot is an immutable capture of the clipboard. Text and Files keep the
// full payload; Preview is bounded.
type Snapshot struct {
	Kind    Kind     `json:"kind"`
	Text    string   `json:"text,omitempty"`
	Files   []string `json:"files,omitempty"`
	Preview string   `json:"preview"`
}

// Restorable reports whether the snapshot can be written back.
func (s Snapshot) Restorable() bool {
	return s.Kind == KindText || s.Kind == KindFiles
}

func (s Snapshot) Content() Content {
	switch s.Kind {
	case KindText:
		return Content{Text: s.Text}
	case KindFiles:
		return Content{Files: append([]string(nil), s.Files...)}
	}
	return Content{}
}

type Source interface {
	Read() (Content, error)
}

type Clipboard interface {
	Source
	Write(c Content) error
	Clear() error
}

// Change is a clipboard-changed notification. ActorID is empty when the
// backend cannot attribute the write.
type Change struct {
	ActorID    string
	ActorLabel string
	At         time.Time
}

type Notifier interface {
	Changes() <-chan Change
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (Content, error)

func (f SourceFunc) Read() (Content, error) { return f() }
