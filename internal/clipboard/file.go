package clipboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/watch"
	"github.com/rs/zerolog/log"
)

// File is a clipboard kept in a JSON file, shared by every process that
// opens the same path. Readers and writers coordinate through an advisory
// lock on a sibling ".lock" file; a held lock reads as ErrLocked.
type File struct {
	path     string
	lockPath string
	now      func() time.Time

	mu      sync.Mutex
	watcher *watch.FileWatcher
	changes chan Change
}

func OpenFile(path string, now func() time.Time) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("clipboard path is empty")
	}
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create clipboard directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open clipboard file: %w", err)
	}
	f.Close()

	return &File{
		path:     path,
		lockPath: path + ".lock",
		now:      now,
		changes:  make(chan Change, 64),
	}, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Read() (Content, error) {
	release, err := f.lock(false)
	if err != nil {
		return Content{}, err
	}
	defer release()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return Content{}, fmt.Errorf("read clipboard file: %w", err)
	}
	if len(data) == 0 {
		return Content{}, nil
	}

	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return Content{}, fmt.Errorf("decode clipboard file: %w", err)
	}
	return c, nil
}

func (f *File) Write(c Content) error {
	release, err := f.lock(true)
	if err != nil {
		return err
	}
	defer release()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode clipboard content: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(f.path), "."+filepath.Base(f.path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write clipboard temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace clipboard file: %w", err)
	}
	return nil
}

func (f *File) Clear() error {
	return f.Write(Content{})
}

// Hold takes the exclusive lock like a foreign owner would, until release.
func (f *File) Hold() (release func(), err error) {
	return f.lock(true)
}

// Watch starts publishing a Change for every modification of the file,
// including our own; the caller filters those with a suppression window.
func (f *File) Watch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil {
		return nil
	}

	w, err := watch.New(filepath.Dir(f.path), watch.Named(f.path), 0, func(string) {
		f.publish(Change{At: f.now()})
	})
	if err != nil {
		return fmt.Errorf("watch clipboard file: %w", err)
	}
	f.watcher = w
	return nil
}

func (f *File) Changes() <-chan Change {
	return f.changes
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher == nil {
		return nil
	}
	err := f.watcher.Close()
	f.watcher = nil
	return err
}

func (f *File) publish(ch Change) {
	select {
	case f.changes <- ch:
	default:
		log.Warn().Str("path", f.path).Msg("clipboard change dropped, listener is behind")
	}
}

func (f *File) lock(exclusive bool) (func(), error) {
	lf, err := os.OpenFile(f.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open clipboard lock: %w", err)
	}
	if err := tryLock(lf, exclusive); err != nil {
		lf.Close()
		return nil, err
	}
	return func() {
		_ = unlock(lf)
		lf.Close()
	}, nil
}
