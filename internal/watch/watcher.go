package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

type ChangeHandler func(path string)

// Filter decides which filesystem events reach the handler.
type Filter func(event fsnotify.Event) bool

type FileWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	filter   Filter
	handler  ChangeHandler
	debounce time.Duration
	done     chan struct{}

	mu        sync.Mutex
	timer     *time.Timer
	closeOnce sync.Once
}

// New watches dir and calls handler for matching write/create events. With a
// non-zero debounce, bursts collapse into one call for the last path seen.
func New(dir string, filter Filter, debounce time.Duration, handler ChangeHandler) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	fw := &FileWatcher{
		watcher:  watcher,
		dir:      dir,
		filter:   filter,
		handler:  handler,
		debounce: debounce,
		done:     make(chan struct{}),
	}

	go fw.watch()

	return fw, nil
}

func (fw *FileWatcher) Dir() string {
	return fw.dir
}

func (fw *FileWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		close(fw.done)
		fw.mu.Lock()
		if fw.timer != nil {
			fw.timer.Stop()
		}
		fw.mu.Unlock()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watch() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldHandle(event) {
				fw.dispatch(event.Name)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("dir", fw.dir).Msg("watcher error")

		case <-fw.done:
			return
		}
	}
}

func (fw *FileWatcher) shouldHandle(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return fw.filter == nil || fw.filter(event)
}

func (fw *FileWatcher) dispatch(path string) {
	if fw.debounce <= 0 {
		fw.handler(path)
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		select {
		case <-fw.done:
		default:
			fw.handler(path)
		}
	})
}

// HasExt matches files by extension, case-insensitively.
func HasExt(exts ...string) Filter {
	return func(event fsnotify.Event) bool {
		ext := strings.ToLower(filepath.Ext(event.Name))
		for _, e := range exts {
			if ext == strings.ToLower(e) {
				return true
			}
		}
		return false
	}
}

// Named matches a single file.
func Named(path string) Filter {
	clean := filepath.Clean(path)
	return func(event fsnotify.Event) bool {
		return filepath.Clean(event.Name) == clean
	}
}
