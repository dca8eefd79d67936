package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const maxLineBytes = 1 << 20

// JSONLStore appends one JSON object per line to a file.
type JSONLStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func OpenJSONL(path string) (*JSONLStore, error) {
	if err := preparePrivateFile(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}

	return &JSONLStore{path: path, f: f}, nil
}

func (s *JSONLStore) Path() string {
	return s.path
}

func (s *JSONLStore) Append(_ context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("append entry: %w", fs.ErrClosed)
	}
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (s *JSONLStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadJSONL(ctx, s.path, n)
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// ReadJSONL returns the last n well-formed entries of the file at path,
// oldest first. Lines that do not parse are skipped. A missing file reads as
// empty.
func ReadJSONL(ctx context.Context, path string, n int) ([]Entry, error) {
	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var entries []Entry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			log.Debug().Err(err).Int("line", lineNo).Str("path", path).Msg("skipping malformed history line")
			continue
		}
		entries = append(entries, e)
		if n > 0 && len(entries) > n {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	return entries, nil
}
