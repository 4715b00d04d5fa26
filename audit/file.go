package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// fileStore persists audit entries as one JSON object per line in an
// append-only file per calendar day.
type fileStore struct {
	dir     string
	file    *os.File
	writer  *bufio.Writer
	curDay  string
	nowFunc func() time.Time
}

func openFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &fileStore{dir: dir, nowFunc: time.Now}, nil
}

func dayFileName(day string) string {
	return fmt.Sprintf("audit-%s.jsonl", day)
}

// rotate opens the file for the current day, closing the previous one.
func (f *fileStore) rotate() error {
	day := f.nowFunc().Format("20060102")
	if f.file != nil && day == f.curDay {
		return nil
	}

	if f.file != nil {
		if err := f.writer.Flush(); err != nil {
			return err
		}
		if err := f.file.Close(); err != nil {
			return err
		}
	}

	path := filepath.Join(f.dir, dayFileName(day))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // #nosec G302 G304
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}

	f.file = file
	f.writer = bufio.NewWriter(file)
	f.curDay = day
	return nil
}

// append writes a batch of entries and syncs once at the end.
func (f *fileStore) append(entries []Entry) error {
	if err := f.rotate(); err != nil {
		return err
	}

	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		if _, err := f.writer.Write(line); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
		if _, err := f.writer.WriteString("\n"); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return f.file.Sync()
}

func (f *fileStore) close() error {
	if f.file == nil {
		return nil
	}
	if err := f.writer.Flush(); err != nil {
		return err
	}
	return f.file.Close()
}

// scan replays persisted entries through handler, oldest file first.
func (f *fileStore) scan(handler func(Entry) error) error {
	files, err := filepath.Glob(filepath.Join(f.dir, "audit-*.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to list audit files: %w", err)
	}
	sort.Strings(files)

	for _, path := range files {
		if err := scanFile(path, handler); err != nil {
			return err
		}
	}
	return nil
}

func scanFile(path string, handler func(Entry) error) error {
	file, err := os.Open(path) // #nosec G304 -- files come from our own glob
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		if err := handler(entry); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return scanner.Err()
}
