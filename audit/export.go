package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Export writes the entries matching the filter to a delimited flat
// file and returns its path.
func (s *Store) Export(dir, prefix string, f Filter) (string, error) {
	entries, err := s.Query(f)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	name := fmt.Sprintf("%s-audit-%s.csv", prefix, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	file, err := os.Create(path) // #nosec G304 -- path built from configured export dir
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() { _ = file.Close() }()

	w := csv.NewWriter(file)
	header := []string{"timestamp", "event_type", "severity", "device", "attribute", "old_value", "new_value", "success", "duration_ms", "error", "correlation_id"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range entries {
		record := []string{
			e.Timestamp.Format(time.RFC3339),
			string(e.Type),
			string(e.Severity),
			e.Device,
			e.Attribute,
			e.OldValue,
			e.NewValue,
			strconv.FormatBool(e.Success),
			strconv.FormatInt(e.DurationMs, 10),
			e.Error,
			e.CorrelationID,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush export: %w", err)
	}
	return path, nil
}
