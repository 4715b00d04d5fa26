package orchestrator

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// exportRun writes every mapping outcome of the run to a CSV file
// under the configured export directory. Returns the file path.
func (o *Orchestrator) exportRun(result *RunResult) (string, error) {
	dir := o.cfg.Export.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}

	prefix := o.cfg.Export.Prefix
	if prefix == "" {
		prefix = "run"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.csv", prefix, result.Stats.RunID))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"run_id", "device_id", "device_name", "attribute", "result", "old_value", "new_value", "error", "duration_ms"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("writing export header: %w", err)
	}
	for _, dr := range result.Devices {
		for _, out := range dr.Outcomes {
			row := []string{
				result.Stats.RunID,
				dr.DeviceID,
				dr.DeviceName,
				out.Attribute,
				string(out.Result),
				out.OldValue,
				out.NewValue,
				out.Error,
				strconv.FormatInt(out.DurationMs, 10),
			}
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("writing export row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing export: %w", err)
	}
	return path, f.Close()
}
