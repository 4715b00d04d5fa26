package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	s, err := Open(opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLogAndQueryNewestFirst(t *testing.T) {
	s := openTestStore(t, Options{})

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		s.Log(Entry{
			Type:      EventMappingUpdate,
			Device:    "LAPTOP-01",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Success:   true,
		})
	}

	entries, err := s.Query(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Timestamp.After(entries[2].Timestamp), "newest first")

	for _, e := range entries {
		assert.NotEmpty(t, e.EventID, "event id must be assigned")
	}
}

func TestQueryFilters(t *testing.T) {
	s := openTestStore(t, Options{})

	s.Log(Entry{Type: EventMappingUpdate, Device: "LAPTOP-01", Success: true})
	s.Log(Entry{Type: EventMappingNoOp, Device: "LAPTOP-02", Success: true})
	s.Log(Entry{Type: EventMappingUpdate, Device: "LAPTOP-02", Success: true})

	byType, err := s.Query(Filter{Type: EventMappingUpdate})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	byDevice, err := s.Query(Filter{Device: "LAPTOP-02"})
	require.NoError(t, err)
	assert.Len(t, byDevice, 2)

	limited, err := s.Query(Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestBufferFullTriggersFlush(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, Options{Dir: dir, BufferSize: 5, FlushInterval: time.Hour})

	for i := 0; i < 5; i++ {
		s.Log(Entry{Type: EventSystem, Message: "tick"})
	}

	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	lines := strings.Count(string(data), "\n")
	assert.Equal(t, 5, lines)
}

func TestQueryDuringConcurrentFlushes(t *testing.T) {
	// Small buffer so logging constantly triggers batch flushes while
	// queries race against the file writes.
	s := openTestStore(t, Options{BufferSize: 50})

	const total = 5000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			s.Log(Entry{
				Type:    EventMappingUpdate,
				Device:  "LAPTOP-01",
				Success: true,
			})
		}
	}()

	for {
		_, err := s.Query(Filter{Type: EventMappingUpdate, Limit: 10})
		require.NoError(t, err, "query must never observe a partially written line")

		select {
		case <-done:
			entries, err := s.Query(Filter{Type: EventMappingUpdate})
			require.NoError(t, err)
			assert.Len(t, entries, total)
			return
		default:
		}
	}
}

func TestQueryMergesDiskAndMemoryWithoutDuplicates(t *testing.T) {
	dir := t.TempDir()

	// First store lifetime: entries end up on disk.
	s := openTestStore(t, Options{Dir: dir, FlushInterval: time.Hour})
	s.Log(Entry{Type: EventMappingUpdate, Device: "LAPTOP-01", Success: true})
	require.NoError(t, s.Flush())

	// In-memory window still holds the flushed entry; a new one is
	// pending only.
	s.Log(Entry{Type: EventMappingNoOp, Device: "LAPTOP-01", Success: true})

	entries, err := s.Query(Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2, "flushed entries must not appear twice")
}

func TestSequenceSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Options{Dir: dir, FlushInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, err)
	s.Log(Entry{Type: EventSystem})
	s.Log(Entry{Type: EventSystem})
	require.NoError(t, s.Close())

	s2, err := Open(Options{Dir: dir, FlushInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	s2.Log(Entry{Type: EventSystem})
	entries, err := s2.Query(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), entries[0].Sequence, "sequence must continue after restart")
}

func TestSummarize(t *testing.T) {
	s := openTestStore(t, Options{})

	s.Log(Entry{Type: EventDeviceStart, Device: "LAPTOP-01", Success: true})
	s.Log(Entry{Type: EventMappingUpdate, Device: "LAPTOP-01", Success: true, DurationMs: 100})
	s.Log(Entry{Type: EventMappingError, Device: "LAPTOP-01", Severity: SeverityError, DurationMs: 300})
	s.Log(Entry{Type: EventMappingNoOp, Device: "LAPTOP-02", Success: true, DurationMs: 200})

	summary, err := s.Summarize(time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.DistinctDevices)
	assert.Equal(t, 1, summary.ByType[EventMappingError])
	assert.Equal(t, 1, summary.BySeverity[SeverityError])
	assert.InDelta(t, 2.0/3.0, summary.SuccessRate, 0.001)
	assert.InDelta(t, 200, summary.AvgDurationMs, 0.001)
}

type recordingObserver struct {
	entries []Entry
}

func (o *recordingObserver) Notify(e Entry) { o.entries = append(o.entries, e) }

type panickingObserver struct{}

func (panickingObserver) Notify(Entry) { panic("observer down") }

func TestBroadcastIsolatesObserverFailures(t *testing.T) {
	s := openTestStore(t, Options{})

	rec := &recordingObserver{}
	s.Subscribe(panickingObserver{})
	s.Subscribe(rec)

	s.Log(Entry{Type: EventSystem, Message: "hello"})

	require.Len(t, rec.entries, 1, "healthy observer must still be notified")
	assert.Equal(t, "hello", rec.entries[0].Message)
}

func TestExport(t *testing.T) {
	s := openTestStore(t, Options{})
	s.Log(Entry{Type: EventMappingUpdate, Device: "LAPTOP-01", Attribute: "extensionAttribute3",
		OldValue: "10.0.19045", NewValue: "10.0.22631", Success: true})

	exportDir := t.TempDir()
	path, err := s.Export(exportDir, "run", Filter{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "LAPTOP-01")
	assert.Contains(t, content, "10.0.22631")
	assert.True(t, strings.HasPrefix(filepath.Base(path), "run-audit-"))
}
