package audit

import (
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Observer receives every logged entry in real time, best-effort.
type Observer interface {
	Notify(Entry)
}

// Options configures a Store.
type Options struct {
	Dir           string
	BufferSize    int
	FlushInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Minute
	}
}

// Store is the audit subsystem: a bounded in-memory window for
// low-latency queries, a pending buffer flushed to the append-only file
// store on a timer or when full, and a best-effort observer fan-out.
//
// Logging is fire-and-forget: internal failures are logged, never
// propagated to the reconciliation path that produced the entry.
type Store struct {
	mu        sync.Mutex
	window    *btree.BTreeG[Entry]
	windowCap int
	pending   []Entry
	seq       int64
	file      *fileStore
	log       zerolog.Logger
	subs      []Observer
	done      chan struct{}
	stopped   sync.WaitGroup
}

// Open creates the store, recovers the sequence counter from any
// existing audit files, and starts the background flusher. The flusher
// lives exactly as long as the store; Close stops it.
func Open(opts Options, log zerolog.Logger) (*Store, error) {
	opts.applyDefaults()

	file, err := openFileStore(opts.Dir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		window: btree.NewG[Entry](32, func(a, b Entry) bool {
			return a.Sequence < b.Sequence
		}),
		windowCap: opts.BufferSize,
		file:      file,
		log:       log,
		done:      make(chan struct{}),
	}

	if err := s.loadSequence(); err != nil {
		return nil, err
	}

	s.stopped.Add(1)
	go s.flusher(opts.FlushInterval)

	return s, nil
}

// loadSequence finds the last persisted sequence number.
func (s *Store) loadSequence() error {
	return s.file.scan(func(e Entry) error {
		if e.Sequence > s.seq {
			s.seq = e.Sequence
		}
		return nil
	})
}

// Log records an entry. Missing event id, timestamp, and severity are
// filled in. Never fails from the caller's perspective.
func (s *Store) Log(e Entry) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}

	s.mu.Lock()
	s.seq++
	e.Sequence = s.seq

	s.window.ReplaceOrInsert(e)
	for s.window.Len() > s.windowCap {
		s.window.DeleteMin()
	}

	s.pending = append(s.pending, e)
	if len(s.pending) >= s.windowCap {
		if err := s.flushLocked(); err != nil {
			s.log.Error().Err(err).Msg("audit flush failed, will retry next tick")
		}
	}
	s.mu.Unlock()

	s.broadcast(e)
}

// Flush persists all pending entries now.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.file.append(s.pending); err != nil {
		// Keep entries for the next tick, but bound the buffer so a
		// dead disk cannot grow memory without limit.
		if excess := len(s.pending) - 2*s.windowCap; excess > 0 {
			s.pending = s.pending[excess:]
			s.log.Error().Int("dropped", excess).Msg("audit pending buffer overflow, dropped oldest entries")
		}
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *Store) flusher(interval time.Duration) {
	defer s.stopped.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.log.Error().Err(err).Msg("audit flush failed, will retry next tick")
			}
		case <-s.done:
			return
		}
	}
}

// Subscribe registers a real-time observer.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, o)
}

// broadcast fans the entry out to observers. Observer failures are
// caught and logged, never propagated.
func (s *Store) broadcast(e Entry) {
	s.mu.Lock()
	subs := make([]Observer, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Msg("audit observer panicked")
				}
			}()
			sub.Notify(e)
		}()
	}
}

// Query returns a merged view of in-memory and persisted entries,
// filtered and sorted newest-first. The lock is held across the file
// scan as well: flushes write batches through a buffered writer, so an
// unlocked reader could see a partially written trailing line.
func (s *Store) Query(f Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inMemory := make(map[string]bool, s.window.Len())
	var matched []Entry
	s.window.Ascend(func(e Entry) bool {
		inMemory[e.EventID] = true
		if f.matches(e) {
			matched = append(matched, e)
		}
		return true
	})

	err := s.file.scan(func(e Entry) error {
		if !inMemory[e.EventID] && f.matches(e) {
			matched = append(matched, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(matched)
	return paginate(matched, f.Offset, f.Limit), nil
}

// Summarize computes aggregate stats over the given window.
func (s *Store) Summarize(from, to time.Time) (Summary, error) {
	entries, err := s.Query(Filter{From: from, To: to})
	if err != nil {
		return Summary{}, err
	}
	return Summarize(entries), nil
}

// Close flushes pending entries and stops the background flusher.
func (s *Store) Close() error {
	close(s.done)
	s.stopped.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	flushErr := s.flushLocked()
	if err := s.file.close(); err != nil {
		return err
	}
	return flushErr
}

func sortNewestFirst(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Sequence > b.Sequence
	})
}

func paginate(entries []Entry, offset, limit int) []Entry {
	if offset > 0 {
		if offset >= len(entries) {
			return nil
		}
		entries = entries[offset:]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
