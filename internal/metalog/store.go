package metalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roach88/fleetsync/internal/ir"
)

const (
	stateFileName = "state.json"
	logFileName   = "log.jsonl"
)

// Options configures Open.
type Options struct {
	// Logger receives replay warnings. Default: slog.Default().
	Logger *slog.Logger

	// Now stamps new entries. Default: time.Now.
	Now func() time.Time
}

// logFile is the append handle for log.jsonl; *os.File in production.
type logFile interface {
	io.Writer
	io.Seeker
	Sync() error
	Truncate(size int64) error
	Close() error
}

// Store is the durable metadata and log store for one node.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	dir    string
	state  RaftState
	log    logFile
	events map[string]struct{}
	logger *slog.Logger
	now    func() time.Time
}

// Open loads or creates the store in dir.
//
// The snapshot is read from state.json and the log replayed from
// log.jsonl. last_log_index becomes the larger of the persisted value and
// the highest replayed index.
func Open(dir string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create metalog dir: %w", err)
	}

	s := &Store{
		dir:    dir,
		events: make(map[string]struct{}),
		logger: opts.Logger.With("component", "metalog"),
		now:    opts.Now,
	}

	state, err := readState(s.statePath())
	if err != nil {
		return nil, err
	}
	s.state = state

	maxIndex, err := s.replay()
	if err != nil {
		return nil, err
	}
	if maxIndex > s.state.LastLogIndex {
		s.state.LastLogIndex = maxIndex
	}

	f, err := os.OpenFile(s.logPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	s.log = f
	return s, nil
}

// Close releases the log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	err := s.log.Close()
	s.log = nil
	return err
}

// Dir returns the directory holding state.json and log.jsonl.
func (s *Store) Dir() string {
	return s.dir
}

// State returns a copy of the current snapshot.
func (s *Store) State() RaftState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SetState merges p into the snapshot and persists it.
// Returns the resulting state.
func (s *Store) SetState(p StatePatch) (RaftState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	p.apply(&next)
	if err := s.persistLocked(next); err != nil {
		return s.state.clone(), err
	}
	return next.clone(), nil
}

// AppendEntry appends e at the next index, fsyncs it, and advances
// commit_index and last_applied to that index. Index is assigned by the
// store; CreatedAt is stamped when zero. Returns the assigned index.
func (s *Store) AppendEntry(e LogEntry) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Type == "" {
		e.Type = EntryMetadata
	}
	if e.Type == EntryClusterEvent && e.Event != nil && e.EventID == "" {
		e.EventID = e.Event.EventID
	}
	if err := s.appendLocked([]LogEntry{e}); err != nil {
		return 0, err
	}
	return s.state.LastLogIndex, nil
}

// AppendClusterEvents mirrors events into the log, one entry per event_id
// not yet recorded. Events already mirrored, in this process or before a
// restart, are skipped. Returns the number of entries appended.
func (s *Store) AppendClusterEvents(events []ir.ClusterEvent, term uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []LogEntry
	batch := make(map[string]struct{})
	for i := range events {
		ev := events[i]
		if _, ok := s.events[ev.EventID]; ok {
			continue
		}
		if _, ok := batch[ev.EventID]; ok {
			continue
		}
		batch[ev.EventID] = struct{}{}
		entries = append(entries, LogEntry{
			Term:    term,
			Type:    EntryClusterEvent,
			EventID: ev.EventID,
			Event:   &ev,
		})
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := s.appendLocked(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// HasEvent reports whether a cluster event has been mirrored.
func (s *Store) HasEvent(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[eventID]
	return ok
}

// EventCount returns the number of distinct mirrored cluster events.
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// appendLocked writes entries as consecutive lines with a single fsync,
// then persists the advanced snapshot.
func (s *Store) appendLocked(entries []LogEntry) error {
	if s.log == nil {
		return errors.New("metalog: store is closed")
	}

	next := s.state.clone()
	var buf []byte
	for i := range entries {
		next.LastLogIndex++
		entries[i].Index = next.LastLogIndex
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = s.now().UTC()
		}
		line, err := json.Marshal(entries[i])
		if err != nil {
			return fmt.Errorf("encode log entry %d: %w", entries[i].Index, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	start, err := s.log.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek log: %w", err)
	}
	if _, err := s.log.Write(buf); err != nil {
		return s.discardTail(start, fmt.Errorf("write log: %w", err))
	}
	if err := s.log.Sync(); err != nil {
		return s.discardTail(start, fmt.Errorf("sync log: %w", err))
	}

	next.CommitIndex = next.LastLogIndex
	next.LastApplied = next.LastLogIndex
	for _, e := range entries {
		if e.EventID != "" {
			s.events[e.EventID] = struct{}{}
		}
	}
	// The log is durable at this point; a failed snapshot write is
	// repaired by replay on the next Open.
	s.state.LastLogIndex = next.LastLogIndex
	if err := s.persistLocked(next); err != nil {
		return err
	}
	return nil
}

// discardTail cuts the log back to offset after a failed append so the
// next entry starts on a fresh line.
func (s *Store) discardTail(offset int64, cause error) error {
	if err := s.log.Truncate(offset); err != nil {
		return errors.Join(cause, fmt.Errorf("truncate log: %w", err))
	}
	return cause
}

// persistLocked writes state.json atomically and adopts st on success.
func (s *Store) persistLocked(st RaftState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := writeFileAtomic(s.statePath(), data); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	s.state = st
	return nil
}

func (s *Store) statePath() string {
	return filepath.Join(s.dir, stateFileName)
}

func (s *Store) logPath() string {
	return filepath.Join(s.dir, logFileName)
}

func readState(path string) (RaftState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return RaftState{}, nil
	}
	if err != nil {
		return RaftState{}, fmt.Errorf("read state: %w", err)
	}
	var st RaftState
	if err := json.Unmarshal(data, &st); err != nil {
		return RaftState{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

// writeFileAtomic replaces path with data via a synced temp file and
// rename, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems reject fsync on directories; the rename already
	// happened, so treat that as best effort.
	_ = d.Sync()
	return nil
}
