package metalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// replay scans log.jsonl, records mirrored event IDs and returns the
// highest index seen. A final line without a trailing newline is a torn
// write and is truncated.
func (s *Store) replay() (uint64, error) {
	f, err := os.OpenFile(s.logPath(), os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open log for replay: %w", err)
	}
	defer f.Close()

	var (
		maxIndex uint64
		offset   int64
		lineNo   int
		skipped  int
	)
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				s.logger.Warn("truncating torn log tail",
					"offset", offset, "bytes", len(line))
				if err := f.Truncate(offset); err != nil {
					return 0, fmt.Errorf("truncate torn log tail: %w", err)
				}
				if err := f.Sync(); err != nil {
					return 0, fmt.Errorf("sync truncated log: %w", err)
				}
			}
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read log: %w", err)
		}
		lineNo++
		offset += int64(len(line))

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal(trimmed, &e); err != nil {
			skipped++
			s.logger.Warn("skipping unreadable log line", "line", lineNo, "error", err)
			continue
		}
		if e.Index > maxIndex {
			maxIndex = e.Index
		}
		if e.EventID != "" {
			s.events[e.EventID] = struct{}{}
		}
	}

	if skipped > 0 {
		s.logger.Warn("log replay skipped lines", "skipped", skipped)
	}
	return maxIndex, nil
}

// ReadEntries returns every readable entry in dir's log, in file order.
// Unreadable lines and a torn final line are skipped, matching what Open
// tolerates.
func ReadEntries(dir string) ([]LogEntry, error) {
	f, err := os.Open(filepath.Join(dir, logFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var entries []LogEntry
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		var e LogEntry
		if json.Unmarshal(bytes.TrimSpace(line), &e) == nil {
			entries = append(entries, e)
		}
	}
}
