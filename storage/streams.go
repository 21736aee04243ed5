package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StreamStore is an append-only store of line-delimited JSON record streams.
// Records are appended one JSON object per line and read back in file order
// to reconstruct state after a restart. The append-only layout is a design
// requirement: it is what keeps ledger writes sequential under load.
type StreamStore interface {
	// Append encodes record as JSON and appends it as one line to the
	// named stream.
	Append(stream string, record any) error

	// Replay calls fn with every record line of the named stream, in file
	// order, until fn returns false. A missing stream replays nothing.
	Replay(stream string, fn func(data []byte) bool) error

	// Close releases any resources held by the store.
	Close() error
}

// LedgerStreamName returns the leaf stream name for one question of one
// election.
func LedgerStreamName(electionID, questionID []byte) string {
	return fmt.Sprintf("ledger/%x/%x", electionID, questionID)
}

// NullifierStreamName returns the nullifier stream name for one election.
func NullifierStreamName(electionID []byte) string {
	return fmt.Sprintf("nullifiers/%x", electionID)
}

// FSStreams implements StreamStore with one file per stream under a base
// directory. Appends on the same stream are serialized; different streams
// append concurrently.
type FSStreams struct {
	dir string

	mu    sync.Mutex
	files map[string]*streamFile
}

type streamFile struct {
	mu sync.Mutex
	f  *os.File
}

var _ StreamStore = (*FSStreams)(nil)

// NewFSStreams creates a file-backed stream store rooted at dir.
func NewFSStreams(dir string) (*FSStreams, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("cannot create streams directory: %w", err)
	}
	return &FSStreams{
		dir:   dir,
		files: make(map[string]*streamFile),
	}, nil
}

// path maps a stream name to a file path under the base directory. Stream
// names use '/' separators which become subdirectories.
func (s *FSStreams) path(stream string) (string, error) {
	clean := filepath.Clean(stream)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid stream name: %q", stream)
	}
	return filepath.Join(s.dir, clean+".jsonl"), nil
}

func (s *FSStreams) file(stream string) (*streamFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sf, ok := s.files[stream]; ok {
		return sf, nil
	}
	p, err := s.path(stream)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return nil, fmt.Errorf("cannot create stream directory: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("cannot open stream %q: %w", stream, err)
	}
	sf := &streamFile{f: f}
	s.files[stream] = sf
	return sf, nil
}

func (s *FSStreams) Append(stream string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("cannot encode stream record: %w", err)
	}
	sf, err := s.file(stream)
	if err != nil {
		return err
	}
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if _, err := sf.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("cannot append to stream %q: %w", stream, err)
	}
	return nil
}

func (s *FSStreams) Replay(stream string, fn func(data []byte) bool) error {
	p, err := s.path(stream)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot open stream %q: %w", stream, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !fn(line) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("cannot read stream %q: %w", stream, err)
	}
	return nil
}

func (s *FSStreams) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, sf := range s.files {
		sf.mu.Lock()
		if err := sf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cannot close stream %q: %w", name, err)
		}
		sf.mu.Unlock()
	}
	s.files = make(map[string]*streamFile)
	return firstErr
}

// MemStreams implements StreamStore in memory, behind the same interface as
// the file-backed store. Tests only, never the production default.
type MemStreams struct {
	mu      sync.RWMutex
	streams map[string][][]byte
}

var _ StreamStore = (*MemStreams)(nil)

// NewMemStreams creates an in-memory stream store.
func NewMemStreams() *MemStreams {
	return &MemStreams{streams: make(map[string][][]byte)}
}

func (s *MemStreams) Append(stream string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("cannot encode stream record: %w", err)
	}
	s.mu.Lock()
	s.streams[stream] = append(s.streams[stream], data)
	s.mu.Unlock()
	return nil
}

func (s *MemStreams) Replay(stream string, fn func(data []byte) bool) error {
	s.mu.RLock()
	records := make([][]byte, len(s.streams[stream]))
	copy(records, s.streams[stream])
	s.mu.RUnlock()
	for _, record := range records {
		if !fn(record) {
			break
		}
	}
	return nil
}

func (s *MemStreams) Close() error { return nil }
