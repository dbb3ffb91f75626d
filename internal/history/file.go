package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gluk-w/boxterm/internal/naming"
)

// fileStore keeps each record as <dir>/<name>.json, rewritten whole through
// a temp file and rename.
type fileStore struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*nameLock
}

// nameLock is a per-record mutex. It is dropped from the map once nobody
// holds or waits for it.
type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newFileStore(dir string, now func() time.Time) *fileStore {
	return &fileStore{
		dir:    dir,
		now:    now,
		logger: log.With().Str("component", "history").Str("backend", "file").Logger(),
		locks:  make(map[string]*nameLock),
	}
}

func (s *fileStore) lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &nameLock{}
		s.locks[name] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, name)
		}
		s.mu.Unlock()
	}
}

// lockCount reports how many per-record locks are live.
func (s *fileStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func (s *fileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *fileStore) Load(_ context.Context, name string) (Record, error) {
	if !naming.Valid(name) {
		return Record{}, ErrInvalidName
	}
	unlock := s.lock(name)
	defer unlock()
	return s.read(name), nil
}

func (s *fileStore) read(name string) Record {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("container", name).Msg("cannot read history record")
		}
		return emptyRecord(name)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn().Err(err).Str("container", name).Msg("corrupt history record, starting empty")
		return emptyRecord(name)
	}
	rec.ContainerName = name
	if rec.Messages == nil {
		rec.Messages = []Message{}
	}
	return rec
}

func (s *fileStore) Append(_ context.Context, name string, role Role, content string, extra Extra) (Message, error) {
	if !naming.Valid(name) {
		return Message{}, ErrInvalidName
	}
	unlock := s.lock(name)
	defer unlock()

	rec := s.read(name)
	msg := newMessage(role, content, extra, s.now())
	rec.Messages = append(rec.Messages, msg)
	finish(&rec)

	if err := s.write(rec); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (s *fileStore) write(rec Record) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, rec.ContainerName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(rec.ContainerName)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

func (s *fileStore) Remove(_ context.Context, name string) error {
	if !naming.Valid(name) {
		return ErrInvalidName
	}
	unlock := s.lock(name)
	defer unlock()

	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

func (s *fileStore) ListNames(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list history: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || !naming.Valid(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStore) Close() error { return nil }
