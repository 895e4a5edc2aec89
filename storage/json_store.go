package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"voting-ledger/journal"
	"voting-ledger/models"
)

const (
	stateFile   = "ledger_state.json"
	journalFile = "journal.json"
)

// LedgerState is the durable snapshot of everything the ledger owns: the
// authority identity, the dense session table (candidates and vote records
// included), and the global authorization table.
type LedgerState struct {
	Authority  common.Address          `json:"authority"`
	Sessions   []*models.VotingSession `json:"sessions"`
	Authorized map[common.Address]bool `json:"authorized"`
}

// JSONStore persists the ledger state and the audit journal as JSON files
// under a single directory. Historical sessions are never expired or
// compacted; the files only grow.
type JSONStore struct {
	basePath string
	mu       sync.Mutex
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}
	return &JSONStore{basePath: basePath}, nil
}

func (s *JSONStore) SaveState(state *LedgerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(stateFile, state)
}

// LoadState returns the persisted snapshot, or nil if none exists yet.
func (s *JSONStore) LoadState() (*LedgerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state LedgerState
	found, err := s.readJSON(stateFile, &state)
	if err != nil || !found {
		return nil, err
	}
	if state.Authorized == nil {
		state.Authorized = make(map[common.Address]bool)
	}
	return &state, nil
}

func (s *JSONStore) SaveJournal(entries []*journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(journalFile, entries)
}

func (s *JSONStore) LoadJournal() ([]*journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*journal.Entry
	if _, err := s.readJSON(journalFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *JSONStore) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", name)
	}

	// Write through a temp file so a crash mid-write never leaves a
	// truncated snapshot behind.
	path := filepath.Join(s.basePath, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", name)
	}
	return nil
}

func (s *JSONStore) readJSON(name string, v interface{}) (bool, error) {
	path := filepath.Join(s.basePath, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to read %s", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "failed to decode %s", name)
	}
	return true, nil
}
