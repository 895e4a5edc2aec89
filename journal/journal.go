package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"voting-ledger/models"
)

// Entry is one notification in the append-only audit journal. Entries are
// hash-chained: each entry commits to the previous entry's hash, so any
// rewrite of history is detectable by Validate.
type Entry struct {
	Seq       uint64           `json:"seq"`
	ID        string           `json:"id"`
	Timestamp int64            `json:"timestamp"`
	Type      models.EventType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
	PrevHash  []byte           `json:"prev_hash"`
	Hash      []byte           `json:"hash"`
}

func (e *Entry) computeHash() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, e.Seq)
	binary.Write(buffer, binary.BigEndian, e.Timestamp)
	buffer.WriteString(e.ID)
	buffer.WriteString(string(e.Type))
	buffer.Write(e.Payload)
	buffer.Write(e.PrevHash)

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(buffer.Bytes())
	return hasher.Sum(nil)
}

// Verify checks that the stored hash matches the entry contents.
func (e *Entry) Verify() bool {
	return bytes.Equal(e.Hash, e.computeHash())
}

// Log is the in-memory journal. Appends are serialized; subscribers receive
// entries on buffered channels and slow subscribers are skipped rather than
// blocking the appender.
type Log struct {
	mu      sync.RWMutex
	entries []*Entry
	subs    []chan *Entry
}

func New() *Log {
	return &Log{}
}

// Load rebuilds a journal from persisted entries, refusing a broken chain.
func Load(entries []*Entry) (*Log, error) {
	if !Validate(entries) {
		return nil, errors.New("journal chain validation failed")
	}
	return &Log{entries: entries}, nil
}

// Append records an event of the given type. The payload must be JSON
// marshalable; failures leave the journal untouched.
func (l *Log) Append(eventType models.EventType, payload interface{}) (*Entry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal %s payload", eventType)
	}

	l.mu.Lock()
	entry := &Entry{
		Seq:       uint64(len(l.entries)),
		ID:        uuid.New().String(),
		Timestamp: time.Now().Unix(),
		Type:      eventType,
		Payload:   data,
		PrevHash:  l.lastHashLocked(),
	}
	entry.Hash = entry.computeHash()
	l.entries = append(l.entries, entry)
	subs := make([]chan *Entry, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- entry:
		default:
		}
	}

	return entry, nil
}

func (l *Log) lastHashLocked() []byte {
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[len(l.entries)-1].Hash
}

// Entries returns a snapshot of the journal in append order.
func (l *Log) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]*Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) LastHash() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastHashLocked()
}

// Subscribe registers a watcher for future entries. The returned channel is
// buffered; entries published while the buffer is full are dropped for that
// subscriber only.
func (l *Log) Subscribe() <-chan *Entry {
	ch := make(chan *Entry, 64)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

// Validate walks the whole chain: every entry must carry its own correct
// hash, link to its predecessor, and use its position as sequence number.
func Validate(entries []*Entry) bool {
	for i, entry := range entries {
		if entry.Seq != uint64(i) {
			return false
		}
		if !entry.Verify() {
			return false
		}
		if i == 0 {
			if len(entry.PrevHash) != 0 {
				return false
			}
			continue
		}
		if !bytes.Equal(entry.PrevHash, entries[i-1].Hash) {
			return false
		}
	}
	return true
}
