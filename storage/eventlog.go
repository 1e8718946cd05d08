package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"ravenstake/core/events"
)

// LoggedEvent is the durable form of an engine event. The payload is the
// JSON-encoded event struct; Type carries the event type constant so readers
// can dispatch without decoding.
type LoggedEvent struct {
	Sequence   uint64          `json:"sequence"`
	Type       string          `json:"type"`
	RecordedAt int64           `json:"recordedAt"`
	Payload    json.RawMessage `json:"payload"`
}

// EventLog is an append-only journal of engine events backed by LevelDB.
// Keys are big-endian sequence numbers so iteration order is append order.
type EventLog struct {
	mu   sync.Mutex
	db   *leveldb.DB
	next uint64
}

// OpenEventLog creates or opens the event journal at the given path.
func OpenEventLog(path string) (*EventLog, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	log := &EventLog{db: db}
	iter := db.NewIterator(util.BytesPrefix([]byte("evt/")), nil)
	if iter.Last() {
		log.next = decodeSeq(iter.Key()) + 1
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		db.Close()
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return log, nil
}

// Close releases the underlying database.
func (l *EventLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Emit satisfies events.Emitter. Events that fail to encode or persist are
// dropped; the journal is an audit trail, not part of settlement durability.
func (l *EventLog) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	logged := LoggedEvent{
		Sequence:   l.next,
		Type:       evt.EventType(),
		RecordedAt: time.Now().Unix(),
		Payload:    payload,
	}
	encoded, err := json.Marshal(logged)
	if err != nil {
		return
	}
	if err := l.db.Put(encodeSeq(l.next), encoded, nil); err != nil {
		return
	}
	l.next++
}

// Replay streams every journalled event, oldest first, to fn. Iteration stops
// at the first error fn returns.
func (l *EventLog) Replay(fn func(LoggedEvent) error) error {
	if l == nil || l.db == nil {
		return nil
	}
	iter := l.db.NewIterator(util.BytesPrefix([]byte("evt/")), nil)
	defer iter.Release()
	for iter.Next() {
		var logged LoggedEvent
		if err := json.Unmarshal(iter.Value(), &logged); err != nil {
			return fmt.Errorf("decode event %d: %w", decodeSeq(iter.Key()), err)
		}
		if err := fn(logged); err != nil {
			return err
		}
	}
	return iter.Error()
}

func encodeSeq(seq uint64) []byte {
	key := make([]byte, 4+8)
	copy(key, "evt/")
	binary.BigEndian.PutUint64(key[4:], seq)
	return key
}

func decodeSeq(key []byte) uint64 {
	if len(key) < 12 {
		return 0
	}
	return binary.BigEndian.Uint64(key[4:])
}
