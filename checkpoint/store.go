// Package checkpoint persists WAL bookkeeping that must outlive the
// process: named reader checkpoints (how far a consumer has applied the
// log) and a small outbox of sealed-segment events awaiting publication.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"seglog/wal"
)

// SegmentState tracks a sealed segment through the outbox.
type SegmentState uint8

const (
	StateNew SegmentState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s SegmentState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// SegmentEvent is the outbox entry for one sealed segment.
type SegmentEvent struct {
	State       SegmentState
	Retries     uint32
	LastAttempt int64
}

// binary encoding: [state:1][retries:4][lastAttempt:8]
func encodeEvent(ev SegmentEvent) []byte {
	buf := make([]byte, 1+4+8)
	buf[0] = byte(ev.State)
	binary.BigEndian.PutUint32(buf[1:5], ev.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(ev.LastAttempt))
	return buf
}

func decodeEvent(b []byte) (SegmentEvent, error) {
	if len(b) != 13 {
		return SegmentEvent{}, errors.New("checkpoint: invalid segment event length")
	}
	return SegmentEvent{
		State:       SegmentState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
	}, nil
}

// Store is a pebble-backed side store next to (never inside) the WAL
// directory.
type Store struct {
	db *pebble.DB
}

// Open opens or creates the store under dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCheckpoint durably records that the consumer named name has applied
// the log up to pos.
func (s *Store) SaveCheckpoint(name string, pos wal.ChunkPosition) error {
	return s.db.Set(checkpointKey(name), pos.Encode(), pebble.Sync)
}

// LoadCheckpoint returns the stored position for name. The second return
// is false when no checkpoint exists.
func (s *Store) LoadCheckpoint(name string) (wal.ChunkPosition, bool, error) {
	val, closer, err := s.db.Get(checkpointKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return wal.ChunkPosition{}, false, nil
	}
	if err != nil {
		return wal.ChunkPosition{}, false, err
	}
	defer closer.Close()

	pos, err := wal.DecodeChunkPosition(val)
	if err != nil {
		return wal.ChunkPosition{}, false, err
	}
	return pos, true, nil
}

func (s *Store) DeleteCheckpoint(name string) error {
	return s.db.Delete(checkpointKey(name), pebble.Sync)
}

// PutSealed inserts a fresh outbox entry for a segment that just got
// displaced from the active role.
func (s *Store) PutSealed(segmentID uint32) error {
	ev := SegmentEvent{State: StateNew}
	return s.db.Set(segmentKey(segmentID), encodeEvent(ev), pebble.Sync)
}

// UpdateSegment moves an outbox entry to a new state after a publish
// attempt.
func (s *Store) UpdateSegment(segmentID uint32, state SegmentState, retries uint32) error {
	ev := SegmentEvent{
		State:       state,
		Retries:     retries,
		LastAttempt: time.Now().UnixNano(),
	}
	return s.db.Set(segmentKey(segmentID), encodeEvent(ev), pebble.Sync)
}

// GetSegment returns the current outbox entry for a segment.
func (s *Store) GetSegment(segmentID uint32) (SegmentEvent, error) {
	val, closer, err := s.db.Get(segmentKey(segmentID))
	if err != nil {
		return SegmentEvent{}, err
	}
	defer closer.Close()

	return decodeEvent(val)
}

// DeleteSegment drops a fully acknowledged outbox entry.
func (s *Store) DeleteSegment(segmentID uint32) error {
	return s.db.Delete(segmentKey(segmentID), pebble.Sync)
}

// ScanByState iterates every outbox entry in the given state, in segment
// id order.
func (s *Store) ScanByState(state SegmentState, fn func(segmentID uint32, ev SegmentEvent) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("segment/"),
		UpperBound: []byte("segment/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		ev, err := decodeEvent(iter.Value())
		if err != nil {
			return err
		}
		if ev.State != state {
			continue
		}
		id, err := parseSegmentKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(id, ev); err != nil {
			return err
		}
	}
	return iter.Error()
}

func checkpointKey(name string) []byte {
	return []byte("checkpoint/" + name)
}

func segmentKey(segmentID uint32) []byte {
	return []byte(fmt.Sprintf("segment/%09d", segmentID))
}

func parseSegmentKey(key []byte) (uint32, error) {
	var id uint32
	_, err := fmt.Sscanf(string(key), "segment/%d", &id)
	return id, err
}
