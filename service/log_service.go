// Package service wires the WAL core to its collaborators: the checkpoint
// store, the Kafka notifier and process metrics. The core itself stays
// free of logging and instrumentation; everything observable happens here.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"seglog/checkpoint"
	"seglog/infra/kafka"
	"seglog/wal"
)

// LogService exposes the append/read/sync surface of one WAL plus the
// bookkeeping around it.
type LogService struct {
	log      zerolog.Logger
	wal      *wal.WAL
	store    *checkpoint.Store // optional
	notifier *kafka.Producer   // optional
	metrics  *Metrics
}

func NewLogService(log zerolog.Logger, w *wal.WAL, store *checkpoint.Store, notifier *kafka.Producer, metrics *Metrics) *LogService {
	return &LogService{
		log:      log,
		wal:      w,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
	}
}

// Append writes one record and returns its position. When the write
// rotated the log, the displaced segment is recorded in the outbox for the
// broadcaster to announce. Notification failures never fail the append;
// the record is already durable in the log's terms.
func (s *LogService) Append(ctx context.Context, data []byte) (wal.ChunkPosition, error) {
	before := s.wal.ActiveSegmentID()
	pos, err := s.wal.Write(data)
	if err != nil {
		return wal.ChunkPosition{}, err
	}
	s.metrics.Appends.Inc()
	s.metrics.AppendedBytes.Add(float64(len(data)))

	if pos.SegmentID != before {
		s.metrics.Rotations.Add(float64(pos.SegmentID - before))
		s.log.Info().Uint32("from", before).Uint32("active", pos.SegmentID).Msg("segment rotated")
		if s.store != nil {
			// Concurrent appends can rotate the log more than once
			// between this writer's two observations. Every id below
			// the new active segment was sealed by one of them, and
			// overlapping ranges from racing writers are harmless.
			for id := before; id < pos.SegmentID; id++ {
				if err := s.store.PutSealed(id); err != nil {
					s.log.Warn().Err(err).Uint32("segment", id).Msg("outbox entry failed")
				}
			}
		}
	}

	if s.notifier != nil {
		notice := kafka.AppendNotice{
			SegmentID:   pos.SegmentID,
			BlockNumber: pos.BlockNumber,
			ChunkOffset: pos.ChunkOffset,
			Bytes:       len(data),
			Time:        time.Now().UnixNano(),
		}
		if err := s.notifier.Notify(ctx, notice); err != nil {
			s.log.Warn().Err(err).Msg("append notice failed")
		}
	}
	return pos, nil
}

// Read reassembles the record at pos.
func (s *LogService) Read(_ context.Context, pos wal.ChunkPosition) ([]byte, error) {
	data, err := s.wal.Read(pos)
	if err != nil {
		s.metrics.ReadErrors.Inc()
		if errors.Is(err, wal.ErrCorrupted) {
			s.metrics.Corruptions.Inc()
		}
		return nil, err
	}
	s.metrics.Reads.Inc()
	return data, nil
}

// Sync flushes the log to stable storage.
func (s *LogService) Sync(_ context.Context) error {
	if err := s.wal.Sync(); err != nil {
		return err
	}
	s.metrics.Syncs.Inc()
	return nil
}

// Checkpoint durably records a consumer position.
func (s *LogService) Checkpoint(_ context.Context, name string, pos wal.ChunkPosition) error {
	if s.store == nil {
		return errors.New("service: no checkpoint store configured")
	}
	return s.store.SaveCheckpoint(name, pos)
}

// LoadCheckpoint returns a previously stored consumer position.
func (s *LogService) LoadCheckpoint(_ context.Context, name string) (wal.ChunkPosition, bool, error) {
	if s.store == nil {
		return wal.ChunkPosition{}, false, errors.New("service: no checkpoint store configured")
	}
	return s.store.LoadCheckpoint(name)
}

// Close shuts down the log and its collaborators.
func (s *LogService) Close() error {
	var firstErr error
	if err := s.wal.Close(); err != nil {
		firstErr = err
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
