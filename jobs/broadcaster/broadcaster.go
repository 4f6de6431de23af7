// Package broadcaster drains the sealed-segment outbox: every segment the
// WAL rotates out is announced once on a Kafka topic, with retries across
// process restarts. The outbox lives in the checkpoint store, so a crash
// between sealing and publishing loses nothing.
package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"seglog/checkpoint"
)

// maxPublishRetries bounds how often a failed announcement is retried
// before the entry is left in FAILED state for operators to inspect.
const maxPublishRetries = 5

// SegmentSealed is the JSON payload announced for each rotated segment.
type SegmentSealed struct {
	SegmentID uint32 `json:"segment_id"`
	SealedAt  int64  `json:"sealed_at"`
}

type Broadcaster struct {
	store     *checkpoint.Store
	producer  sarama.SyncProducer
	topic     string
	interval  time.Duration
	sentGrace time.Duration
	log       zerolog.Logger
}

func New(store *checkpoint.Store, brokers []string, topic string, interval time.Duration, log zerolog.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("broadcaster: create producer: %w", err)
	}

	return &Broadcaster{
		store:     store,
		producer:  producer,
		topic:     topic,
		interval:  interval,
		sentGrace: 30 * time.Second,
		log:       log,
	}, nil
}

// Run drains the outbox on a fixed interval until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.log.Info().Str("topic", b.topic).Msg("broadcaster started")
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("broadcaster stopped")
			return
		case <-ticker.C:
			b.publishOnce()
		}
	}
}

// publishOnce walks the publishable outbox entries once. Publish errors
// are not fatal; the entry stays in the outbox for the next pass.
func (b *Broadcaster) publishOnce() {
	scan := func(state checkpoint.SegmentState, ready func(checkpoint.SegmentEvent) bool) {
		err := b.store.ScanByState(state, func(id uint32, ev checkpoint.SegmentEvent) error {
			if ev.Retries >= maxPublishRetries || !ready(ev) {
				return nil
			}
			b.publish(id, ev)
			return nil
		})
		if err != nil {
			b.log.Warn().Err(err).Stringer("state", state).Msg("outbox scan failed")
		}
	}
	always := func(checkpoint.SegmentEvent) bool { return true }
	scan(checkpoint.StateNew, always)
	scan(checkpoint.StateFailed, always)

	// A SENT entry with no matching ACKED transition is the residue of a
	// crash between marking and acknowledging a publish. Announce it
	// again once it is old enough; announcements are idempotent by
	// segment id.
	cutoff := time.Now().Add(-b.sentGrace).UnixNano()
	scan(checkpoint.StateSent, func(ev checkpoint.SegmentEvent) bool {
		return ev.LastAttempt <= cutoff
	})
}

func (b *Broadcaster) publish(id uint32, ev checkpoint.SegmentEvent) {
	if err := b.store.UpdateSegment(id, checkpoint.StateSent, ev.Retries); err != nil {
		b.log.Warn().Err(err).Uint32("segment", id).Msg("mark sent failed")
		return
	}

	payload, err := json.Marshal(SegmentSealed{
		SegmentID: id,
		SealedAt:  time.Now().UnixNano(),
	})
	if err != nil {
		b.log.Error().Err(err).Uint32("segment", id).Msg("encode announcement failed")
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%09d", id)),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		b.log.Warn().Err(err).Uint32("segment", id).Msg("publish failed, will retry")
		if err := b.store.UpdateSegment(id, checkpoint.StateFailed, ev.Retries+1); err != nil {
			b.log.Warn().Err(err).Uint32("segment", id).Msg("mark failed failed")
		}
		return
	}

	if err := b.store.UpdateSegment(id, checkpoint.StateAcked, ev.Retries); err != nil {
		b.log.Warn().Err(err).Uint32("segment", id).Msg("mark acked failed")
		return
	}
	b.log.Info().Uint32("segment", id).Msg("segment announced")
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
