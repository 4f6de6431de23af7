// Package kafka publishes WAL metadata events. Only positions and sizes
// travel over the wire, never record payloads.
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// AppendNotice announces one successful append.
type AppendNotice struct {
	SegmentID   uint32 `json:"segment_id"`
	BlockNumber uint32 `json:"block_number"`
	ChunkOffset int64  `json:"chunk_offset"`
	Bytes       int    `json:"bytes"`
	Time        int64  `json:"time"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Notify publishes an append notice keyed by segment id, so per-segment
// ordering is preserved inside a partition.
func (p *Producer) Notify(ctx context.Context, notice AppendNotice) error {
	value, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(notice.SegmentID), 10)),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
