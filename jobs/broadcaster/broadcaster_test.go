package broadcaster

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"seglog/checkpoint"
)

func newTestBroadcaster(t *testing.T, producer sarama.SyncProducer) *Broadcaster {
	t.Helper()
	store, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &Broadcaster{
		store:     store,
		producer:  producer,
		topic:     "segments",
		interval:  time.Second,
		sentGrace: 5 * time.Millisecond,
		log:       zerolog.Nop(),
	}
}

func TestBroadcaster_DrainsOutbox(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()
	b := newTestBroadcaster(t, producer)

	require.NoError(t, b.store.PutSealed(1))
	require.NoError(t, b.store.PutSealed(2))
	b.publishOnce()

	for _, id := range []uint32{1, 2} {
		ev, err := b.store.GetSegment(id)
		require.NoError(t, err)
		require.Equal(t, checkpoint.StateAcked, ev.State)
	}
	require.NoError(t, producer.Close())
}

func TestBroadcaster_RetriesFailedPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()
	b := newTestBroadcaster(t, producer)

	require.NoError(t, b.store.PutSealed(7))
	b.publishOnce()

	ev, err := b.store.GetSegment(7)
	require.NoError(t, err)
	require.Equal(t, checkpoint.StateFailed, ev.State)
	require.Equal(t, uint32(1), ev.Retries)

	b.publishOnce()

	ev, err = b.store.GetSegment(7)
	require.NoError(t, err)
	require.Equal(t, checkpoint.StateAcked, ev.State)
	require.NoError(t, producer.Close())
}

func TestBroadcaster_RepublishesStrandedSent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	b := newTestBroadcaster(t, producer)

	// A crash between marking SENT and recording the acknowledgement
	// leaves the entry behind; a later pass must announce it again.
	require.NoError(t, b.store.PutSealed(4))
	require.NoError(t, b.store.UpdateSegment(4, checkpoint.StateSent, 0))

	time.Sleep(2 * b.sentGrace)
	b.publishOnce()

	ev, err := b.store.GetSegment(4)
	require.NoError(t, err)
	require.Equal(t, checkpoint.StateAcked, ev.State)
	require.NoError(t, producer.Close())
}

func TestBroadcaster_LeavesFreshSentAlone(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	b := newTestBroadcaster(t, producer)
	b.sentGrace = time.Hour

	require.NoError(t, b.store.PutSealed(9))
	require.NoError(t, b.store.UpdateSegment(9, checkpoint.StateSent, 0))
	b.publishOnce()

	ev, err := b.store.GetSegment(9)
	require.NoError(t, err)
	require.Equal(t, checkpoint.StateSent, ev.State)
	require.NoError(t, producer.Close())
}
