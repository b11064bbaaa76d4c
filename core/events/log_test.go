package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"matchpool/core/types"
)

func record(seq uint64, typ string) Record {
	return Record{Evt: &types.Event{Sequence: seq, Type: typ, Attributes: map[string]string{"seq": typ}}}
}

func TestLogSinceAndCapacity(t *testing.T) {
	log := NewLog(3)
	for i := uint64(0); i < 5; i++ {
		log.Emit(record(i, "match.created"))
	}
	require.Equal(t, 3, log.Len())

	got := log.Since(0, 0)
	require.Len(t, got, 3)
	require.Equal(t, uint64(2), got[0].Sequence)

	got = log.Since(3, 1)
	require.Len(t, got, 1)
	require.Equal(t, uint64(3), got[0].Sequence)
}

func TestLogSubscribe(t *testing.T) {
	log := NewLog(0)
	ch, cancel := log.Subscribe(4)

	log.Emit(record(0, "match.created"))
	log.Emit(record(1, "match.joined"))

	first := <-ch
	second := <-ch
	require.Equal(t, "match.created", first.Type)
	require.Equal(t, "match.joined", second.Type)

	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)

	// Publishing after cancellation must not panic.
	log.Emit(record(2, "match.ready"))
}

func TestBufferTruncateAndDrain(t *testing.T) {
	var buf Buffer
	buf.Emit(record(0, "a"))
	buf.Emit(record(0, "b"))
	buf.Emit(Record{})
	require.Equal(t, 2, buf.Len())

	buf.Truncate(1)
	drained := buf.Drain()
	require.Len(t, drained, 1)
	require.Equal(t, "a", drained[0].EventType())
	require.Equal(t, 0, buf.Len())
}

func TestFanout(t *testing.T) {
	var a, b Buffer
	Fanout{&a, nil, &b}.Emit(record(0, "x"))
	require.Equal(t, 1, a.Len())
	require.Equal(t, 1, b.Len())
}
