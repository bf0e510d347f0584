package listener

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cbout22/repofetch/internal/transport"
	"github.com/cbout22/repofetch/internal/transport/mocks"
)

func sequence(resource string, size int64) []transport.Event {
	base := transport.Event{Resource: resource, Endpoint: "http://repo", Length: size}
	var out []transport.Event
	for _, typ := range []transport.EventType{
		transport.TransferInitiated,
		transport.TransferStarted,
		transport.TransferProgress,
		transport.TransferCompleted,
	} {
		ev := base
		ev.Type = typ
		if typ == transport.TransferProgress || typ == transport.TransferCompleted {
			ev.Transferred = size
		}
		out = append(out, ev)
	}
	return out
}

func TestConsole_Quiet(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	for _, ev := range sequence("junit.jar", 2048) {
		c.TransferEvent(ev)
	}
	c.Debug("connected to central")
	c.TransferEvent(transport.Event{Type: transport.TransferFailed, Resource: "x.jar", Err: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, "📥 junit.jar — 2.0 kB")
	assert.NotContains(t, out, "connected to central")
	assert.NotContains(t, out, "boom")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestConsole_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewConsole(&buf, true)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	evs := sequence("junit.jar", 1500)
	c.TransferEvent(evs[1])
	clock = clock.Add(1500 * time.Millisecond)
	c.TransferEvent(evs[3])
	c.TransferEvent(transport.Event{Type: transport.TransferStarted, Resource: "stream", Length: -1})
	c.TransferEvent(transport.Event{Type: transport.TransferFailed, Resource: "stream", Err: errors.New("reset")})
	c.Debug("connected to central")

	out := buf.String()
	assert.Contains(t, out, "⬇️  junit.jar (1.5 kB)")
	assert.Contains(t, out, "📥 junit.jar — 1.5 kB in 1.5s")
	assert.Contains(t, out, "⬇️  stream (unknown size)")
	assert.Contains(t, out, "❌ stream: reset")
	assert.Contains(t, out, "🔍 connected to central")
}

func TestConsole_SameResourceFromTwoEndpoints(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	fromA := transport.Event{Resource: "index.gz", Endpoint: "http://a", Length: 10}
	fromB := transport.Event{Resource: "index.gz", Endpoint: "http://b", Length: 10}
	started := func(ev transport.Event) transport.Event {
		ev.Type = transport.TransferStarted
		return ev
	}
	completed := func(ev transport.Event) transport.Event {
		ev.Type = transport.TransferCompleted
		ev.Transferred = 10
		return ev
	}

	c.TransferEvent(started(fromA))
	clock = clock.Add(time.Second)
	c.TransferEvent(started(fromB))
	clock = clock.Add(2 * time.Second)
	c.TransferEvent(completed(fromA))
	c.TransferEvent(completed(fromB))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " in 3s"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " in 2s"), lines[1])
}

func TestMetrics_CountsEvents(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	for _, ev := range sequence("a.jar", 100) {
		m.TransferEvent(ev)
	}
	for _, ev := range sequence("b.jar", 50) {
		m.TransferEvent(ev)
	}
	m.TransferEvent(transport.Event{Type: transport.TransferFailed, Resource: "c.jar"})
	m.Debug("one")
	m.Debug("two")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transfers.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transfers.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.transfers.WithLabelValues("progress")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.bytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.debug))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))

	n, err := testutil.GatherAndCount(reg, "repofetch_transfer_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_DoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestNewMulti(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewMulti())
	assert.Nil(t, NewMulti(nil, nil))

	single := &mocks.MockListener{}
	assert.Same(t, single, NewMulti(nil, single))

	a, b := &mocks.MockListener{}, &mocks.MockListener{}
	ev := transport.Event{Type: transport.TransferCompleted, Resource: "a.jar"}
	for _, l := range []*mocks.MockListener{a, b} {
		l.On("TransferEvent", ev).Return().Once()
		l.On("Debug", mock.AnythingOfType("string")).Return().Once()
	}

	m := NewMulti(a, nil, b)
	m.TransferEvent(ev)
	m.Debug("hello")

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}
