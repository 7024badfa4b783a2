package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockTransport struct {
	calls atomic.Int32
	err   error
}

func (m *mockTransport) Send(ctx context.Context, contact, message string) error {
	m.calls.Add(1)
	return m.err
}

func TestResilientTransport_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &mockTransport{err: errors.New("503")}
	tr := NewResilientTransport(next, ResilienceConfig{FailureThreshold: 3, OpenTimeout: time.Minute}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, tr.Send(ctx, "ou_1", "hi"))
	}
	assert.Equal(t, gobreaker.StateOpen, tr.State())

	err := tr.Send(ctx, "ou_1", "hi")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestResilientTransport_PassesThrough(t *testing.T) {
	next := &mockTransport{}
	tr := NewResilientTransport(next, DefaultResilienceConfig(), zap.NewNop())

	require.NoError(t, tr.Send(context.Background(), "ou_1", "hi"))
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, gobreaker.StateClosed, tr.State())
}

func TestResilientTransport_RateLimitHonoursContext(t *testing.T) {
	next := &mockTransport{}
	tr := NewResilientTransport(next, ResilienceConfig{RatePerSecond: 0.001, Burst: 1}, zap.NewNop())

	require.NoError(t, tr.Send(context.Background(), "ou_1", "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, tr.Send(ctx, "ou_1", "second"))
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestLogTransport(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := NewLogTransport(zap.New(core))

	require.NoError(t, tr.Send(context.Background(), "ana@example.com", "Ticket T submitted"))
	entries := logs.FilterMessage("Notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ana@example.com", entries[0].ContextMap()["contact"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, tr.Send(ctx, "ana@example.com", "late"))
}
