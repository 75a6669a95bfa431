package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/passwordless/internal/infrastructure/outbox"
)

type fakeTransport struct {
	mu   sync.Mutex
	err  error
	sent []outbox.Message
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Ping(context.Context) error { return nil }

func (f *fakeTransport) Send(_ context.Context, msg outbox.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type staticHealth bool

func (h staticHealth) IsOnline() bool { return bool(h) }

func openOutbox(t *testing.T) *outbox.Store {
	t.Helper()
	store, err := outbox.Open(filepath.Join(t.TempDir(), "outbox.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDeliverSendsImmediately(t *testing.T) {
	store := openOutbox(t)
	tr := &fakeTransport{}
	p := NewOutboxProcessor(store, tr, staticHealth(true), nil, ProcessorConfig{})

	require.NoError(t, p.Deliver(context.Background(), outbox.Message{To: "a@example.com"}))
	assert.Equal(t, 1, tr.count())
	assert.Zero(t, p.Size())
}

func TestDeliverQueuesOnFailureThenDrains(t *testing.T) {
	store := openOutbox(t)
	tr := &fakeTransport{}
	tr.fail(errors.New("421 busy"))
	p := NewOutboxProcessor(store, tr, nil, nil, ProcessorConfig{MaxRetries: 3})

	require.NoError(t, p.Deliver(context.Background(), outbox.Message{To: "a@example.com"}))
	assert.Equal(t, 1, p.Size())

	msgs, err := store.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, "421 busy", msgs[0].LastError)

	tr.fail(nil)
	require.NoError(t, p.Drain(context.Background()))
	assert.Zero(t, p.Size())
	assert.Equal(t, 1, tr.count())
}

func TestDeliverSkipsOfflineTransport(t *testing.T) {
	store := openOutbox(t)
	tr := &fakeTransport{}
	p := NewOutboxProcessor(store, tr, staticHealth(false), nil, ProcessorConfig{})

	require.NoError(t, p.Deliver(context.Background(), outbox.Message{To: "a@example.com"}))
	assert.Zero(t, tr.count())
	assert.Equal(t, 1, p.Size())

	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, 1, p.Size(), "drain waits for the transport")
}

func TestDeliverWithoutOutboxReturnsError(t *testing.T) {
	tr := &fakeTransport{}
	tr.fail(errors.New("connection refused"))
	p := NewOutboxProcessor(nil, tr, nil, nil, ProcessorConfig{})

	err := p.Deliver(context.Background(), outbox.Message{To: "a@example.com"})
	assert.ErrorContains(t, err, "connection refused")

	p = NewOutboxProcessor(nil, &fakeTransport{}, staticHealth(false), nil, ProcessorConfig{})
	assert.Error(t, p.Deliver(context.Background(), outbox.Message{To: "a@example.com"}))
}

func TestDrainDropsAfterMaxRetries(t *testing.T) {
	store := openOutbox(t)
	tr := &fakeTransport{}
	tr.fail(errors.New("550 mailbox unavailable"))
	p := NewOutboxProcessor(store, tr, nil, nil, ProcessorConfig{MaxRetries: 2})

	require.NoError(t, store.Enqueue(outbox.Message{To: "gone@example.com"}))

	require.NoError(t, p.Drain(context.Background()))
	msgs, err := store.Peek(10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].Retries)

	require.NoError(t, p.Drain(context.Background()))
	assert.Zero(t, p.Size())
}

func TestCleanupRemovesExpired(t *testing.T) {
	store := openOutbox(t)
	p := NewOutboxProcessor(store, &fakeTransport{}, nil, nil, ProcessorConfig{Retention: time.Hour})

	require.NoError(t, store.Enqueue(outbox.Message{To: "old@example.com", Timestamp: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, store.Enqueue(outbox.Message{To: "new@example.com"}))

	require.NoError(t, p.Cleanup())
	assert.Equal(t, 1, p.Size())
}

func TestStartStop(t *testing.T) {
	p := NewOutboxProcessor(openOutbox(t), &fakeTransport{}, nil, nil, ProcessorConfig{Interval: time.Second})
	p.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)
}
