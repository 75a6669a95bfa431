package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsHooksInReverse(t *testing.T) {
	m := New(time.Second, nil)
	var order []string
	m.Register("directory", func(context.Context) error { order = append(order, "directory"); return nil })
	m.Register("outbox", func(context.Context) error { order = append(order, "outbox"); return errors.New("busy") })
	m.Register("http", func(context.Context) error { order = append(order, "http"); return nil })

	err := m.Shutdown(context.Background())
	assert.ErrorContains(t, err, "busy")
	assert.Equal(t, []string{"http", "outbox", "directory"}, order)

	require.NoError(t, m.Shutdown(context.Background()), "hooks run once")
}

func TestGoFailureStopsManager(t *testing.T) {
	m := New(time.Second, nil)
	m.Go("http", func() error { return errors.New("address in use") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorContains(t, m.Wait(ctx), "address in use")
}

func TestStopEndsWaitCleanly(t *testing.T) {
	m := New(time.Second, nil)
	m.Listen()
	m.Stop()
	m.Stop()
	assert.NoError(t, m.Wait(context.Background()))
}
