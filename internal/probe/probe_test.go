package probe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestCheckDatabase(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		p := New(pingerFunc(func(context.Context) error { return nil }), time.Second)
		res := p.CheckDatabase(context.Background())
		assert.True(t, res.Reachable)
		assert.Empty(t, res.Reason)
	})

	t.Run("ping error", func(t *testing.T) {
		p := New(pingerFunc(func(context.Context) error { return errors.New("connection refused") }), time.Second)
		res := p.CheckDatabase(context.Background())
		assert.False(t, res.Reachable)
		assert.Contains(t, res.Reason, "connection refused")
	})

	t.Run("bounded by timeout", func(t *testing.T) {
		p := New(pingerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}), 20*time.Millisecond)

		start := time.Now()
		res := p.CheckDatabase(context.Background())
		assert.False(t, res.Reachable)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("panic becomes value", func(t *testing.T) {
		p := New(pingerFunc(func(context.Context) error { panic("boom") }), time.Second)
		res := p.CheckDatabase(context.Background())
		assert.False(t, res.Reachable)
		assert.Contains(t, res.Reason, "boom")
	})

	t.Run("nil database", func(t *testing.T) {
		res := New(nil, time.Second).CheckDatabase(context.Background())
		assert.False(t, res.Reachable)
	})
}

func TestCheckNetwork(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	p := New(nil, time.Second)

	res := p.CheckNetwork(context.Background(), ln.Addr().String(), 0)
	assert.True(t, res.Reachable)

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := closed.Addr().String()
	require.NoError(t, closed.Close())

	res = p.CheckNetwork(context.Background(), addr, 200*time.Millisecond)
	assert.False(t, res.Reachable)
	assert.Contains(t, res.Reason, addr)

	res = p.CheckNetwork(context.Background(), "", time.Second)
	assert.False(t, res.Reachable)
}
