package bufferclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/bufferd/buffer"
	"github.com/cyberinferno/bufferd/bufferserver"
	"github.com/cyberinferno/bufferd/logger"
	"github.com/cyberinferno/bufferd/protocol"
)

func startServer(t *testing.T, capacity int) string {
	t.Helper()

	srv := bufferserver.New(bufferserver.Config{Addr: "127.0.0.1:0", Capacity: capacity}, logger.NewNopLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv.Listener.Addr().String()
}

// testConfig shrinks the default delays so tests run fast.
func testConfig(addr string, role protocol.Role, id uint64) Config {
	cfg := DefaultConfig(addr, role, id)
	cfg.Operations = 5
	cfg.MaxAttempts = 3
	cfg.RetryMinDelay = time.Millisecond
	cfg.RetryMaxDelay = 2 * time.Millisecond
	cfg.OperationMinDelay = 0
	cfg.OperationMaxDelay = 0
	cfg.RequestTimeout = 5 * time.Second

	return cfg
}

func dialClient(t *testing.T, addr string, role protocol.Role, id uint64) *Client {
	t.Helper()

	c, err := Dial(testConfig(addr, role, id), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("localhost:5555", protocol.RoleProducer, 7)
	assert.Equal(t, "localhost:5555", cfg.Address)
	assert.Equal(t, protocol.RoleProducer, cfg.Role)
	assert.Equal(t, uint64(7), cfg.ID)
	assert.Equal(t, 15, cfg.Operations)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryMinDelay)
	assert.Equal(t, 3*time.Second, cfg.RetryMaxDelay)
}

func TestDial_InvalidConfig(t *testing.T) {
	t.Run("missing role", func(t *testing.T) {
		_, err := Dial(Config{Address: "localhost:0", ID: 1}, logger.NewNopLogger())
		assert.Error(t, err)
	})

	t.Run("zero id", func(t *testing.T) {
		_, err := Dial(Config{Address: "localhost:0", Role: protocol.RoleProducer}, logger.NewNopLogger())
		assert.Error(t, err)
	})
}

func TestDial_ConnectionRefused(t *testing.T) {
	// Grab a port that is known to be closed by binding and releasing it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(addr, protocol.RoleProducer, 1)
	cfg.DialTimeout = time.Second

	_, err = Dial(cfg, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestDial_FallbackDefaults(t *testing.T) {
	addr := startServer(t, 5)

	c, err := Dial(Config{Address: addr, Role: protocol.RoleConsumer, ID: 3}, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	defaults := DefaultConfig(addr, protocol.RoleConsumer, 3)
	assert.Equal(t, defaults.Operations, c.cfg.Operations)
	assert.Equal(t, defaults.MaxAttempts, c.cfg.MaxAttempts)
	assert.Equal(t, defaults.RetryMinDelay, c.cfg.RetryMinDelay)
	assert.Equal(t, defaults.RetryMaxDelay, c.cfg.RetryMaxDelay)
	assert.Equal(t, defaults.DialTimeout, c.cfg.DialTimeout)

	// The retry policy is built from the defaulted delays.
	assert.Equal(t, defaults.RetryMinDelay, c.retry.Min)
	assert.Equal(t, defaults.RetryMaxDelay, c.retry.Max)

	// Cadence and round-trip deadline are taken as given: zero means no
	// pause between items and no deadline.
	assert.Zero(t, c.cfg.OperationMinDelay)
	assert.Zero(t, c.cfg.OperationMaxDelay)
	assert.Zero(t, c.cfg.RequestTimeout)
}

func TestDial_Handshake(t *testing.T) {
	addr := startServer(t, 5)

	c := dialClient(t, addr, protocol.RoleProducer, 1)

	length, capacity, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, length)
	assert.Equal(t, 5, capacity)

	require.NoError(t, c.Quit())
}

func TestClient_ProduceConsume(t *testing.T) {
	addr := startServer(t, 5)

	producer := dialClient(t, addr, protocol.RoleProducer, 1)
	consumer := dialClient(t, addr, protocol.RoleConsumer, 2)

	require.NoError(t, producer.Produce("hello world"))

	payload, err := consumer.Consume()
	require.NoError(t, err)
	assert.Equal(t, "hello world", payload)
}

func TestClient_ProduceFull(t *testing.T) {
	addr := startServer(t, 1)

	producer := dialClient(t, addr, protocol.RoleProducer, 1)

	require.NoError(t, producer.Produce("A"))

	err := producer.Produce("B")
	assert.ErrorIs(t, err, buffer.ErrFull)
}

func TestClient_ConsumeEmpty(t *testing.T) {
	addr := startServer(t, 1)

	consumer := dialClient(t, addr, protocol.RoleConsumer, 1)

	_, err := consumer.Consume()
	assert.ErrorIs(t, err, buffer.ErrEmpty)
}

func TestClient_RoleMismatch(t *testing.T) {
	addr := startServer(t, 5)

	producer := dialClient(t, addr, protocol.RoleProducer, 1)

	_, err := producer.Consume()
	var serverErr *protocol.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, protocol.ReasonRoleMismatch, serverErr.Reason)

	// The connection survives the refusal.
	require.NoError(t, producer.Produce("still-usable"))
}

func TestClient_Run_ProducerThenConsumer(t *testing.T) {
	addr := startServer(t, 10)
	ctx := context.Background()

	producer := dialClient(t, addr, protocol.RoleProducer, 1)
	report, err := producer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Succeeded)
	assert.Equal(t, 0, report.FailedItems)
	assert.Equal(t, 5, report.Attempts)
	assert.Equal(t, 0, report.Rejected)

	consumer := dialClient(t, addr, protocol.RoleConsumer, 2)
	report, err = consumer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Succeeded)
	assert.Equal(t, 0, report.FailedItems)
}

func TestClient_Run_GivesUpAfterMaxAttempts(t *testing.T) {
	addr := startServer(t, 1)
	ctx := context.Background()

	// Fill the one-slot buffer so every later produce is rejected.
	filler := dialClient(t, addr, protocol.RoleProducer, 1)
	require.NoError(t, filler.Produce("blocker"))

	cfg := testConfig(addr, protocol.RoleProducer, 2)
	cfg.Operations = 1
	producer, err := Dial(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = producer.Close() })

	report, err := producer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 1, report.FailedItems)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, 3, report.Rejected)
}

func TestClient_Run_ConsumerGivesUpOnEmpty(t *testing.T) {
	addr := startServer(t, 5)
	ctx := context.Background()

	cfg := testConfig(addr, protocol.RoleConsumer, 1)
	cfg.Operations = 2
	cfg.MaxAttempts = 2
	consumer, err := Dial(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	report, err := consumer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 2, report.FailedItems)
	assert.Equal(t, 4, report.Attempts)
	assert.Equal(t, 4, report.Rejected)
}

func TestClient_Run_ContextCancelled(t *testing.T) {
	addr := startServer(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	producer := dialClient(t, addr, protocol.RoleProducer, 1)

	report, err := producer.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Succeeded)
}

func TestClient_CloseIdempotent(t *testing.T) {
	addr := startServer(t, 5)

	c := dialClient(t, addr, protocol.RoleProducer, 1)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestClient_OperationsAfterClose(t *testing.T) {
	addr := startServer(t, 5)

	c := dialClient(t, addr, protocol.RoleProducer, 1)
	require.NoError(t, c.Close())

	err := c.Produce("too late")
	assert.Error(t, err)
}
