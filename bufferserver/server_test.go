package bufferserver

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/bufferd/logger"
	"github.com/cyberinferno/bufferd/protocol"
)

func startTestServer(t *testing.T, capacity int) *Server {
	t.Helper()

	srv := New(Config{Addr: "127.0.0.1:0", Capacity: capacity}, logger.NewNopLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv
}

// dialRaw connects and completes the handshake, returning errors instead of
// failing the test so it can be used from worker goroutines.
func dialRaw(addr string, role protocol.Role, id uint64) (net.Conn, *bufio.Scanner, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	scan := bufio.NewScanner(conn)
	if _, err := conn.Write([]byte(protocol.Handshake{Role: role, ID: id}.Line() + "\n")); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if !scan.Scan() {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("connection closed before welcome")
	}
	if scan.Text() != "WELCOME" {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("unexpected handshake response %q", scan.Text())
	}

	return conn, scan, nil
}

func roundTripRaw(conn net.Conn, scan *bufio.Scanner, line string) (string, error) {
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return "", err
	}
	if !scan.Scan() {
		if err := scan.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("connection closed awaiting response to %q", line)
	}

	return scan.Text(), nil
}

// testClient wraps dialRaw with require for single-goroutine tests.
type testClient struct {
	t    *testing.T
	conn net.Conn
	scan *bufio.Scanner
}

func dialTestClient(t *testing.T, addr string, role protocol.Role, id uint64) *testClient {
	t.Helper()

	conn, scan, err := dialRaw(addr, role, id)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testClient{t: t, conn: conn, scan: scan}
}

func (c *testClient) roundTrip(line string) string {
	c.t.Helper()

	resp, err := roundTripRaw(c.conn, c.scan, line)
	require.NoError(c.t, err)

	return resp
}

func (c *testClient) expectClosed() {
	c.t.Helper()

	assert.False(c.t, c.scan.Scan(), "expected connection to be closed")
}

func TestServer_StartStop(t *testing.T) {
	srv := New(Config{Addr: "127.0.0.1:0", Capacity: 1}, logger.NewNopLogger())

	require.NoError(t, srv.Start())
	assert.True(t, srv.Running.Load())

	// A second Start must fail while running.
	assert.Error(t, srv.Start())

	srv.Stop()
	assert.False(t, srv.Running.Load())

	// Stopping again is a no-op.
	srv.Stop()
}

func TestServer_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:5555", cfg.Addr)
	assert.Equal(t, 15, cfg.Capacity)

	// Zero-valued fields fall back to defaults.
	srv := New(Config{Addr: "127.0.0.1:0"}, logger.NewNopLogger())
	assert.Equal(t, 15, srv.Buffer().Cap())
}

func TestServer_Handshake(t *testing.T) {
	srv := startTestServer(t, 5)
	addr := srv.Listener.Addr().String()

	t.Run("producer welcome", func(t *testing.T) {
		c := dialTestClient(t, addr, protocol.RoleProducer, 1)
		assert.Equal(t, "STATUS 0 5", c.roundTrip("STATUS"))
	})

	t.Run("consumer welcome", func(t *testing.T) {
		dialTestClient(t, addr, protocol.RoleConsumer, 2)
	})

	t.Run("bad handshake closes connection", func(t *testing.T) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		require.NoError(t, err)
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

		scan := bufio.NewScanner(conn)
		_, err = conn.Write([]byte("HELLO WIZARD 1\n"))
		require.NoError(t, err)

		require.True(t, scan.Scan())
		assert.Equal(t, "ERROR bad_handshake", scan.Text())
		assert.False(t, scan.Scan(), "server should close after a bad handshake")
	})

	t.Run("immediate close before handshake", func(t *testing.T) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		require.NoError(t, err)
		require.NoError(t, conn.Close())
	})
}

func TestServer_ProduceConsumeCapacityOne(t *testing.T) {
	srv := startTestServer(t, 1)
	addr := srv.Listener.Addr().String()

	producer := dialTestClient(t, addr, protocol.RoleProducer, 1)
	consumer := dialTestClient(t, addr, protocol.RoleConsumer, 2)

	assert.Equal(t, "OK", producer.roundTrip("PRODUCE A"))
	assert.Equal(t, "FULL", producer.roundTrip("PRODUCE B"))
	assert.Equal(t, "OK A", consumer.roundTrip("CONSUME"))
	assert.Equal(t, "OK", producer.roundTrip("PRODUCE B"))
	assert.Equal(t, "OK B", consumer.roundTrip("CONSUME"))
	assert.Equal(t, "EMPTY", consumer.roundTrip("CONSUME"))
}

func TestServer_FIFOOrder(t *testing.T) {
	srv := startTestServer(t, 10)
	addr := srv.Listener.Addr().String()

	producer := dialTestClient(t, addr, protocol.RoleProducer, 1)
	consumer := dialTestClient(t, addr, protocol.RoleConsumer, 2)

	for i := 1; i <= 5; i++ {
		assert.Equal(t, "OK", producer.roundTrip(fmt.Sprintf("PRODUCE P1-Item-%d", i)))
	}
	for i := 1; i <= 5; i++ {
		assert.Equal(t, fmt.Sprintf("OK P1-Item-%d", i), consumer.roundTrip("CONSUME"))
	}
}

func TestServer_PayloadWithSpaces(t *testing.T) {
	srv := startTestServer(t, 5)
	addr := srv.Listener.Addr().String()

	producer := dialTestClient(t, addr, protocol.RoleProducer, 1)
	consumer := dialTestClient(t, addr, protocol.RoleConsumer, 2)

	const payload = "hello world  with   gaps"
	assert.Equal(t, "OK", producer.roundTrip("PRODUCE "+payload))
	assert.Equal(t, "OK "+payload, consumer.roundTrip("CONSUME"))
}

func TestServer_Status(t *testing.T) {
	srv := startTestServer(t, 5)
	addr := srv.Listener.Addr().String()

	producer := dialTestClient(t, addr, protocol.RoleProducer, 1)
	consumer := dialTestClient(t, addr, protocol.RoleConsumer, 2)

	assert.Equal(t, "STATUS 0 5", producer.roundTrip("STATUS"))

	producer.roundTrip("PRODUCE one")
	producer.roundTrip("PRODUCE two")
	assert.Equal(t, "STATUS 2 5", producer.roundTrip("STATUS"))

	consumer.roundTrip("CONSUME")
	assert.Equal(t, "STATUS 1 5", consumer.roundTrip("STATUS"))
}

func TestServer_RoleMismatch(t *testing.T) {
	srv := startTestServer(t, 5)
	addr := srv.Listener.Addr().String()

	producer := dialTestClient(t, addr, protocol.RoleProducer, 1)
	consumer := dialTestClient(t, addr, protocol.RoleConsumer, 2)

	assert.Equal(t, "ERROR role_mismatch", producer.roundTrip("CONSUME"))
	assert.Equal(t, "ERROR role_mismatch", consumer.roundTrip("PRODUCE sneaky"))

	// The sessions stay usable afterwards.
	assert.Equal(t, "OK", producer.roundTrip("PRODUCE legit"))
	assert.Equal(t, "OK legit", consumer.roundTrip("CONSUME"))
}

func TestServer_MalformedRequest(t *testing.T) {
	srv := startTestServer(t, 5)
	addr := srv.Listener.Addr().String()

	producer := dialTestClient(t, addr, protocol.RoleProducer, 1)

	for _, line := range []string{"FOO BAR", "PRODUCE", "CONSUME now", "STATUS please", ""} {
		t.Run(fmt.Sprintf("line %q", line), func(t *testing.T) {
			assert.Equal(t, "ERROR malformed_request", producer.roundTrip(line))
		})
	}

	// The session survives every malformed line.
	assert.Equal(t, "OK", producer.roundTrip("PRODUCE still-alive"))

	snap := srv.Stats().Snapshot()
	assert.Equal(t, uint64(5), snap.Malformed)
}

func TestServer_Quit(t *testing.T) {
	srv := startTestServer(t, 5)
	addr := srv.Listener.Addr().String()

	c := dialTestClient(t, addr, protocol.RoleProducer, 1)
	assert.Equal(t, "STATUS 0 5", c.roundTrip("STATUS"))

	sess, ok := srv.GetSession(1)
	require.True(t, ok, "live session should be in the registry")
	assert.Equal(t, uint64(1), sess.ID())

	assert.Equal(t, "OK", c.roundTrip("QUIT"))
	c.expectClosed()

	require.Eventually(t, func() bool {
		return srv.Sessions.Len() == 0
	}, 2*time.Second, 10*time.Millisecond, "session should leave the registry after QUIT")

	_, ok = srv.GetSession(1)
	assert.False(t, ok, "closed session should be gone from the registry")
}

func TestServer_StatsSnapshot(t *testing.T) {
	srv := startTestServer(t, 1)
	addr := srv.Listener.Addr().String()

	producer := dialTestClient(t, addr, protocol.RoleProducer, 1)
	consumer := dialTestClient(t, addr, protocol.RoleConsumer, 2)

	assert.Equal(t, "OK", producer.roundTrip("PRODUCE A"))
	assert.Equal(t, "FULL", producer.roundTrip("PRODUCE B"))
	assert.Equal(t, "OK A", consumer.roundTrip("CONSUME"))
	assert.Equal(t, "EMPTY", consumer.roundTrip("CONSUME"))
	assert.Equal(t, "ERROR malformed_request", producer.roundTrip("FOO"))

	snap := srv.Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.Produced)
	assert.Equal(t, uint64(1), snap.Consumed)
	assert.Equal(t, uint64(2), snap.Rejected)
	assert.Equal(t, uint64(1), snap.Malformed)
	assert.Equal(t, uint64(2), snap.SessionsOpened)
}

func TestServer_ConcurrentProducersConsumers(t *testing.T) {
	srv := startTestServer(t, 10)
	addr := srv.Listener.Addr().String()

	const producers = 2
	const perProducer = 5
	const total = producers * perProducer

	var wg sync.WaitGroup
	consumed := make(chan string, total)

	var remaining atomic.Int64
	remaining.Store(total)

	for p := 1; p <= producers; p++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()

			conn, scan, err := dialRaw(addr, protocol.RoleProducer, id)
			if err != nil {
				t.Error(err)
				return
			}
			defer conn.Close()

			for i := 1; i <= perProducer; i++ {
				payload := fmt.Sprintf("P%d-Item-%d", id, i)
				for {
					resp, err := roundTripRaw(conn, scan, "PRODUCE "+payload)
					if err != nil {
						t.Error(err)
						return
					}
					if resp == "OK" {
						break
					}
					if resp != "FULL" {
						t.Errorf("unexpected produce response %q", resp)
						return
					}
					time.Sleep(time.Millisecond)
				}
			}
		}(uint64(p))
	}

	for c := 1; c <= 2; c++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()

			conn, scan, err := dialRaw(addr, protocol.RoleConsumer, id)
			if err != nil {
				t.Error(err)
				return
			}
			defer conn.Close()

			for remaining.Load() > 0 {
				resp, err := roundTripRaw(conn, scan, "CONSUME")
				if err != nil {
					t.Error(err)
					return
				}
				if resp == "EMPTY" {
					time.Sleep(time.Millisecond)
					continue
				}

				payload, ok := strings.CutPrefix(resp, "OK ")
				if !ok {
					t.Errorf("unexpected consume response %q", resp)
					return
				}
				consumed <- payload
				remaining.Add(-1)
			}
		}(uint64(10 + c))
	}

	wg.Wait()
	close(consumed)

	seen := make(map[string]int)
	for payload := range consumed {
		seen[payload]++
	}

	// Every produced item is consumed exactly once.
	assert.Len(t, seen, total)
	for p := 1; p <= producers; p++ {
		for i := 1; i <= perProducer; i++ {
			assert.Equal(t, 1, seen[fmt.Sprintf("P%d-Item-%d", p, i)])
		}
	}

	snap := srv.Stats().Snapshot()
	assert.Equal(t, uint64(total), snap.Produced)
	assert.Equal(t, uint64(total), snap.Consumed)
	assert.Equal(t, 0, srv.Buffer().Len())
}

func TestServer_StopClosesSessions(t *testing.T) {
	srv := startTestServer(t, 5)
	addr := srv.Listener.Addr().String()

	c := dialTestClient(t, addr, protocol.RoleProducer, 1)
	assert.Equal(t, "OK", c.roundTrip("PRODUCE A"))

	srv.Stop()
	c.expectClosed()
}

func TestServer_StopWaitsForInflightResponse(t *testing.T) {
	srv := startTestServer(t, 5)
	addr := srv.Listener.Addr().String()

	dialTestClient(t, addr, protocol.RoleProducer, 1)

	sess, ok := srv.GetSession(1)
	require.True(t, ok)

	// Holding the session's write lock stands in for a request that is
	// mid-response when Stop arrives.
	sess.writeMu.Lock()

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a response write was in flight")
	case <-time.After(100 * time.Millisecond):
	}
	assert.False(t, sess.closed, "session must not close under an in-flight write")

	sess.writeMu.Unlock()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not finish once the write lock was released")
	}

	sess.writeMu.Lock()
	assert.True(t, sess.closed, "session should be closed after Stop")
	sess.writeMu.Unlock()
}

func TestServer_StopCompletesServedRequests(t *testing.T) {
	srv := startTestServer(t, 100)
	addr := srv.Listener.Addr().String()

	// Both workers hammer the server until Stop cuts them off, counting
	// only acknowledged operations. An acknowledged request must be fully
	// committed and a cut-off one must not be, so acknowledged produces
	// minus acknowledged consumes is exactly what Stop leaves behind.
	produced := make(chan int, 1)
	go func() {
		conn, scan, err := dialRaw(addr, protocol.RoleProducer, 1)
		if err != nil {
			produced <- 0
			t.Error(err)
			return
		}
		defer conn.Close()

		n := 0
		for {
			resp, err := roundTripRaw(conn, scan, fmt.Sprintf("PRODUCE Item-%d", n+1))
			if err != nil {
				break
			}
			if resp == "OK" {
				n++
			}
		}
		produced <- n
	}()

	consumed := make(chan int, 1)
	go func() {
		conn, scan, err := dialRaw(addr, protocol.RoleConsumer, 2)
		if err != nil {
			consumed <- 0
			t.Error(err)
			return
		}
		defer conn.Close()

		n := 0
		for {
			resp, err := roundTripRaw(conn, scan, "CONSUME")
			if err != nil {
				break
			}
			if strings.HasPrefix(resp, "OK ") {
				n++
			}
		}
		consumed <- n
	}()

	require.Eventually(t, func() bool {
		return srv.Sessions.Len() == 2
	}, 2*time.Second, time.Millisecond, "both clients should be connected")

	time.Sleep(20 * time.Millisecond)
	srv.Stop()

	waitFor := func(ch chan int, who string) int {
		select {
		case n := <-ch:
			return n
		case <-time.After(5 * time.Second):
			t.Fatalf("%s did not finish after Stop", who)
			return 0
		}
	}
	nProduced := waitFor(produced, "producer")
	nConsumed := waitFor(consumed, "consumer")

	snap := srv.Stats().Snapshot()
	assert.Equal(t, uint64(nProduced), snap.Produced, "every acknowledged produce must be committed")
	assert.Equal(t, uint64(nConsumed), snap.Consumed, "every acknowledged consume must be committed")
	assert.Equal(t, nProduced-nConsumed, srv.Buffer().Len(), "buffer must hold exactly the unconsumed acknowledged items")
}
