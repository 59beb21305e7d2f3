// Package bufferclient implements the TCP client side of the buffer
// protocol: dialing and handshake, the one-shot operations, and Run, the
// retrying producer/consumer workload built on top of them.
package bufferclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/bufferd/backoff"
	"github.com/cyberinferno/bufferd/buffer"
	"github.com/cyberinferno/bufferd/logger"
	"github.com/cyberinferno/bufferd/protocol"
	"github.com/cyberinferno/bufferd/utils"
)

// Config holds connection and workload settings for a client.
type Config struct {
	// Address is the "host:port" of the buffer server.
	Address string
	// Role determines which buffer side this client drives.
	Role protocol.Role
	// ID is the client-chosen positive identifier sent in the handshake.
	ID uint64
	// Operations is how many items Run attempts to produce or consume.
	Operations int
	// MaxAttempts bounds the tries per item before Run gives up on it.
	MaxAttempts int
	// RetryMinDelay/RetryMaxDelay bound the pause after a FULL or EMPTY.
	RetryMinDelay time.Duration
	RetryMaxDelay time.Duration
	// OperationMinDelay/OperationMaxDelay bound the pause between items.
	OperationMinDelay time.Duration
	OperationMaxDelay time.Duration
	// DialTimeout is the max duration for establishing the connection.
	DialTimeout time.Duration
	// RequestTimeout is the max duration for one request-response round
	// trip; 0 means no timeout.
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with default values for the given address
// and role: 15 operations, 5 attempts per item, a 1-3s retry pause and a
// 0.5-2s pause between items.
//
// Parameters:
//   - address: The "host:port" of the buffer server
//   - role: The buffer side this client drives
//   - id: The client identifier sent in the handshake
//
// Returns:
//   - A Config with defaults; override fields as needed before Dial.
func DefaultConfig(address string, role protocol.Role, id uint64) Config {
	return Config{
		Address:           address,
		Role:              role,
		ID:                id,
		Operations:        15,
		MaxAttempts:       5,
		RetryMinDelay:     time.Second,
		RetryMaxDelay:     3 * time.Second,
		OperationMinDelay: 500 * time.Millisecond,
		OperationMaxDelay: 2 * time.Second,
		DialTimeout:       10 * time.Second,
		RequestTimeout:    10 * time.Second,
	}
}

// Report summarizes one Run workload.
type Report struct {
	// Succeeded counts items produced or consumed.
	Succeeded int
	// FailedItems counts items abandoned after MaxAttempts rejections.
	FailedItems int
	// Attempts counts every request made, successful or not.
	Attempts int
	// Rejected counts FULL and EMPTY answers.
	Rejected int
}

// Client is a connected buffer protocol client. Round trips are serialized
// by an internal mutex, so a Client is safe for concurrent use, though the
// protocol itself is strictly request-response.
type Client struct {
	cfg   Config
	log   logger.Logger
	retry backoff.Policy

	mu      sync.Mutex
	conn    net.Conn
	scanner *bufio.Scanner
	closed  bool
}

// Dial connects to the configured server, sends the handshake, and waits
// for WELCOME. Zero-valued Operations, MaxAttempts, retry delays, and
// DialTimeout fall back to their DefaultConfig values; the operation delays
// and RequestTimeout are taken as given, so zero values mean no pause
// between items and no round-trip deadline. Role and ID have no defaults
// and must be set.
//
// Parameters:
//   - cfg: Connection and workload settings
//   - log: Logger for attempt and lifecycle events
//
// Returns:
//   - A connected Client, or an error if the config is invalid, the dial
//     fails, or the server refuses the handshake
func Dial(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.Role != protocol.RoleProducer && cfg.Role != protocol.RoleConsumer {
		return nil, fmt.Errorf("client role must be PRODUCER or CONSUMER")
	}
	if cfg.ID == 0 {
		return nil, fmt.Errorf("client id must be positive")
	}

	defaults := DefaultConfig(cfg.Address, cfg.Role, cfg.ID)
	if cfg.Operations <= 0 {
		cfg.Operations = defaults.Operations
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryMinDelay <= 0 {
		cfg.RetryMinDelay = defaults.RetryMinDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaults.RetryMaxDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}

	dialer := net.Dialer{
		Timeout: cfg.DialTimeout,
	}

	conn, err := dialer.Dial("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Address, err)
	}

	c := &Client{
		cfg:     cfg,
		log:     log.With(logger.Field{Key: "client_id", Value: cfg.ID}, logger.Field{Key: "role", Value: cfg.Role.String()}),
		retry:   backoff.Policy{Min: cfg.RetryMinDelay, Max: cfg.RetryMaxDelay},
		conn:    conn,
		scanner: bufio.NewScanner(conn),
	}
	c.scanner.Buffer(make([]byte, 0, 4096), 64*1024)

	resp, err := c.send(protocol.Handshake{Role: cfg.Role, ID: cfg.ID}.Line())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	switch resp.Kind {
	case protocol.RespWelcome:
	case protocol.RespError:
		_ = conn.Close()
		return nil, &protocol.ServerError{Reason: resp.Payload}
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected handshake response %q", resp.Line())
	}

	c.log.Info("connected", logger.Field{Key: "addr", Value: cfg.Address})
	return c, nil
}

// Produce asks the server to append payload to the buffer.
//
// Parameters:
//   - payload: The item content; must be non-empty
//
// Returns:
//   - nil on OK, buffer.ErrFull on FULL, or a protocol/connection error
func (c *Client) Produce(payload string) error {
	resp, err := c.send(protocol.Request{Kind: protocol.KindProduce, Payload: payload}.Line())
	if err != nil {
		return err
	}

	switch resp.Kind {
	case protocol.RespOK:
		return nil
	case protocol.RespFull:
		return buffer.ErrFull
	case protocol.RespError:
		return &protocol.ServerError{Reason: resp.Payload}
	default:
		return fmt.Errorf("unexpected response %q to PRODUCE", resp.Line())
	}
}

// Consume asks the server for the oldest buffered item.
//
// Returns:
//   - The item payload on OK, buffer.ErrEmpty on EMPTY, or a
//     protocol/connection error
func (c *Client) Consume() (string, error) {
	resp, err := c.send(protocol.Request{Kind: protocol.KindConsume}.Line())
	if err != nil {
		return "", err
	}

	switch resp.Kind {
	case protocol.RespOK:
		return resp.Payload, nil
	case protocol.RespEmpty:
		return "", buffer.ErrEmpty
	case protocol.RespError:
		return "", &protocol.ServerError{Reason: resp.Payload}
	default:
		return "", fmt.Errorf("unexpected response %q to CONSUME", resp.Line())
	}
}

// Status reports the buffer's current occupancy and capacity.
//
// Returns:
//   - The buffered item count, the fixed capacity, and any error
func (c *Client) Status() (int, int, error) {
	resp, err := c.send(protocol.Request{Kind: protocol.KindStatus}.Line())
	if err != nil {
		return 0, 0, err
	}

	switch resp.Kind {
	case protocol.RespStatus:
		return resp.Len, resp.Capacity, nil
	case protocol.RespError:
		return 0, 0, &protocol.ServerError{Reason: resp.Payload}
	default:
		return 0, 0, fmt.Errorf("unexpected response %q to STATUS", resp.Line())
	}
}

// Quit tells the server the session is done and closes the connection.
//
// Returns:
//   - An error if the QUIT round trip or the close failed
func (c *Client) Quit() error {
	resp, err := c.send(protocol.Request{Kind: protocol.KindQuit}.Line())
	if err != nil {
		_ = c.Close()
		return err
	}
	if resp.Kind != protocol.RespOK {
		_ = c.Close()
		return fmt.Errorf("unexpected response %q to QUIT", resp.Line())
	}

	return c.Close()
}

// Close closes the connection. Idempotent; calling Close multiple times is
// safe and returns nil.
//
// Returns:
//   - The error from closing the connection, if any
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.conn.Close()
}

// Run executes the client's workload: Operations items, each attempted up
// to MaxAttempts times with the retry policy's pause after every FULL or
// EMPTY, and a random pause between items. It stops early when ctx is
// cancelled or the connection fails; items that exhaust their attempts are
// reported, not fatal.
//
// Parameters:
//   - ctx: Context whose cancellation aborts the workload
//
// Returns:
//   - A Report of the workload so far and the error that ended it, if any
func (c *Client) Run(ctx context.Context) (Report, error) {
	var report Report

	for n := 1; n <= c.cfg.Operations; n++ {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		done, err := c.runItem(ctx, n, &report)
		if err != nil {
			return report, err
		}
		if done {
			report.Succeeded++
		} else {
			report.FailedItems++
			c.log.Error("giving up on item",
				logger.Field{Key: "item", Value: n},
				logger.Field{Key: "attempts", Value: c.cfg.MaxAttempts})
		}

		if n < c.cfg.Operations {
			pause := utils.RandomDurationBetween(c.cfg.OperationMinDelay, c.cfg.OperationMaxDelay)
			if err := backoff.Sleep(ctx, pause); err != nil {
				return report, err
			}
		}
	}

	c.log.Info("workload finished",
		logger.Field{Key: "succeeded", Value: report.Succeeded},
		logger.Field{Key: "failed", Value: report.FailedItems},
		logger.Field{Key: "attempts", Value: report.Attempts})
	return report, nil
}

// runItem drives one item through produce or consume with retries. done
// reports whether the item went through; a non-nil error means the workload
// cannot continue.
func (c *Client) runItem(ctx context.Context, n int, report *Report) (done bool, err error) {
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		report.Attempts++

		var opErr error
		switch c.cfg.Role {
		case protocol.RoleProducer:
			payload := fmt.Sprintf("P%d-Item-%d", c.cfg.ID, n)
			opErr = c.Produce(payload)
			if opErr == nil {
				c.log.Info("item produced",
					logger.Field{Key: "payload", Value: payload},
					logger.Field{Key: "attempt", Value: attempt})
			}
		case protocol.RoleConsumer:
			var payload string
			payload, opErr = c.Consume()
			if opErr == nil {
				c.log.Info("item consumed",
					logger.Field{Key: "payload", Value: payload},
					logger.Field{Key: "attempt", Value: attempt})
			}
		}

		if opErr == nil {
			return true, nil
		}

		if !errors.Is(opErr, buffer.ErrFull) && !errors.Is(opErr, buffer.ErrEmpty) {
			c.log.Error("operation failed", logger.Field{Key: "error", Value: opErr})
			return false, opErr
		}

		report.Rejected++
		c.log.Warn("buffer rejected attempt",
			logger.Field{Key: "item", Value: n},
			logger.Field{Key: "attempt", Value: attempt},
			logger.Field{Key: "outcome", Value: opErr.Error()})

		if attempt == c.cfg.MaxAttempts {
			return false, nil
		}

		if err := backoff.Sleep(ctx, c.retry.Delay(attempt)); err != nil {
			return false, err
		}
	}

	return false, nil
}

// send performs one request-response round trip under the client mutex.
func (c *Client) send(line string) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return protocol.Response{}, fmt.Errorf("client is closed")
	}

	if c.cfg.RequestTimeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.cfg.RequestTimeout)); err != nil {
			return protocol.Response{}, err
		}
	}

	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return protocol.Response{}, err
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return protocol.Response{}, err
		}
		return protocol.Response{}, io.ErrUnexpectedEOF
	}

	return protocol.ParseResponse(c.scanner.Text())
}
