// Package main runs one consumer client against a buffer server: it
// connects, consumes the configured number of items with retry on EMPTY, and
// prints the final report.
//
// Configuration:
//   - BUFFER_ADDR: Server address (default "localhost:5555")
//   - CLIENT_ID: Positive client identifier (default 1)
//   - CLIENT_OPS: Items to consume (default 15)
//   - CLIENT_MAX_ATTEMPTS: Attempts per item before giving up (default 5)
//   - CLIENT_RETRY_MIN, CLIENT_RETRY_MAX: Pause bounds after EMPTY (default "1s", "3s")
//   - CLIENT_DELAY_MIN, CLIENT_DELAY_MAX: Pause bounds between items (default "500ms", "2s")
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cyberinferno/bufferd/bufferclient"
	"github.com/cyberinferno/bufferd/logger"
	"github.com/cyberinferno/bufferd/protocol"
	"github.com/rs/zerolog"
)

const serviceName = "consumer"

func main() {
	addr := getenv("BUFFER_ADDR", "localhost:5555")
	id := getenvUint64("CLIENT_ID", 1)

	cfg := bufferclient.DefaultConfig(addr, protocol.RoleConsumer, id)
	cfg.Operations = getenvInt("CLIENT_OPS", cfg.Operations)
	cfg.MaxAttempts = getenvInt("CLIENT_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.RetryMinDelay = getenvDuration("CLIENT_RETRY_MIN", cfg.RetryMinDelay)
	cfg.RetryMaxDelay = getenvDuration("CLIENT_RETRY_MAX", cfg.RetryMaxDelay)
	cfg.OperationMinDelay = getenvDuration("CLIENT_DELAY_MIN", cfg.OperationMinDelay)
	cfg.OperationMaxDelay = getenvDuration("CLIENT_DELAY_MAX", cfg.OperationMaxDelay)

	lg := logger.NewConsoleLogger(serviceName, zerolog.InfoLevel)
	defer lg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := bufferclient.Dial(cfg, lg)
	if err != nil {
		log.Fatalf("consumer: %v", err)
	}

	report, err := client.Run(ctx)
	_ = client.Quit()

	lg.Info("consumer report",
		logger.Field{Key: "succeeded", Value: report.Succeeded},
		logger.Field{Key: "failed_items", Value: report.FailedItems},
		logger.Field{Key: "attempts", Value: report.Attempts},
		logger.Field{Key: "rejected", Value: report.Rejected})

	if err != nil {
		lg.Error("workload aborted", logger.Field{Key: "error", Value: err})
		_ = lg.Close()
		os.Exit(1)
	}
}

// getenv returns the environment variable k, or def when unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}

// getenvInt returns the environment variable k parsed as an int, or def when
// unset. An unparseable value is fatal.
func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s %q: %v", k, v, err)
	}

	return n
}

// getenvUint64 returns the environment variable k parsed as a uint64, or def
// when unset. An unparseable value is fatal.
func getenvUint64(k string, def uint64) uint64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid %s %q: %v", k, v, err)
	}

	return n
}

// getenvDuration returns the environment variable k parsed as a duration, or
// def when unset. An unparseable value is fatal.
func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid %s %q: %v", k, v, err)
	}

	return d
}
