// Package main runs bufferd, the TCP daemon that serves one bounded buffer
// to producer and consumer clients over the line protocol.
//
// Configuration:
//   - BUFFERD_ADDR: Listen address (default "localhost:5555")
//   - BUFFERD_CAPACITY: Buffer capacity (default 15)
//   - BUFFERD_HANDSHAKE_TIMEOUT: HELLO deadline for new connections (default "10s")
//   - BUFFERD_LOG_DIR: When set, JSON entries are also appended to bufferd.log
//     inside this directory
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cyberinferno/bufferd/bufferserver"
	"github.com/cyberinferno/bufferd/logger"
	"github.com/rs/zerolog"
)

const serviceName = "bufferd"

func main() {
	cfg := bufferserver.DefaultConfig()
	cfg.Name = serviceName
	cfg.Addr = getenv("BUFFERD_ADDR", cfg.Addr)
	cfg.Capacity = getenvInt("BUFFERD_CAPACITY", cfg.Capacity)
	cfg.HandshakeTimeout = getenvDuration("BUFFERD_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout)

	var lg logger.Logger
	if dir := os.Getenv("BUFFERD_LOG_DIR"); dir != "" {
		lg = logger.NewZerologFileLogger(serviceName, dir, zerolog.InfoLevel)
	} else {
		lg = logger.NewZerologLogger(zerolog.New(os.Stdout), serviceName, zerolog.InfoLevel)
	}
	defer lg.Close()

	srv := bufferserver.New(cfg, lg)
	if err := srv.Start(); err != nil {
		_ = lg.Close()
		log.Fatalf("bufferd: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	srv.Stop()

	snap := srv.Stats().Snapshot()
	lg.Info("final counters",
		logger.Field{Key: "produced", Value: snap.Produced},
		logger.Field{Key: "consumed", Value: snap.Consumed},
		logger.Field{Key: "rejected", Value: snap.Rejected},
		logger.Field{Key: "malformed", Value: snap.Malformed},
		logger.Field{Key: "sessions_opened", Value: snap.SessionsOpened},
		logger.Field{Key: "sessions_closed", Value: snap.SessionsClosed})
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
