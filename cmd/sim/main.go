// Package main runs the in-process producer-consumer simulation: producer
// goroutines generate student records and persist them as XML files, consumer
// goroutines pull them back through the shared buffer, print each report
// card, and clear the file.
//
// Configuration:
//   - SIM_RECORD_DIR: Directory for the XML files (default "xml_files")
//   - SIM_PRODUCERS, SIM_CONSUMERS: Worker counts (default 1 each)
//   - SIM_MAX_STUDENTS: Total records to move (default 10)
//   - SIM_BUFFER_SIZE: Shared buffer capacity (default 10)
//   - SIM_PRODUCER_DELAY_MIN, SIM_PRODUCER_DELAY_MAX: Pause bounds after each
//     produced record (default "300ms", "1s")
//   - SIM_CONSUMER_DELAY_MIN, SIM_CONSUMER_DELAY_MAX: Pause bounds after each
//     consumed record (default "500ms", "1.5s")
//   - SIM_CACHE: Record cache backend, "memory" or "redis" (default "memory")
//   - REDIS_ADDR: Redis address when SIM_CACHE=redis (default "localhost:6379")
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cyberinferno/bufferd/cacher"
	"github.com/cyberinferno/bufferd/logger"
	"github.com/cyberinferno/bufferd/records"
	"github.com/cyberinferno/bufferd/sim"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const serviceName = "sim"

func main() {
	cfg := sim.DefaultConfig()
	cfg.Producers = getenvInt("SIM_PRODUCERS", cfg.Producers)
	cfg.Consumers = getenvInt("SIM_CONSUMERS", cfg.Consumers)
	cfg.MaxStudents = getenvInt("SIM_MAX_STUDENTS", cfg.MaxStudents)
	cfg.BufferSize = getenvInt("SIM_BUFFER_SIZE", cfg.BufferSize)
	cfg.ProducerDelayMin = getenvDuration("SIM_PRODUCER_DELAY_MIN", cfg.ProducerDelayMin)
	cfg.ProducerDelayMax = getenvDuration("SIM_PRODUCER_DELAY_MAX", cfg.ProducerDelayMax)
	cfg.ConsumerDelayMin = getenvDuration("SIM_CONSUMER_DELAY_MIN", cfg.ConsumerDelayMin)
	cfg.ConsumerDelayMax = getenvDuration("SIM_CONSUMER_DELAY_MAX", cfg.ConsumerDelayMax)

	lg := logger.NewConsoleLogger(serviceName, zerolog.InfoLevel)
	defer lg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cache cacher.Cacher[records.Student]
	switch backend := getenv("SIM_CACHE", "memory"); backend {
	case "memory":
		cache = cacher.NewMemoryCacher[records.Student](5*time.Minute, 10*time.Minute)
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: getenv("REDIS_ADDR", "localhost:6379")})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("sim: redis ping failed: %v", err)
		}
		cache = cacher.NewRedisCacher[records.Student](rdb)
	default:
		log.Fatalf("invalid SIM_CACHE %q: want memory or redis", backend)
	}

	store, err := records.NewStore(getenv("SIM_RECORD_DIR", "xml_files"), cache, lg)
	if err != nil {
		log.Fatalf("sim: %v", err)
	}

	summary, err := sim.New(cfg, store, lg).Run(ctx)

	lg.Info("simulation summary",
		logger.Field{Key: "produced", Value: summary.Produced},
		logger.Field{Key: "consumed", Value: summary.Consumed},
		logger.Field{Key: "distinct", Value: summary.Distinct},
		logger.Field{Key: "buffer_len", Value: summary.BufferLen})

	if err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("simulation aborted", logger.Field{Key: "error", Value: err})
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
