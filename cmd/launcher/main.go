// Package main runs the whole system in one process: it starts a buffer
// server, launches a fleet of producer and consumer clients against it over
// loopback TCP, waits for every client to finish, and prints the server's
// final counters.
//
// Configuration:
//   - LAUNCHER_ADDR: Server listen address (default "localhost:5555")
//   - LAUNCHER_CAPACITY: Buffer capacity (default 15)
//   - NUM_PRODUCERS: Producer clients to launch (default 2)
//   - NUM_CONSUMERS: Consumer clients to launch (default 2)
//   - CLIENT_OPS: Items per client (default 15)
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cyberinferno/bufferd/backoff"
	"github.com/cyberinferno/bufferd/bufferclient"
	"github.com/cyberinferno/bufferd/bufferserver"
	"github.com/cyberinferno/bufferd/logger"
	"github.com/cyberinferno/bufferd/protocol"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const serviceName = "launcher"

// launchStagger is the pause between client starts.
const launchStagger = time.Second

func main() {
	addr := getenv("LAUNCHER_ADDR", "localhost:5555")
	capacity := getenvInt("LAUNCHER_CAPACITY", 15)
	producers := getenvInt("NUM_PRODUCERS", 2)
	consumers := getenvInt("NUM_CONSUMERS", 2)
	ops := getenvInt("CLIENT_OPS", 15)

	lg := logger.NewConsoleLogger(serviceName, zerolog.InfoLevel)
	defer lg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := bufferserver.New(bufferserver.Config{Addr: addr, Capacity: capacity}, lg)
	if err := srv.Start(); err != nil {
		log.Fatalf("launcher: %v", err)
	}

	serverAddr := srv.Listener.Addr().String()

	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= producers; i++ {
		g.Go(runClient(ctx, lg, bufferclient.DefaultConfig(serverAddr, protocol.RoleProducer, uint64(i)), ops))
		if err := backoff.Sleep(ctx, launchStagger); err != nil {
			break
		}
	}
	for i := 1; i <= consumers; i++ {
		g.Go(runClient(ctx, lg, bufferclient.DefaultConfig(serverAddr, protocol.RoleConsumer, uint64(i)), ops))
		if err := backoff.Sleep(ctx, launchStagger); err != nil {
			break
		}
	}

	err := g.Wait()
	srv.Stop()

	snap := srv.Stats().Snapshot()
	lg.Info("launcher finished",
		logger.Field{Key: "produced", Value: snap.Produced},
		logger.Field{Key: "consumed", Value: snap.Consumed},
		logger.Field{Key: "rejected", Value: snap.Rejected},
		logger.Field{Key: "sessions_opened", Value: snap.SessionsOpened})

	if err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("fleet failed", logger.Field{Key: "error", Value: err})
		_ = lg.Close()
		os.Exit(1)
	}
}

// runClient returns the errgroup task for one client: dial, run the
// workload, report, quit. A dial or transport failure is returned and stops
// the whole fleet; items that merely exhausted their attempts are not.
func runClient(ctx context.Context, lg logger.Logger, cfg bufferclient.Config, ops int) func() error {
	return func() error {
		cfg.Operations = ops

		client, err := bufferclient.Dial(cfg, lg)
		if err != nil {
			return fmt.Errorf("%s %d: %w", cfg.Role, cfg.ID, err)
		}

		report, err := client.Run(ctx)
		_ = client.Quit()
		if err != nil {
			return fmt.Errorf("%s %d: %w", cfg.Role, cfg.ID, err)
		}

		lg.Info("client finished",
			logger.Field{Key: "role", Value: cfg.Role.String()},
			logger.Field{Key: "client_id", Value: cfg.ID},
			logger.Field{Key: "succeeded", Value: report.Succeeded},
			logger.Field{Key: "failed_items", Value: report.FailedItems},
			logger.Field{Key: "attempts", Value: report.Attempts})

		return nil
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
