// Package sim runs the in-process producer-consumer simulation: producer
// goroutines generate student records, persist them as XML, and push their
// sequence numbers through a semaphore-guarded shared buffer to consumer
// goroutines, which load each record, report it, and clear its file.
package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/bufferd/backoff"
	"github.com/cyberinferno/bufferd/idgenerator"
	"github.com/cyberinferno/bufferd/logger"
	"github.com/cyberinferno/bufferd/records"
	"github.com/cyberinferno/bufferd/safeset"
	"github.com/cyberinferno/bufferd/utils"
)

// poisonSeq is pushed through the buffer once per consumer after all
// producers have finished, telling that consumer to stop. Real sequence
// numbers are always positive.
const poisonSeq = -1

// Config holds the simulation settings.
type Config struct {
	// Producers and Consumers are the goroutine counts per side.
	Producers int
	Consumers int
	// MaxStudents is the total number of records the producers generate
	// between them.
	MaxStudents int
	// BufferSize is the fixed size of the shared buffer.
	BufferSize int
	// ProducerDelayMin/Max bound the pause after each produced record.
	ProducerDelayMin time.Duration
	ProducerDelayMax time.Duration
	// ConsumerDelayMin/Max bound the pause after each consumed record.
	ConsumerDelayMin time.Duration
	ConsumerDelayMax time.Duration
}

// DefaultConfig returns the simulation settings the original runs with: one
// producer and one consumer moving 10 students through a 10-slot buffer.
//
// Returns:
//   - A Config with default values; override fields as needed before New.
func DefaultConfig() Config {
	return Config{
		Producers:        1,
		Consumers:        1,
		MaxStudents:      10,
		BufferSize:       10,
		ProducerDelayMin: 300 * time.Millisecond,
		ProducerDelayMax: time.Second,
		ConsumerDelayMin: 500 * time.Millisecond,
		ConsumerDelayMax: 1500 * time.Millisecond,
	}
}

// Summary reports what one simulation run did.
type Summary struct {
	// Produced counts records generated and inserted.
	Produced int
	// Consumed counts records removed and processed.
	Consumed int
	// Distinct counts the distinct sequence numbers consumed; it equals
	// Consumed when no record was delivered twice.
	Distinct int
	// BufferLen is the number of items left in the buffer at the end.
	BufferLen int
}

// Simulation wires producers and consumers around one SharedBuffer and one
// record store. Create with New, run once with Run.
type Simulation struct {
	cfg   Config
	log   logger.Logger
	store *records.Store
	buf   *SharedBuffer

	seq      *idgenerator.IdGenerator
	consumed *safeset.SafeSet[int]

	producedCount atomic.Int64
	consumedCount atomic.Int64
}

// New creates a Simulation over the given record store. Zero-valued counts
// in cfg fall back to their DefaultConfig values; the delay bounds are taken
// as given, so zero delays mean full speed.
//
// Parameters:
//   - cfg: Simulation settings
//   - store: Record store shared by all producers and consumers
//   - log: Logger for worker events
//
// Returns:
//   - A Simulation ready to Run
func New(cfg Config, store *records.Store, log logger.Logger) *Simulation {
	defaults := DefaultConfig()
	if cfg.Producers < 1 {
		cfg.Producers = defaults.Producers
	}
	if cfg.Consumers < 1 {
		cfg.Consumers = defaults.Consumers
	}
	if cfg.MaxStudents < 1 {
		cfg.MaxStudents = defaults.MaxStudents
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = defaults.BufferSize
	}

	return &Simulation{
		cfg:      cfg,
		log:      log,
		store:    store,
		buf:      NewSharedBuffer(cfg.BufferSize),
		seq:      idgenerator.NewIdGenerator(0),
		consumed: safeset.NewSafeSet[int](),
	}
}

// Run executes the simulation to completion: producers claim sequence
// numbers until MaxStudents are taken, consumers process records until every
// produced one is consumed. Cancelling ctx stops producers after their
// current record; consumers always drain what was produced, so Run never
// leaves items behind.
//
// Parameters:
//   - ctx: Context whose cancellation cuts production short
//
// Returns:
//   - A Summary of the run and ctx's error if it was cancelled
func (s *Simulation) Run(ctx context.Context) (Summary, error) {
	s.log.Info("simulation starting",
		logger.Field{Key: "producers", Value: s.cfg.Producers},
		logger.Field{Key: "consumers", Value: s.cfg.Consumers},
		logger.Field{Key: "max_students", Value: s.cfg.MaxStudents},
		logger.Field{Key: "buffer_size", Value: s.cfg.BufferSize})

	var producers sync.WaitGroup
	for i := 1; i <= s.cfg.Producers; i++ {
		producers.Add(1)
		go func(id int) {
			defer producers.Done()
			s.produce(ctx, id)
		}(i)
	}

	var consumers sync.WaitGroup
	for i := 1; i <= s.cfg.Consumers; i++ {
		consumers.Add(1)
		go func(id int) {
			defer consumers.Done()
			s.consume(ctx, id)
		}(i)
	}

	producers.Wait()

	// One poison pill per consumer ends the drain once all real items are
	// through.
	for range s.cfg.Consumers {
		s.buf.Insert(poisonSeq)
	}
	consumers.Wait()

	summary := Summary{
		Produced:  int(s.producedCount.Load()),
		Consumed:  int(s.consumedCount.Load()),
		Distinct:  s.consumed.Size(),
		BufferLen: s.buf.Len(),
	}

	s.log.Info("simulation finished",
		logger.Field{Key: "produced", Value: summary.Produced},
		logger.Field{Key: "consumed", Value: summary.Consumed},
		logger.Field{Key: "distinct", Value: summary.Distinct},
		logger.Field{Key: "buffer_len", Value: summary.BufferLen})

	return summary, ctx.Err()
}

// produce claims sequence numbers and generates one record per claim until
// the quota is reached or ctx is cancelled. A claimed number is always
// inserted, even when saving the record failed, so the consumer side's
// accounting stays balanced.
func (s *Simulation) produce(ctx context.Context, id int) {
	log := s.log.With(logger.Field{Key: "producer", Value: id})
	log.Info("producer started")

	count := 0
	for {
		select {
		case <-ctx.Done():
			log.Warn("producer stopping early", logger.Field{Key: "produced", Value: count})
			return
		default:
		}

		n := int(s.seq.Id())
		if n > s.cfg.MaxStudents {
			break
		}

		student := records.Generate()
		if err := s.store.Save(ctx, n, student); err != nil {
			log.Error("failed to save record",
				logger.Field{Key: "seq", Value: n},
				logger.Field{Key: "error", Value: err})
		}

		s.buf.Insert(n)
		s.producedCount.Add(1)
		count++
		log.Info("student produced",
			logger.Field{Key: "seq", Value: n},
			logger.Field{Key: "buffer_len", Value: s.buf.Len()})

		_ = backoff.Sleep(ctx, utils.RandomDurationBetween(s.cfg.ProducerDelayMin, s.cfg.ProducerDelayMax))
	}

	log.Info("producer finished", logger.Field{Key: "produced", Value: count})
}

// consume removes sequence numbers until its poison pill arrives, loading
// and clearing the record behind each one.
func (s *Simulation) consume(ctx context.Context, id int) {
	log := s.log.With(logger.Field{Key: "consumer", Value: id})
	log.Info("consumer started")

	count := 0
	for {
		n := s.buf.Remove()
		if n == poisonSeq {
			break
		}

		s.consumedCount.Add(1)
		s.consumed.Add(n)
		count++

		student, err := s.store.Load(ctx, n)
		if err != nil {
			log.Error("failed to load record",
				logger.Field{Key: "seq", Value: n},
				logger.Field{Key: "error", Value: err})
		} else {
			if err := s.store.Clear(ctx, n); err != nil {
				log.Error("failed to clear record",
					logger.Field{Key: "seq", Value: n},
					logger.Field{Key: "error", Value: err})
			}
			log.Info("student consumed",
				logger.Field{Key: "seq", Value: n},
				logger.Field{Key: "buffer_len", Value: s.buf.Len()},
				logger.Field{Key: "report", Value: "\n" + student.String()})
		}

		_ = backoff.Sleep(ctx, utils.RandomDurationBetween(s.cfg.ConsumerDelayMin, s.cfg.ConsumerDelayMax))
	}

	log.Info("consumer finished", logger.Field{Key: "consumed", Value: count})
}
