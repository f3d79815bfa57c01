package service

import (
	"time"

	"github.com/okian/leadrank/internal/adapters/repository"
	"github.com/okian/leadrank/internal/domain/dedupe"
	"github.com/okian/leadrank/internal/domain/scoring"
	"github.com/okian/leadrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the lead store. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDeduper sets the import-ID deduper. Defaults to an in-memory deduper
// sized by WithDedupeSize.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithEnricher enables the AI intent bonus for every scoring service the
// Service builds.
func WithEnricher(e scoring.Enricher) Option {
	return func(s *Service) {
		s.enricher = e
	}
}

// WithDefaultWeights sets the weights used for owners without their own.
// The map is validated by New.
func WithDefaultWeights(weights map[string]int) Option {
	return func(s *Service) {
		if weights != nil {
			s.defaultWeightMap = weights
		}
	}
}

// WithBonusCap sets the points awarded for a full relevance bonus.
func WithBonusCap(points float64) Option {
	return func(s *Service) {
		if points >= 0 {
			s.bonusCap = points
		}
	}
}

// WithBatchConcurrency bounds how many leads a batch scores at once.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

// WithCalculator replaces the deterministic calculator, mainly to pin the
// clock in tests.
func WithCalculator(c *scoring.Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calc = c
		}
	}
}

// WithWorkerCount sets the number of import workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the import queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many import IDs the default deduper remembers.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRankMaxAttempts bounds the passes of one rank recompute.
func WithRankMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankMaxAttempts = n
		}
	}
}

// WithClock sets the time source for lead timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
