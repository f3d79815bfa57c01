package scoring

import (
	"github.com/okian/leadrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithEnricher attaches a relevance enricher. Without one, scores are purely
// deterministic and carry no scientific intent entry.
func WithEnricher(e Enricher) Option {
	return func(s *Service) {
		s.enricher = e
	}
}

// WithBonusCap sets the points awarded for a relevance bonus of 1.0.
func WithBonusCap(points float64) Option {
	return func(s *Service) {
		if points >= 0 {
			s.bonusCap = points
		}
	}
}

// WithCalculator replaces the factor calculator.
func WithCalculator(c *Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calc = c
		}
	}
}

// WithBatchConcurrency bounds the number of leads scored in parallel by
// ScoreBatch.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
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
