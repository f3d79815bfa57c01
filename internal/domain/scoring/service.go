package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/pkg/logger"
	"github.com/okian/leadrank/pkg/metrics"
)

// Default service configuration constants.
const (
	DefaultBonusCap         = 20.0
	defaultBatchConcurrency = 8
)

// Enricher supplies a relevance bonus in [0,1] for a subject. Implementations
// absorb their own failures and return 0.
type Enricher interface {
	RelevanceBonus(ctx context.Context, subject string) float64
}

// Result is the outcome of scoring one lead.
type Result struct {
	LeadID    string          `json:"lead_id,omitempty"`
	Total     int             `json:"score"`
	Breakdown model.Breakdown `json:"breakdown"`
	Tier      model.Tier      `json:"tier"`
}

// Apply copies the result onto l.
func (r Result) Apply(l *model.Lead) {
	l.Score = r.Total
	l.Breakdown = r.Breakdown
	l.Tier = r.Tier
}

// Service scores leads under one immutable weight configuration.
type Service struct {
	weights     Weights
	calc        *Calculator
	enricher    Enricher
	bonusCap    float64
	concurrency int
	logger      logger.Logger
}

// NewService validates w and builds a Service.
func NewService(w Weights, opts ...Option) (*Service, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		weights:     w,
		calc:        NewCalculator(),
		bonusCap:    DefaultBonusCap,
		concurrency: defaultBatchConcurrency,
		logger:      logger.Get().Named("scoring"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewServiceFromMap parses a factor-name weight map and builds a Service.
func NewServiceFromMap(in map[string]int, opts ...Option) (*Service, error) {
	w, err := ParseWeights(in)
	if err != nil {
		return nil, err
	}
	return NewService(w, opts...)
}

// Weights returns the weight configuration the service scores with.
func (s *Service) Weights() Weights { return s.weights }

// BonusCap returns the points awarded for a full relevance bonus.
func (s *Service) BonusCap() float64 { return s.bonusCap }

// Score computes the score of lead. Enrichment failures never fail scoring;
// they only reduce the intent bonus to zero.
func (s *Service) Score(ctx context.Context, lead model.Lead) Result {
	start := time.Now()

	_, b := s.calc.Score(lead.Attributes, s.weights)
	b.Weights = s.weights.Map()

	var bonus float64
	if s.enricher != nil {
		bonus = clampUnit(s.enricher.RelevanceBonus(ctx, lead.Name))
		points := bonus * s.bonusCap
		b.ScientificIntentAI = &points
	}

	total := b.Total()
	r := Result{
		LeadID:    lead.ID,
		Total:     total,
		Breakdown: b,
		Tier:      model.TierFor(total),
	}

	latency := time.Since(start)
	metrics.RecordLeadScored(total, bonus > 0, float64(latency.Milliseconds()))
	s.logger.Debug(ctx, "lead scored",
		logger.String("lead_id", lead.ID),
		logger.Int("score", total),
		logger.Float64("bonus", bonus),
		logger.Duration("took", latency),
	)
	return r
}

// ScoreBatch scores leads in parallel. Results keep the input order.
func (s *Service) ScoreBatch(ctx context.Context, leads []model.Lead) []Result {
	out := make([]Result, len(leads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range leads {
		g.Go(func() error {
			out[i] = s.Score(gctx, leads[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// String describes the configuration for logs.
func (s *Service) String() string {
	return fmt.Sprintf("weights=%v bonus_cap=%.1f enriched=%t", s.weights.Map(), s.bonusCap, s.enricher != nil)
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
