// Package service wires scoring, enrichment, persistence and rank
// maintenance into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/leadrank/internal/adapters/mq/queue"
	"github.com/okian/leadrank/internal/adapters/mq/worker"
	"github.com/okian/leadrank/internal/adapters/repository"
	"github.com/okian/leadrank/internal/domain/dedupe"
	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/internal/domain/ranking"
	"github.com/okian/leadrank/internal/domain/scoring"
	"github.com/okian/leadrank/internal/domain/types"
	"github.com/okian/leadrank/pkg/logger"
	"github.com/okian/leadrank/pkg/metrics"
)

// Service implements the API dependencies for lead scoring and ranking.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	maintainer *ranking.Maintainer
	deduper    dedupe.Deduper
	imports    *queue.InMemoryQueue
	workerPool *worker.Pool

	// Scoring
	enricher         scoring.Enricher
	calc             *scoring.Calculator
	bonusCap         float64
	batchConcurrency int
	defaultWeightMap map[string]int
	defaultScorer    *scoring.Service

	weightsMu    sync.RWMutex
	ownerScorers map[string]*scoring.Service

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	rankMaxAttempts int
	now             func() time.Time

	started bool

	logger logger.Logger
}

// New constructs a Service. It fails with scoring.ErrInvalidWeightConfig
// when the default weights are invalid.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        1024,
		dedupeSize:       50000,
		rankMaxAttempts:  5,
		bonusCap:         scoring.DefaultBonusCap,
		batchConcurrency: 8,
		defaultWeightMap: scoring.DefaultWeights().Map(),
		ownerScorers:     make(map[string]*scoring.Service),
		now:              time.Now,
		logger:           logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}
	s.maintainer = ranking.NewMaintainer(s.store,
		ranking.WithMaxAttempts(s.rankMaxAttempts),
		ranking.WithLogger(s.logger.Named("ranking")),
	)

	scorer, err := s.newScorer(s.defaultWeightMap)
	if err != nil {
		return nil, fmt.Errorf("default weights: %w", err)
	}
	s.defaultScorer = scorer
	return s, nil
}

func (s *Service) newScorer(weights map[string]int) (*scoring.Service, error) {
	opts := []scoring.Option{
		scoring.WithBonusCap(s.bonusCap),
		scoring.WithBatchConcurrency(s.batchConcurrency),
	}
	if s.calc != nil {
		opts = append(opts, scoring.WithCalculator(s.calc))
	}
	if s.enricher != nil {
		opts = append(opts, scoring.WithEnricher(s.enricher))
	}
	return scoring.NewServiceFromMap(weights, opts...)
}

// scorerFor returns the scoring service for an explicit weight map, the
// owner's registered weights, or the defaults, in that order.
func (s *Service) scorerFor(owner string, weights map[string]int) (*scoring.Service, error) {
	if weights != nil {
		return s.newScorer(weights)
	}
	s.weightsMu.RLock()
	scorer, ok := s.ownerScorers[owner]
	s.weightsMu.RUnlock()
	if ok {
		return scorer, nil
	}
	return s.defaultScorer, nil
}

// Start starts the import workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.imports = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.workerPool = worker.NewPool(s.workerCount, s.imports, worker.ProcessorFunc(s.Process),
		worker.WithLogger(s.logger.Named("worker")))
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "lead service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("scoring", s.defaultScorer.String()),
	)
	return nil
}

// Stop drains pending imports and stops the workers. The store stays open;
// its owner closes it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping lead service...")
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "import workers did not drain", logger.Error(err))
	}
	s.started = false
	s.logger.Info(ctx, "lead service stopped")
}

// SetOwnerWeights validates and registers weights for owner's future
// scoring.
func (s *Service) SetOwnerWeights(ctx context.Context, owner string, weights map[string]int) (scoring.Weights, error) {
	if owner == "" {
		return scoring.Weights{}, ErrMissingOwner
	}
	scorer, err := s.newScorer(weights)
	if err != nil {
		return scoring.Weights{}, err
	}
	s.weightsMu.Lock()
	s.ownerScorers[owner] = scorer
	s.weightsMu.Unlock()
	s.logger.Info(ctx, "owner weights updated", logger.String("owner", owner), logger.Any("weights", scorer.Weights().Map()))
	return scorer.Weights(), nil
}

// OwnerWeights returns the weights owner is scored with.
func (s *Service) OwnerWeights(owner string) scoring.Weights {
	scorer, _ := s.scorerFor(owner, nil)
	return scorer.Weights()
}

// ScoreLead scores lead without persisting it. A nil weights map uses the
// owner's weights.
func (s *Service) ScoreLead(ctx context.Context, lead model.Lead, weights map[string]int) (scoring.Result, error) {
	scorer, err := s.scorerFor(lead.OwnerID, weights)
	if err != nil {
		metrics.RecordScoringError()
		return scoring.Result{}, err
	}
	return scorer.Score(ctx, lead), nil
}

// ScoreBatch scores leads in parallel without persisting them. Results keep
// the input order.
func (s *Service) ScoreBatch(ctx context.Context, leads []model.Lead, weights map[string]int) ([]scoring.Result, error) {
	if len(leads) == 0 {
		return []scoring.Result{}, nil
	}
	scorer, err := s.scorerFor(leads[0].OwnerID, weights)
	if err != nil {
		metrics.RecordScoringError()
		return nil, err
	}
	return scorer.ScoreBatch(ctx, leads), nil
}

// Explain scores lead and renders the breakdown as text.
func (s *Service) Explain(ctx context.Context, lead model.Lead, weights map[string]int) (string, error) {
	scorer, err := s.scorerFor(lead.OwnerID, weights)
	if err != nil {
		return "", err
	}
	return scorer.Explain(lead, scorer.Score(ctx, lead)), nil
}

// ExplainResult renders r, an already computed score of lead, without
// scoring it again. weights selects the scorer the same way ScoreBatch does.
func (s *Service) ExplainResult(_ context.Context, lead model.Lead, r scoring.Result, weights map[string]int) (string, error) {
	scorer, err := s.scorerFor(lead.OwnerID, weights)
	if err != nil {
		return "", err
	}
	return scorer.Explain(lead, r), nil
}

// ExplainLead explains a stored lead. Scored leads are explained from their
// stored breakdown against the weights they were scored under, noting when
// the owner's weights have since changed. Unscored leads are scored on the
// fly and left unchanged.
func (s *Service) ExplainLead(ctx context.Context, owner, id string) (string, error) {
	lead, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return "", err
	}
	scorer, err := s.scorerFor(owner, nil)
	if err != nil {
		return "", err
	}
	if !lead.Scored() {
		return scorer.Explain(lead, scorer.Score(ctx, lead)), nil
	}
	return scorer.Explain(lead, scoring.Result{
		LeadID:    lead.ID,
		Total:     lead.Score,
		Breakdown: lead.Breakdown,
		Tier:      lead.Tier,
	}), nil
}

// RecomputeRanks re-ranks every lead of owner.
func (s *Service) RecomputeRanks(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrMissingOwner
	}
	return s.maintainer.Recompute(ctx, owner)
}

// RankStatus reports whether owner's ranks reflect the latest writes.
func (s *Service) RankStatus(owner string) ranking.Status {
	return s.maintainer.Status(owner)
}

// afterMutation marks owner's ranking stale and recomputes it.
func (s *Service) afterMutation(ctx context.Context, owner string) error {
	s.maintainer.MarkStale(owner)
	return s.maintainer.Recompute(ctx, owner)
}

func (s *Service) newLead(owner string, draft model.LeadDraft) model.Lead {
	now := s.now().UTC()
	return model.Lead{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		Name:       strings.TrimSpace(draft.Name),
		Attributes: draft.Attributes,
		Tier:       model.TierUnscored,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CreateLead stores a new lead, optionally scoring it first, and re-ranks
// the owner's scope. When only the re-rank fails the stored lead is
// returned together with the error.
func (s *Service) CreateLead(ctx context.Context, owner string, draft model.LeadDraft, score bool) (model.Lead, error) {
	if owner == "" {
		return model.Lead{}, ErrMissingOwner
	}
	if err := draft.Validate(); err != nil {
		return model.Lead{}, err
	}

	lead := s.newLead(owner, draft)
	if score {
		r, err := s.ScoreLead(ctx, lead, nil)
		if err != nil {
			return model.Lead{}, err
		}
		r.Apply(&lead)
	}
	if err := s.store.Create(ctx, lead); err != nil {
		return model.Lead{}, fmt.Errorf("create lead: %w", err)
	}
	return s.reload(ctx, lead, s.afterMutation(ctx, owner))
}

// UpdateLead replaces a lead's name and attributes. A previously scored
// lead is rescored so its score matches its new attributes.
func (s *Service) UpdateLead(ctx context.Context, owner, id string, draft model.LeadDraft) (model.Lead, error) {
	if err := draft.Validate(); err != nil {
		return model.Lead{}, err
	}
	lead, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return model.Lead{}, err
	}

	lead.Name = strings.TrimSpace(draft.Name)
	lead.Attributes = draft.Attributes
	lead.UpdatedAt = s.now().UTC()
	if lead.Scored() {
		r, err := s.ScoreLead(ctx, lead, nil)
		if err != nil {
			return model.Lead{}, err
		}
		r.Apply(&lead)
	}
	if err := s.store.Update(ctx, lead); err != nil {
		return model.Lead{}, fmt.Errorf("update lead: %w", err)
	}
	return s.reload(ctx, lead, s.afterMutation(ctx, owner))
}

// DeleteLead removes a lead and closes the gap it leaves in the ranking.
func (s *Service) DeleteLead(ctx context.Context, owner, id string) error {
	if err := s.store.Delete(ctx, owner, id); err != nil {
		return err
	}
	return s.afterMutation(ctx, owner)
}

// BulkDelete removes the listed leads of owner in one write and re-ranks
// the scope once. IDs that are not in the scope are reported per ID; a
// repeated ID counts once.
func (s *Service) BulkDelete(ctx context.Context, owner string, ids []string) (types.BulkResult, error) {
	if owner == "" {
		return types.BulkResult{}, ErrMissingOwner
	}
	if len(ids) == 0 {
		return types.BulkResult{}, ErrEmptyBulk
	}
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	deleted, err := s.store.BulkDelete(ctx, owner, unique)
	if err != nil {
		return types.BulkResult{}, fmt.Errorf("bulk delete: %w", err)
	}
	gone := make(map[string]struct{}, len(deleted))
	for _, id := range deleted {
		gone[id] = struct{}{}
	}
	res := types.BulkResult{Total: len(unique), SuccessCount: len(deleted), Errors: []types.BulkFailure{}}
	for _, id := range unique {
		if _, ok := gone[id]; !ok {
			res.Errors = append(res.Errors, types.BulkFailure{ID: id, Error: "lead not found"})
		}
	}
	res.FailureCount = len(res.Errors)
	s.logger.Info(ctx, "leads bulk deleted",
		logger.String("owner", owner), logger.Int("deleted", res.SuccessCount), logger.Int("missing", res.FailureCount))
	if len(deleted) == 0 {
		return res, nil
	}
	return res, s.afterMutation(ctx, owner)
}

// BulkCreate validates every draft, scores them in parallel when asked,
// stores them in one write and re-ranks the scope once.
func (s *Service) BulkCreate(ctx context.Context, owner string, drafts []model.LeadDraft, score bool) ([]model.Lead, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	if len(drafts) == 0 {
		return nil, ErrEmptyImport
	}

	leads := make([]model.Lead, len(drafts))
	for i, d := range drafts {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("lead %d: %w", i, err)
		}
		leads[i] = s.newLead(owner, d)
	}

	if score {
		results, err := s.ScoreBatch(ctx, leads, nil)
		if err != nil {
			return nil, err
		}
		for i := range leads {
			results[i].Apply(&leads[i])
		}
	}

	if err := s.store.CreateMany(ctx, leads); err != nil {
		return nil, fmt.Errorf("bulk create: %w", err)
	}
	err := s.afterMutation(ctx, owner)
	if err != nil {
		return leads, err
	}
	return s.ListLeads(ctx, owner)
}

// RescoreLead rescores one stored lead with the owner's current weights.
func (s *Service) RescoreLead(ctx context.Context, owner, id string) (model.Lead, error) {
	lead, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return model.Lead{}, err
	}
	r, err := s.ScoreLead(ctx, lead, nil)
	if err != nil {
		return model.Lead{}, err
	}
	r.Apply(&lead)
	lead.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, lead); err != nil {
		return model.Lead{}, fmt.Errorf("rescore lead: %w", err)
	}
	return s.reload(ctx, lead, s.afterMutation(ctx, owner))
}

// RescoreOwner rescores every lead of owner and re-ranks the scope once.
// It returns the number of leads rescored.
func (s *Service) RescoreOwner(ctx context.Context, owner string) (int, error) {
	if owner == "" {
		return 0, ErrMissingOwner
	}
	leads, err := s.store.List(ctx, owner)
	if err != nil {
		return 0, err
	}
	if len(leads) == 0 {
		return 0, nil
	}

	results, err := s.ScoreBatch(ctx, leads, nil)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	updated := 0
	for i := range leads {
		results[i].Apply(&leads[i])
		leads[i].UpdatedAt = now
		err := s.store.Update(ctx, leads[i])
		if errors.Is(err, model.ErrNotFound) {
			// Deleted while the batch was scoring.
			continue
		}
		if err != nil {
			return updated, fmt.Errorf("rescore owner: %w", err)
		}
		updated++
	}
	s.logger.Info(ctx, "owner rescored", logger.String("owner", owner), logger.Int("leads", updated))
	return updated, s.afterMutation(ctx, owner)
}

// GetLead returns one lead of owner.
func (s *Service) GetLead(ctx context.Context, owner, id string) (model.Lead, error) {
	return s.store.Get(ctx, owner, id)
}

// ListLeads returns owner's leads in rank order, unranked leads last.
func (s *Service) ListLeads(ctx context.Context, owner string) ([]model.Lead, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	return s.store.List(ctx, owner)
}

// SearchLeads returns one page of owner's rank-ordered leads that pass
// filter.
func (s *Service) SearchLeads(ctx context.Context, owner string, filter types.LeadFilter) (types.LeadPage, error) {
	if err := filter.Validate(); err != nil {
		return types.LeadPage{}, err
	}
	leads, err := s.ListLeads(ctx, owner)
	if err != nil {
		return types.LeadPage{}, err
	}
	return types.Paginate(leads, filter), nil
}

// Ranks returns owner's ranked leads.
func (s *Service) Ranks(ctx context.Context, owner string) ([]types.RankEntry, error) {
	leads, err := s.ListLeads(ctx, owner)
	if err != nil {
		return nil, err
	}
	return types.RankEntries(leads), nil
}

// reload re-reads lead to pick up the rank a recompute assigned. A recompute
// error is returned alongside the lead as stored.
func (s *Service) reload(ctx context.Context, lead model.Lead, recomputeErr error) (model.Lead, error) {
	if recomputeErr != nil {
		return lead, recomputeErr
	}
	fresh, err := s.store.Get(ctx, lead.OwnerID, lead.ID)
	if err != nil {
		// Deleted concurrently; the caller still gets what it wrote.
		return lead, nil
	}
	return fresh, nil
}

// SubmitImport queues job for asynchronous creation. A job whose ID was
// already submitted is reported as a duplicate and not queued again. An
// import that cannot be queued is forgotten so it can be resubmitted.
func (s *Service) SubmitImport(ctx context.Context, job model.ImportJob) (duplicate bool, accepted bool) {
	if s.deduper.SeenAndRecord(ctx, job.ID) {
		metrics.RecordImportDuplicate()
		s.logger.Debug(ctx, "duplicate import detected, skipping", logger.String("importID", job.ID))
		return true, false
	}

	s.mu.RLock()
	q, started := s.imports, s.started
	s.mu.RUnlock()
	if !started {
		s.deduper.Unrecord(ctx, job.ID)
		return false, false
	}

	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = s.now().UTC()
	}
	if err := q.TryEnqueue(ctx, job); err != nil {
		s.deduper.Unrecord(ctx, job.ID)
		s.logger.Warn(ctx, "import rejected", logger.String("importID", job.ID), logger.Error(err))
		return false, false
	}
	metrics.RecordImportAccepted()
	return false, true
}

// Process implements worker.Processor for queued imports.
func (s *Service) Process(ctx context.Context, job model.ImportJob) error {
	leads, err := s.BulkCreate(ctx, job.OwnerID, job.Leads, job.Score)
	if err != nil {
		return fmt.Errorf("import %s: %w", job.ID, err)
	}
	s.logger.Info(ctx, "import processed",
		logger.String("importID", job.ID),
		logger.String("owner", job.OwnerID),
		logger.Int("leads", len(job.Leads)),
		logger.Int("scopeSize", len(leads)),
		logger.Duration("queued", s.now().Sub(job.SubmittedAt)),
	)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"importsSeen": s.deduper.Size(),
		"bonusCap":    s.bonusCap,
		"enrichment":  s.enricher != nil,
		"weights":     s.defaultScorer.Weights().Map(),
	}

	if total, err := s.store.Count(ctx); err == nil {
		stats["totalLeads"] = total
		metrics.UpdateTotalLeads(total)
	} else {
		s.logger.Warn(ctx, "lead count unavailable", logger.Error(err))
	}

	if s.started {
		queueLen := s.imports.Len(ctx)
		poolStats := s.workerPool.Stats()
		stats["queueLength"] = queueLen
		stats["importsProcessed"] = poolStats.Processed
		stats["importsFailed"] = poolStats.Failed
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerPool.Size())
	}

	return stats
}

// Ready reports whether the store answers.
func (s *Service) Ready(ctx context.Context) error {
	_, err := s.store.Count(ctx)
	return err
}
