package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/leadrank/pkg/logger"
)

const (
	directoryPermission = 0750
	filePermission      = 0600
	pollInitialInterval = 100 * time.Millisecond
	pollMaxInterval     = 2 * time.Second
	percentMultiplier   = 100
)

var (
	// ErrNotSettled means an owner's ranks did not cover its leads in time.
	ErrNotSettled = errors.New("ranks did not settle")
	// ErrInconsistentRanks means a settled ranking is not dense or not
	// ordered by score.
	ErrInconsistentRanks = errors.New("inconsistent ranks")
	errRejected          = errors.New("import rejected")
)

// Run generates leads, imports them, waits for every owner's ranks to
// settle and verifies them.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("loadgen")
	stats := &Stats{StartTime: time.Now()}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	runID := uuid.NewString()[:8]

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("run", runID),
		logger.Int("owners", cfg.Owners),
		logger.Int("leadsPerOwner", cfg.NumLeads),
		logger.Int("batchSize", cfg.BatchSize),
		logger.Int("workers", cfg.Workers),
		logger.Int64("seed", int64(seed)))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Ready(ctx); err != nil {
		return stats, fmt.Errorf("service readiness check failed: %w", err)
	}

	owners := OwnerIDs(runID, cfg.Owners)
	imports := NewGenerator(seed).Imports(runID, owners, cfg.NumLeads, cfg.BatchSize)
	for _, imp := range imports {
		stats.LeadsGenerated += len(imp.Leads)
	}

	expected, err := submitImports(ctx, cfg, client, imports, stats)
	if err != nil {
		return stats, fmt.Errorf("import submission failed: %w", err)
	}

	for _, owner := range owners {
		ranking, err := waitForRanks(ctx, cfg, client, owner, expected[owner])
		if err != nil {
			return stats, err
		}
		if err := VerifyRanking(ranking); err != nil {
			return stats, err
		}
		stats.RankedLeads += len(ranking.Entries)
		if cfg.Verbose {
			logTop(ctx, log, ranking)
		}
	}

	if cfg.OutputFile != "" {
		if err := saveImports(cfg.OutputFile, imports); err != nil {
			log.Warn(ctx, "failed to save generated leads", logger.Error(err))
		} else {
			log.Info(ctx, "generated leads saved", logger.String("file", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logFinalStats(ctx, log, stats)
	return stats, nil
}

// submitImports posts imports concurrently. Imports turned away for
// backpressure are retried until SettleAfter elapses. It returns the number
// of leads the service took per owner.
func submitImports(ctx context.Context, cfg *Config, client *Client, imports []Import, stats *Stats) (map[string]int, error) {
	var (
		accepted, duplicate, rejected, failed atomic.Int64
		mu                                    sync.Mutex
		expected                              = make(map[string]int)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for _, imp := range imports {
		g.Go(func() error {
			expo := backoff.NewExponentialBackOff()
			expo.InitialInterval = pollInitialInterval
			expo.MaxInterval = pollMaxInterval
			var outcome string
			_, _ = backoff.Retry(gctx, func() (struct{}, error) {
				outcome = client.SubmitImport(gctx, imp)
				if outcome == outcomeRejected {
					return struct{}{}, errRejected
				}
				return struct{}{}, nil
			}, backoff.WithBackOff(expo), backoff.WithMaxElapsedTime(cfg.SettleAfter))

			switch outcome {
			case outcomeAccepted, outcomeDuplicate:
				if outcome == outcomeAccepted {
					accepted.Add(1)
				} else {
					duplicate.Add(1)
				}
				mu.Lock()
				expected[imp.Owner] += len(imp.Leads)
				mu.Unlock()
			case outcomeRejected:
				rejected.Add(1)
			default:
				failed.Add(1)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.ImportsSubmitted = len(imports)
	stats.ImportsAccepted = int(accepted.Load())
	stats.ImportsDuplicate = int(duplicate.Load())
	stats.ImportsRejected = int(rejected.Load())
	stats.ImportsFailed = int(failed.Load())
	logger.Get().Info(ctx, "import submission completed",
		logger.Int("accepted", stats.ImportsAccepted),
		logger.Int("duplicate", stats.ImportsDuplicate),
		logger.Int("rejected", stats.ImportsRejected),
		logger.Int("failed", stats.ImportsFailed))
	return expected, nil
}

// waitForRanks polls an owner's ranks until every expected lead is ranked
// and the scope is consistent.
func waitForRanks(ctx context.Context, cfg *Config, client *Client, owner string, want int) (Ranking, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = pollInitialInterval
	expo.MaxInterval = pollMaxInterval

	var last Ranking
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		r, err := client.Ranks(ctx, owner)
		if err != nil {
			return struct{}{}, err
		}
		last = r
		if r.Status != "consistent" || len(r.Entries) != want {
			return struct{}{}, fmt.Errorf("%d/%d ranked, %s", len(r.Entries), want, r.Status)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(expo), backoff.WithMaxElapsedTime(cfg.SettleAfter))
	if err != nil {
		return last, fmt.Errorf("%w: %s: %w", ErrNotSettled, owner, err)
	}
	return last, nil
}

// VerifyRanking checks ranks run 1..n in order with non-increasing scores.
func VerifyRanking(r Ranking) error {
	for i, e := range r.Entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: %s position %d has rank %d", ErrInconsistentRanks, r.Owner, i+1, e.Rank)
		}
		if i > 0 && e.Score > r.Entries[i-1].Score {
			return fmt.Errorf("%w: %s rank %d scores %d above rank %d (%d)",
				ErrInconsistentRanks, r.Owner, e.Rank, e.Score, i, r.Entries[i-1].Score)
		}
	}
	return nil
}

func saveImports(path string, imports []Import) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(imports, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal leads: %w", err)
	}
	return os.WriteFile(path, data, filePermission)
}

func logTop(ctx context.Context, log logger.Logger, r Ranking) {
	n := min(len(r.Entries), 5)
	for _, e := range r.Entries[:n] {
		log.Info(ctx, "top lead",
			logger.String("owner", r.Owner),
			logger.Int("rank", e.Rank),
			logger.String("name", e.Name),
			logger.Int("score", e.Score),
			logger.String("tier", string(e.Tier)))
	}
}

func logFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var acceptRate, leadsPerSecond float64
	if stats.ImportsSubmitted > 0 {
		acceptRate = float64(stats.ImportsAccepted+stats.ImportsDuplicate) / float64(stats.ImportsSubmitted) * percentMultiplier
	}
	if stats.Duration > 0 {
		leadsPerSecond = float64(stats.RankedLeads) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("leadsGenerated", stats.LeadsGenerated),
		logger.Int("importsSubmitted", stats.ImportsSubmitted),
		logger.Int("importsAccepted", stats.ImportsAccepted),
		logger.Int("importsDuplicate", stats.ImportsDuplicate),
		logger.Int("importsRejected", stats.ImportsRejected),
		logger.Int("importsFailed", stats.ImportsFailed),
		logger.Int("rankedLeads", stats.RankedLeads),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("leadsPerSecond", leadsPerSecond))
}
