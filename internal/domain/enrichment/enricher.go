// Package enrichment computes the publication relevance bonus for a lead:
// recent publications are looked up by author name, their abstracts are
// classified, and the best verdict wins.
package enrichment

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/okian/leadrank/internal/adapters/cache"
	"github.com/okian/leadrank/internal/adapters/ratelimit"
	"github.com/okian/leadrank/pkg/logger"
	"github.com/okian/leadrank/pkg/metrics"
)

// Rate-limited endpoints used by the enricher.
const (
	EndpointSearch   = "pubmed.search"
	EndpointFetch    = "pubmed.fetch"
	EndpointClassify = "classifier.classify"
)

const (
	defaultMaxPublications   = 5
	defaultMinAbstractLength = 50
	defaultMinSubjectLength  = 3
	defaultTimeout           = 45 * time.Second
	defaultConcurrency       = 5
	defaultCacheTTL          = 6 * time.Hour
)

// Bibliography is an external publication index.
type Bibliography interface {
	// Search returns up to limit publication IDs for an author, newest first.
	Search(ctx context.Context, author string, limit int) ([]string, error)
	FetchAbstract(ctx context.Context, id string) (string, error)
}

// Classifier grades an abstract's relevance.
type Classifier interface {
	Classify(ctx context.Context, text string) (Relevance, error)
}

// Enricher implements the publication relevance bonus. It is safe for
// concurrent use; the cache and rate limiter are shared by all callers.
type Enricher struct {
	bib               Bibliography
	classifier        Classifier
	cache             *cache.Cache
	limiter           *ratelimit.Client
	maxPublications   int
	minAbstractLength int
	minSubjectLength  int
	timeout           time.Duration
	concurrency       int
	ttl               time.Duration
	logger            logger.Logger
}

// NewEnricher builds an Enricher. Without WithCache and WithRateLimiter it
// gets a private in-memory cache and a default limiter.
func NewEnricher(bib Bibliography, classifier Classifier, opts ...Option) *Enricher {
	e := &Enricher{
		bib:               bib,
		classifier:        classifier,
		maxPublications:   defaultMaxPublications,
		minAbstractLength: defaultMinAbstractLength,
		minSubjectLength:  defaultMinSubjectLength,
		timeout:           defaultTimeout,
		concurrency:       defaultConcurrency,
		ttl:               defaultCacheTTL,
		logger:            logger.Get().Named("enrichment"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.New(cache.NewMemoryBackend())
	}
	if e.limiter == nil {
		e.limiter = ratelimit.MustNewClient()
	}
	if e.classifier == nil {
		e.classifier = StaticClassifier{}
	}
	return e
}

// RelevanceBonus returns a value in [0,1] for the named subject. It never
// fails: lookup errors, timeouts and sparse input all degrade to 0.
func (e *Enricher) RelevanceBonus(ctx context.Context, subject string) float64 {
	start := time.Now()
	author, ok := QueryName(subject, e.minSubjectLength)
	if !ok {
		metrics.RecordEnrichment("skipped", 0)
		return 0
	}
	subjectKey := strings.ToLower(author)

	if r, ok := e.cache.Get(ctx, cache.Key{Subject: subjectKey, Kind: cache.KindBonus}); ok {
		if v, err := strconv.ParseFloat(string(r.Value), 64); err == nil {
			metrics.RecordEnrichment("cached", float64(time.Since(start).Milliseconds()))
			return v
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ids, err := e.search(ctx, subjectKey, author)
	if err != nil {
		e.logger.Warn(ctx, "publication search failed",
			logger.String("subject", subjectKey), logger.Error(e.classify(ctx, err)))
		metrics.RecordEnrichment("error", float64(time.Since(start).Milliseconds()))
		return 0
	}
	if len(ids) == 0 {
		metrics.RecordEnrichment("empty", float64(time.Since(start).Milliseconds()))
		return 0
	}
	if len(ids) > e.maxPublications {
		ids = ids[:e.maxPublications]
	}

	scores := make([]float64, len(ids))
	failed := make([]bool, len(ids))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			scores[i], failed[i] = e.score(ctx, subjectKey, id)
			return nil
		})
	}
	_ = g.Wait()

	best, complete := 0.0, true
	for i := range scores {
		if scores[i] > best {
			best = scores[i]
		}
		complete = complete && !failed[i]
	}

	outcome := "success"
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = "timeout"
		e.logger.Warn(ctx, "enrichment incomplete",
			logger.String("subject", subjectKey), logger.Error(ErrEnrichmentTimeout))
	case !complete:
		outcome = "partial"
	default:
		if err := e.cache.Set(ctx, cache.Key{Subject: subjectKey, Kind: cache.KindBonus},
			[]byte(strconv.FormatFloat(best, 'f', -1, 64)), e.ttl); err != nil {
			e.logger.Debug(ctx, "bonus not cached", logger.String("subject", subjectKey), logger.Error(err))
		}
	}
	metrics.RecordEnrichment(outcome, float64(time.Since(start).Milliseconds()))
	return best
}

func (e *Enricher) search(ctx context.Context, subjectKey, author string) ([]string, error) {
	key := cache.Key{Subject: subjectKey, Kind: cache.KindSearch}
	return cache.GetOrComputeJSON(ctx, e.cache, key, e.ttl, func(ctx context.Context) ([]string, error) {
		return ratelimit.Call(ctx, e.limiter, EndpointSearch, func(ctx context.Context) ([]string, error) {
			return e.bib.Search(ctx, author, e.maxPublications)
		})
	})
}

// score returns one publication's contribution and whether a lookup failed.
func (e *Enricher) score(ctx context.Context, subjectKey, id string) (float64, bool) {
	abstractKey := cache.Key{Subject: subjectKey, Item: id, Kind: cache.KindAbstract}
	abstract, err := cache.GetOrComputeJSON(ctx, e.cache, abstractKey, e.ttl, func(ctx context.Context) (string, error) {
		return ratelimit.Call(ctx, e.limiter, EndpointFetch, func(ctx context.Context) (string, error) {
			return e.bib.FetchAbstract(ctx, id)
		})
	})
	if err != nil {
		e.logger.Warn(ctx, "abstract fetch failed",
			logger.String("subject", subjectKey), logger.String("publication_id", id), logger.Error(e.classify(ctx, err)))
		return 0, true
	}
	if len(strings.TrimSpace(abstract)) < e.minAbstractLength {
		return 0, false
	}

	relevanceKey := cache.Key{Subject: subjectKey, Item: id, Kind: cache.KindRelevance}
	rel, err := cache.GetOrComputeJSON(ctx, e.cache, relevanceKey, e.ttl, func(ctx context.Context) (Relevance, error) {
		return ratelimit.Call(ctx, e.limiter, EndpointClassify, func(ctx context.Context) (Relevance, error) {
			return e.classifier.Classify(ctx, abstract)
		})
	})
	if err != nil {
		e.logger.Warn(ctx, "abstract classification failed",
			logger.String("subject", subjectKey), logger.String("publication_id", id), logger.Error(e.classify(ctx, err)))
		return 0, true
	}
	if rel == Unrecognized {
		e.logger.Debug(ctx, "unrecognized classifier answer treated as low",
			logger.String("subject", subjectKey), logger.String("publication_id", id))
	}
	return rel.Score(), false
}

// classify tags errors caused by the enrichment deadline.
func (e *Enricher) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrEnrichmentTimeout, err)
	}
	return err
}

var honorifics = map[string]bool{
	"dr": true, "prof": true, "professor": true, "mr": true, "mrs": true, "ms": true,
	"phd": true, "md": true, "pharmd": true, "dvm": true, "jr": true, "sr": true,
}

// QueryName strips honorifics and degrees from a person's name and reports
// whether enough letters remain to search for it.
func QueryName(name string, minLetters int) (string, bool) {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	kept := fields[:0]
	letters := 0
	for _, f := range fields {
		if honorifics[strings.ToLower(strings.Trim(f, "."))] {
			continue
		}
		kept = append(kept, f)
		for _, r := range f {
			if unicode.IsLetter(r) {
				letters++
			}
		}
	}
	if len(kept) == 0 || letters < minLetters {
		return "", false
	}
	return strings.Join(kept, " "), true
}
