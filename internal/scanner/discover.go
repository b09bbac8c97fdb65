package scanner

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/photo-sentry/internal/discovery"
)

// engineResult holds the outcome of one discovery engine
type engineResult struct {
	index  int
	result *discovery.Result
	err    error
}

// discoveryPhase collects what the fan-out produced.
type discoveryPhase struct {
	candidates []discovery.Candidate
	providers  []string
	warnings   []string
	totalFound int
	used       bool
}

// discover fans the probe out to every configured engine in parallel and
// merges the answers in engine order, so the result is deterministic. A
// failed engine becomes a warning, never an error.
func (s *Scanner) discover(ctx context.Context, asset discovery.Asset, opts ScanOptions) *discoveryPhase {
	phase := &discoveryPhase{}

	if len(s.engines) == 0 {
		phase.warnings = append(phase.warnings, "Person discovery not enabled (no engines configured)")
		return phase
	}

	resultsChan := make(chan engineResult, len(s.engines))
	var wg sync.WaitGroup

	for i, engine := range s.engines {
		wg.Add(1)
		go func(idx int, eng discovery.Engine) {
			defer wg.Done()
			res, err := s.runEngine(ctx, eng, asset, discovery.Options{
				MaxCandidates: opts.MaxCandidates,
				SkipCache:     opts.SkipCache,
			})
			resultsChan <- engineResult{index: idx, result: res, err: err}
		}(i, engine)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]engineResult, len(s.engines))
	for r := range resultsChan {
		results[r.index] = r
	}

	var all []discovery.Candidate
	for i, r := range results {
		name := s.engines[i].Name()
		if r.err != nil {
			s.log.Warn("discovery engine failed", "engine", name, "error", r.err)
			phase.warnings = append(phase.warnings, fmt.Sprintf("%s discovery failed: %s", name, r.err.Error()))
			continue
		}

		phase.used = true
		provider := r.result.Provider
		if provider == "" {
			provider = name
		}
		phase.providers = append(phase.providers, provider)
		phase.totalFound += r.result.TotalFound
		all = append(all, r.result.Candidates...)

		s.log.Debug("discovery engine finished",
			"engine", name,
			"candidates", len(r.result.Candidates),
			"total_found", r.result.TotalFound,
			"cache_hit", r.result.CacheHit,
		)
	}

	phase.candidates = discovery.MergeCandidates(all)
	return phase
}

// runEngine wraps one engine call with the discovery cache.
func (s *Scanner) runEngine(ctx context.Context, eng discovery.Engine, asset discovery.Asset, opts discovery.Options) (*discovery.Result, error) {
	if !opts.SkipCache {
		if hit := s.cache.Get(ctx, eng.Name(), asset.ID, opts.MaxCandidates); hit != nil {
			return hit, nil
		}
	}

	res, err := eng.Discover(ctx, asset, opts)
	if err != nil {
		return nil, err
	}

	s.cache.Put(ctx, eng.Name(), asset.ID, opts.MaxCandidates, res)
	return res, nil
}
