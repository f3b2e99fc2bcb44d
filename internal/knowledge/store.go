// Package knowledge persists error resolutions learned from past runs
// and serves similarity-ranked suggestions for new failures.
//
// Patterns are keyed by a coarse signature derived from the error type
// and the salient words of the message, so errors that differ only in
// incidental detail collide into one pattern. That collision is the
// point: it is what lets a resolution recorded for one failure surface
// for the next similar one.
package knowledge

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cloud-shuttle/sherpa/pkg/types"
)

const (
	// maxResolutions caps stored successful resolutions per pattern
	maxResolutions = 10
	// maxFailedAttempts caps stored failed attempts per pattern
	maxFailedAttempts = 5
	// maxPatterns caps patterns kept when persisting; the heaviest
	// (most-used) patterns survive trimming
	maxPatterns = 200
	// maxSolutions caps the combined result of GetLearnedSolutions
	maxSolutions = 5
	// exactSolutions is how many resolutions the exact-signature
	// pattern contributes
	exactSolutions = 3
	// similarSolutions is how many resolutions each similar pattern
	// contributes
	similarSolutions = 2
	// similarityThreshold gates which same-type patterns count as similar
	similarityThreshold = 0.3
)

// Resolution is a recorded solution paired with its observed outcome
type Resolution struct {
	Solution  string    `json:"solution"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// FailedAttempt records a solution that did not work and why
type FailedAttempt struct {
	AttemptedSolution string `json:"attempted_solution"`
	Reason            string `json:"reason"`
}

// LearnedPattern accumulates everything known about one error signature
type LearnedPattern struct {
	Signature             string          `json:"signature"`
	ErrorType             string          `json:"error_type"`
	SampleMessage         string          `json:"sample_message"`
	SuccessCount          int             `json:"success_count"`
	FailureCount          int             `json:"failure_count"`
	SuccessfulResolutions []Resolution    `json:"successful_resolutions"`
	FailedAttempts        []FailedAttempt `json:"failed_attempts"`
}

// weight ranks patterns for persistence trimming
func (p *LearnedPattern) weight() int {
	return p.SuccessCount + p.FailureCount
}

// LearnedSolution is one suggestion served for an error record
type LearnedSolution struct {
	Solution   string  `json:"solution"`
	Confidence float64 `json:"confidence"`
	UsageCount int     `json:"usage_count"`
	Outcome    string  `json:"outcome"`
}

// Store is the persistent, signature-indexed collection of learned
// patterns. All public mutating operations serialize their
// read-modify-write-to-disk sequence under one lock.
type Store struct {
	mu       sync.Mutex
	path     string
	patterns map[string]*LearnedPattern
}

// Open loads the knowledge store from path. A missing file yields an
// empty store; an unreadable or corrupt file logs a warning and also
// yields an empty store. Load failure is never fatal.
func Open(path string) *Store {
	s := &Store{
		path:     path,
		patterns: make(map[string]*LearnedPattern),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️  Could not read knowledge file %s: %v (starting empty)", path, err)
		}
		return s
	}

	var patterns []*LearnedPattern
	if err := json.Unmarshal(data, &patterns); err != nil {
		log.Printf("⚠️  Could not parse knowledge file %s: %v (starting empty)", path, err)
		return s
	}

	for _, p := range patterns {
		if p.Signature != "" {
			s.patterns[p.Signature] = p
		}
	}

	return s
}

// RecordSuccessfulResolution appends a resolution to the pattern for the
// record's signature, creating the pattern if needed, and persists the
// full store.
func (s *Store) RecordSuccessfulResolution(rec types.ErrorRecord, solution, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findOrCreateLocked(rec)
	p.SuccessfulResolutions = append(p.SuccessfulResolutions, Resolution{
		Solution:  solution,
		Outcome:   outcome,
		Timestamp: time.Now(),
	})
	if len(p.SuccessfulResolutions) > maxResolutions {
		p.SuccessfulResolutions = p.SuccessfulResolutions[len(p.SuccessfulResolutions)-maxResolutions:]
	}
	p.SuccessCount++

	s.persistLocked()
}

// RecordFailedResolution appends a failed attempt to the pattern for the
// record's signature, creating the pattern if needed, and persists the
// full store.
func (s *Store) RecordFailedResolution(rec types.ErrorRecord, attempted, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findOrCreateLocked(rec)
	p.FailedAttempts = append(p.FailedAttempts, FailedAttempt{
		AttemptedSolution: attempted,
		Reason:            reason,
	})
	if len(p.FailedAttempts) > maxFailedAttempts {
		p.FailedAttempts = p.FailedAttempts[len(p.FailedAttempts)-maxFailedAttempts:]
	}
	p.FailureCount++

	s.persistLocked()
}

// GetLearnedSolutions returns up to 5 suggestions for the record: the
// top resolutions of the exact-signature pattern first, then resolutions
// from same-type patterns whose sample message is similar enough,
// deduplicated by solution text and ordered by how often each solution
// was used within its own pattern.
func (s *Store) GetLearnedSolutions(rec types.ErrorRecord) []LearnedSolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := Signature(rec)
	var pool []LearnedSolution
	seen := make(map[string]bool)

	add := func(sols []LearnedSolution) {
		for _, sol := range sols {
			if len(pool) >= maxSolutions {
				return
			}
			if seen[sol.Solution] {
				continue
			}
			seen[sol.Solution] = true
			pool = append(pool, sol)
		}
	}

	if exact, ok := s.patterns[sig]; ok && len(exact.SuccessfulResolutions) > 0 {
		add(topSolutions(exact, exactSolutions))
	}

	if len(pool) < maxSolutions {
		for _, cand := range s.similarPatternsLocked(rec, sig) {
			add(topSolutions(cand, similarSolutions))
			if len(pool) >= maxSolutions {
				break
			}
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].UsageCount > pool[j].UsageCount
	})

	return pool
}

// Patterns returns all patterns ordered by weight descending, heaviest
// first. The returned slice holds copies.
func (s *Store) Patterns() []LearnedPattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LearnedPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].weight() != out[j].weight() {
			return out[i].weight() > out[j].weight()
		}
		return out[i].Signature < out[j].Signature
	})
	return out
}

// similarPatternsLocked returns same-type patterns (excluding the exact
// signature) whose sample message clears the similarity threshold,
// ordered by similarity descending.
func (s *Store) similarPatternsLocked(rec types.ErrorRecord, exclude string) []*LearnedPattern {
	type scored struct {
		pattern *LearnedPattern
		sim     float64
	}

	var candidates []scored
	for sig, p := range s.patterns {
		if sig == exclude || p.ErrorType != rec.Type {
			continue
		}
		if sim := Similarity(rec.Message, p.SampleMessage); sim > similarityThreshold {
			candidates = append(candidates, scored{pattern: p, sim: sim})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})

	out := make([]*LearnedPattern, len(candidates))
	for i, c := range candidates {
		out[i] = c.pattern
	}
	return out
}

// topSolutions groups a pattern's resolutions by solution text and
// returns the n most-used, each carrying its usage count, its share of
// the pattern's resolutions, and the outcome of the first occurrence.
func topSolutions(p *LearnedPattern, n int) []LearnedSolution {
	total := len(p.SuccessfulResolutions)
	if total == 0 {
		return nil
	}

	counts := make(map[string]int)
	firstOutcome := make(map[string]string)
	var order []string

	for _, r := range p.SuccessfulResolutions {
		if counts[r.Solution] == 0 {
			order = append(order, r.Solution)
			firstOutcome[r.Solution] = r.Outcome
		}
		counts[r.Solution]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > n {
		order = order[:n]
	}

	out := make([]LearnedSolution, len(order))
	for i, sol := range order {
		out[i] = LearnedSolution{
			Solution:   sol,
			Confidence: float64(counts[sol]) / float64(total),
			UsageCount: counts[sol],
			Outcome:    firstOutcome[sol],
		}
	}
	return out
}

func (s *Store) findOrCreateLocked(rec types.ErrorRecord) *LearnedPattern {
	sig := Signature(rec)
	if p, ok := s.patterns[sig]; ok {
		return p
	}

	p := &LearnedPattern{
		Signature:     sig,
		ErrorType:     rec.Type,
		SampleMessage: rec.Message,
	}
	s.patterns[sig] = p
	return p
}

// persistLocked writes the full store to disk, trimming to the heaviest
// patterns first. Write failure logs a warning and leaves the in-memory
// state intact; it never propagates.
func (s *Store) persistLocked() {
	patterns := make([]*LearnedPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].weight() != patterns[j].weight() {
			return patterns[i].weight() > patterns[j].weight()
		}
		return patterns[i].Signature < patterns[j].Signature
	})
	if len(patterns) > maxPatterns {
		patterns = patterns[:maxPatterns]
	}

	data, err := json.MarshalIndent(patterns, "", "  ")
	if err != nil {
		log.Printf("⚠️  Could not marshal knowledge store: %v", err)
		return
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		log.Printf("⚠️  Could not write knowledge file %s: %v", s.path, err)
	}
}

// writeFileAtomic overwrites path via a temp file and rename so a crash
// mid-write cannot corrupt the previous contents.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".knowledge-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
