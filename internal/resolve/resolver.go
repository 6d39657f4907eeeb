package resolve

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"murmur/internal/engine"
	"murmur/internal/hostcaps"
	"murmur/internal/logging"
	"murmur/internal/services"
)

// ResolvedEngine is the single loaded native binary memoized for the process
// lifetime. It is owned by the resolver; callers share it read-only.
type ResolvedEngine struct {
	Candidate Candidate
	LoadedAt  time.Time
	Engine    engine.Engine
}

// Attempt records one step of the candidate walk for diagnostics.
type Attempt struct {
	Candidate Candidate
	Outcome   string // skipped_accelerator, missing, load_failed, selected
	Detail    string
}

// Option configures optional resolver behavior.
type Option func(*Resolver)

// WithLoader overrides the loader lookup, used by tests to mock loads.
func WithLoader(lookup func(hostcaps.Accelerator) (engine.Loader, bool)) Option {
	return func(r *Resolver) {
		if lookup != nil {
			r.loaderFor = lookup
		}
	}
}

// Resolver walks the platform candidate table and owns the memoized engine.
type Resolver struct {
	resourceDir string
	modelPath   string
	logger      *slog.Logger
	loaderFor   func(hostcaps.Accelerator) (engine.Loader, bool)

	mu       sync.Mutex
	resolved *ResolvedEngine
	lastWalk []Attempt
}

// New constructs a resolver over the given resource directory and model path.
func New(resourceDir, modelPath string, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		resourceDir: resourceDir,
		modelPath:   modelPath,
		logger:      logging.NewComponentLogger(logger, "resolver"),
		loaderFor:   engine.LoaderFor,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the memoized engine, or performs the candidate walk on
// first use. Only successful resolutions are memoized; a failed resolve is
// retried from scratch on the next call.
func (r *Resolver) Resolve(desc hostcaps.Descriptor, preference []string) (*ResolvedEngine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved != nil {
		return r.resolved, nil
	}

	resolved, walk, err := r.walk(desc, preference)
	r.lastWalk = walk
	if err != nil {
		return nil, err
	}
	r.resolved = resolved
	r.writeManifest(resolved)
	return resolved, nil
}

// Resolved returns the memoized engine without triggering resolution.
func (r *Resolver) Resolved() *ResolvedEngine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// LastWalk reports the attempts of the most recent resolution.
func (r *Resolver) LastWalk() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, len(r.lastWalk))
	copy(out, r.lastWalk)
	return out
}

// Invalidate drops the memoized engine and closes it. The caller must ensure
// no task is running against the engine; the daemon serializes this with the
// task controller.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved == nil {
		return
	}
	if err := r.resolved.Engine.Close(); err != nil {
		r.logger.Warn("closing invalidated engine failed", logging.Error(err))
	}
	r.logger.Info("resolved engine invalidated",
		logging.String(logging.FieldTier, string(r.resolved.Candidate.Tier)),
		logging.String(logging.FieldEventType, "engine_invalidated"),
	)
	r.resolved = nil
}

func (r *Resolver) walk(desc hostcaps.Descriptor, preference []string) (*ResolvedEngine, []Attempt, error) {
	candidates := Candidates(desc.Platform, desc.Arch)
	if len(candidates) == 0 {
		return nil, nil, services.Wrap(services.ErrResolution, "resolver", "resolve",
			fmt.Sprintf("no engine tiers defined for %s/%s", desc.Platform, desc.Arch), nil)
	}
	candidates = reorder(candidates, preference)

	walk := make([]Attempt, 0, len(candidates))
	for _, cand := range candidates {
		if !desc.Accelerators.Has(cand.Accelerator) {
			walk = append(walk, Attempt{Candidate: cand, Outcome: "skipped_accelerator",
				Detail: fmt.Sprintf("%s not available on host", cand.Accelerator)})
			continue
		}

		libraryPath := filepath.Join(r.resourceDir, cand.Library)
		if _, err := os.Stat(libraryPath); err != nil {
			walk = append(walk, Attempt{Candidate: cand, Outcome: "missing", Detail: libraryPath})
			continue
		}

		loader, ok := r.loaderFor(cand.Accelerator)
		if !ok {
			walk = append(walk, Attempt{Candidate: cand, Outcome: "load_failed",
				Detail: fmt.Sprintf("no loader for %s", cand.Accelerator)})
			continue
		}

		eng, err := loader(engine.LoadOptions{
			LibraryPath: libraryPath,
			ModelPath:   r.modelPath,
			Accelerator: cand.Accelerator,
		}, r.logger)
		if err != nil {
			walk = append(walk, Attempt{Candidate: cand, Outcome: "load_failed", Detail: err.Error()})
			if cand.Strict {
				// A strict tier with its file on disk must not be silently
				// substituted; surface the load failure instead.
				return nil, walk, services.Wrap(services.ErrStrictLoad, "resolver", "load",
					fmt.Sprintf("strict candidate %s failed to load", cand.ID), err)
			}
			r.logger.Warn("candidate failed to load; trying next tier",
				logging.String(logging.FieldTier, string(cand.Tier)),
				logging.String(logging.FieldAccelerator, string(cand.Accelerator)),
				logging.Error(err),
			)
			continue
		}

		walk = append(walk, Attempt{Candidate: cand, Outcome: "selected"})
		r.logger.Info("engine binary resolved",
			logging.String("candidate", cand.ID),
			logging.String(logging.FieldTier, string(cand.Tier)),
			logging.String(logging.FieldAccelerator, string(cand.Accelerator)),
			logging.String("backend", eng.Describe()),
		)
		return &ResolvedEngine{Candidate: cand, LoadedAt: time.Now().UTC(), Engine: eng}, walk, nil
	}

	return nil, walk, services.Wrap(services.ErrResolution, "resolver", "resolve",
		"no usable engine binary: "+summarizeWalk(walk), nil)
}

func summarizeWalk(walk []Attempt) string {
	parts := make([]string, 0, len(walk))
	for _, attempt := range walk {
		parts = append(parts, fmt.Sprintf("%s=%s", attempt.Candidate.ID, attempt.Outcome))
	}
	if len(parts) == 0 {
		return "no candidates tried"
	}
	return strings.Join(parts, ", ")
}
