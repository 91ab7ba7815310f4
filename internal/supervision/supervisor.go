// Package supervision fits an affine model to keypoint correspondences and
// decides which correspondences to trust.
package supervision

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"docalign/internal/match"
)

// minMatches is the smallest match count for which an anchored affine fit is defined.
const minMatches = 2

// Supervisor fits a transformation over one matching result.
type Supervisor interface {
	EngineID() string
	// Run returns the best candidate, or nil if no candidate is feasible.
	Run(ctx context.Context) (*Result, error)
}

type engine struct {
	options []OptionSpec
	build   func(b *base) Supervisor
}

var engines = map[string]engine{
	CombinatorialEngineID: {options: combinatorialOptions, build: newCombinatorial},
	RegressionEngineID:    {options: regressionOptions, build: newRegression},
}

// Engines returns the known engine ids, sorted.
func Engines() []string {
	ids := make([]string, 0, len(engines))
	for id := range engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EngineOptions returns the options recognized by an engine, including the shared ones.
func EngineOptions(engineID string) ([]OptionSpec, bool) {
	e, ok := engines[engineID]
	if !ok {
		return nil, false
	}
	return append(append([]OptionSpec{}, sharedOptions...), e.options...), true
}

// New builds the supervisor registered under engineID. Options are validated
// here; a nil logger discards output.
func New(engineID, templateID string, kmr *match.Result, options map[string]any, log *zap.Logger) (Supervisor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	e, ok := engines[engineID]
	if !ok {
		return nil, NewError(ErrInvalidEngine, "while creating a supervisor for template "+templateID,
			"engine "+engineID+" is not registered", nil)
	}
	if kmr == nil {
		return nil, NewError(ErrCorrespondenceNotFound, "while creating a supervisor for template "+templateID,
			"no keypoint matching result was given", nil)
	}
	for _, m := range kmr.Matches() {
		if !m.TemplatePoint().IsFinite() || !m.TargetPoint().IsFinite() {
			return nil, NewError(ErrCorrespondenceNotFound, "while creating a supervisor for template "+templateID,
				"match "+m.DebugID()+" has non-finite coordinates", nil)
		}
	}
	opts, err := resolveOptions(engineID, e.options, options, log)
	if err != nil {
		return nil, err
	}
	b := &base{
		templateID: templateID,
		kmr:        kmr,
		opts:       opts,
		log:        log.With(zap.String("engine", engineID), zap.String("template", templateID)),
	}
	return e.build(b), nil
}

// base holds what every engine shares.
type base struct {
	templateID string
	kmr        *match.Result
	opts       Options
	log        *zap.Logger
}

// underdetermined reports whether the matching result is too small to fit.
func (b *base) underdetermined() bool {
	if b.kmr.TotalMatchCount() < minMatches {
		b.log.Debug("too few matches to supervise", zap.Int("matches", b.kmr.TotalMatchCount()))
		return true
	}
	return false
}

func (b *base) workers() int {
	if n := b.opts.Int("workers"); n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// parallel runs fn(i) for i in [0, n) on a bounded set of goroutines, waits,
// and returns the error of each call by index. A panic in fn becomes that
// call's error. Trials that have not started are skipped once ctx is done.
func (b *base) parallel(ctx context.Context, n int, fn func(i int) error) []error {
	var wg sync.WaitGroup
	sem := make(chan struct{}, b.workers())
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = errors.Errorf("trial %d panicked: %v", i, r)
				}
			}()
			errs[i] = fn(i)
		}(i)
	}
	wg.Wait()
	return errs
}
