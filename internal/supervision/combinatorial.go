package supervision

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"docalign/internal/match"
	"docalign/internal/optimize"
	"docalign/pkg/geometry"
)

// CombinatorialEngineID selects the optimizer-based engine.
const CombinatorialEngineID = "combinatorial"

var combinatorialOptions = []OptionSpec{
	{Name: "min_match_factor", Default: 0.1, Min: 0, Max: 1},
	{Name: "max_transformation_error", Default: 20, Min: 0, Max: 5000},
	{Name: "balance_factor", Default: 10, Min: 0, Max: 4e9},
	{Name: "timeout_ms", Default: 2500, Min: 1, Max: 600000},
	{Name: "seed", Default: 0, Min: 0, Max: 1 << 53},
}

// Combinatorial fits the model and a trust weight per match at once, with one
// exact optimization per keypoint anchor. A match with a positive weight must be
// predicted within the error bound on each axis.
type Combinatorial struct {
	*base
	rng *rand.Rand
}

func newCombinatorial(b *base) Supervisor {
	seed := int64(b.opts.Float("seed"))
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Combinatorial{base: b, rng: rand.New(rand.NewSource(seed))}
}

// EngineID returns CombinatorialEngineID.
func (s *Combinatorial) EngineID() string { return CombinatorialEngineID }

// Run tries one anchor per keypoint and returns the candidate with the highest score.
func (s *Combinatorial) Run(ctx context.Context) (*Result, error) {
	if s.underdetermined() {
		return nil, nil
	}

	anchors := s.pickAnchors()
	candidates := make([]*Result, len(anchors))

	start := time.Now()
	errs := s.parallel(ctx, len(anchors), func(i int) error {
		var err error
		candidates[i], err = s.trial(ctx, anchors[i])
		return err
	})
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "combinatorial supervision")
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var best *Result
	for _, c := range candidates {
		if c != nil && (best == nil || c.Score() > best.Score()) {
			best = c
		}
	}
	s.log.Debug("combinatorial supervision finished",
		zap.Int("anchors", len(anchors)),
		zap.Bool("found", best != nil),
		zap.Duration("elapsed", time.Since(start)))
	return best, nil
}

// pickAnchors draws one match per non-empty keypoint, in keypoint order.
func (s *Combinatorial) pickAnchors() []*match.Match {
	var anchors []*match.Match
	for _, kp := range s.kmr.KeypointIDs() {
		ms := s.kmr.MatchesForKeypoint(kp)
		if len(ms) == 0 {
			continue
		}
		anchors = append(anchors, ms[s.rng.Intn(len(ms))])
	}
	return anchors
}

// trial solves the problem for one anchor. Infeasible and undecided problems
// yield no candidate and no error.
func (s *Combinatorial) trial(ctx context.Context, anchor *match.Match) (*Result, error) {
	log := s.log.With(zap.String("anchor", anchor.DebugID()))
	kmr := s.kmr
	all := kmr.Matches()

	maxErr := optimize.Rat(s.opts.Float("max_transformation_error"))
	balance := optimize.Rat(s.opts.Float("balance_factor"))

	oc := optimize.NewContext()
	oc.SetTimeout(time.Duration(s.opts.Int("timeout_ms")) * time.Millisecond)

	a := oc.Real("a")
	b := oc.Real("b")
	c := oc.Real("c")
	d := oc.Real("d")
	errBound := oc.Real("err_bound")

	zero := optimize.Constant(optimize.Int(0))
	one := optimize.Constant(optimize.Int(1))
	oc.Add(
		optimize.GE(errBound.Expr(), zero),
		optimize.LE(errBound.Expr(), optimize.Constant(maxErr)),
	)

	weights := make([]optimize.Var, len(all))
	for i, m := range all {
		w := oc.Real("w_" + m.DebugID())
		weights[i] = w
		oc.Add(optimize.GE(w.Expr(), zero), optimize.LE(w.Expr(), one))
	}
	minWeight := new(big.Rat).Mul(optimize.Rat(s.opts.Float("min_match_factor")), optimize.Int(int64(len(all))))
	oc.Add(optimize.GE(optimize.Sum(weights...), optimize.Constant(minWeight)))
	oc.Maximize(optimize.Sum(weights...).Sub(errBound.Times(balance)))

	oc.Push()
	defer oc.Pop()

	delta := anchor.TemplatePoint()
	deltaPrime := anchor.TargetPoint()
	for i, m := range all {
		oc.Implies(weights[i], consistency(delta, deltaPrime, m, a, b, c, d, errBound)...)
	}

	switch status := oc.Check(ctx); status {
	case optimize.Unsat:
		log.Warn("no feasible transformation for anchor")
		return nil, nil
	case optimize.Unknown:
		if oc.Model() == nil {
			log.Warn("optimizer gave up on anchor", zap.String("reason", oc.ReasonUnknown()))
			return nil, nil
		}
		log.Warn("optimizer stopped early, using best feasible assignment",
			zap.String("reason", oc.ReasonUnknown()), zap.Int("nodes", oc.Nodes()))
	}

	model := oc.Model()
	score := new(big.Rat).Add(model.Objective(), new(big.Rat).Mul(balance, maxErr))
	if score.Sign() < 0 {
		return nil, errors.Errorf("negative score %s for anchor %s", score.RatString(), anchor.DebugID())
	}

	res := NewResult(kmr)
	if err := res.SetAnchors(delta, deltaPrime); err != nil {
		return nil, err
	}
	if err := res.SetMatrix(geometry.Matrix2{
		A: toFloat64(model.Value(a)), B: toFloat64(model.Value(b)),
		C: toFloat64(model.Value(c)), D: toFloat64(model.Value(d)),
	}); err != nil {
		return nil, err
	}
	for i, m := range all {
		if err := res.SetMatchWeight(m, toFloat64(model.Value(weights[i]))); err != nil {
			return nil, err
		}
	}
	res.SetScore(toFloat64(score))

	log.Debug("anchor trial solved",
		zap.Float64("score", res.Score()),
		zap.Float64("err_bound", toFloat64(model.Value(errBound))),
		zap.Int("nodes", oc.Nodes()))
	return res, nil
}

// consistency bounds the per-axis prediction error of m relative to the anchor:
// |a*u + b*v + dx' - tx| <= e and |c*u + d*v + dy' - ty| <= e with (u, v) = p - delta.
func consistency(delta, deltaPrime geometry.Point2D, m *match.Match, a, b, c, d, e optimize.Var) []optimize.Constraint {
	rel := m.TemplatePoint().Sub(delta)
	u := optimize.Rat(rel.X)
	v := optimize.Rat(rel.Y)
	obs := m.TargetPoint().Sub(deltaPrime)
	ox := optimize.Constant(optimize.Rat(obs.X))
	oy := optimize.Constant(optimize.Rat(obs.Y))

	px := a.Times(u).Add(b.Times(v))
	py := c.Times(u).Add(d.Times(v))
	return []optimize.Constraint{
		optimize.LE(px.Sub(e.Expr()), ox),
		optimize.GE(px.Add(e.Expr()), ox),
		optimize.LE(py.Sub(e.Expr()), oy),
		optimize.GE(py.Add(e.Expr()), oy),
	}
}

func toFloat64(r *big.Rat) float64 {
	f, _ := r.Float64()
	return f
}

func (s *Combinatorial) String() string {
	return fmt.Sprintf("%s(%s, %d matches)", CombinatorialEngineID, s.templateID, s.kmr.TotalMatchCount())
}
