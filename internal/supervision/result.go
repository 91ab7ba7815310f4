package supervision

import (
	"math"

	"github.com/pkg/errors"

	"docalign/internal/match"
	"docalign/pkg/geometry"
)

// significantWeight is float64 machine epsilon. Matches weighted below it do not
// take part in WeightedMSE at all.
const significantWeight = 2.220446049250313e-16

// Result is one fitted candidate: target ≈ M·(template − delta) + deltaPrime.
// The matrix and both anchors are write-once.
type Result struct {
	kmr *match.Result

	delta      *geometry.Point2D
	deltaPrime *geometry.Point2D
	matrix     *geometry.Matrix2

	weights map[*match.Match]float64
	score   float64
}

// NewResult creates an empty candidate over the matches of kmr.
func NewResult(kmr *match.Result) *Result {
	return &Result{kmr: kmr, weights: make(map[*match.Match]float64)}
}

// Matches returns the matching result the candidate was fitted on.
func (r *Result) Matches() *match.Result { return r.kmr }

// SetAnchors sets delta and delta prime. They can be set once.
func (r *Result) SetAnchors(delta, deltaPrime geometry.Point2D) error {
	if r.delta != nil {
		return errors.New("anchors already set")
	}
	r.delta = &delta
	r.deltaPrime = &deltaPrime
	return nil
}

// SetMatrix sets the transformation matrix. It can be set once.
func (r *Result) SetMatrix(m geometry.Matrix2) error {
	if r.matrix != nil {
		return errors.New("transformation matrix already set")
	}
	r.matrix = &m
	return nil
}

// Delta returns the template-space anchor.
func (r *Result) Delta() (geometry.Point2D, error) {
	if r.delta == nil {
		return geometry.Point2D{}, errors.Wrap(ErrUninitialized, "delta")
	}
	return *r.delta, nil
}

// DeltaPrime returns the target-space anchor.
func (r *Result) DeltaPrime() (geometry.Point2D, error) {
	if r.deltaPrime == nil {
		return geometry.Point2D{}, errors.Wrap(ErrUninitialized, "delta prime")
	}
	return *r.deltaPrime, nil
}

// Matrix returns the transformation matrix.
func (r *Result) Matrix() (geometry.Matrix2, error) {
	if r.matrix == nil {
		return geometry.Matrix2{}, errors.Wrap(ErrUninitialized, "transformation matrix")
	}
	return *r.matrix, nil
}

// Translate maps a template point into the target image.
func (r *Result) Translate(p geometry.Point2D) (geometry.Point2D, error) {
	if r.matrix == nil || r.delta == nil {
		return geometry.Point2D{}, errors.Wrap(ErrUninitialized, "translate")
	}
	return r.matrix.Apply(p.Sub(*r.delta)).Add(*r.deltaPrime), nil
}

// SetMatchWeight overwrites the weight of m. Negative weights are rejected.
func (r *Result) SetMatchWeight(m *match.Match, w float64) error {
	if w < 0 || math.IsNaN(w) {
		return errors.Errorf("invalid weight %v for match %s", w, m.DebugID())
	}
	r.weights[m] = w
	return nil
}

// MatchWeight returns the weight of m, 1 if it was never set.
func (r *Result) MatchWeight(m *match.Match) float64 {
	if w, ok := r.weights[m]; ok {
		return w
	}
	return 1
}

// SetScore records the candidate score.
func (r *Result) SetScore(s float64) { r.score = s }

// Score returns the candidate score. Higher is better.
func (r *Result) Score() float64 { return r.score }

// WeightedMSE is the weighted mean squared prediction error over the matches
// whose weight is significant.
func (r *Result) WeightedMSE() (float64, error) {
	var sum, count float64
	for _, m := range r.kmr.Matches() {
		w := r.MatchWeight(m)
		if w < significantWeight {
			continue
		}
		p, err := r.Translate(m.TemplatePoint())
		if err != nil {
			return 0, err
		}
		sum += w * p.DistanceSq(m.TargetPoint())
		count++
	}
	if count == 0 {
		return 0, ErrDegenerateWeights
	}
	return sum / count, nil
}

// MSE is the unweighted mean squared prediction error over all matches.
func (r *Result) MSE() (float64, error) {
	all := r.kmr.Matches()
	if len(all) == 0 {
		return 0, errors.New("mse of an empty match set")
	}
	var sum float64
	for _, m := range all {
		p, err := r.Translate(m.TemplatePoint())
		if err != nil {
			return 0, err
		}
		sum += p.DistanceSq(m.TargetPoint())
	}
	return sum / float64(len(all)), nil
}

// Summary is a plain view of a candidate for logging and storage.
type Summary struct {
	TemplateID string             `json:"template_id"`
	Matrix     [2][2]float64      `json:"matrix"`
	Delta      geometry.Point2D   `json:"delta"`
	DeltaPrime geometry.Point2D   `json:"delta_prime"`
	Score      float64            `json:"score"`
	Weights    map[string]float64 `json:"weights"`
}

// Summary returns the candidate as a Summary. The result must be initialized.
func (r *Result) Summary() (Summary, error) {
	m, err := r.Matrix()
	if err != nil {
		return Summary{}, err
	}
	d, err := r.Delta()
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		TemplateID: r.kmr.TemplateID(),
		Matrix:     m.ToArray(),
		Delta:      d,
		DeltaPrime: *r.deltaPrime,
		Score:      r.score,
		Weights:    make(map[string]float64, r.kmr.TotalMatchCount()),
	}
	for _, mt := range r.kmr.Matches() {
		s.Weights[mt.DebugID()] = r.MatchWeight(mt)
	}
	return s, nil
}
