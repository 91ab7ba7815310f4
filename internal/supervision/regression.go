package supervision

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"docalign/internal/match"
	"docalign/pkg/geometry"
)

// RegressionEngineID selects the least-squares engine.
const RegressionEngineID = "least_squares_regression"

var regressionOptions = []OptionSpec{}

// Regression fits the matrix by ordinary least squares once per anchor match and
// keeps the fit with the lowest mean squared error. Every match counts fully.
type Regression struct {
	*base
}

func newRegression(b *base) Supervisor {
	return &Regression{base: b}
}

// EngineID returns RegressionEngineID.
func (s *Regression) EngineID() string { return RegressionEngineID }

// Run returns the lowest-error fit over all anchors. Ties keep the earliest anchor.
func (s *Regression) Run(ctx context.Context) (*Result, error) {
	if s.underdetermined() {
		return nil, nil
	}

	all := s.kmr.Matches()
	candidates := make([]*Result, len(all))
	mses := make([]float64, len(all))

	start := time.Now()
	errs := s.parallel(ctx, len(all), func(i int) error {
		res, err := s.fit(all, i)
		if err != nil {
			return err
		}
		mse, err := res.MSE()
		if err != nil {
			return err
		}
		candidates[i], mses[i] = res, mse
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "regression supervision")
	}
	for i, err := range errs {
		if err != nil {
			s.log.Debug("skipping regression anchor", zap.String("anchor", all[i].DebugID()), zap.Error(err))
		}
	}

	best := -1
	for i, c := range candidates {
		if c != nil && (best < 0 || mses[i] < mses[best]) {
			best = i
		}
	}
	if best < 0 {
		s.log.Debug("no regression anchor produced a fit")
		return nil, nil
	}
	s.log.Debug("regression supervision finished",
		zap.String("anchor", all[best].DebugID()),
		zap.Float64("mse", mses[best]),
		zap.Duration("elapsed", time.Since(start)))
	return candidates[best], nil
}

// fit solves the normal equations with all[anchor] as the anchor. Each other match
// gives the rows [u v 0 0] = tx - dx' and [0 0 u v] = ty - dy'.
func (s *Regression) fit(all []*match.Match, anchor int) (*Result, error) {
	delta := all[anchor].TemplatePoint()
	deltaPrime := all[anchor].TargetPoint()

	n := len(all) - 1
	A := mat.NewDense(2*n, 4, nil)
	b := mat.NewVecDense(2*n, nil)
	r := 0
	for j, m := range all {
		if j == anchor {
			continue
		}
		rel := m.TemplatePoint().Sub(delta)
		obs := m.TargetPoint().Sub(deltaPrime)
		A.Set(r, 0, rel.X)
		A.Set(r, 1, rel.Y)
		b.SetVec(r, obs.X)
		A.Set(r+1, 2, rel.X)
		A.Set(r+1, 3, rel.Y)
		b.SetVec(r+1, obs.Y)
		r += 2
	}

	var ata mat.Dense
	ata.Mul(A.T(), A)
	var inv mat.Dense
	if err := inv.Inverse(&ata); err != nil {
		return nil, errors.Wrap(err, "normal equations")
	}
	var atb mat.VecDense
	atb.MulVec(A.T(), b)
	var params mat.VecDense
	params.MulVec(&inv, &atb)

	res := NewResult(s.kmr)
	if err := res.SetAnchors(delta, deltaPrime); err != nil {
		return nil, err
	}
	if err := res.SetMatrix(geometry.Matrix2{
		A: params.AtVec(0), B: params.AtVec(1),
		C: params.AtVec(2), D: params.AtVec(3),
	}); err != nil {
		return nil, err
	}
	return res, nil
}
