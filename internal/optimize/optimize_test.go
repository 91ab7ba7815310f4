package optimize

import (
	"context"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ratEq(t *testing.T, want *big.Rat, got *big.Rat) {
	t.Helper()
	assert.Zero(t, want.Cmp(got), "want %s got %s", want.RatString(), got.RatString())
}

func TestCheck_LinearProgram(t *testing.T) {
	c := NewContext()
	x := c.Real("x")
	y := c.Real("y")
	c.Add(
		GE(x.Expr(), Constant(Int(0))),
		GE(y.Expr(), Constant(Int(0))),
		LE(x.Expr(), Constant(Int(2))),
		LE(y.Expr(), Constant(Int(3))),
		LE(Sum(x, y), Constant(Int(4))),
	)
	c.Maximize(Sum(x, y).Add(x.Expr()))

	require.Equal(t, Sat, c.Check(context.Background()))
	m := c.Model()
	require.NotNil(t, m)
	ratEq(t, Int(6), m.Objective())
	ratEq(t, Int(2), m.Value(x))
	ratEq(t, Int(2), m.Value(y))
}

func TestCheck_ExactRational(t *testing.T) {
	c := NewContext()
	x := c.Real("x")
	c.Add(LE(x.Times(Int(3)), Constant(Int(1))))
	c.Maximize(x.Expr())

	require.Equal(t, Sat, c.Check(context.Background()))
	ratEq(t, big.NewRat(1, 3), c.Model().Value(x))
}

func TestCheck_PhaseOne(t *testing.T) {
	c := NewContext()
	x := c.Real("x")
	y := c.Real("y")
	c.Add(
		GE(x.Expr(), Constant(Int(0))),
		GE(y.Expr(), Constant(Int(0))),
		GE(Sum(x, y), Constant(Int(2))),
		LE(x.Expr().Sub(y.Expr()), Constant(Int(1))),
	)
	c.Maximize(Sum(x, y).Scale(Int(-1)))

	require.Equal(t, Sat, c.Check(context.Background()))
	m := c.Model()
	ratEq(t, Int(-2), m.Objective())
	ratEq(t, Int(2), m.Eval(Sum(x, y)))
}

func TestCheck_FreeVariables(t *testing.T) {
	// Chebyshev fit of a single parameter: minimize e with |a - 3| <= e and |a - 5| <= e.
	c := NewContext()
	a := c.Real("a")
	e := c.Real("e")
	for _, p := range []int64{3, 5} {
		c.Add(
			LE(a.Expr().Sub(e.Expr()), Constant(Int(p))),
			GE(a.Expr().Add(e.Expr()), Constant(Int(p))),
		)
	}
	c.Maximize(e.Times(Int(-1)))

	require.Equal(t, Sat, c.Check(context.Background()))
	ratEq(t, Int(4), c.Model().Value(a))
	ratEq(t, Int(1), c.Model().Value(e))
}

func TestCheck_Infeasible(t *testing.T) {
	tests := []struct {
		name string
		cons func(x, y Var) []Constraint
	}{
		{
			name: "contradicting bounds",
			cons: func(x, _ Var) []Constraint {
				return []Constraint{GE(x.Expr(), Constant(Int(2))), LE(x.Expr(), Constant(Int(1)))}
			},
		},
		{
			name: "contradicting rows",
			cons: func(x, y Var) []Constraint {
				return []Constraint{GE(Sum(x, y), Constant(Int(5))), LE(Sum(x, y), Constant(Int(4)))}
			},
		},
		{
			name: "constant contradiction",
			cons: func(_, _ Var) []Constraint {
				return []Constraint{LE(Constant(Int(1)), Constant(Int(0)))}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewContext()
			x := c.Real("x")
			y := c.Real("y")
			c.Add(tc.cons(x, y)...)
			assert.Equal(t, Unsat, c.Check(context.Background()))
			assert.Nil(t, c.Model())
		})
	}
}

func TestCheck_Implications(t *testing.T) {
	c := NewContext()
	x := c.Real("x")
	w1 := c.Real("w1")
	w2 := c.Real("w2")
	w3 := c.Real("w3")
	for _, w := range []Var{w1, w2, w3} {
		c.Add(GE(w.Expr(), Constant(Int(0))), LE(w.Expr(), Constant(Int(1))))
	}
	c.Implies(w1, EQ(x.Expr(), Constant(Int(1))))
	c.Implies(w2, EQ(x.Expr(), Constant(Int(2))))
	c.Implies(w3, EQ(x.Expr(), Constant(Int(2))))
	c.Maximize(Sum(w1, w2, w3))

	require.Equal(t, Sat, c.Check(context.Background()))
	m := c.Model()
	ratEq(t, Int(2), m.Objective())
	ratEq(t, Int(2), m.Value(x))
	ratEq(t, Int(0), m.Value(w1))
	assert.Greater(t, c.Nodes(), 1)
}

func TestCheck_ImplicationsWithMinimumWeight(t *testing.T) {
	c := NewContext()
	x := c.Real("x")
	w1 := c.Real("w1")
	w2 := c.Real("w2")
	for _, w := range []Var{w1, w2} {
		c.Add(GE(w.Expr(), Constant(Int(0))), LE(w.Expr(), Constant(Int(1))))
	}
	c.Implies(w1, EQ(x.Expr(), Constant(Int(1))))
	c.Implies(w2, EQ(x.Expr(), Constant(Int(2))))
	c.Add(GE(Sum(w1, w2), Constant(Int(2))))
	c.Maximize(Sum(w1, w2))

	assert.Equal(t, Unsat, c.Check(context.Background()))
}

// TestCheck_NoisyImplications fits one offset to 24 noisy readings where each
// trusted reading must lie within a shared error bound. Proving optimality is
// slow, so the check may stop at its deadline but must still report an
// assignment.
func TestCheck_NoisyImplications(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	c := NewContext()
	x := c.Real("x")
	e := c.Real("e")
	c.Add(GE(e.Expr(), Constant(Int(0))), LE(e.Expr(), Constant(Int(20))))

	ws := make([]Var, 24)
	for i := range ws {
		ws[i] = c.Real("w")
		c.Add(GE(ws[i].Expr(), Constant(Int(0))), LE(ws[i].Expr(), Constant(Int(1))))
		y := Constant(Rat(50 + rng.Float64()*2 - 1))
		c.Implies(ws[i],
			LE(x.Expr().Sub(y), e.Expr()),
			GE(x.Expr().Sub(y), e.Expr().Scale(Int(-1))))
	}
	c.Add(GE(Sum(ws...), Constant(Rat(2.4))))
	c.Maximize(Sum(ws...).Sub(e.Times(Int(10))))
	c.SetTimeout(2500 * time.Millisecond)

	start := time.Now()
	status := c.Check(context.Background())
	assert.Less(t, time.Since(start), 4*time.Second)
	require.NotEqual(t, Unsat, status)
	if status == Unknown {
		assert.Equal(t, "timeout", c.ReasonUnknown())
	}

	m := c.Model()
	require.NotNil(t, m)
	bound := m.Value(e)
	assert.True(t, bound.Sign() >= 0 && bound.Cmp(Int(20)) <= 0, "bound %s", bound.RatString())
	assert.True(t, m.Objective().Cmp(Rat(2.4-200)) >= 0)
}

func TestPushPop(t *testing.T) {
	c := NewContext()
	x := c.Real("x")
	c.Add(LE(x.Expr(), Constant(Int(10))))
	c.Maximize(x.Expr())

	c.Push()
	c.Add(LE(x.Expr(), Constant(Int(3))))
	require.Equal(t, Sat, c.Check(context.Background()))
	ratEq(t, Int(3), c.Model().Value(x))
	c.Pop()
	assert.Nil(t, c.Model())

	require.Equal(t, Sat, c.Check(context.Background()))
	ratEq(t, Int(10), c.Model().Value(x))

	assert.Panics(t, func() { c.Pop() })
}

func TestCheck_Unknown(t *testing.T) {
	t.Run("canceled", func(t *testing.T) {
		c := NewContext()
		x := c.Real("x")
		c.Add(LE(x.Expr(), Constant(Int(1))))
		c.Maximize(x.Expr())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Equal(t, Unknown, c.Check(ctx))
		assert.Equal(t, "canceled", c.ReasonUnknown())
	})

	t.Run("unbounded", func(t *testing.T) {
		c := NewContext()
		x := c.Real("x")
		c.Maximize(x.Expr())
		assert.Equal(t, Unknown, c.Check(context.Background()))
		assert.Contains(t, c.ReasonUnknown(), "unbounded")
	})
}

func TestExpr(t *testing.T) {
	c := NewContext()
	x := c.Real("x")
	y := c.Real("y")

	e := x.Times(Int(2)).Add(y.Expr()).AddConst(Int(5)).Sub(x.Times(Int(2)))
	assert.Equal(t, []Var{y}, e.Vars())
	ratEq(t, Int(0), e.Coef(x))
	ratEq(t, Int(1), e.Coef(y))
	ratEq(t, Int(5), e.Const())
	assert.Equal(t, "1*y + 5", e.format([]string{"x", "y"}))

	assert.Panics(t, func() { Rat(posInf()) })
	ratEq(t, big.NewRat(1, 4), Rat(0.25))
}

func TestContext_String(t *testing.T) {
	c := NewContext()
	x := c.Real("x")
	w := c.Real("w")
	c.Add(LE(x.Expr(), Constant(Int(1))))
	c.Implies(w, GE(x.Expr(), Constant(Int(0))))
	c.Maximize(w.Expr())

	s := c.String()
	assert.Contains(t, s, "maximize 1*w")
	assert.Contains(t, s, "1*x <= 1")
	assert.Contains(t, s, "w > 0 => (1*x >= 0)")
}

func posInf() float64 {
	zero := 0.0
	return 1 / zero
}
