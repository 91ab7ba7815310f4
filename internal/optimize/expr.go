// Package optimize is a small exact-arithmetic optimizer over linear real arithmetic.
//
// A Context owns real variables, linear constraints, guarded implications
// (guard > 0 implies a conjunction of linear constraints) and one objective to
// maximize. All arithmetic is done with math/big rationals; callers convert to
// floating point only when reading a Model.
package optimize

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
)

// Var is a real variable owned by a Context.
type Var int

// Expr is a linear expression: sum of coef*var plus a constant.
// Expr values are immutable; every operation returns a new Expr.
type Expr struct {
	terms map[Var]*big.Rat
	konst *big.Rat
}

// Rat converts a finite float64 exactly into a rational.
// It panics on NaN or infinities.
func Rat(f float64) *big.Rat {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		panic(fmt.Sprintf("optimize: non-finite value %v", f))
	}
	return new(big.Rat).SetFloat64(f)
}

// Int returns the rational n/1.
func Int(n int64) *big.Rat {
	return new(big.Rat).SetInt64(n)
}

// Constant returns an expression with no variables.
func Constant(r *big.Rat) Expr {
	return Expr{konst: new(big.Rat).Set(r)}
}

// Expr lifts the variable into an expression with coefficient 1.
func (v Var) Expr() Expr {
	return Expr{terms: map[Var]*big.Rat{v: big.NewRat(1, 1)}}
}

// Times returns coef*v.
func (v Var) Times(coef *big.Rat) Expr {
	if coef.Sign() == 0 {
		return Expr{}
	}
	return Expr{terms: map[Var]*big.Rat{v: new(big.Rat).Set(coef)}}
}

// Sum returns the sum of the variables.
func Sum(vars ...Var) Expr {
	e := Expr{terms: make(map[Var]*big.Rat, len(vars))}
	for _, v := range vars {
		e = e.Add(v.Expr())
	}
	return e
}

func (e Expr) clone() Expr {
	out := Expr{terms: make(map[Var]*big.Rat, len(e.terms)), konst: new(big.Rat)}
	for v, c := range e.terms {
		out.terms[v] = new(big.Rat).Set(c)
	}
	if e.konst != nil {
		out.konst.Set(e.konst)
	}
	return out
}

// Add returns e + o.
func (e Expr) Add(o Expr) Expr {
	out := e.clone()
	for v, c := range o.terms {
		if cur, ok := out.terms[v]; ok {
			cur.Add(cur, c)
			if cur.Sign() == 0 {
				delete(out.terms, v)
			}
		} else if c.Sign() != 0 {
			out.terms[v] = new(big.Rat).Set(c)
		}
	}
	if o.konst != nil {
		out.konst.Add(out.konst, o.konst)
	}
	return out
}

// Sub returns e - o.
func (e Expr) Sub(o Expr) Expr {
	return e.Add(o.Scale(big.NewRat(-1, 1)))
}

// Scale returns r*e.
func (e Expr) Scale(r *big.Rat) Expr {
	out := Expr{terms: make(map[Var]*big.Rat, len(e.terms)), konst: new(big.Rat)}
	if r.Sign() == 0 {
		return out
	}
	for v, c := range e.terms {
		out.terms[v] = new(big.Rat).Mul(c, r)
	}
	if e.konst != nil {
		out.konst.Mul(e.konst, r)
	}
	return out
}

// AddConst returns e + r.
func (e Expr) AddConst(r *big.Rat) Expr {
	return e.Add(Constant(r))
}

// Vars returns the variables with a non-zero coefficient, sorted.
func (e Expr) Vars() []Var {
	out := make([]Var, 0, len(e.terms))
	for v := range e.terms {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Coef returns the coefficient of v, zero if absent.
func (e Expr) Coef(v Var) *big.Rat {
	if c, ok := e.terms[v]; ok {
		return new(big.Rat).Set(c)
	}
	return new(big.Rat)
}

// Const returns the constant part.
func (e Expr) Const() *big.Rat {
	if e.konst == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(e.konst)
}

// eval computes the expression for a full assignment.
func (e Expr) eval(values []*big.Rat) *big.Rat {
	out := e.Const()
	tmp := new(big.Rat)
	for v, c := range e.terms {
		out.Add(out, tmp.Mul(c, values[v]))
	}
	return out
}

func (e Expr) format(names []string) string {
	var parts []string
	for _, v := range e.Vars() {
		name := fmt.Sprintf("x%d", v)
		if int(v) < len(names) {
			name = names[v]
		}
		parts = append(parts, fmt.Sprintf("%s*%s", e.terms[v].RatString(), name))
	}
	if k := e.Const(); k.Sign() != 0 || len(parts) == 0 {
		parts = append(parts, k.RatString())
	}
	return strings.Join(parts, " + ")
}

// Sense is the relation of a constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	default:
		return "=="
	}
}

// Constraint is expr (sense) 0, stored with the constant moved to the right-hand side.
type Constraint struct {
	lhs   Expr
	sense Sense
	rhs   *big.Rat
}

func newConstraint(lhs, rhs Expr, sense Sense) Constraint {
	diff := lhs.Sub(rhs)
	k := diff.Const()
	diff.konst = new(big.Rat)
	return Constraint{lhs: diff, sense: sense, rhs: k.Neg(k)}
}

// LE builds lhs <= rhs.
func LE(lhs, rhs Expr) Constraint { return newConstraint(lhs, rhs, LessEq) }

// GE builds lhs >= rhs.
func GE(lhs, rhs Expr) Constraint { return newConstraint(lhs, rhs, GreaterEq) }

// EQ builds lhs == rhs.
func EQ(lhs, rhs Expr) Constraint { return newConstraint(lhs, rhs, Equal) }

// holds reports whether the constraint is satisfied by the assignment.
func (c Constraint) holds(values []*big.Rat) bool {
	cmp := c.lhs.eval(values).Cmp(c.rhs)
	switch c.sense {
	case LessEq:
		return cmp <= 0
	case GreaterEq:
		return cmp >= 0
	default:
		return cmp == 0
	}
}

// violation returns how far the assignment is from satisfying the constraint,
// zero when it holds.
func (c Constraint) violation(values []*big.Rat) *big.Rat {
	d := c.lhs.eval(values)
	d.Sub(d, c.rhs)
	switch c.sense {
	case LessEq:
		if d.Sign() < 0 {
			return d.SetInt64(0)
		}
	case GreaterEq:
		if d.Sign() > 0 {
			return d.SetInt64(0)
		}
		d.Neg(d)
	default:
		d.Abs(d)
	}
	return d
}
