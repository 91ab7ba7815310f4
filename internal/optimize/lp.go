package optimize

import (
	"context"
	"math/big"
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
)

type lpResult struct {
	status    lpStatus
	values    []*big.Rat
	objective *big.Rat
}

// column is one non-negative tableau column contributing sign*y to a variable.
type column struct {
	index int
	sign  int
}

// varMap expresses a variable as offset + sum(sign*y) over its columns.
type varMap struct {
	offset *big.Rat
	cols   []column
}

// solveLP maximizes obj over n real variables subject to cons.
// Single-variable constraints become bounds so that bounded variables do not
// need to be split into positive and negative parts.
func solveLP(ctx context.Context, n int, cons []Constraint, obj Expr) (lpResult, error) {
	lower := make([]*big.Rat, n)
	upper := make([]*big.Rat, n)
	var general []Constraint

	for _, c := range cons {
		switch len(c.lhs.terms) {
		case 0:
			if !c.holds(nil) {
				return lpResult{status: lpInfeasible}, nil
			}
			continue
		case 1:
		default:
			general = append(general, c)
			continue
		}
		v := c.lhs.Vars()[0]
		coef := c.lhs.terms[v]
		bound := new(big.Rat).Quo(c.rhs, coef)
		sense := c.sense
		if coef.Sign() < 0 && sense != Equal {
			if sense == LessEq {
				sense = GreaterEq
			} else {
				sense = LessEq
			}
		}
		if sense == LessEq || sense == Equal {
			if upper[v] == nil || bound.Cmp(upper[v]) < 0 {
				upper[v] = bound
			}
		}
		if sense == GreaterEq || sense == Equal {
			if lower[v] == nil || bound.Cmp(lower[v]) > 0 {
				lower[v] = new(big.Rat).Set(bound)
			}
		}
	}

	maps := make([]varMap, n)
	ncols := 0
	type boundRow struct {
		col   int
		limit *big.Rat
	}
	var boundRows []boundRow

	for j := 0; j < n; j++ {
		switch {
		case lower[j] != nil && upper[j] != nil:
			if lower[j].Cmp(upper[j]) > 0 {
				return lpResult{status: lpInfeasible}, nil
			}
			maps[j] = varMap{offset: lower[j], cols: []column{{ncols, 1}}}
			boundRows = append(boundRows, boundRow{ncols, new(big.Rat).Sub(upper[j], lower[j])})
			ncols++
		case lower[j] != nil:
			maps[j] = varMap{offset: lower[j], cols: []column{{ncols, 1}}}
			ncols++
		case upper[j] != nil:
			maps[j] = varMap{offset: upper[j], cols: []column{{ncols, -1}}}
			ncols++
		default:
			maps[j] = varMap{offset: new(big.Rat), cols: []column{{ncols, 1}, {ncols + 1, -1}}}
			ncols += 2
		}
	}

	// Every row is sum(a*y) <= b.
	var A [][]*big.Rat
	var b []*big.Rat
	addRow := func(coefs []*big.Rat, rhs *big.Rat) {
		A = append(A, coefs)
		b = append(b, rhs)
	}

	for _, br := range boundRows {
		coefs := zeros(ncols)
		coefs[br.col].SetInt64(1)
		addRow(coefs, br.limit)
	}

	tmp := new(big.Rat)
	for _, c := range general {
		coefs := zeros(ncols)
		rhs := new(big.Rat).Set(c.rhs)
		for v, a := range c.lhs.terms {
			m := maps[v]
			rhs.Sub(rhs, tmp.Mul(a, m.offset))
			for _, col := range m.cols {
				if col.sign > 0 {
					coefs[col.index].Add(coefs[col.index], a)
				} else {
					coefs[col.index].Sub(coefs[col.index], a)
				}
			}
		}
		switch c.sense {
		case LessEq:
			addRow(coefs, rhs)
		case GreaterEq:
			addRow(negate(coefs), new(big.Rat).Neg(rhs))
		case Equal:
			addRow(coefs, rhs)
			addRow(negate(coefs), new(big.Rat).Neg(rhs))
		}
	}

	cost := zeros(ncols)
	for v, a := range obj.terms {
		for _, col := range maps[v].cols {
			if col.sign > 0 {
				cost[col.index].Add(cost[col.index], a)
			} else {
				cost[col.index].Sub(cost[col.index], a)
			}
		}
	}

	y, status, err := simplex(ctx, A, b, cost)
	if err != nil || status != lpOptimal {
		return lpResult{status: status}, err
	}

	values := make([]*big.Rat, n)
	for j := 0; j < n; j++ {
		x := new(big.Rat).Set(maps[j].offset)
		for _, col := range maps[j].cols {
			if col.sign > 0 {
				x.Add(x, y[col.index])
			} else {
				x.Sub(x, y[col.index])
			}
		}
		values[j] = x
	}

	return lpResult{status: lpOptimal, values: values, objective: obj.eval(values)}, nil
}

// simplex maximizes cost*y subject to A*y <= b, y >= 0 using a dense rational
// tableau, a single artificial column for phase one and Bland's rule throughout.
func simplex(ctx context.Context, A [][]*big.Rat, b []*big.Rat, cost []*big.Rat) ([]*big.Rat, lpStatus, error) {
	m := len(A)
	n := len(cost)
	art := n + m
	rhs := n + m + 1

	t := &tableau{basis: make([]int, m), rhs: rhs}
	t.rows = make([][]*big.Rat, m)
	for i := 0; i < m; i++ {
		row := zeros(rhs + 1)
		for j := 0; j < n; j++ {
			row[j].Set(A[i][j])
		}
		row[n+i].SetInt64(1)
		row[art].SetInt64(-1)
		row[rhs].Set(b[i])
		t.rows[i] = row
		t.basis[i] = n + i
	}

	worst := -1
	for i := 0; i < m; i++ {
		if t.rows[i][rhs].Sign() < 0 && (worst < 0 || t.rows[i][rhs].Cmp(t.rows[worst][rhs]) < 0) {
			worst = i
		}
	}

	if worst >= 0 {
		phaseOne := zeros(rhs)
		phaseOne[art].SetInt64(-1)
		t.pivot(worst, art)
		status, err := t.optimize(ctx, phaseOne, func(int) bool { return true })
		if err != nil {
			return nil, status, err
		}
		for i, bv := range t.basis {
			if bv != art {
				continue
			}
			if t.rows[i][rhs].Sign() != 0 {
				return nil, lpInfeasible, nil
			}
			for j := 0; j < art; j++ {
				if t.rows[i][j].Sign() != 0 {
					t.pivot(i, j)
					break
				}
			}
		}
	}

	phaseTwo := zeros(rhs)
	for j := 0; j < n; j++ {
		phaseTwo[j].Set(cost[j])
	}
	status, err := t.optimize(ctx, phaseTwo, func(j int) bool { return j != art })
	if err != nil || status != lpOptimal {
		return nil, status, err
	}

	y := zeros(n)
	for i, bv := range t.basis {
		if bv < n {
			y[bv].Set(t.rows[i][rhs])
		}
	}
	return y, lpOptimal, nil
}

type tableau struct {
	rows  [][]*big.Rat
	basis []int
	rhs   int
}

// optimize runs primal simplex iterations for the given cost vector.
func (t *tableau) optimize(ctx context.Context, cost []*big.Rat, allowed func(int) bool) (lpStatus, error) {
	d := new(big.Rat)
	tmp := new(big.Rat)
	ratio := new(big.Rat)
	best := new(big.Rat)

	for {
		if err := ctx.Err(); err != nil {
			return lpOptimal, err
		}

		entering := -1
		for j := 0; j < t.rhs; j++ {
			if !allowed(j) {
				continue
			}
			d.Set(cost[j])
			for i, bv := range t.basis {
				if cost[bv].Sign() == 0 || t.rows[i][j].Sign() == 0 {
					continue
				}
				d.Sub(d, tmp.Mul(cost[bv], t.rows[i][j]))
			}
			if d.Sign() > 0 {
				entering = j
				break
			}
		}
		if entering < 0 {
			return lpOptimal, nil
		}

		leaving := -1
		for i := range t.rows {
			a := t.rows[i][entering]
			if a.Sign() <= 0 {
				continue
			}
			ratio.Quo(t.rows[i][t.rhs], a)
			if leaving < 0 {
				leaving = i
				best.Set(ratio)
				continue
			}
			if c := ratio.Cmp(best); c < 0 || c == 0 && t.basis[i] < t.basis[leaving] {
				leaving = i
				best.Set(ratio)
			}
		}
		if leaving < 0 {
			return lpUnbounded, nil
		}

		t.pivot(leaving, entering)
	}
}

func (t *tableau) pivot(p, q int) {
	row := t.rows[p]
	inv := new(big.Rat).Inv(row[q])
	for k := range row {
		if row[k].Sign() != 0 {
			row[k].Mul(row[k], inv)
		}
	}

	tmp := new(big.Rat)
	for i, other := range t.rows {
		if i == p || other[q].Sign() == 0 {
			continue
		}
		f := new(big.Rat).Set(other[q])
		for k := range other {
			if row[k].Sign() == 0 {
				continue
			}
			other[k].Sub(other[k], tmp.Mul(f, row[k]))
		}
	}
	t.basis[p] = q
}

func zeros(n int) []*big.Rat {
	out := make([]*big.Rat, n)
	for i := range out {
		out[i] = new(big.Rat)
	}
	return out
}

func negate(v []*big.Rat) []*big.Rat {
	out := make([]*big.Rat, len(v))
	for i, x := range v {
		out[i] = new(big.Rat).Neg(x)
	}
	return out
}
