package optimize

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Status is the outcome of Check.
type Status int

const (
	Unknown Status = iota
	Sat
	Unsat
)

func (s Status) String() string {
	switch s {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

type implication struct {
	guard Var
	cons  []Constraint
}

type frame struct {
	cons int
	imps int
}

// Context is a scoped optimization problem. It is not safe for concurrent use;
// independent problems should use independent contexts.
type Context struct {
	names        []string
	cons         []Constraint
	imps         []implication
	frames       []frame
	objective    Expr
	hasObjective bool
	timeout      time.Duration

	model         *Model
	reasonUnknown string
	nodes         int
}

// NewContext creates an empty problem.
func NewContext() *Context {
	return &Context{}
}

// Real declares an unbounded real variable.
func (c *Context) Real(name string) Var {
	c.names = append(c.names, name)
	return Var(len(c.names) - 1)
}

// Name returns the declared name of a variable.
func (c *Context) Name(v Var) string {
	return c.names[v]
}

// NumVars returns the number of declared variables.
func (c *Context) NumVars() int {
	return len(c.names)
}

// Add asserts constraints in the current scope.
func (c *Context) Add(cons ...Constraint) {
	c.cons = append(c.cons, cons...)
}

// Implies asserts guard > 0 => all of cons, in the current scope.
func (c *Context) Implies(guard Var, cons ...Constraint) {
	c.imps = append(c.imps, implication{guard: guard, cons: cons})
}

// Maximize sets the objective.
func (c *Context) Maximize(e Expr) {
	c.objective = e
	c.hasObjective = true
}

// SetTimeout bounds the wall-clock time of each Check. Zero means no bound.
func (c *Context) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Push opens a scope; Pop discards everything asserted since the matching Push.
func (c *Context) Push() {
	c.frames = append(c.frames, frame{cons: len(c.cons), imps: len(c.imps)})
}

// Pop closes the innermost scope. It panics without a matching Push.
func (c *Context) Pop() {
	if len(c.frames) == 0 {
		panic("optimize: Pop without Push")
	}
	f := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	c.cons = c.cons[:f.cons]
	c.imps = c.imps[:f.imps]
	c.model = nil
}

// ReasonUnknown explains the last Unknown result.
func (c *Context) ReasonUnknown() string {
	return c.reasonUnknown
}

// Nodes returns the number of search nodes explored by the last Check.
func (c *Context) Nodes() int {
	return c.nodes
}

// Model returns the optimal assignment found by the last Sat check, or nil.
// After a check that ran out of time it returns the best feasible assignment
// found before the deadline, which need not be optimal, or nil if none was found.
func (c *Context) Model() *Model {
	return c.model
}

// Check decides the problem and, if satisfiable, finds an assignment that
// maximizes the objective.
func (c *Context) Check(ctx context.Context) Status {
	c.model = nil
	c.reasonUnknown = ""
	c.nodes = 0

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	s := &search{ctx: ctx, c: c, states: make([]guardState, len(c.imps))}
	obj := c.objective
	if !c.hasObjective {
		obj = Expr{}
	}
	s.objective = obj

	err := s.explore()
	c.nodes = s.nodes
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			c.reasonUnknown = "timeout"
			if s.best != nil {
				c.model = &Model{values: s.best.values, objective: s.best.objective, names: c.names}
			}
		case errors.Is(err, context.Canceled):
			c.reasonUnknown = "canceled"
		default:
			c.reasonUnknown = err.Error()
		}
		return Unknown
	}
	if s.best == nil {
		return Unsat
	}
	c.model = &Model{values: s.best.values, objective: s.best.objective, names: c.names}
	return Sat
}

// String renders the asserted problem, one constraint per line.
func (c *Context) String() string {
	var sb strings.Builder
	if c.hasObjective {
		fmt.Fprintf(&sb, "maximize %s\n", c.objective.format(c.names))
	}
	for _, con := range c.cons {
		fmt.Fprintf(&sb, "%s %s %s\n", con.lhs.format(c.names), con.sense, con.rhs.RatString())
	}
	for _, imp := range c.imps {
		parts := make([]string, len(imp.cons))
		for i, con := range imp.cons {
			parts[i] = fmt.Sprintf("%s %s %s", con.lhs.format(c.names), con.sense, con.rhs.RatString())
		}
		fmt.Fprintf(&sb, "%s > 0 => (%s)\n", c.names[imp.guard], strings.Join(parts, " and "))
	}
	return sb.String()
}

// Model is a satisfying assignment with exact values.
type Model struct {
	values    []*big.Rat
	objective *big.Rat
	names     []string
}

// Value returns a copy of the value of v.
func (m *Model) Value(v Var) *big.Rat {
	return new(big.Rat).Set(m.values[v])
}

// Eval evaluates an expression under the model.
func (m *Model) Eval(e Expr) *big.Rat {
	return e.eval(m.values)
}

// Objective returns the optimal objective value.
func (m *Model) Objective() *big.Rat {
	return new(big.Rat).Set(m.objective)
}

type guardState int8

const (
	guardFree guardState = iota
	guardActive
	guardInactive
)

var errUnbounded = errors.New("objective is unbounded")

// search is a depth-first branch and bound over the guards of the implications.
// A free guard has its implication dropped, which relaxes the problem; an
// active guard enforces it; an inactive guard is fixed to a non-positive value.
type search struct {
	ctx       context.Context
	c         *Context
	objective Expr
	states    []guardState
	best      *lpResult
	nodes     int
}

func (s *search) constraints() []Constraint {
	out := make([]Constraint, 0, len(s.c.cons)+4*len(s.c.imps))
	out = append(out, s.c.cons...)
	for i, imp := range s.c.imps {
		switch s.states[i] {
		case guardActive:
			out = append(out, imp.cons...)
		case guardInactive:
			out = append(out, LE(imp.guard.Expr(), Expr{}))
		}
	}
	return out
}

func (s *search) explore() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.nodes++

	res, err := solveLP(s.ctx, len(s.c.names), s.constraints(), s.objective)
	if err != nil {
		return err
	}
	switch res.status {
	case lpInfeasible:
		return nil
	case lpUnbounded:
		return errUnbounded
	}

	if s.best != nil && res.objective.Cmp(s.best.objective) <= 0 {
		return nil
	}

	// Branch on the most violated implication: enforcing it moves the
	// relaxation furthest, so bounds tighten and the first leaf comes early.
	branch := -1
	var worst *big.Rat
	for i, imp := range s.c.imps {
		if s.states[i] != guardFree {
			continue
		}
		v := s.violation(imp, res.values)
		if v.Sign() > 0 && (worst == nil || v.Cmp(worst) > 0) {
			branch, worst = i, v
		}
	}
	if branch < 0 {
		s.best = &res
		return nil
	}

	s.states[branch] = guardActive
	if err := s.explore(); err != nil {
		return err
	}
	s.states[branch] = guardInactive
	if err := s.explore(); err != nil {
		return err
	}
	s.states[branch] = guardFree
	return nil
}

// violation is the largest amount by which an implication with a positive
// guard misses one of its constraints, zero when it holds.
func (s *search) violation(imp implication, values []*big.Rat) *big.Rat {
	worst := new(big.Rat)
	if values[imp.guard].Sign() <= 0 {
		return worst
	}
	for _, con := range imp.cons {
		if v := con.violation(values); v.Cmp(worst) > 0 {
			worst = v
		}
	}
	return worst
}
