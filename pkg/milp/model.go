// Package milp abstracts the external mixed-integer programming
// capability behind a small model-builder and solver interface, so any
// conforming backend can be substituted for the bundled GLPK one.
package milp

import (
	"context"
	"math"
	"time"
)

// Sense is the optimization direction of a model.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// VarType is the domain of a decision variable.
type VarType int

const (
	Continuous VarType = iota
	Integer
	Binary
)

// Rel is a linear constraint relation.
type Rel int

const (
	LE Rel = iota
	GE
	EQ
)

// Var is a handle to a model variable.
type Var int

// Term is one coefficient*variable term of a linear expression.
type Term struct {
	Var  Var
	Coef float64
}

type variable struct {
	name   string
	typ    VarType
	lo, hi float64
}

type constraint struct {
	name  string
	terms []Term
	rel   Rel
	rhs   float64
}

// Model is a backend-agnostic MILP under construction. A model is
// local to one optimize call and is not safe for concurrent use.
type Model struct {
	name      string
	sense     Sense
	vars      []variable
	cons      []constraint
	objective []Term
}

// NewModel starts an empty model with the given objective sense.
func NewModel(name string, sense Sense) *Model {
	return &Model{name: name, sense: sense}
}

// AddContinuous adds a bounded continuous variable. Use math.Inf for
// an open bound.
func (m *Model) AddContinuous(name string, lo, hi float64) Var {
	return m.addVar(name, Continuous, lo, hi)
}

// AddInteger adds a bounded integer variable.
func (m *Model) AddInteger(name string, lo, hi float64) Var {
	return m.addVar(name, Integer, lo, hi)
}

// AddBinary adds a 0/1 variable.
func (m *Model) AddBinary(name string) Var {
	return m.addVar(name, Binary, 0, 1)
}

func (m *Model) addVar(name string, typ VarType, lo, hi float64) Var {
	m.vars = append(m.vars, variable{name: name, typ: typ, lo: lo, hi: hi})
	return Var(len(m.vars) - 1)
}

// AddConstraint adds a linear constraint Σ terms rel rhs.
func (m *Model) AddConstraint(name string, rel Rel, rhs float64, terms ...Term) {
	m.cons = append(m.cons, constraint{name: name, terms: terms, rel: rel, rhs: rhs})
}

// SetObjective sets the linear objective Σ terms.
func (m *Model) SetObjective(terms ...Term) {
	m.objective = terms
}

// NumVars reports the number of variables added so far.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints reports the number of constraints added so far.
func (m *Model) NumConstraints() int { return len(m.cons) }

// Sum builds unit-coefficient terms over the given variables.
func Sum(vars ...Var) []Term {
	terms := make([]Term, len(vars))
	for i, v := range vars {
		terms[i] = Term{Var: v, Coef: 1}
	}
	return terms
}

// Status is the outcome of a solve.
type Status int

const (
	// StatusOptimal means the solver proved optimality.
	StatusOptimal Status = iota
	// StatusFeasible means an integer-feasible point was found but
	// optimality was not proven.
	StatusFeasible
	// StatusInfeasible means the constraints admit no solution.
	StatusInfeasible
	// StatusTimeout means the time budget elapsed first.
	StatusTimeout
	// StatusFailed covers every other solver failure.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// Solution carries solver results. Values are defined only when Status
// is StatusOptimal or StatusFeasible.
type Solution struct {
	Status    Status
	Objective float64
	values    []float64
}

// Value returns the solved value of a variable, or NaN when the solve
// produced none.
func (s *Solution) Value(v Var) float64 {
	if int(v) >= len(s.values) {
		return math.NaN()
	}
	return s.values[int(v)]
}

// Optimal reports whether the solve proved optimality.
func (s *Solution) Optimal() bool { return s.Status == StatusOptimal }

// Solver is the external solving capability: given a model, return an
// optimal assignment or a status saying why not, within the budget.
type Solver interface {
	Solve(ctx context.Context, m *Model, budget time.Duration) (*Solution, error)
}
