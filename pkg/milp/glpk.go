package milp

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lukpank/go-glpk/glpk"
)

// GLPK solves models with the GNU Linear Programming Kit. The Go
// wrapper exposes no interruptible time limit, so Solve runs the solve
// on its own goroutine: when the budget (or ctx) elapses first the
// call returns StatusTimeout and the worker frees the problem once
// GLPK finishes. A timed-out solve therefore never hangs the caller.
type GLPK struct{}

// NewGLPK returns the GLPK-backed solver.
func NewGLPK() *GLPK { return &GLPK{} }

type solveOutcome struct {
	sol *Solution
	err error
}

// Solve implements Solver.
func (g *GLPK) Solve(ctx context.Context, m *Model, budget time.Duration) (*Solution, error) {
	done := make(chan solveOutcome, 1)
	go func() {
		sol, err := solve(m)
		done <- solveOutcome{sol: sol, err: err}
	}()

	var timeout <-chan time.Time
	if budget > 0 {
		timer := time.NewTimer(budget)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-done:
		return out.sol, out.err
	case <-timeout:
		return &Solution{Status: StatusTimeout}, nil
	case <-ctx.Done():
		return &Solution{Status: StatusTimeout}, ctx.Err()
	}
}

func solve(m *Model) (*Solution, error) {
	lp := glpk.New()
	defer lp.Delete()

	lp.SetProbName(m.name)
	if m.sense == Maximize {
		lp.SetObjDir(glpk.ObjDir(glpk.MAX))
	} else {
		lp.SetObjDir(glpk.ObjDir(glpk.MIN))
	}

	lp.AddCols(len(m.vars))
	for i, v := range m.vars {
		col := i + 1
		lp.SetColName(col, v.name)
		switch v.typ {
		case Binary:
			lp.SetColKind(col, glpk.VarType(glpk.BV))
		case Integer:
			lp.SetColKind(col, glpk.VarType(glpk.IV))
			setColBounds(lp, col, v.lo, v.hi)
		default:
			lp.SetColKind(col, glpk.VarType(glpk.CV))
			setColBounds(lp, col, v.lo, v.hi)
		}
	}

	lp.AddRows(len(m.cons))
	for i, c := range m.cons {
		row := i + 1
		lp.SetRowName(row, c.name)
		switch c.rel {
		case LE:
			lp.SetRowBnds(row, glpk.BndsType(glpk.UP), 0, c.rhs)
		case GE:
			lp.SetRowBnds(row, glpk.BndsType(glpk.LO), c.rhs, 0)
		case EQ:
			lp.SetRowBnds(row, glpk.BndsType(glpk.FX), c.rhs, c.rhs)
		}
		inds := make([]int32, len(c.terms))
		vals := make([]float64, len(c.terms))
		for j, t := range c.terms {
			inds[j] = int32(t.Var) + 1
			vals[j] = t.Coef
		}
		lp.SetMatRow(row, inds, vals)
	}

	for _, t := range m.objective {
		lp.SetObjCoef(int(t.Var)+1, t.Coef)
	}

	smcp := glpk.NewSmcp()
	smcp.SetMsgLev(glpk.MsgLev(glpk.MSG_ERR))
	if err := lp.Simplex(smcp); err != nil {
		return nil, fmt.Errorf("simplex: %w", err)
	}

	iocp := glpk.NewIocp()
	iocp.SetPresolve(true)
	iocp.SetMsgLev(glpk.MsgLev(glpk.MSG_ERR))
	if err := lp.Intopt(iocp); err != nil {
		// Intopt reports an unsolvable relaxation as an error.
		return &Solution{Status: StatusInfeasible}, nil
	}

	sol := &Solution{values: make([]float64, len(m.vars))}
	switch lp.MipStatus() {
	case glpk.OPT:
		sol.Status = StatusOptimal
	case glpk.FEAS:
		sol.Status = StatusFeasible
	case glpk.NOFEAS:
		sol.Status = StatusInfeasible
		return sol, nil
	default:
		sol.Status = StatusFailed
		return sol, nil
	}

	for i := range m.vars {
		sol.values[i] = lp.MipColVal(i + 1)
	}
	for _, t := range m.objective {
		sol.Objective += t.Coef * sol.values[int(t.Var)]
	}
	return sol, nil
}

func setColBounds(lp *glpk.Prob, col int, lo, hi float64) {
	loOpen := math.IsInf(lo, -1)
	hiOpen := math.IsInf(hi, 1)
	switch {
	case loOpen && hiOpen:
		lp.SetColBnds(col, glpk.BndsType(glpk.FR), 0, 0)
	case loOpen:
		lp.SetColBnds(col, glpk.BndsType(glpk.UP), 0, hi)
	case hiOpen:
		lp.SetColBnds(col, glpk.BndsType(glpk.LO), lo, 0)
	case lo == hi:
		lp.SetColBnds(col, glpk.BndsType(glpk.FX), lo, hi)
	default:
		lp.SetColBnds(col, glpk.BndsType(glpk.DB), lo, hi)
	}
}
