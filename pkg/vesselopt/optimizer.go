// Package vesselopt assigns cargo parcels to vessels. It enumerates
// the feasible cargo combinations (at most three parcels per vessel)
// and solves a set-partitioning MILP that minimizes vessel count and,
// optionally, tardiness against per-grade target delivery days.
package vesselopt

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"crudeplan/pkg/events"
	"crudeplan/pkg/milp"
	"crudeplan/pkg/refinery"
)

// ParcelSpec is one loading-date-range record of the delivery program.
type ParcelSpec struct {
	Grade    refinery.Grade
	Origin   string
	VolumeKB float64
	LDR      string
}

// Constraints is the vessel constraints table.
type Constraints struct {
	MaxVolumeTwoGradesKB   float64
	MaxVolumeThreeGradesKB float64
	MaxDeliveriesPerMonth  int
	FreightCostUSD         decimal.Decimal
}

// Program is the full optimizer input: parcels, constraints, the
// origin→destination travel-time table keyed "<origin> to <dest>",
// and optional per-grade target arrival days.
type Program struct {
	Parcels     []ParcelSpec
	Constraints Constraints
	TravelTimes map[string]float64
	Destination string
	Targets     map[refinery.Grade]int
}

// Options tunes one optimize call.
type Options struct {
	// PrioritizeDates makes tardiness the dominant objective term.
	PrioritizeDates bool
	// TardinessPenalty is the per-day tardiness weight when
	// PrioritizeDates is set. Zero means DefaultTardinessPenalty.
	TardinessPenalty float64
	// Budget bounds the solve. Zero means DefaultSolveBudget.
	Budget time.Duration
}

// TargetDateResult details one grade's delivery against its target.
type TargetDateResult struct {
	TargetDay     int
	ActualArrival int
	Tardiness     int
	Status        string
}

// Result is the optimizer output. Status is "optimal" on success and
// "failed" when the solver cannot prove optimality within its budget
// or the constraints are infeasible.
type Result struct {
	Status            string
	Message           string
	Vessels           []*refinery.Vessel
	VesselCount       int
	TotalParcels      int
	FreightCostUSD    decimal.Decimal
	TargetDateResults map[refinery.Grade]TargetDateResult
}

// SchedulerVessels deep-copies the result vessels for handing to the
// scheduler, which mutates them during simulation.
func (r *Result) SchedulerVessels() []*refinery.Vessel {
	out := make([]*refinery.Vessel, len(r.Vessels))
	for i, v := range r.Vessels {
		vc := *v
		vc.Cargo = make([]refinery.Cargo, len(v.Cargo))
		copy(vc.Cargo, v.Cargo)
		out[i] = &vc
	}
	return out
}

const (
	// DefaultSolveBudget bounds one MILP solve.
	DefaultSolveBudget = 120 * time.Second
	// DefaultTardinessPenalty is the per-day weight applied to
	// tardiness when target dates are prioritized.
	DefaultTardinessPenalty = 1_000_000
	// freeVesselCount is the number of deliveries included in the
	// base freight cost.
	freeVesselCount = 5
	// overLimitSurchargeUSD is charged per vessel beyond the free
	// count.
	overLimitSurchargeUSD = 600_000
	// defaultTravelDays is assumed for routes missing from the
	// travel-time table.
	defaultTravelDays = 2
)

// Optimizer holds preprocessed parcels and the solving capability.
// It is stateless across Optimize calls.
type Optimizer struct {
	parcels     []refinery.Parcel
	constraints Constraints
	targets     map[refinery.Grade]int
	monthLabel  string
	solver      milp.Solver
	recorder    events.Recorder
}

// New validates and preprocesses the program: laydays are parsed,
// travel times resolved (missing routes default to 2 days), arrival
// windows derived, and parcels sorted by earliest arrival.
func New(program Program, solver milp.Solver, recorder events.Recorder) (*Optimizer, error) {
	if len(program.Parcels) == 0 {
		return nil, fmt.Errorf("vesselopt: delivery program has no parcels")
	}
	if solver == nil {
		return nil, fmt.Errorf("vesselopt: nil solver")
	}

	parcels := make([]refinery.Parcel, 0, len(program.Parcels))
	month := ""
	for i, spec := range program.Parcels {
		ld, err := refinery.ParseLayDays(spec.LDR)
		if err != nil {
			return nil, fmt.Errorf("vesselopt: parcel %d: %w", i+1, err)
		}
		if month == "" {
			month = refinery.MonthLabel(spec.LDR)
		}
		route := spec.Origin + " to " + program.Destination
		travel, ok := program.TravelTimes[route]
		if !ok {
			travel = defaultTravelDays
		}
		parcels = append(parcels, refinery.Parcel{
			ID:              fmt.Sprintf("parcel_%d", i+1),
			Grade:           spec.Grade,
			Origin:          spec.Origin,
			VolumeKB:        spec.VolumeKB,
			LayDays:         ld,
			TravelDays:      travel,
			EarliestArrival: ld.StartDay + int(math.Ceil(travel)),
			LatestArrival:   ld.EndDay + int(math.Ceil(travel)),
		})
	}
	sort.SliceStable(parcels, func(i, j int) bool {
		return parcels[i].EarliestArrival < parcels[j].EarliestArrival
	})

	return &Optimizer{
		parcels:     parcels,
		constraints: program.Constraints,
		targets:     program.Targets,
		monthLabel:  month,
		solver:      solver,
		recorder:    recorder,
	}, nil
}

// Parcels exposes the preprocessed parcels, mainly for inspection.
func (o *Optimizer) Parcels() []refinery.Parcel { return o.parcels }

// feasibleCombinations enumerates singletons plus every 2- and
// 3-subset that satisfies the grade-count volume caps and whose
// laydays windows pairwise overlap. The universe is bounded to groups
// of at most three by construction.
func (o *Optimizer) feasibleCombinations() [][]int {
	n := len(o.parcels)
	var combos [][]int
	for i := 0; i < n; i++ {
		combos = append(combos, []int{i})
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if o.isFeasible([]int{i, j}) {
				combos = append(combos, []int{i, j})
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				if o.isFeasible([]int{i, j, k}) {
					combos = append(combos, []int{i, j, k})
				}
			}
		}
	}
	return combos
}

func (o *Optimizer) isFeasible(combo []int) bool {
	grades := make(map[refinery.Grade]bool)
	var volume float64
	maxStart, minEnd := 0, math.MaxInt
	for _, idx := range combo {
		p := &o.parcels[idx]
		grades[p.Grade] = true
		volume += p.VolumeKB
		if p.LayDays.StartDay > maxStart {
			maxStart = p.LayDays.StartDay
		}
		if p.LayDays.EndDay < minEnd {
			minEnd = p.LayDays.EndDay
		}
	}

	switch len(grades) {
	case 2:
		if volume > o.constraints.MaxVolumeTwoGradesKB {
			return false
		}
	case 3:
		if volume > o.constraints.MaxVolumeThreeGradesKB {
			return false
		}
	default:
		if len(grades) > 3 {
			return false
		}
	}

	return maxStart <= minEnd
}

// arrivalDay is the earliest arrival for a combination: latest loading
// start among its parcels plus the longest travel time, rounded up.
func (o *Optimizer) arrivalDay(combo []int) int {
	maxStart := 0
	maxTravel := 0.0
	for _, idx := range combo {
		p := &o.parcels[idx]
		if p.LayDays.StartDay > maxStart {
			maxStart = p.LayDays.StartDay
		}
		if p.TravelDays > maxTravel {
			maxTravel = p.TravelDays
		}
	}
	return maxStart + int(math.Ceil(maxTravel))
}

// bigM returns the target-date linking constant. It is derived from
// the latest representable arrival day so it always dominates any
// arrival value the model can take.
func (o *Optimizer) bigM() float64 {
	latest := 0
	for i := range o.parcels {
		if o.parcels[i].LatestArrival > latest {
			latest = o.parcels[i].LatestArrival
		}
	}
	return float64(latest + 1)
}

// Optimize builds and solves the vessel-assignment MILP.
func (o *Optimizer) Optimize(ctx context.Context, opts Options) (*Result, error) {
	budget := opts.Budget
	if budget == 0 {
		budget = DefaultSolveBudget
	}
	penalty := opts.TardinessPenalty
	if penalty == 0 {
		penalty = DefaultTardinessPenalty
	}

	combos := o.feasibleCombinations()
	model := milp.NewModel("vessel_assignment", milp.Minimize)

	use := make([]milp.Var, len(combos))
	for i := range combos {
		use[i] = model.AddBinary(fmt.Sprintf("use_combo_%d", i))
	}

	// Each parcel sails on exactly one selected combination.
	for pi := range o.parcels {
		var terms []milp.Term
		for ci, combo := range combos {
			for _, idx := range combo {
				if idx == pi {
					terms = append(terms, milp.Term{Var: use[ci], Coef: 1})
					break
				}
			}
		}
		model.AddConstraint(fmt.Sprintf("assign_%s", o.parcels[pi].ID), milp.EQ, 1, terms...)
	}

	vesselCount := model.AddInteger("vessel_count", 0, math.Inf(1))
	countTerms := append(milp.Sum(use...), milp.Term{Var: vesselCount, Coef: -1})
	model.AddConstraint("vessel_count_def", milp.EQ, 0, countTerms...)

	if o.constraints.MaxDeliveriesPerMonth > 0 {
		model.AddConstraint("max_deliveries", milp.LE,
			float64(o.constraints.MaxDeliveriesPerMonth),
			milp.Term{Var: vesselCount, Coef: 1})
	}

	overLimit := model.AddInteger("over_limit", 0, math.Inf(1))
	model.AddConstraint("over_limit_def", milp.GE, -freeVesselCount,
		milp.Term{Var: overLimit, Coef: 1},
		milp.Term{Var: vesselCount, Coef: -1})

	arrivalVars := make(map[refinery.Grade]milp.Var)
	tardinessVars := make(map[refinery.Grade]milp.Var)
	bigM := o.bigM()
	for grade, target := range o.targets {
		arrival := model.AddInteger(fmt.Sprintf("arrival_day_%s", grade), 1, math.Inf(1))
		tardiness := model.AddInteger(fmt.Sprintf("tardiness_%s", grade), 0, math.Inf(1))
		arrivalVars[grade] = arrival
		tardinessVars[grade] = tardiness

		// tardiness >= arrival - target
		model.AddConstraint(fmt.Sprintf("tardiness_%s_def", grade), milp.GE,
			float64(-target),
			milp.Term{Var: tardiness, Coef: 1},
			milp.Term{Var: arrival, Coef: -1})

		// Big-M linking: the arrival variable tracks whichever
		// selected combination carries the grade.
		for ci, combo := range combos {
			if !comboHasGrade(o.parcels, combo, grade) {
				continue
			}
			day := float64(o.arrivalDay(combo))
			model.AddConstraint(fmt.Sprintf("arrival_%s_ub_%d", grade, ci), milp.LE,
				day+bigM,
				milp.Term{Var: arrival, Coef: 1},
				milp.Term{Var: use[ci], Coef: bigM})
			model.AddConstraint(fmt.Sprintf("arrival_%s_lb_%d", grade, ci), milp.GE,
				day-bigM,
				milp.Term{Var: arrival, Coef: 1},
				milp.Term{Var: use[ci], Coef: -bigM})
		}
	}

	var objective []milp.Term
	if opts.PrioritizeDates && len(o.targets) > 0 {
		for _, v := range tardinessVars {
			objective = append(objective, milp.Term{Var: v, Coef: penalty})
		}
		objective = append(objective,
			milp.Term{Var: vesselCount, Coef: 1},
			milp.Term{Var: overLimit, Coef: 2})
	} else {
		objective = append(objective,
			milp.Term{Var: vesselCount, Coef: 1},
			milp.Term{Var: overLimit, Coef: 2})
		for _, v := range tardinessVars {
			objective = append(objective, milp.Term{Var: v, Coef: 0.01})
		}
	}
	model.SetObjective(objective...)

	sol, err := o.solver.Solve(ctx, model, budget)
	if err != nil {
		events.Record(o.recorder, events.SolveFailedEvent, "vesselopt",
			events.SolveFailed{Model: "vessel_assignment", Status: "error", Message: err.Error()})
		return &Result{
			Status:  "failed",
			Message: fmt.Sprintf("could not find optimal solution: %v", err),
		}, nil
	}
	if !sol.Optimal() {
		events.Record(o.recorder, events.SolveFailedEvent, "vesselopt",
			events.SolveFailed{Model: "vessel_assignment", Status: sol.Status.String()})
		return &Result{
			Status:  "failed",
			Message: fmt.Sprintf("could not find optimal solution: %s", sol.Status),
		}, nil
	}
	events.Record(o.recorder, events.SolveCompletedEvent, "vesselopt",
		events.SolveCompleted{Model: "vessel_assignment", Status: sol.Status.String(), Objective: sol.Objective})

	count := int(math.Round(sol.Value(vesselCount)))

	result := &Result{
		Status:         "optimal",
		VesselCount:    count,
		TotalParcels:   len(o.parcels),
		FreightCostUSD: o.freightCost(count),
	}

	for ci, combo := range combos {
		if sol.Value(use[ci]) < 0.5 {
			continue
		}
		result.Vessels = append(result.Vessels, o.buildVessel(combo))
	}
	sort.SliceStable(result.Vessels, func(i, j int) bool {
		return result.Vessels[i].ArrivalDay < result.Vessels[j].ArrivalDay
	})

	if len(o.targets) > 0 {
		result.TargetDateResults = make(map[refinery.Grade]TargetDateResult, len(o.targets))
		for grade, target := range o.targets {
			arrival := int(math.Round(sol.Value(arrivalVars[grade])))
			tardiness := int(math.Round(sol.Value(tardinessVars[grade])))
			result.TargetDateResults[grade] = TargetDateResult{
				TargetDay:     target,
				ActualArrival: arrival,
				Tardiness:     tardiness,
				Status:        tardinessStatus(tardiness),
			}
		}
	}

	return result, nil
}

func (o *Optimizer) buildVessel(combo []int) *refinery.Vessel {
	maxStart, minEnd := 0, math.MaxInt
	cargo := make([]refinery.Cargo, 0, len(combo))
	for _, idx := range combo {
		p := &o.parcels[idx]
		cargo = append(cargo, refinery.Cargo{Grade: p.Grade, Origin: p.Origin, VolumeKB: p.VolumeKB})
		if p.LayDays.StartDay > maxStart {
			maxStart = p.LayDays.StartDay
		}
		if p.LayDays.EndDay < minEnd {
			minEnd = p.LayDays.EndDay
		}
	}
	arrival := o.arrivalDay(combo)

	v := &refinery.Vessel{
		ArrivalDay:   arrival,
		Cargo:        cargo,
		LDRText:      fmt.Sprintf("%d-%d %s", maxStart, minEnd, o.monthLabel),
		LoadingStart: maxStart,
		LoadingEnd:   minEnd,
	}

	for _, c := range cargo {
		target, ok := o.targets[c.Grade]
		if !ok {
			continue
		}
		if v.MeetsTargets == nil {
			v.MeetsTargets = make(map[refinery.Grade]refinery.TargetStatus)
		}
		v.MeetsTargets[c.Grade] = refinery.TargetStatus{
			TargetDay: target,
			ActualDay: arrival,
			Status:    tardinessStatus(arrival - target),
		}
	}
	return v
}

// freightCost applies the surcharge schedule: base cost covers the
// first five vessels, each further vessel adds a flat surcharge.
func (o *Optimizer) freightCost(count int) decimal.Decimal {
	base := o.constraints.FreightCostUSD
	if count <= freeVesselCount {
		return base
	}
	extra := decimal.NewFromInt(overLimitSurchargeUSD).
		Mul(decimal.NewFromInt(int64(count - freeVesselCount)))
	return base.Add(extra)
}

func tardinessStatus(lateDays int) string {
	if lateDays <= 0 {
		return "On time"
	}
	return fmt.Sprintf("Late by %d days", lateDays)
}

func comboHasGrade(parcels []refinery.Parcel, combo []int, grade refinery.Grade) bool {
	for _, idx := range combo {
		if parcels[idx].Grade == grade {
			return true
		}
	}
	return false
}
