// Package lpopt re-optimizes the daily processing rates of an
// existing schedule. It keeps the vessel arrivals fixed and solves a
// mixed-integer model that picks exactly one processing recipe per day
// to maximize total throughput, subject to a minimum daily rate, a cap
// on day-to-day rate swings, and inventory balance. The recipe catalog
// per day is the solo recipes for every grade plus whatever blends the
// input schedule already recorded for that day.
package lpopt

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"crudeplan/pkg/events"
	"crudeplan/pkg/milp"
	"crudeplan/pkg/refinery"
)

const (
	// DefaultMinThresholdKBD is the minimum total processing rate per
	// day, in kbd.
	DefaultMinThresholdKBD = 80.0
	// DefaultMaxDailyChangeKBD caps how far the total rate may move
	// between consecutive days.
	DefaultMaxDailyChangeKBD = 10.0
	// DefaultSolveBudget bounds the MILP solve time.
	DefaultSolveBudget = 120 * time.Second

	// soloCapacityKBD is the capacity limit assumed for solo recipes,
	// which carry no recorded limit of their own.
	soloCapacityKBD = 95.0

	streamName = "lp-optimizer"
	modelName  = "throughput"
)

// Options tune one optimization run. Zero values take the defaults.
type Options struct {
	MinThresholdKBD   float64
	MaxDailyChangeKBD float64
	Budget            time.Duration
}

func (o Options) withDefaults() Options {
	if o.MinThresholdKBD == 0 {
		o.MinThresholdKBD = DefaultMinThresholdKBD
	}
	if o.MaxDailyChangeKBD == 0 {
		o.MaxDailyChangeKBD = DefaultMaxDailyChangeKBD
	}
	if o.Budget == 0 {
		o.Budget = DefaultSolveBudget
	}
	return o
}

// Result is the outcome of a run. When Solved is false the returned
// schedule is the input schedule, unchanged.
type Result struct {
	Schedule  *refinery.Schedule
	Solved    bool
	Status    milp.Status
	Objective float64
}

// recipe is one way to run the plant for a day. Secondary is empty for
// solo processing.
type recipe struct {
	Primary       refinery.Grade
	Secondary     refinery.Grade
	Ratio         [2]float64
	CapacityLimit float64
}

// Optimizer rebuilds a schedule's daily rates. Build one per input
// schedule; Optimize never mutates the input.
type Optimizer struct {
	schedule *refinery.Schedule
	grades   []refinery.Grade
	solver   milp.Solver
	recorder events.Recorder
}

// New validates the input schedule and returns an optimizer. Every day
// of the schedule must carry a plan. The recorder may be nil.
func New(schedule *refinery.Schedule, solver milp.Solver, recorder events.Recorder) (*Optimizer, error) {
	if schedule == nil {
		return nil, fmt.Errorf("lpopt: schedule is required")
	}
	if solver == nil {
		return nil, fmt.Errorf("lpopt: solver is required")
	}
	seen := make(map[refinery.Grade]bool)
	for day := 1; day <= schedule.Horizon; day++ {
		plan := schedule.Day(day)
		if plan == nil {
			return nil, fmt.Errorf("lpopt: schedule has no plan for day %d", day)
		}
		for g := range plan.ProcessingRates {
			seen[g] = true
		}
	}
	grades := make([]refinery.Grade, 0, len(seen))
	for g := range seen {
		grades = append(grades, g)
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i] < grades[j] })
	if len(grades) == 0 {
		return nil, fmt.Errorf("lpopt: schedule records no processing rates to optimize")
	}
	return &Optimizer{schedule: schedule, grades: grades, solver: solver, recorder: recorder}, nil
}

// Grades returns the grades found in the input schedule, sorted.
func (o *Optimizer) Grades() []refinery.Grade {
	out := make([]refinery.Grade, len(o.grades))
	copy(out, o.grades)
	return out
}

// recipesFor builds the recipe catalog for a day: one solo recipe per
// grade plus the blends the input schedule recorded on that day.
func (o *Optimizer) recipesFor(day int) ([]recipe, error) {
	recipes := make([]recipe, 0, len(o.grades))
	for _, g := range o.grades {
		recipes = append(recipes, recipe{
			Primary:       g,
			Ratio:         [2]float64{1, 0},
			CapacityLimit: soloCapacityKBD,
		})
	}
	for _, blend := range o.schedule.Day(day).BlendingDetails {
		if blend.PrimaryGrade == "" || blend.SecondaryGrade == "" {
			continue
		}
		ratio, err := parseRatio(blend.Ratio)
		if err != nil {
			return nil, fmt.Errorf("day %d blend %s/%s: %w", day, blend.PrimaryGrade, blend.SecondaryGrade, err)
		}
		limit := blend.CapacityLimit
		if limit == 0 {
			limit = soloCapacityKBD
		}
		recipes = append(recipes, recipe{
			Primary:       blend.PrimaryGrade,
			Secondary:     blend.SecondaryGrade,
			Ratio:         ratio,
			CapacityLimit: limit,
		})
	}
	return recipes, nil
}

func parseRatio(s string) ([2]float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return [2]float64{}, fmt.Errorf("malformed blend ratio %q", s)
	}
	var out [2]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return [2]float64{}, fmt.Errorf("malformed blend ratio %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

// dayVars holds the model variables for one day.
type dayVars struct {
	recipes    []recipe
	selected   []milp.Var
	rates      []milp.Var
	processing map[refinery.Grade]milp.Var
	inventory  map[refinery.Grade]milp.Var
	total      milp.Var
}

// Optimize solves the throughput model. A non-optimal outcome is not
// an error: the result carries the input schedule unchanged with
// Solved false. Errors are reserved for malformed inputs and solver
// faults.
func (o *Optimizer) Optimize(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	m := milp.NewModel(modelName, milp.Maximize)
	days, err := o.buildModel(m, opts)
	if err != nil {
		return nil, err
	}

	sol, err := o.solver.Solve(ctx, m, opts.Budget)
	if err != nil {
		return nil, fmt.Errorf("lpopt: solve: %w", err)
	}
	if !sol.Optimal() {
		events.Record(o.recorder, events.SolveFailedEvent, streamName, events.SolveFailed{
			Model:   modelName,
			Status:  sol.Status.String(),
			Message: fmt.Sprintf("throughput solve ended %s; keeping input schedule", sol.Status),
		})
		return &Result{Schedule: o.schedule, Status: sol.Status}, nil
	}

	events.Record(o.recorder, events.SolveCompletedEvent, streamName, events.SolveCompleted{
		Model:     modelName,
		Status:    sol.Status.String(),
		Objective: sol.Objective,
	})
	return &Result{
		Schedule:  o.extract(sol, days),
		Solved:    true,
		Status:    sol.Status,
		Objective: sol.Objective,
	}, nil
}

func (o *Optimizer) buildModel(m *milp.Model, opts Options) ([]*dayVars, error) {
	horizon := o.schedule.Horizon
	arrivals := o.schedule.ArrivalsByDay()

	days := make([]*dayVars, horizon)
	for d := 1; d <= horizon; d++ {
		recipes, err := o.recipesFor(d)
		if err != nil {
			return nil, fmt.Errorf("lpopt: %w", err)
		}
		dv := &dayVars{
			recipes:    recipes,
			selected:   make([]milp.Var, len(recipes)),
			rates:      make([]milp.Var, len(recipes)),
			processing: make(map[refinery.Grade]milp.Var, len(o.grades)),
			inventory:  make(map[refinery.Grade]milp.Var, len(o.grades)),
		}
		dv.total = m.AddContinuous(fmt.Sprintf("total_processing_day_%d", d), 0, math.Inf(1))
		for _, g := range o.grades {
			dv.processing[g] = m.AddContinuous(fmt.Sprintf("process_%s_day_%d", g, d), 0, math.Inf(1))
			dv.inventory[g] = m.AddContinuous(fmt.Sprintf("inventory_%s_day_%d", g, d), 0, math.Inf(1))
		}
		for i, r := range recipes {
			dv.selected[i] = m.AddBinary(fmt.Sprintf("recipe_%d_day_%d", i, d))
			dv.rates[i] = m.AddContinuous(fmt.Sprintf("recipe_rate_%d_day_%d", i, d), 0, r.CapacityLimit)
		}
		days[d-1] = dv
	}

	for d, dv := range days {
		day := d + 1

		// Exactly one recipe runs per day, and an unselected recipe
		// carries no rate.
		m.AddConstraint(fmt.Sprintf("one_recipe_day_%d", day), milp.EQ, 1, milp.Sum(dv.selected...)...)
		for i, r := range dv.recipes {
			m.AddConstraint(fmt.Sprintf("rate_link_%d_day_%d", i, day), milp.LE, 0,
				milp.Term{Var: dv.rates[i], Coef: 1},
				milp.Term{Var: dv.selected[i], Coef: -r.CapacityLimit})
		}

		// Per-grade processing is the recipe rate split by blend ratio.
		for _, g := range o.grades {
			terms := []milp.Term{{Var: dv.processing[g], Coef: 1}}
			for i, r := range dv.recipes {
				switch {
				case r.Primary == g && r.Secondary == "":
					terms = append(terms, milp.Term{Var: dv.rates[i], Coef: -1})
				case r.Primary == g:
					terms = append(terms, milp.Term{Var: dv.rates[i], Coef: -r.Ratio[0]})
				case r.Secondary == g:
					terms = append(terms, milp.Term{Var: dv.rates[i], Coef: -r.Ratio[1]})
				}
			}
			m.AddConstraint(fmt.Sprintf("process_def_%s_day_%d", g, day), milp.EQ, 0, terms...)
		}

		// Total rate definition and floor.
		totalTerms := []milp.Term{{Var: dv.total, Coef: 1}}
		for _, g := range o.grades {
			totalTerms = append(totalTerms, milp.Term{Var: dv.processing[g], Coef: -1})
		}
		m.AddConstraint(fmt.Sprintf("total_def_day_%d", day), milp.EQ, 0, totalTerms...)
		m.AddConstraint(fmt.Sprintf("min_rate_day_%d", day), milp.GE, opts.MinThresholdKBD,
			milp.Term{Var: dv.total, Coef: 1})

		// Rate smoothing against the previous day.
		if d > 0 {
			prev := days[d-1]
			m.AddConstraint(fmt.Sprintf("ramp_up_day_%d", day), milp.LE, opts.MaxDailyChangeKBD,
				milp.Term{Var: dv.total, Coef: 1}, milp.Term{Var: prev.total, Coef: -1})
			m.AddConstraint(fmt.Sprintf("ramp_down_day_%d", day), milp.LE, opts.MaxDailyChangeKBD,
				milp.Term{Var: prev.total, Coef: 1}, milp.Term{Var: dv.total, Coef: -1})
		}
	}

	// Inventory balance. The first day starts from the schedule's day-1
	// grade inventory plus day-1 arrivals; later days chain on the
	// previous day's inventory variable plus that day's arrivals.
	opening := o.schedule.Day(1).InventoryByGrade
	for _, g := range o.grades {
		initial := opening[g] + arrivalVolume(arrivals, 1, g)
		m.AddConstraint(fmt.Sprintf("inv_init_%s", g), milp.EQ, initial,
			milp.Term{Var: days[0].inventory[g], Coef: 1},
			milp.Term{Var: days[0].processing[g], Coef: 1})
		m.AddConstraint(fmt.Sprintf("avail_%s_day_1", g), milp.LE, initial,
			milp.Term{Var: days[0].processing[g], Coef: 1})
	}
	for d := 1; d < len(days); d++ {
		day := d + 1
		dv, prev := days[d], days[d-1]
		for _, g := range o.grades {
			arrived := arrivalVolume(arrivals, day, g)
			m.AddConstraint(fmt.Sprintf("inv_balance_%s_day_%d", g, day), milp.EQ, arrived,
				milp.Term{Var: dv.inventory[g], Coef: 1},
				milp.Term{Var: prev.inventory[g], Coef: -1},
				milp.Term{Var: dv.processing[g], Coef: 1})
			// Processing draws only on stock held at the start of day.
			m.AddConstraint(fmt.Sprintf("avail_%s_day_%d", g, day), milp.LE, 0,
				milp.Term{Var: dv.processing[g], Coef: 1},
				milp.Term{Var: prev.inventory[g], Coef: -1})
		}
	}

	objective := make([]milp.Term, len(days))
	for i, dv := range days {
		objective[i] = milp.Term{Var: dv.total, Coef: 1}
	}
	m.SetObjective(objective...)
	return days, nil
}

func arrivalVolume(arrivals map[int][]refinery.Cargo, day int, g refinery.Grade) float64 {
	var total float64
	for _, c := range arrivals[day] {
		if c.Grade == g {
			total += c.VolumeKB
		}
	}
	return total
}

// extract writes the solved rates, blends, and inventories over a copy
// of the input schedule. Vessel arrivals and tank snapshots are kept
// as-is; only the processing plan changes.
func (o *Optimizer) extract(sol *milp.Solution, days []*dayVars) *refinery.Schedule {
	out := o.schedule.Clone()
	for d, dv := range days {
		plan := out.Day(d + 1)
		for _, g := range o.grades {
			plan.ProcessingRates[g] = 0
		}

		selected := -1
		for i := range dv.selected {
			if sol.Value(dv.selected[i]) > 0.5 {
				selected = i
				break
			}
		}
		if selected >= 0 {
			r := dv.recipes[selected]
			rate := sol.Value(dv.rates[selected])
			if r.Secondary == "" {
				plan.ProcessingRates[r.Primary] = rate
				plan.BlendingDetails = []refinery.BlendDetail{{
					PrimaryGrade:  r.Primary,
					PrimaryRate:   rate,
					TotalRate:     rate,
					Ratio:         refinery.FormatRatio(1, 0),
					CapacityUsed:  rate,
					CapacityLimit: r.CapacityLimit,
				}}
			} else {
				primaryRate := r.Ratio[0] * rate
				secondaryRate := r.Ratio[1] * rate
				plan.ProcessingRates[r.Primary] = primaryRate
				plan.ProcessingRates[r.Secondary] = secondaryRate
				plan.BlendingDetails = []refinery.BlendDetail{{
					PrimaryGrade:   r.Primary,
					SecondaryGrade: r.Secondary,
					PrimaryRate:    primaryRate,
					SecondaryRate:  secondaryRate,
					TotalRate:      rate,
					Ratio:          refinery.FormatRatio(r.Ratio[0], r.Ratio[1]),
					CapacityUsed:   rate,
					CapacityLimit:  r.CapacityLimit,
				}}
			}
		}

		var total float64
		for _, g := range o.grades {
			inv := sol.Value(dv.inventory[g])
			total += inv
			if inv > 0.01 {
				plan.InventoryByGrade[g] = inv
			} else {
				plan.InventoryByGrade[g] = 0
			}
		}
		plan.InventoryKB = total
	}
	return out
}
