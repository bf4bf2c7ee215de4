package lpopt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudeplan/pkg/events"
	"crudeplan/pkg/milp"
	"crudeplan/pkg/refinery"
)

// stubSolver always reports the configured status without solving.
type stubSolver struct {
	status milp.Status
}

func (s stubSolver) Solve(ctx context.Context, m *milp.Model, budget time.Duration) (*milp.Solution, error) {
	return &milp.Solution{Status: s.status}, nil
}

// soloSchedule builds a horizon-day schedule processing one grade at a
// flat rate from a large opening stock.
func soloSchedule(t *testing.T, horizon int, rate, openingKB float64) *refinery.Schedule {
	t.Helper()
	s, err := refinery.NewSchedule(horizon)
	require.NoError(t, err)
	stock := openingKB
	for day := 1; day <= horizon; day++ {
		stock -= rate
		s.SetDay(day, &refinery.DayPlan{
			ProcessingRates:  map[refinery.Grade]float64{"Base": rate},
			InventoryByGrade: refinery.Inventory{"Base": stock},
			InventoryKB:      stock,
		})
	}
	// The model seeds from day 1 stock, so put the opening back there.
	s.Day(1).InventoryByGrade["Base"] = openingKB
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, milp.NewGLPK(), nil)
	require.Error(t, err)

	s, err := refinery.NewSchedule(2)
	require.NoError(t, err)
	_, err = New(s, milp.NewGLPK(), nil)
	require.Error(t, err, "missing day plans")

	_, err = New(soloSchedule(t, 2, 50, 400), nil, nil)
	require.Error(t, err)
}

func TestGrades(t *testing.T) {
	o, err := New(soloSchedule(t, 2, 50, 400), milp.NewGLPK(), nil)
	require.NoError(t, err)
	assert.Equal(t, []refinery.Grade{"Base"}, o.Grades())
}

func TestRecipesFor(t *testing.T) {
	s := soloSchedule(t, 2, 50, 400)
	s.Day(1).BlendingDetails = []refinery.BlendDetail{{
		PrimaryGrade:   "Base",
		SecondaryGrade: "Murban",
		Ratio:          "0.60:0.40",
		CapacityLimit:  80,
	}}
	s.Day(1).ProcessingRates["Murban"] = 0

	o, err := New(s, milp.NewGLPK(), nil)
	require.NoError(t, err)

	// Day 1: one solo recipe per grade plus the recorded blend.
	recipes, err := o.recipesFor(1)
	require.NoError(t, err)
	require.Len(t, recipes, 3)
	blend := recipes[2]
	assert.Equal(t, refinery.Grade("Base"), blend.Primary)
	assert.Equal(t, refinery.Grade("Murban"), blend.Secondary)
	assert.Equal(t, [2]float64{0.6, 0.4}, blend.Ratio)
	assert.Equal(t, 80.0, blend.CapacityLimit)

	// Day 2 recorded no blend: solos only.
	recipes, err = o.recipesFor(2)
	require.NoError(t, err)
	assert.Len(t, recipes, 2)
}

func TestParseRatio(t *testing.T) {
	r, err := parseRatio("0.60:0.40")
	require.NoError(t, err)
	assert.Equal(t, [2]float64{0.6, 0.4}, r)

	_, err = parseRatio("0.60")
	require.Error(t, err)
	_, err = parseRatio("a:b")
	require.Error(t, err)
}

func TestOptimize_MaximizesThroughputWithinBounds(t *testing.T) {
	store := events.NewMemoryStore()
	input := soloSchedule(t, 2, 50, 200)
	o, err := New(input, milp.NewGLPK(), store)
	require.NoError(t, err)

	result, err := o.Optimize(context.Background(), Options{})
	require.NoError(t, err)
	require.True(t, result.Solved, "status %s", result.Status)

	// Both days run the solo recipe at its 95 kbd cap: stock allows it
	// and the 10 kbd ramp limit is not binding at equal rates.
	assert.InDelta(t, 190.0, result.Objective, 1e-6)
	for day := 1; day <= 2; day++ {
		plan := result.Schedule.Day(day)
		assert.InDelta(t, 95.0, plan.ProcessingRates["Base"], 1e-6, "day %d", day)
		require.Len(t, plan.BlendingDetails, 1)
		b := plan.BlendingDetails[0]
		assert.Equal(t, refinery.Grade("Base"), b.PrimaryGrade)
		assert.Equal(t, refinery.Grade(""), b.SecondaryGrade)
		assert.Equal(t, "1.00:0.00", b.Ratio)
		assert.InDelta(t, 95.0, b.TotalRate, 1e-6)
	}

	// Inventory chains down from the 200 kb opening.
	assert.InDelta(t, 105.0, result.Schedule.Day(1).InventoryKB, 1e-6)
	assert.InDelta(t, 10.0, result.Schedule.Day(2).InventoryKB, 1e-6)

	// The input schedule keeps its original rates.
	assert.InDelta(t, 50.0, input.Day(1).ProcessingRates["Base"], 1e-9)

	require.Len(t, store.ByType(events.SolveCompletedEvent), 1)
}

func TestOptimize_StockLimitsThroughput(t *testing.T) {
	// 170 kb of stock over 2 days: the optimum drains it completely,
	// with both days inside the ramp band and above the floor.
	input := soloSchedule(t, 2, 85, 170)
	o, err := New(input, milp.NewGLPK(), nil)
	require.NoError(t, err)

	result, err := o.Optimize(context.Background(), Options{})
	require.NoError(t, err)
	require.True(t, result.Solved, "status %s", result.Status)

	t1 := result.Schedule.Day(1).TotalRate()
	t2 := result.Schedule.Day(2).TotalRate()
	assert.InDelta(t, 170.0, t1+t2, 1e-6)
	assert.LessOrEqual(t, t1-t2, 10.0+1e-6)
	assert.LessOrEqual(t, t2-t1, 10.0+1e-6)
	assert.GreaterOrEqual(t, t1, DefaultMinThresholdKBD-1e-6)
	assert.GreaterOrEqual(t, t2, DefaultMinThresholdKBD-1e-6)

	// Day 2 can only process day-1 closing stock.
	assert.LessOrEqual(t, t2, 170.0-t1+1e-6)
}

func TestOptimize_FailSoftKeepsInputSchedule(t *testing.T) {
	store := events.NewMemoryStore()
	input := soloSchedule(t, 2, 50, 400)
	o, err := New(input, stubSolver{status: milp.StatusTimeout}, store)
	require.NoError(t, err)

	result, err := o.Optimize(context.Background(), Options{})
	require.NoError(t, err)

	assert.False(t, result.Solved)
	assert.Equal(t, milp.StatusTimeout, result.Status)
	assert.Same(t, input, result.Schedule)
	require.Len(t, store.ByType(events.SolveFailedEvent), 1)
}

func TestOptimize_ArrivalsFeedInventoryBalance(t *testing.T) {
	input := soloSchedule(t, 2, 50, 200)
	input.VesselArrivals = []*refinery.Vessel{
		{ArrivalDay: 2, Cargo: []refinery.Cargo{{Grade: "Base", VolumeKB: 100}}},
	}
	o, err := New(input, milp.NewGLPK(), nil)
	require.NoError(t, err)

	result, err := o.Optimize(context.Background(), Options{})
	require.NoError(t, err)
	require.True(t, result.Solved)

	// Both days still run at the 95 kbd cap; the day-2 arrival shows up
	// in the closing inventory.
	assert.InDelta(t, 95.0, result.Schedule.Day(1).TotalRate(), 1e-6)
	assert.InDelta(t, 95.0, result.Schedule.Day(2).TotalRate(), 1e-6)
	assert.InDelta(t, 105.0, result.Schedule.Day(1).InventoryKB, 1e-6)
	assert.InDelta(t, 110.0, result.Schedule.Day(2).InventoryKB, 1e-6)
}
