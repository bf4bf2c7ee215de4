package rateopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudeplan/pkg/events"
	"crudeplan/pkg/refinery"
)

func twoDaySchedule(t *testing.T, day1, day2 map[refinery.Grade]float64) *refinery.Schedule {
	t.Helper()
	s, err := refinery.NewSchedule(2)
	require.NoError(t, err)
	for day, rates := range map[int]map[refinery.Grade]float64{1: day1, 2: day2} {
		s.SetDay(day, &refinery.DayPlan{
			ProcessingRates:  rates,
			InventoryByGrade: refinery.Inventory{},
			InventoryKB:      500,
		})
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, 0, nil)
	require.Error(t, err)

	s, err := refinery.NewSchedule(2)
	require.NoError(t, err)
	_, err = New(s, 0, nil)
	require.Error(t, err, "missing day plans")
}

func TestOptimize_BorrowsFromPreviousDay(t *testing.T) {
	store := events.NewMemoryStore()
	input := twoDaySchedule(t,
		map[refinery.Grade]float64{"Base": 100},
		map[refinery.Grade]float64{"Base": 60},
	)
	o, err := New(input, 0, store)
	require.NoError(t, err)

	out, changes := o.Optimize()
	assert.Equal(t, 1, changes)

	// Shortfall is 25 against the 85 floor, under the 30% lending cap.
	assert.InDelta(t, 75.0, out.Day(1).ProcessingRates["Base"], 1e-9)
	assert.InDelta(t, 85.0, out.Day(2).ProcessingRates["Base"], 1e-9)

	// Lent volume sits in stock a day longer.
	assert.InDelta(t, 525.0, out.Day(1).InventoryKB, 1e-9)
	assert.InDelta(t, 475.0, out.Day(2).InventoryKB, 1e-9)

	// The borrowed volume lands in a new solo blend.
	require.Len(t, out.Day(2).BlendingDetails, 1)
	b := out.Day(2).BlendingDetails[0]
	assert.Equal(t, refinery.Grade("Base"), b.PrimaryGrade)
	assert.InDelta(t, 25.0, b.TotalRate, 1e-9)

	// Input stays untouched.
	assert.InDelta(t, 100.0, input.Day(1).ProcessingRates["Base"], 1e-9)

	adjusted := store.ByType(events.RatesAdjustedEvent)
	require.Len(t, adjusted, 1)
	data := adjusted[0].Data().(events.RatesAdjusted)
	assert.Equal(t, 1, data.FromDay)
	assert.Equal(t, 2, data.ToDay)
	assert.InDelta(t, 25.0, data.VolumeKB, 1e-9)
}

func TestOptimize_LendingCapLimitsBorrow(t *testing.T) {
	// 30% of the previous day's 100 kbd is 30, short of the 35 kbd
	// shortfall: the day improves but stays under the floor.
	input := twoDaySchedule(t,
		map[refinery.Grade]float64{"Base": 100},
		map[refinery.Grade]float64{"Base": 50},
	)
	o, err := New(input, 0, nil)
	require.NoError(t, err)

	out, changes := o.Optimize()
	assert.Equal(t, 1, changes)
	assert.InDelta(t, 70.0, out.Day(1).ProcessingRates["Base"], 1e-9)
	assert.InDelta(t, 80.0, out.Day(2).ProcessingRates["Base"], 1e-9)
}

func TestOptimize_NoBorrowWithoutSlack(t *testing.T) {
	// Day 1 at 90 kbd has no slack over threshold+10: nothing moves.
	input := twoDaySchedule(t,
		map[refinery.Grade]float64{"Base": 90},
		map[refinery.Grade]float64{"Base": 60},
	)
	o, err := New(input, 0, nil)
	require.NoError(t, err)

	out, changes := o.Optimize()
	assert.Zero(t, changes)
	assert.InDelta(t, 60.0, out.Day(2).ProcessingRates["Base"], 1e-9)
}

func TestOptimize_NoChangeAboveThreshold(t *testing.T) {
	input := twoDaySchedule(t,
		map[refinery.Grade]float64{"Base": 100},
		map[refinery.Grade]float64{"Base": 90},
	)
	o, err := New(input, 0, nil)
	require.NoError(t, err)

	_, changes := o.Optimize()
	assert.Zero(t, changes)
}

func TestOptimize_PrefersGradeAlreadyProcessed(t *testing.T) {
	input := twoDaySchedule(t,
		map[refinery.Grade]float64{"Base": 60, "Murban": 40},
		map[refinery.Grade]float64{"Murban": 70},
	)
	o, err := New(input, 0, nil)
	require.NoError(t, err)

	out, changes := o.Optimize()
	assert.Equal(t, 1, changes)

	// Murban runs on day 2 already, so it lends despite Base's higher
	// day-1 rate. 30% of 40 is 12, under the 15 kbd shortfall.
	assert.InDelta(t, 28.0, out.Day(1).ProcessingRates["Murban"], 1e-9)
	assert.InDelta(t, 82.0, out.Day(2).ProcessingRates["Murban"], 1e-9)
	assert.InDelta(t, 60.0, out.Day(1).ProcessingRates["Base"], 1e-9)
}

func TestOptimize_SkipsTraceRates(t *testing.T) {
	// A 4 kbd grade is too small to lend; Base covers the shortfall.
	input := twoDaySchedule(t,
		map[refinery.Grade]float64{"Base": 96, "Murban": 4},
		map[refinery.Grade]float64{"Base": 80},
	)
	o, err := New(input, 0, nil)
	require.NoError(t, err)

	out, changes := o.Optimize()
	assert.Equal(t, 1, changes)
	assert.InDelta(t, 91.0, out.Day(1).ProcessingRates["Base"], 1e-9)
	assert.InDelta(t, 85.0, out.Day(2).ProcessingRates["Base"], 1e-9)
	assert.InDelta(t, 4.0, out.Day(1).ProcessingRates["Murban"], 1e-9)
}

func TestOptimize_FoldsIntoExistingBlend(t *testing.T) {
	input := twoDaySchedule(t,
		map[refinery.Grade]float64{"Base": 100},
		map[refinery.Grade]float64{"Base": 60},
	)
	input.Day(2).BlendingDetails = []refinery.BlendDetail{{
		PrimaryGrade: "Base",
		PrimaryRate:  60,
		TotalRate:    60,
		Ratio:        "1.00:0.00",
		CapacityUsed: 60,
	}}
	o, err := New(input, 0, nil)
	require.NoError(t, err)

	out, changes := o.Optimize()
	assert.Equal(t, 1, changes)
	require.Len(t, out.Day(2).BlendingDetails, 1)
	b := out.Day(2).BlendingDetails[0]
	assert.InDelta(t, 85.0, b.PrimaryRate, 1e-9)
	assert.InDelta(t, 85.0, b.TotalRate, 1e-9)
	assert.InDelta(t, 85.0, b.CapacityUsed, 1e-9)
}
