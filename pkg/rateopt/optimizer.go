// Package rateopt smooths low-throughput days by borrowing processing
// volume from the previous day. It is a cheap repair pass over a
// finished schedule: no solver, no new arrivals, just shifting rate
// between adjacent days when a day falls under the minimum threshold
// and its predecessor has slack.
package rateopt

import (
	"fmt"
	"sort"

	"crudeplan/pkg/events"
	"crudeplan/pkg/refinery"
)

const (
	// DefaultMinThresholdKBD is the daily rate floor the pass tries to
	// restore.
	DefaultMinThresholdKBD = 85.0

	// borrowSlackKBD is how far above the threshold a day must sit
	// before it lends volume.
	borrowSlackKBD = 10.0
	// minLendableRateKBD filters out grades processed in trace amounts.
	minLendableRateKBD = 5.0
	// maxBorrowFraction caps the share of a grade's rate a day may lend.
	maxBorrowFraction = 0.3
	// soloCapacityKBD is the capacity limit stamped on a solo blend
	// added for borrowed volume.
	soloCapacityKBD = 95.0

	streamName = "rate-optimizer"
)

// Optimizer redistributes daily rates over a finished schedule.
type Optimizer struct {
	schedule     *refinery.Schedule
	minThreshold float64
	recorder     events.Recorder
}

// New returns an optimizer over the schedule. A zero minThreshold
// takes the default. The recorder may be nil.
func New(schedule *refinery.Schedule, minThreshold float64, recorder events.Recorder) (*Optimizer, error) {
	if schedule == nil {
		return nil, fmt.Errorf("rateopt: schedule is required")
	}
	for day := 1; day <= schedule.Horizon; day++ {
		if schedule.Day(day) == nil {
			return nil, fmt.Errorf("rateopt: schedule has no plan for day %d", day)
		}
	}
	if minThreshold == 0 {
		minThreshold = DefaultMinThresholdKBD
	}
	return &Optimizer{schedule: schedule, minThreshold: minThreshold, recorder: recorder}, nil
}

// Optimize returns an adjusted copy of the schedule and the number of
// adjustments made. The input schedule is never mutated. Shortfall
// decisions read the input schedule, so one day's borrow does not
// cascade into the next comparison.
func (o *Optimizer) Optimize() (*refinery.Schedule, int) {
	out := o.schedule.Clone()
	changes := 0

	for day := 2; day <= o.schedule.Horizon; day++ {
		prevDay := day - 1
		currentRate := o.schedule.Day(day).TotalRate()
		if currentRate >= o.minThreshold {
			continue
		}
		if o.schedule.Day(prevDay).TotalRate() <= o.minThreshold+borrowSlackKBD {
			continue
		}

		grade, volume := o.gradeToBorrow(day, prevDay)
		if grade == "" || volume <= 0 {
			continue
		}

		current, prev := out.Day(day), out.Day(prevDay)
		current.ProcessingRates[grade] += volume
		prev.ProcessingRates[grade] -= volume
		current.BlendingDetails = adjustBlends(current.BlendingDetails, grade, volume)

		// The lent volume stays in stock a day longer.
		prev.InventoryKB += volume
		current.InventoryKB -= volume

		events.Record(o.recorder, events.RatesAdjustedEvent, streamName, events.RatesAdjusted{
			FromDay:  prevDay,
			ToDay:    day,
			Grade:    string(grade),
			VolumeKB: volume,
		})
		changes++
	}
	return out, changes
}

// gradeToBorrow picks the grade to shift: grades already processed on
// the current day come first since the blend for them exists, then
// higher previous-day rates win.
func (o *Optimizer) gradeToBorrow(day, prevDay int) (refinery.Grade, float64) {
	prevRates := o.schedule.Day(prevDay).ProcessingRates
	dayRates := o.schedule.Day(day).ProcessingRates

	type candidate struct {
		grade    refinery.Grade
		rate     float64
		priority int
	}
	var candidates []candidate
	for grade, rate := range prevRates {
		if rate < minLendableRateKBD {
			continue
		}
		priority := 1
		if dayRates[grade] > 0 {
			priority = 2
		}
		candidates = append(candidates, candidate{grade: grade, rate: rate, priority: priority})
	}
	if len(candidates) == 0 {
		return "", 0
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		if candidates[i].rate != candidates[j].rate {
			return candidates[i].rate > candidates[j].rate
		}
		return candidates[i].grade < candidates[j].grade
	})

	best := candidates[0]
	shortfall := o.minThreshold - o.schedule.Day(day).TotalRate()
	return best.grade, min(shortfall, best.rate*maxBorrowFraction)
}

// adjustBlends folds borrowed volume into the day's blend that already
// uses the grade, or appends a solo blend when none does.
func adjustBlends(blends []refinery.BlendDetail, grade refinery.Grade, volume float64) []refinery.BlendDetail {
	for i := range blends {
		switch grade {
		case blends[i].PrimaryGrade:
			blends[i].PrimaryRate += volume
		case blends[i].SecondaryGrade:
			blends[i].SecondaryRate += volume
		default:
			continue
		}
		blends[i].TotalRate += volume
		blends[i].CapacityUsed += volume
		return blends
	}
	return append(blends, refinery.BlendDetail{
		PrimaryGrade:  grade,
		PrimaryRate:   volume,
		TotalRate:     volume,
		Ratio:         refinery.FormatRatio(1, 0),
		CapacityUsed:  volume,
		CapacityLimit: soloCapacityKBD,
	})
}
