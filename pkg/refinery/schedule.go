package refinery

import "fmt"

// DayPlan is the committed plan for one day: processing rates by grade,
// the blend operations applied, and end-of-day inventory and tank
// snapshots. A day's plan is written once by the scheduler and only
// overwritten wholesale by the LP re-optimization pass.
type DayPlan struct {
	ProcessingRates  map[Grade]float64
	BlendingDetails  []BlendDetail
	InventoryKB      float64
	InventoryByGrade Inventory
	Tanks            []Tank
}

// Clone deep-copies the day plan.
func (p *DayPlan) Clone() *DayPlan {
	out := &DayPlan{
		InventoryKB:      p.InventoryKB,
		InventoryByGrade: p.InventoryByGrade.Clone(),
		Tanks:            CloneTanks(p.Tanks),
	}
	out.ProcessingRates = make(map[Grade]float64, len(p.ProcessingRates))
	for g, r := range p.ProcessingRates {
		out.ProcessingRates[g] = r
	}
	if len(p.BlendingDetails) > 0 {
		out.BlendingDetails = make([]BlendDetail, len(p.BlendingDetails))
		copy(out.BlendingDetails, p.BlendingDetails)
	}
	return out
}

// TotalRate sums the day's processing rates across grades.
func (p *DayPlan) TotalRate() float64 {
	var total float64
	for _, r := range p.ProcessingRates {
		total += r
	}
	return total
}

// Schedule is the common output shape of the scheduler and both
// optimizers: per-day plans over a fixed 1-indexed horizon, the vessels
// that actually arrived, and the vessels held past the horizon.
type Schedule struct {
	Horizon        int
	Days           []*DayPlan
	VesselArrivals []*Vessel
	HeldVessels    []*Vessel
}

// NewSchedule allocates an empty schedule over the horizon.
func NewSchedule(horizon int) (*Schedule, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("schedule horizon must be at least 1 day, got %d", horizon)
	}
	return &Schedule{Horizon: horizon, Days: make([]*DayPlan, horizon)}, nil
}

// Day returns the plan for day d (1-indexed), or nil when unset.
// It panics on a day outside the horizon; callers iterate 1..Horizon.
func (s *Schedule) Day(d int) *DayPlan {
	if d < 1 || d > s.Horizon {
		panic(fmt.Sprintf("day %d outside schedule horizon 1..%d", d, s.Horizon))
	}
	return s.Days[d-1]
}

// SetDay stores the plan for day d (1-indexed).
func (s *Schedule) SetDay(d int, p *DayPlan) {
	if d < 1 || d > s.Horizon {
		panic(fmt.Sprintf("day %d outside schedule horizon 1..%d", d, s.Horizon))
	}
	s.Days[d-1] = p
}

// Clone deep-copies the schedule, its day plans and vessels.
func (s *Schedule) Clone() *Schedule {
	out := &Schedule{Horizon: s.Horizon, Days: make([]*DayPlan, len(s.Days))}
	for i, p := range s.Days {
		if p != nil {
			out.Days[i] = p.Clone()
		}
	}
	out.VesselArrivals = cloneVessels(s.VesselArrivals)
	out.HeldVessels = cloneVessels(s.HeldVessels)
	return out
}

// ArrivalsByDay flattens vessel cargo into per-day grade/volume lots.
func (s *Schedule) ArrivalsByDay() map[int][]Cargo {
	byDay := make(map[int][]Cargo)
	for _, v := range s.VesselArrivals {
		for _, c := range v.Cargo {
			byDay[v.ArrivalDay] = append(byDay[v.ArrivalDay], Cargo{Grade: c.Grade, VolumeKB: c.VolumeKB})
		}
	}
	return byDay
}

func cloneVessels(vessels []*Vessel) []*Vessel {
	if vessels == nil {
		return nil
	}
	out := make([]*Vessel, len(vessels))
	for i, v := range vessels {
		vc := *v
		vc.Cargo = make([]Cargo, len(v.Cargo))
		copy(vc.Cargo, v.Cargo)
		out[i] = &vc
	}
	return out
}
