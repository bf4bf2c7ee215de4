// Package scheduler generates a deterministic day-by-day refinery
// schedule from a feedstock delivery program: vessels berth when tank
// ullage allows, deferred vessels retry daily, and processing follows
// the margin-priority blend heuristic. No optimization happens here;
// the scheduler's output is the baseline the optimizers refine.
package scheduler

import (
	"fmt"
	"math"
	"sort"

	"crudeplan/pkg/events"
	"crudeplan/pkg/refinery"
)

// Terminal annotations for vessels still waiting when the horizon
// ends.
const (
	heldReasonNoUllage  = "Insufficient ullage until end of simulation horizon"
	heldBeyondHorizon   = "Beyond simulation horizon"
	schedulerStreamName = "scheduler"
)

// Feedstock is one grade's delivery program: parallel lists of laydays
// windows and parcel sizes.
type Feedstock struct {
	Grade         refinery.Grade
	LayDays       []refinery.LayDays
	ParcelSizesKB []float64
}

// Config carries the refinery description the scheduler works from.
// Tank order is significant: allocation scans Tanks in declared order.
type Config struct {
	PlantCapacityBPD float64
	BaseCapacityBPD  float64
	GradeOrigins     map[refinery.Grade]string
	Pairings         map[refinery.Grade]refinery.Pairing
	Margins          map[refinery.Grade]float64
	OpeningInventory refinery.Inventory
	Tanks            []refinery.Tank
	MaxInventoryKB   float64
	FeedstockProgram []Feedstock
	HorizonDays      int
}

// Scheduler simulates vessel arrivals and daily processing over a
// fixed horizon. A Scheduler is safe to reuse: Generate never mutates
// the config it was built from.
type Scheduler struct {
	cfg      Config
	recorder events.Recorder
}

// New validates the config and returns a scheduler. The recorder may
// be nil.
func New(cfg Config, recorder events.Recorder) (*Scheduler, error) {
	if cfg.HorizonDays < 1 {
		return nil, fmt.Errorf("scheduler: horizon must be at least 1 day, got %d", cfg.HorizonDays)
	}
	if cfg.PlantCapacityBPD <= 0 {
		return nil, fmt.Errorf("scheduler: plant capacity must be positive, got %v", cfg.PlantCapacityBPD)
	}
	if len(cfg.Tanks) == 0 {
		return nil, fmt.Errorf("scheduler: at least one tank is required")
	}
	for _, t := range cfg.Tanks {
		if t.CapacityKB <= 0 {
			return nil, fmt.Errorf("scheduler: tank %q has non-positive capacity %v", t.Name, t.CapacityKB)
		}
	}
	for _, f := range cfg.FeedstockProgram {
		if len(f.LayDays) != len(f.ParcelSizesKB) {
			return nil, fmt.Errorf("scheduler: feedstock %s has %d laydays windows but %d parcel sizes",
				f.Grade, len(f.LayDays), len(f.ParcelSizesKB))
		}
	}
	return &Scheduler{cfg: cfg, recorder: recorder}, nil
}

// PlanVesselArrivals builds the naive arrival plan: one vessel per
// parcel, arriving mid laydays window. The vessel optimizer replaces
// this plan with a consolidated one.
func (s *Scheduler) PlanVesselArrivals() []*refinery.Vessel {
	type parcel struct {
		grade  refinery.Grade
		volume float64
		ldr    refinery.LayDays
		origin string
	}
	var parcels []parcel
	for _, f := range s.cfg.FeedstockProgram {
		for i, ldr := range f.LayDays {
			parcels = append(parcels, parcel{
				grade:  f.Grade,
				volume: f.ParcelSizesKB[i],
				ldr:    ldr,
				origin: s.cfg.GradeOrigins[f.Grade],
			})
		}
	}
	// Stable sort keeps equal-start parcels in program order.
	sort.SliceStable(parcels, func(i, j int) bool {
		return parcels[i].ldr.StartDay < parcels[j].ldr.StartDay
	})

	vessels := make([]*refinery.Vessel, 0, len(parcels))
	for _, p := range parcels {
		vessels = append(vessels, &refinery.Vessel{
			ArrivalDay: (p.ldr.StartDay + p.ldr.EndDay) / 2,
			Cargo: []refinery.Cargo{{
				Grade:    p.grade,
				Origin:   p.origin,
				VolumeKB: p.volume,
			}},
			LDRText: p.ldr.Text,
		})
	}
	return vessels
}

// Generate runs the day loop over the configured horizon. A nil
// vessels slice means use the naive plan from PlanVesselArrivals.
// Vessels are mutated in place as they berth or defer; the returned
// schedule references them.
func (s *Scheduler) Generate(vessels []*refinery.Vessel) (*refinery.Schedule, error) {
	if vessels == nil {
		vessels = s.PlanVesselArrivals()
	}

	schedule, err := refinery.NewSchedule(s.cfg.HorizonDays)
	if err != nil {
		return nil, err
	}

	inventory := s.cfg.OpeningInventory.Clone()
	if inventory == nil {
		inventory = refinery.Inventory{}
	}
	tanks := refinery.CloneTanks(s.cfg.Tanks)

	var pending []*refinery.Vessel
	for day := 1; day <= s.cfg.HorizonDays; day++ {
		dayArrivals := arrivalsFor(vessels, pending, day)
		pending = nil

		for _, v := range dayArrivals {
			if s.tryBerth(v, tanks, inventory, day) {
				schedule.VesselArrivals = append(schedule.VesselArrivals, v)
				continue
			}
			if v.OriginalArrivalDay == 0 {
				v.OriginalArrivalDay = v.ArrivalDay
			}
			v.DaysHeld = day - v.OriginalArrivalDay
			v.ArrivalDay = day + 1
			if v.ArrivalDay <= s.cfg.HorizonDays {
				pending = append(pending, v)
				events.Record(s.recorder, events.VesselDeferredEvent, schedulerStreamName, events.VesselDeferred{
					Day:      day,
					NextDay:  v.ArrivalDay,
					DaysHeld: v.DaysHeld,
					LDRText:  v.LDRText,
				})
			} else {
				s.hold(v, schedule)
			}
		}

		rates, blends, err := refinery.ComputeProcessingRates(inventory, s.cfg.Pairings, s.cfg.PlantCapacityBPD, s.cfg.Margins)
		if err != nil {
			return nil, fmt.Errorf("day %d: %w", day, err)
		}
		for grade, rate := range rates {
			inventory[grade] = math.Max(0, inventory[grade]-rate)
			removeFromTanks(tanks, grade, rate)
		}

		total := inventory.TotalKB()
		if total > s.cfg.MaxInventoryKB {
			events.Record(s.recorder, events.InventoryExceededEvent, schedulerStreamName, events.InventoryExceeded{
				Day:     day,
				TotalKB: total,
				MaxKB:   s.cfg.MaxInventoryKB,
			})
		}

		schedule.SetDay(day, &refinery.DayPlan{
			ProcessingRates:  rates,
			BlendingDetails:  blends,
			InventoryKB:      total,
			InventoryByGrade: inventory.Clone(),
			Tanks:            refinery.CloneTanks(tanks),
		})
	}

	for _, v := range pending {
		s.hold(v, schedule)
	}
	return schedule, nil
}

// arrivalsFor merges planned vessels due today with vessels deferred
// from earlier days, without duplicating a deferred vessel that is
// also still in the planned list.
func arrivalsFor(planned, pending []*refinery.Vessel, day int) []*refinery.Vessel {
	var out []*refinery.Vessel
	seen := make(map[*refinery.Vessel]bool)
	for _, v := range planned {
		if v.ArrivalDay == day {
			out = append(out, v)
			seen[v] = true
		}
	}
	for _, v := range pending {
		if !seen[v] {
			out = append(out, v)
		}
	}
	return out
}

// tryBerth simulates every cargo against the pre-arrival tank state
// and commits all of them only if none overflows. Each cargo is
// simulated independently; a vessel whose cargoes only fit together
// sequentially still berths, since commit re-runs the allocation
// against the updated tanks.
func (s *Scheduler) tryBerth(v *refinery.Vessel, tanks []refinery.Tank, inventory refinery.Inventory, day int) bool {
	canBerth := true
	for i := range v.Cargo {
		cargo := &v.Cargo[i]
		allocs := simulateAllocation(tanks, cargo.Grade, cargo.VolumeKB)
		if refinery.Overflowed(allocs) {
			canBerth = false
			cargo.SimulatedAllocation = allocs
		}
	}
	if !canBerth {
		return false
	}
	for i := range v.Cargo {
		cargo := &v.Cargo[i]
		cargo.TankAllocation = allocateToTanks(tanks, cargo.Grade, cargo.VolumeKB)
		inventory[cargo.Grade] += cargo.VolumeKB
	}
	v.ActualArrivalDay = day
	events.Record(s.recorder, events.VesselBerthedEvent, schedulerStreamName, events.VesselBerthed{
		Day:     day,
		LDRText: v.LDRText,
	})
	return true
}

func (s *Scheduler) hold(v *refinery.Vessel, schedule *refinery.Schedule) {
	v.HeldReason = heldReasonNoUllage
	v.EarliestPossibleDay = heldBeyondHorizon
	schedule.HeldVessels = append(schedule.HeldVessels, v)
	events.Record(s.recorder, events.VesselHeldEvent, schedulerStreamName, events.VesselHeld{
		OriginalDay: v.OriginalArrivalDay,
		DaysHeld:    v.DaysHeld,
		Reason:      v.HeldReason,
		LDRText:     v.LDRText,
	})
}
