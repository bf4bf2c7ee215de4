package refinery

import (
	"fmt"
	"sort"
)

// candidatePairing is a blend option ranked by volume-weighted margin.
type candidatePairing struct {
	primary        Grade
	secondary      Grade
	ratio          []float64
	capacityKBD    float64
	weightedMargin float64
}

// ComputeProcessingRates applies the margin-priority heuristic for one
// day: grades are ranked by margin, candidate pairings by
// ratio-weighted margin, and the single best feasible pairing is
// processed up to the lesser of its capacity limit and remaining plant
// capacity, apportioned by blend ratio and limited by the scarcer
// grade. When no pairing is processed, the highest-margin grade with
// inventory runs solo. At most one blend operation is recorded; the LP
// optimizer later relaxes this.
//
// Plant and pairing capacities arrive in barrels per day and are
// converted to kb/day. Every grade holding inventory must appear in
// both the pairings and margins tables; a missing entry is an error
// rather than a silent default, since downstream optimization depends
// on complete tables.
func ComputeProcessingRates(inventory Inventory, pairings map[Grade]Pairing, plantCapacityBPD float64, margins map[Grade]float64) (map[Grade]float64, []BlendDetail, error) {
	remaining := inventory.Clone()

	rates := make(map[Grade]float64, len(remaining))
	for g := range remaining {
		rates[g] = 0
	}
	var blends []BlendDetail

	var held []Grade
	for g, vol := range remaining {
		if vol <= 0 {
			continue
		}
		if _, ok := margins[g]; !ok {
			return nil, nil, fmt.Errorf("grade %s holds inventory but has no margin entry", g)
		}
		if _, ok := pairings[g]; !ok {
			return nil, nil, fmt.Errorf("grade %s holds inventory but has no pairing entry", g)
		}
		held = append(held, g)
	}
	// Highest margin first; name breaks ties for determinism.
	sort.Slice(held, func(i, j int) bool {
		mi, mj := margins[held[i]], margins[held[j]]
		if mi != mj {
			return mi > mj
		}
		return held[i] < held[j]
	})

	plantCapacityKBD := plantCapacityBPD / 1000

	var candidates []candidatePairing
	for _, g := range held {
		p := pairings[g]
		if p.PairedWith == "" || remaining[p.PairedWith] <= 0 {
			continue
		}
		if len(p.Ratio) != 2 || p.Ratio[0] <= 0 || p.Ratio[1] <= 0 {
			return nil, nil, fmt.Errorf("grade %s: pairing with %s needs two positive ratio parts", g, p.PairedWith)
		}
		capacityKBD := p.CapacityBPD / 1000
		if p.CapacityBPD == 0 {
			capacityKBD = plantCapacityKBD
		}
		candidates = append(candidates, candidatePairing{
			primary:        g,
			secondary:      p.PairedWith,
			ratio:          p.Ratio,
			capacityKBD:    capacityKBD,
			weightedMargin: margins[g]*p.Ratio[0] + margins[p.PairedWith]*p.Ratio[1],
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].weightedMargin > candidates[j].weightedMargin
	})

	remainingCapacity := plantCapacityKBD
	processed := false

	if len(candidates) > 0 {
		c := candidates[0]
		maxCapacity := min(c.capacityKBD, remainingCapacity)

		if remaining[c.primary] > 0 && remaining[c.secondary] > 0 {
			maxPrimary := min(remaining[c.primary], maxCapacity*c.ratio[0])
			maxSecondary := min(remaining[c.secondary], maxCapacity*c.ratio[1])

			var processPrimary, processSecondary float64
			if maxPrimary/c.ratio[0] < maxSecondary/c.ratio[1] {
				processPrimary = maxPrimary
				processSecondary = processPrimary * c.ratio[1] / c.ratio[0]
			} else {
				processSecondary = maxSecondary
				processPrimary = processSecondary * c.ratio[0] / c.ratio[1]
			}

			total := processPrimary + processSecondary
			if total > maxCapacity {
				scale := maxCapacity / total
				processPrimary *= scale
				processSecondary *= scale
				total = maxCapacity
			}

			if total > 0 {
				rates[c.primary] += processPrimary
				rates[c.secondary] += processSecondary
				remaining[c.primary] -= processPrimary
				remaining[c.secondary] -= processSecondary
				remainingCapacity -= total

				blends = append(blends, BlendDetail{
					PrimaryGrade:   c.primary,
					SecondaryGrade: c.secondary,
					PrimaryRate:    processPrimary,
					SecondaryRate:  processSecondary,
					TotalRate:      total,
					Ratio:          FormatRatio(c.ratio[0], c.ratio[1]),
					CapacityUsed:   total,
					CapacityLimit:  c.capacityKBD,
				})
				processed = true
			}
		}
	}

	if !processed && len(held) > 0 && remainingCapacity > 0 {
		g := held[0]
		p := pairings[g]
		capacityKBD := p.CapacityBPD / 1000
		if p.CapacityBPD == 0 {
			capacityKBD = plantCapacityKBD
		}
		maxCapacity := min(capacityKBD, remainingCapacity)
		rate := min(remaining[g], maxCapacity)
		if rate > 0 {
			rates[g] += rate
			remaining[g] -= rate
			blends = append(blends, BlendDetail{
				PrimaryGrade:  g,
				PrimaryRate:   rate,
				TotalRate:     rate,
				Ratio:         FormatRatio(1, 0),
				CapacityUsed:  rate,
				CapacityLimit: capacityKBD,
			})
		}
	}

	return rates, blends, nil
}

// FormatRatio renders a blend ratio as "0.60:0.40".
func FormatRatio(primary, secondary float64) string {
	return fmt.Sprintf("%.2f:%.2f", primary, secondary)
}
