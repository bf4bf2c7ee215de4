package scheduler

import "crudeplan/pkg/refinery"

// allocateToTanks places a cargo volume into the tank farm, mutating
// the given tanks. Preference order: tanks already holding the grade,
// then empty tanks, then any tank with spare capacity that holds the
// grade or is empty. Volume that fits nowhere is returned as an
// OVERFLOW allocation.
func allocateToTanks(tanks []refinery.Tank, grade refinery.Grade, volumeKB float64) []refinery.Allocation {
	remaining := volumeKB
	var allocs []refinery.Allocation

	// Tanks already holding this grade.
	for i := range tanks {
		if remaining <= 0 {
			break
		}
		t := &tanks[i]
		if !t.HasGrade(grade) {
			continue
		}
		if avail := t.AvailableKB(); avail > 0 {
			placed := min(remaining, avail)
			addContent(t, grade, placed)
			allocs = append(allocs, refinery.Allocation{Tank: t.Name, VolumeKB: placed})
			remaining -= placed
		}
	}

	// Empty tanks.
	if remaining > 0 {
		for i := range tanks {
			if remaining <= 0 {
				break
			}
			t := &tanks[i]
			if !t.IsEmpty() {
				continue
			}
			placed := min(remaining, t.CapacityKB)
			addContent(t, grade, placed)
			allocs = append(allocs, refinery.Allocation{Tank: t.Name, VolumeKB: placed})
			remaining -= placed
		}
	}

	// Any remaining ullage in a compatible tank.
	if remaining > 0 {
		for i := range tanks {
			if remaining <= 0 {
				break
			}
			t := &tanks[i]
			avail := t.AvailableKB()
			if avail <= 0 || (!t.HasGrade(grade) && !t.IsEmpty()) {
				continue
			}
			placed := min(remaining, avail)
			addContent(t, grade, placed)
			allocs = append(allocs, refinery.Allocation{Tank: t.Name, VolumeKB: placed})
			remaining -= placed
		}
	}

	if remaining > 0 {
		allocs = append(allocs, refinery.Allocation{Tank: refinery.OverflowTank, VolumeKB: remaining})
	}
	return allocs
}

// simulateAllocation runs the allocation against a copy of the tanks,
// leaving the real state untouched. The scheduler uses it to decide
// berthing before committing anything.
func simulateAllocation(tanks []refinery.Tank, grade refinery.Grade, volumeKB float64) []refinery.Allocation {
	return allocateToTanks(refinery.CloneTanks(tanks), grade, volumeKB)
}

// removeFromTanks drains processed volume from tanks holding the
// grade, in tank order. Volume beyond what the tanks hold is dropped,
// mirroring the floor applied to the inventory totals.
func removeFromTanks(tanks []refinery.Tank, grade refinery.Grade, volumeKB float64) {
	remaining := volumeKB
	for i := range tanks {
		if remaining <= 0 {
			return
		}
		t := &tanks[i]
		kept := t.Contents[:0]
		for _, c := range t.Contents {
			if c.Grade == grade && remaining > 0 {
				removed := min(remaining, c.VolumeKB)
				c.VolumeKB -= removed
				remaining -= removed
			}
			if c.VolumeKB > 0 {
				kept = append(kept, c)
			}
		}
		t.Contents = kept
	}
}

func addContent(t *refinery.Tank, grade refinery.Grade, volumeKB float64) {
	for i := range t.Contents {
		if t.Contents[i].Grade == grade {
			t.Contents[i].VolumeKB += volumeKB
			return
		}
	}
	t.Contents = append(t.Contents, refinery.TankContent{Grade: grade, VolumeKB: volumeKB})
}
