package refinery

// Grade identifies a crude grade.
type Grade string

// LayDays is a loading date window parsed from text like "1-3 Oct".
// Days are 1-indexed within the planning horizon.
type LayDays struct {
	StartDay int
	EndDay   int
	Text     string
}

// Parcel is a quantity of one grade available for loading within a
// laydays window. Parcels are immutable once preprocessed; each parcel
// belongs to exactly one vessel in a solution.
type Parcel struct {
	ID              string
	Grade           Grade
	Origin          string
	VolumeKB        float64
	LayDays         LayDays
	TravelDays      float64
	EarliestArrival int
	LatestArrival   int
}

// Allocation records a volume placed into a named tank. Tank is
// OverflowTank when the volume could not be placed anywhere.
type Allocation struct {
	Tank     string
	VolumeKB float64
}

// OverflowTank marks unallocatable volume in an Allocation.
const OverflowTank = "OVERFLOW"

// Overflowed reports whether any allocation in the list spilled.
func Overflowed(allocs []Allocation) bool {
	for _, a := range allocs {
		if a.Tank == OverflowTank {
			return true
		}
	}
	return false
}

// Cargo is one grade/volume lot carried by a vessel. TankAllocation is
// filled when the cargo is committed to tanks; SimulatedAllocation is
// kept for reporting when the vessel could not berth.
type Cargo struct {
	Grade               Grade
	Origin              string
	VolumeKB            float64
	TankAllocation      []Allocation
	SimulatedAllocation []Allocation
}

// TargetStatus annotates a vessel cargo grade against its target
// delivery day.
type TargetStatus struct {
	TargetDay int
	ActualDay int
	Status    string
}

// Vessel is a set of 1-3 parcels travelling together. ArrivalDay is the
// planned arrival; ActualArrivalDay is set when the vessel berths.
// Deferred vessels track OriginalArrivalDay and DaysHeld; vessels still
// pending when the horizon ends carry HeldReason and
// EarliestPossibleDay.
type Vessel struct {
	ArrivalDay          int
	Cargo               []Cargo
	LDRText             string
	LoadingStart        int
	LoadingEnd          int
	ActualArrivalDay    int
	OriginalArrivalDay  int
	DaysHeld            int
	HeldReason          string
	EarliestPossibleDay string
	MeetsTargets        map[Grade]TargetStatus
}

// TotalVolumeKB sums the vessel's cargo volumes.
func (v *Vessel) TotalVolumeKB() float64 {
	var total float64
	for _, c := range v.Cargo {
		total += c.VolumeKB
	}
	return total
}

// Grades returns the distinct grades carried by the vessel.
func (v *Vessel) Grades() []Grade {
	seen := make(map[Grade]bool, len(v.Cargo))
	var grades []Grade
	for _, c := range v.Cargo {
		if !seen[c.Grade] {
			seen[c.Grade] = true
			grades = append(grades, c.Grade)
		}
	}
	return grades
}

// TankContent is one grade lot inside a tank. Tanks hold multiple
// grades only as separate content entries; no mixing is modelled at
// the tank level.
type TankContent struct {
	Grade    Grade
	VolumeKB float64
}

// Tank is a named storage unit with fixed capacity. Tank order is
// significant: allocation scans tanks in declared order.
type Tank struct {
	Name       string
	CapacityKB float64
	Contents   []TankContent
}

// UsedKB is the volume currently held by the tank.
func (t *Tank) UsedKB() float64 {
	var used float64
	for _, c := range t.Contents {
		used += c.VolumeKB
	}
	return used
}

// AvailableKB is the remaining ullage of the tank.
func (t *Tank) AvailableKB() float64 {
	return t.CapacityKB - t.UsedKB()
}

// HasGrade reports whether the tank currently holds the grade.
func (t *Tank) HasGrade(g Grade) bool {
	for _, c := range t.Contents {
		if c.Grade == g {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the tank holds nothing.
func (t *Tank) IsEmpty() bool {
	return len(t.Contents) == 0
}

// Clone deep-copies the tank.
func (t *Tank) Clone() Tank {
	out := Tank{Name: t.Name, CapacityKB: t.CapacityKB}
	if len(t.Contents) > 0 {
		out.Contents = make([]TankContent, len(t.Contents))
		copy(out.Contents, t.Contents)
	}
	return out
}

// CloneTanks deep-copies a tank slice preserving order.
func CloneTanks(tanks []Tank) []Tank {
	out := make([]Tank, len(tanks))
	for i := range tanks {
		out[i] = tanks[i].Clone()
	}
	return out
}

// Inventory maps grade to total volume held across all tanks.
type Inventory map[Grade]float64

// Clone copies the inventory map.
func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for g, v := range inv {
		out[g] = v
	}
	return out
}

// TotalKB sums the inventory across grades.
func (inv Inventory) TotalKB() float64 {
	var total float64
	for _, v := range inv {
		total += v
	}
	return total
}

// BlendDetail records one blend (or solo) processing operation for a
// day. SecondaryGrade is empty for solo processing and Ratio renders as
// "1.00:0.00".
type BlendDetail struct {
	PrimaryGrade    Grade
	SecondaryGrade  Grade
	PrimaryRate     float64
	SecondaryRate   float64
	TotalRate       float64
	Ratio           string
	CapacityUsed    float64
	CapacityLimit   float64
}

// Pairing describes the blend partner and ratio for a grade, with the
// processing capacity limit for that configuration. Ratio fractions sum
// to 1; a grade without a partner has PairedWith == "" and Ratio [1].
type Pairing struct {
	PairedWith  Grade
	CapacityBPD float64
	Ratio       []float64
}
