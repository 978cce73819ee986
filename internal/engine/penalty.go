package engine

import "time"

// PenaltyWeights scales each quality component of a candidate schedule.
// Lower totals are better; a zero total means fully feasible.
type PenaltyWeights struct {
	Conflict          float64 // per shared student sitting two exams in one slot
	GapViolation      float64 // per exam pair of one student closer than the minimum gap
	CapacityShortfall float64 // per seat the assigned halls fall short
	Unassigned        float64 // per course left without a slot
	HallSplit         float64 // per extra hall beyond the first for one course
}

// DefaultPenaltyWeights returns the stock weighting: direct conflicts
// dominate, gap violations matter, room splits barely nudge ties.
func DefaultPenaltyWeights() PenaltyWeights {
	return PenaltyWeights{
		Conflict:          1000,
		GapViolation:      120,
		CapacityShortfall: 8,
		Unassigned:        600,
		HallSplit:         3,
	}
}

func (w PenaltyWeights) isZero() bool {
	return w == PenaltyWeights{}
}

// evaluatePlacement scores a full placement (slot ID per graph vertex,
// UnassignedSlot for unplaced courses). It is the ground truth the trials
// and the local-improvement pass both optimize against.
func evaluatePlacement(in *Input, placement []int) float64 {
	var total float64
	g := in.Graph

	// Direct conflicts: both endpoints of an edge in the same slot.
	for i := range g.Adj {
		if placement[i] == UnassignedSlot {
			total += in.Weights.Unassigned
			continue
		}
		for j, shared := range g.Adj[i] {
			if j > i && placement[j] == placement[i] {
				total += in.Weights.Conflict * float64(shared)
			}
		}
	}

	// Minimum-gap violations on absolute timestamp deltas, crossing day
	// boundaries when the window rule makes two slots close enough.
	if in.MinGapMinutes > 0 {
		minGap := time.Duration(in.MinGapMinutes) * time.Minute
		for _, courses := range g.StudentCourses {
			times := make([]time.Time, 0, len(courses))
			slotsSeen := make([]int, 0, len(courses))
			for _, id := range courses {
				slotID := placement[g.Index[id]]
				if slotID == UnassignedSlot {
					continue
				}
				times = append(times, in.Slots[slotID].Start)
				slotsSeen = append(slotsSeen, slotID)
			}
			for i := 0; i < len(times); i++ {
				for j := i + 1; j < len(times); j++ {
					if slotsSeen[i] == slotsSeen[j] {
						continue // same slot is a conflict, not a gap issue
					}
					delta := times[i].Sub(times[j])
					if delta < 0 {
						delta = -delta
					}
					if delta < minGap {
						total += in.Weights.GapViolation
					}
				}
			}
		}
	}

	// Capacity shortfalls and room splits from re-packing every used slot.
	for _, packed := range packPlacement(in, placement) {
		for _, pc := range packed {
			total += in.Weights.CapacityShortfall * float64(pc.Shortfall)
			if extra := len(pc.Halls) - 1; extra > 0 {
				total += in.Weights.HallSplit * float64(extra)
			}
		}
	}

	return total
}

// packPlacement groups placed courses by slot and packs each slot's halls.
func packPlacement(in *Input, placement []int) map[int]map[CourseID]PackedCourse {
	bySlot := make(map[int][]*Course)
	for i, slotID := range placement {
		if slotID == UnassignedSlot {
			continue
		}
		id := in.Graph.Courses[i]
		bySlot[slotID] = append(bySlot[slotID], in.Courses[id])
	}
	packed := make(map[int]map[CourseID]PackedCourse, len(bySlot))
	for slotID, courses := range bySlot {
		packed[slotID] = PackSlot(courses, in.Halls)
	}
	return packed
}
