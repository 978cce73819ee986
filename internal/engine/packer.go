package engine

import "sort"

// DefaultHallGroup labels halls whose inventory row carried no group.
const DefaultHallGroup = "ungrouped"

// PackedCourse is the hall split decided for one course within a slot.
type PackedCourse struct {
	CourseID  CourseID
	Halls     []HallID
	Shortfall int
}

// PackSlot seats the courses sharing one slot into the hall inventory.
// Courses are processed largest-enrollment-first; each gets the smallest
// single hall that still fits, then the tightest same-group combination, and
// only mixes groups when no single group can cover it. A course the remaining
// seats cannot cover is recorded with a shortfall instead of over-filling.
//
// Seats are shared: a hall may host several courses in the same slot up to
// its capacity.
func PackSlot(courses []*Course, halls []Hall) map[CourseID]PackedCourse {
	ordered := make([]*Course, len(courses))
	copy(ordered, courses)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Enrolled() != ordered[j].Enrolled() {
			return ordered[i].Enrolled() > ordered[j].Enrolled()
		}
		return ordered[i].ID < ordered[j].ID
	})

	seats := newHallSeats(halls)
	packed := make(map[CourseID]PackedCourse, len(ordered))
	for _, course := range ordered {
		assigned, shortfall := seats.pack(course.Enrolled())
		packed[course.ID] = PackedCourse{CourseID: course.ID, Halls: assigned, Shortfall: shortfall}
	}
	return packed
}

// hallSeats tracks residual seats per hall within a single slot.
type hallSeats struct {
	halls    []Hall // sorted by capacity desc, then ID, fixing scan order
	residual map[HallID]int
}

func newHallSeats(halls []Hall) *hallSeats {
	s := &hallSeats{
		halls:    make([]Hall, len(halls)),
		residual: make(map[HallID]int, len(halls)),
	}
	copy(s.halls, halls)
	sort.Slice(s.halls, func(i, j int) bool {
		if s.halls[i].Capacity != s.halls[j].Capacity {
			return s.halls[i].Capacity > s.halls[j].Capacity
		}
		return s.halls[i].ID < s.halls[j].ID
	})
	for _, h := range s.halls {
		s.residual[h.ID] = h.Capacity
	}
	return s
}

func (s *hallSeats) clone() *hallSeats {
	c := &hallSeats{halls: s.halls, residual: make(map[HallID]int, len(s.residual))}
	for id, r := range s.residual {
		c.residual[id] = r
	}
	return c
}

func (s *hallSeats) totalResidual() int {
	total := 0
	for _, r := range s.residual {
		total += r
	}
	return total
}

// pack seats one course and deducts the taken seats. Returned hall IDs are
// sorted; shortfall is the seat count no hall combination could provide.
func (s *hallSeats) pack(need int) ([]HallID, int) {
	if need <= 0 {
		return nil, 0
	}

	if id, ok := s.bestSingle(need); ok {
		s.take(id, need)
		return []HallID{id}, 0
	}

	if combo, ok := s.bestGroupCombo(need); ok {
		return s.takeCombo(combo, need), 0
	}

	// Last resort: span groups, largest residuals first.
	combo := s.greedyCombo(s.halls, need)
	short := need - comboCapacity(s, combo)
	if short < 0 {
		short = 0
	}
	return s.takeCombo(combo, need), short
}

// bestSingle finds the fullest-fitting single hall: the smallest residual
// still covering the whole course.
func (s *hallSeats) bestSingle(need int) (HallID, bool) {
	best := HallID("")
	bestResidual := -1
	for _, h := range s.halls {
		r := s.residual[h.ID]
		if r < need {
			continue
		}
		if bestResidual == -1 || r < bestResidual || (r == bestResidual && h.ID < best) {
			best = h.ID
			bestResidual = r
		}
	}
	return best, bestResidual != -1
}

// bestGroupCombo tries to cover the course inside one hall group, preferring
// the group that needs the fewest rooms.
func (s *hallSeats) bestGroupCombo(need int) ([]Hall, bool) {
	groups := make(map[string][]Hall)
	var names []string
	for _, h := range s.halls {
		if _, seen := groups[h.Group]; !seen {
			names = append(names, h.Group)
		}
		groups[h.Group] = append(groups[h.Group], h)
	}
	sort.Strings(names)

	var best []Hall
	for _, name := range names {
		combo := s.greedyCombo(groups[name], need)
		if comboCapacity(s, combo) < need {
			continue
		}
		if best == nil || len(combo) < len(best) {
			best = combo
		}
	}
	return best, best != nil
}

// greedyCombo accumulates halls in residual-descending order until the need
// is covered or the candidates run out.
func (s *hallSeats) greedyCombo(candidates []Hall, need int) []Hall {
	sorted := make([]Hall, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := s.residual[sorted[i].ID], s.residual[sorted[j].ID]
		if ri != rj {
			return ri > rj
		}
		return sorted[i].ID < sorted[j].ID
	})

	var combo []Hall
	remaining := need
	for _, h := range sorted {
		if remaining <= 0 {
			break
		}
		r := s.residual[h.ID]
		if r <= 0 {
			continue
		}
		combo = append(combo, h)
		remaining -= r
	}
	return combo
}

func comboCapacity(s *hallSeats, combo []Hall) int {
	total := 0
	for _, h := range combo {
		total += s.residual[h.ID]
	}
	return total
}

func (s *hallSeats) take(id HallID, seatCount int) {
	r := s.residual[id]
	if seatCount > r {
		seatCount = r
	}
	s.residual[id] = r - seatCount
}

func (s *hallSeats) takeCombo(combo []Hall, need int) []HallID {
	remaining := need
	ids := make([]HallID, 0, len(combo))
	for _, h := range combo {
		if remaining <= 0 {
			break
		}
		r := s.residual[h.ID]
		if r <= 0 {
			continue
		}
		taken := r
		if remaining < taken {
			taken = remaining
		}
		s.residual[h.ID] = r - taken
		remaining -= taken
		ids = append(ids, h.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
