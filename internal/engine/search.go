package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidScheduleParams reports structurally unusable search parameters.
// It is surfaced before any trial runs.
var ErrInvalidScheduleParams = errors.New("invalid schedule parameters")

// Input is the immutable shared state every trial reads. It is built once per
// request and never mutated during the search.
type Input struct {
	Registrations []Registration
	Courses       map[CourseID]*Course
	Halls         []Hall
	Slots         []Slot
	Graph         *ConflictGraph
	AllowedSlots  map[CourseID]map[int]bool // nil/absent course means unrestricted
	MinGapMinutes int
	Weights       PenaltyWeights
}

// Params tunes one search run.
type Params struct {
	Tries   int   // independent randomized trials, default handled by callers
	Seed    int64 // 0 means pick a fresh seed and record it
	Workers int   // parallel trial workers, 0 means GOMAXPROCS
}

// Result is the best assignment found plus its provenance. The same inputs
// and a nonzero seed always produce an identical Result regardless of worker
// count, because trials are seeded by index and reduced by (penalty, index).
type Result struct {
	Assignments []Assignment
	Unassigned  []CourseID
	Penalty     float64
	Seed        int64
	Attempts    int
	BestTrial   int
	SlotsUsed   int
	Duration    time.Duration
	Cancelled   bool
}

// Search runs up to Tries independent randomized trials and keeps the
// lowest-penalty placement. Cancellation via ctx lands between trials; the
// best completed trial is still returned with Cancelled set.
func Search(ctx context.Context, in *Input, p Params) (*Result, error) {
	started := time.Now()

	if p.Tries <= 0 {
		return nil, fmt.Errorf("%w: tries must be positive, got %d", ErrInvalidScheduleParams, p.Tries)
	}
	if len(in.Registrations) > 0 {
		if len(in.Courses) == 0 {
			return nil, fmt.Errorf("%w: registrations present but no courses", ErrInvalidScheduleParams)
		}
		if len(in.Halls) == 0 {
			return nil, fmt.Errorf("%w: registrations present but no halls", ErrInvalidScheduleParams)
		}
	}
	if in.Graph == nil {
		in.Graph = BuildConflictGraph(in.Courses)
	}
	if in.Weights.isZero() {
		in.Weights = DefaultPenaltyWeights()
	}

	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > p.Tries {
		workers = p.Tries
	}

	candidates := candidateSlots(in)

	type outcome struct {
		placement []int
		penalty   float64
	}
	results := make([]*outcome, p.Tries)

	var stop atomic.Bool
	indexCh := make(chan int)
	go func() {
		defer close(indexCh)
		for i := 0; i < p.Tries; i++ {
			if stop.Load() {
				return
			}
			select {
			case indexCh <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexCh {
				if ctx.Err() != nil {
					continue // drain without running: cancellation is between trials
				}
				placement, penalty := runTrial(in, candidates, trialSeed(seed, idx))
				results[idx] = &outcome{placement: placement, penalty: penalty}
				if penalty == 0 {
					stop.Store(true)
				}
			}
		}()
	}
	wg.Wait()

	bestIdx := -1
	completed := 0
	for i, r := range results {
		if r == nil {
			continue
		}
		completed++
		if bestIdx == -1 || r.penalty < results[bestIdx].penalty {
			bestIdx = i
		}
	}

	res := &Result{Seed: seed, Duration: time.Since(started)}
	res.Cancelled = ctx.Err() != nil && completed < p.Tries

	var placement []int
	switch {
	case bestIdx >= 0:
		placement = results[bestIdx].placement
		res.Penalty = results[bestIdx].penalty
		res.BestTrial = bestIdx
	default:
		// Cancelled before any trial finished: report a well-formed,
		// fully-unassigned result rather than a partial one.
		placement = make([]int, len(in.Graph.Courses))
		for i := range placement {
			placement[i] = UnassignedSlot
		}
		res.Penalty = evaluatePlacement(in, placement)
		res.BestTrial = -1
	}

	switch {
	case res.Cancelled:
		res.Attempts = completed
	case stop.Load():
		// Early exit on a perfect trial: count the trials up to and
		// including the winner so stats stay reproducible.
		res.Attempts = bestIdx + 1
	default:
		res.Attempts = p.Tries
	}

	res.Assignments, res.Unassigned, res.SlotsUsed = finalize(in, placement)
	return res, nil
}

// trialSeed derives an independent, reproducible stream seed for one trial
// from the run seed and the trial index (splitmix64 step).
func trialSeed(seed int64, trial int) int64 {
	z := uint64(seed) + uint64(trial+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}

// candidateSlots resolves, per graph vertex, the sorted slot IDs a course may
// occupy under its allowed-slot restriction.
func candidateSlots(in *Input) [][]int {
	all := make([]int, len(in.Slots))
	for i, s := range in.Slots {
		all[i] = s.ID
	}

	cands := make([][]int, len(in.Graph.Courses))
	for i, id := range in.Graph.Courses {
		allowed, restricted := in.AllowedSlots[id]
		if !restricted || len(allowed) == 0 {
			cands[i] = all
			continue
		}
		var subset []int
		for _, s := range in.Slots {
			if allowed[s.ID] {
				subset = append(subset, s.ID)
			}
		}
		cands[i] = subset
	}
	return cands
}

type placedExam struct {
	slotID int
	at     time.Time
}

// runTrial builds one randomized placement (most-constrained-first greedy
// construction) and polishes it with a bounded swap-based improvement pass.
func runTrial(in *Input, candidates [][]int, seed int64) ([]int, float64) {
	rng := rand.New(rand.NewSource(seed))
	g := in.Graph
	n := len(g.Courses)

	placement := make([]int, n)
	for i := range placement {
		placement[i] = UnassignedSlot
	}
	if n == 0 {
		return placement, evaluatePlacement(in, placement)
	}

	// High-conflict-degree courses first; ties broken by the trial's own
	// random stream so trials explore different constructions.
	order := make([]int, n)
	jitter := make([]int, n)
	for i := range order {
		order[i] = i
		jitter[i] = rng.Int()
	}
	sort.Slice(order, func(a, b int) bool {
		va, vb := order[a], order[b]
		if g.Degrees[va] != g.Degrees[vb] {
			return g.Degrees[va] > g.Degrees[vb]
		}
		return jitter[va] < jitter[vb]
	})

	slotByID := make(map[int]Slot, len(in.Slots))
	for _, s := range in.Slots {
		slotByID[s.ID] = s
	}
	slotSeats := make(map[int]*hallSeats)
	studentExams := make(map[StudentID][]placedExam)
	minGap := time.Duration(in.MinGapMinutes) * time.Minute

	for _, v := range order {
		course := in.Courses[g.Courses[v]]
		bestSlot := UnassignedSlot
		bestCost := 0.0

		for _, slotID := range candidates[v] {
			cost := 0.0
			for nb, shared := range g.Adj[v] {
				if placement[nb] == slotID {
					cost += in.Weights.Conflict * float64(shared)
				}
			}
			if in.MinGapMinutes > 0 {
				start := slotByID[slotID].Start
				for _, st := range course.Students {
					for _, exam := range studentExams[st] {
						if exam.slotID == slotID {
							continue
						}
						delta := start.Sub(exam.at)
						if delta < 0 {
							delta = -delta
						}
						if delta < minGap {
							cost += in.Weights.GapViolation
						}
					}
				}
			}
			seats := slotSeats[slotID]
			if seats == nil {
				seats = newHallSeats(in.Halls)
				slotSeats[slotID] = seats
			}
			halls, short := seats.clone().pack(course.Enrolled())
			cost += in.Weights.CapacityShortfall * float64(short)
			if extra := len(halls) - 1; extra > 0 {
				cost += in.Weights.HallSplit * float64(extra)
			}

			if bestSlot == UnassignedSlot || cost < bestCost {
				bestSlot = slotID
				bestCost = cost
			}
			if bestCost == 0 {
				break
			}
		}

		if bestSlot == UnassignedSlot {
			continue // no candidate slot at all; scored as unassigned
		}
		placement[v] = bestSlot
		slotSeats[bestSlot].pack(course.Enrolled())
		start := slotByID[bestSlot].Start
		for _, st := range course.Students {
			studentExams[st] = append(studentExams[st], placedExam{slotID: bestSlot, at: start})
		}
	}

	return improvePlacement(in, candidates, placement, rng)
}

// improvePlacement greedily accepts random pairwise slot swaps that strictly
// reduce the total penalty. The budget scales with problem size so the pass
// stays proportional, not adversarial.
func improvePlacement(in *Input, candidates [][]int, placement []int, rng *rand.Rand) ([]int, float64) {
	n := len(placement)
	best := evaluatePlacement(in, placement)
	if n < 2 {
		return placement, best
	}

	budget := 12 * n
	for it := 0; it < budget && best > 0; it++ {
		a := rng.Intn(n)
		b := rng.Intn(n)
		if a == b || placement[a] == placement[b] {
			continue
		}
		if placement[a] == UnassignedSlot || placement[b] == UnassignedSlot {
			continue
		}
		if !slotAllowed(candidates[a], placement[b]) || !slotAllowed(candidates[b], placement[a]) {
			continue
		}
		placement[a], placement[b] = placement[b], placement[a]
		if cand := evaluatePlacement(in, placement); cand < best {
			best = cand
		} else {
			placement[a], placement[b] = placement[b], placement[a]
		}
	}
	return placement, best
}

func slotAllowed(sorted []int, slotID int) bool {
	i := sort.SearchInts(sorted, slotID)
	return i < len(sorted) && sorted[i] == slotID
}

// finalize packs halls for the winning placement and orders the output
// deterministically: assignments by slot start then course, unassigned by ID.
func finalize(in *Input, placement []int) ([]Assignment, []CourseID, int) {
	packed := packPlacement(in, placement)

	var assignments []Assignment
	var unassigned []CourseID
	for i, slotID := range placement {
		id := in.Graph.Courses[i]
		if slotID == UnassignedSlot {
			unassigned = append(unassigned, id)
			continue
		}
		pc := packed[slotID][id]
		assignments = append(assignments, Assignment{
			CourseID:  id,
			SlotID:    slotID,
			Halls:     pc.Halls,
			Shortfall: pc.Shortfall,
		})
	}

	slotStart := make(map[int]time.Time, len(in.Slots))
	for _, s := range in.Slots {
		slotStart[s.ID] = s.Start
	}
	sort.Slice(assignments, func(i, j int) bool {
		si, sj := slotStart[assignments[i].SlotID], slotStart[assignments[j].SlotID]
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return assignments[i].CourseID < assignments[j].CourseID
	})
	sort.Slice(unassigned, func(i, j int) bool { return unassigned[i] < unassigned[j] })

	return assignments, unassigned, len(packed)
}
