package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchInput(t *testing.T, courses map[CourseID][]StudentID, halls []Hall, days int, slotsPerDay int, minGap int) *Input {
	t.Helper()
	end := "2025-06-0" + string(rune('1'+days))
	slots, err := BuildSlots(CalendarConfig{
		StartDate:    "2025-06-02",
		EndDate:      end,
		SlotsPerDay:  slotsPerDay,
		SlotDuration: 120,
	})
	require.NoError(t, err)

	cs := coursesFrom(courses)
	var regs []Registration
	for id, students := range courses {
		for _, s := range students {
			regs = append(regs, Registration{StudentID: s, CourseID: id})
		}
	}
	return &Input{
		Registrations: regs,
		Courses:       cs,
		Halls:         halls,
		Slots:         slots,
		Graph:         BuildConflictGraph(cs),
		MinGapMinutes: minGap,
	}
}

func TestSearchFindsFeasibleSchedule(t *testing.T) {
	in := searchInput(t, map[CourseID][]StudentID{
		"MATH": {"s1", "s2"},
		"PHYS": {"s1", "s3"},
		"CHEM": {"s4"},
	}, []Hall{{ID: "h1", Capacity: 10, Group: DefaultHallGroup}}, 2, 2, 0)

	res, err := Search(context.Background(), in, Params{Tries: 20, Seed: 42})
	require.NoError(t, err)

	assert.Zero(t, res.Penalty)
	assert.Empty(t, res.Unassigned)
	assert.Len(t, res.Assignments, 3)
	assert.False(t, res.Cancelled)
	assert.Equal(t, int64(42), res.Seed)
	assert.LessOrEqual(t, res.Attempts, 20)
	assert.Positive(t, res.Attempts)

	// MATH and PHYS share a student and must land in different slots.
	slotOf := make(map[CourseID]int)
	for _, a := range res.Assignments {
		slotOf[a.CourseID] = a.SlotID
	}
	assert.NotEqual(t, slotOf["MATH"], slotOf["PHYS"])
}

func TestSearchDeterministicAcrossWorkerCounts(t *testing.T) {
	build := func() *Input {
		return searchInput(t, map[CourseID][]StudentID{
			"A": {"s1", "s2"}, "B": {"s2", "s3"}, "C": {"s3", "s4"},
			"D": {"s4", "s5"}, "E": {"s5", "s1"}, "F": {"s6"},
		}, []Hall{
			{ID: "h1", Capacity: 3, Group: "east"},
			{ID: "h2", Capacity: 3, Group: "west"},
		}, 2, 2, 120)
	}

	base, err := Search(context.Background(), build(), Params{Tries: 30, Seed: 7, Workers: 1})
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 8} {
		res, err := Search(context.Background(), build(), Params{Tries: 30, Seed: 7, Workers: workers})
		require.NoError(t, err)
		assert.Equal(t, base.Penalty, res.Penalty, "workers=%d", workers)
		assert.Equal(t, base.Assignments, res.Assignments, "workers=%d", workers)
		assert.Equal(t, base.Unassigned, res.Unassigned, "workers=%d", workers)
		assert.Equal(t, base.BestTrial, res.BestTrial, "workers=%d", workers)
	}
}

func TestSearchForcedConflictStillReturnsBestEffort(t *testing.T) {
	// Two courses sharing a student but only one slot to put them in.
	in := searchInput(t, map[CourseID][]StudentID{
		"MATH": {"s1"},
		"PHYS": {"s1"},
	}, []Hall{{ID: "h1", Capacity: 10, Group: DefaultHallGroup}}, 1, 1, 0)
	require.Len(t, in.Slots, 1)

	res, err := Search(context.Background(), in, Params{Tries: 5, Seed: 3})
	require.NoError(t, err)

	assert.Positive(t, res.Penalty)
	assert.Len(t, res.Assignments, 2)
	assert.Equal(t, 5, res.Attempts)
}

func TestSearchCapacityShortfallRecorded(t *testing.T) {
	in := searchInput(t, map[CourseID][]StudentID{
		"BIG": studentList(30, "s"),
	}, []Hall{{ID: "tiny", Capacity: 10, Group: DefaultHallGroup}}, 1, 1, 0)

	res, err := Search(context.Background(), in, Params{Tries: 3, Seed: 1})
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, 20, res.Assignments[0].Shortfall)
	assert.Positive(t, res.Penalty)
}

func TestSearchAllowedSlotsRestriction(t *testing.T) {
	in := searchInput(t, map[CourseID][]StudentID{
		"FIX": {"s1"},
	}, []Hall{{ID: "h1", Capacity: 10, Group: DefaultHallGroup}}, 2, 2, 0)
	in.AllowedSlots = map[CourseID]map[int]bool{"FIX": {3: true}}

	res, err := Search(context.Background(), in, Params{Tries: 10, Seed: 9})
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	assert.Equal(t, 3, res.Assignments[0].SlotID)
}

func TestSearchPicksSeedWhenZero(t *testing.T) {
	in := searchInput(t, map[CourseID][]StudentID{"A": {"s1"}},
		[]Hall{{ID: "h1", Capacity: 5, Group: DefaultHallGroup}}, 1, 1, 0)

	res, err := Search(context.Background(), in, Params{Tries: 2})
	require.NoError(t, err)
	assert.NotZero(t, res.Seed)
}

func TestSearchInvalidParams(t *testing.T) {
	in := searchInput(t, map[CourseID][]StudentID{"A": {"s1"}},
		[]Hall{{ID: "h1", Capacity: 5, Group: DefaultHallGroup}}, 1, 1, 0)

	_, err := Search(context.Background(), in, Params{Tries: 0})
	assert.ErrorIs(t, err, ErrInvalidScheduleParams)

	noHalls := searchInput(t, map[CourseID][]StudentID{"A": {"s1"}},
		[]Hall{{ID: "h1", Capacity: 5, Group: DefaultHallGroup}}, 1, 1, 0)
	noHalls.Halls = nil
	_, err = Search(context.Background(), noHalls, Params{Tries: 1})
	assert.ErrorIs(t, err, ErrInvalidScheduleParams)
}

func TestSearchCancelledBeforeStart(t *testing.T) {
	in := searchInput(t, map[CourseID][]StudentID{
		"A": {"s1"}, "B": {"s2"},
	}, []Hall{{ID: "h1", Capacity: 5, Group: DefaultHallGroup}}, 1, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Search(ctx, in, Params{Tries: 50, Seed: 5})
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Assignments)
	assert.ElementsMatch(t, []CourseID{"A", "B"}, res.Unassigned)
	assert.Zero(t, res.Attempts)
}

func TestSearchEmptyInput(t *testing.T) {
	in := &Input{Graph: BuildConflictGraph(nil)}
	res, err := Search(context.Background(), in, Params{Tries: 3, Seed: 1})
	require.NoError(t, err)

	assert.Zero(t, res.Penalty)
	assert.Empty(t, res.Assignments)
	assert.Empty(t, res.Unassigned)
}

func TestSearchMorePenaltyNeverWorsensWithMoreTries(t *testing.T) {
	// A 5-cycle of shared students with only two slots cannot be solved, so
	// every run keeps a positive penalty and the full trial budget is spent.
	// Because trials are seeded by index and reduced by minimum penalty, a
	// longer run sees a superset of a shorter run's trials.
	build := func() *Input {
		return searchInput(t, map[CourseID][]StudentID{
			"A": {"s1", "s2"}, "B": {"s2", "s3"}, "C": {"s3", "s4"},
			"D": {"s4", "s5"}, "E": {"s5", "s1"},
		}, []Hall{{ID: "h1", Capacity: 4, Group: DefaultHallGroup}}, 1, 2, 120)
	}

	prev := -1.0
	for _, tries := range []int{1, 2, 5, 10, 20, 40} {
		res, err := Search(context.Background(), build(), Params{Tries: tries, Seed: 17, Workers: 2})
		require.NoError(t, err)
		require.Positive(t, res.Penalty, "tries=%d", tries)
		if prev >= 0 {
			assert.LessOrEqual(t, res.Penalty, prev, "tries=%d", tries)
		}
		prev = res.Penalty
	}
}

func TestTrialSeedSpreadsStreams(t *testing.T) {
	seen := make(map[int64]struct{})
	for i := 0; i < 100; i++ {
		seen[trialSeed(42, i)] = struct{}{}
	}
	assert.Len(t, seen, 100)
}
