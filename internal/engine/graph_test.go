package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coursesFrom(pairs map[CourseID][]StudentID) map[CourseID]*Course {
	out := make(map[CourseID]*Course, len(pairs))
	for id, students := range pairs {
		out[id] = &Course{ID: id, Students: students}
	}
	return out
}

func TestBuildConflictGraphSharedStudents(t *testing.T) {
	g := BuildConflictGraph(coursesFrom(map[CourseID][]StudentID{
		"MATH": {"s1", "s2", "s3"},
		"PHYS": {"s2", "s3"},
		"CHEM": {"s4"},
	}))

	assert.Equal(t, []CourseID{"CHEM", "MATH", "PHYS"}, g.Courses)
	assert.Equal(t, 2, g.SharedStudents("MATH", "PHYS"))
	assert.Equal(t, 2, g.SharedStudents("PHYS", "MATH"))
	assert.Equal(t, 0, g.SharedStudents("MATH", "CHEM"))
	assert.Equal(t, 0, g.SharedStudents("MATH", "UNKNOWN"))

	require.Len(t, g.Degrees, 3)
	assert.Equal(t, 0, g.Degrees[g.Index["CHEM"]])
	assert.Equal(t, 1, g.Degrees[g.Index["MATH"]])
	assert.Equal(t, 1, g.Degrees[g.Index["PHYS"]])
}

func TestConflictPairsSorted(t *testing.T) {
	g := BuildConflictGraph(coursesFrom(map[CourseID][]StudentID{
		"C": {"s1"},
		"B": {"s1", "s2"},
		"A": {"s2"},
	}))

	pairs := g.ConflictPairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, [2]CourseID{"A", "B"}, pairs[0])
	assert.Equal(t, [2]CourseID{"B", "C"}, pairs[1])
}

func TestBuildConflictGraphStudentCoursesSorted(t *testing.T) {
	g := BuildConflictGraph(coursesFrom(map[CourseID][]StudentID{
		"Z": {"s1"},
		"A": {"s1"},
		"M": {"s1"},
	}))
	assert.Equal(t, []CourseID{"A", "M", "Z"}, g.StudentCourses["s1"])
}

func TestBuildConflictGraphEmpty(t *testing.T) {
	g := BuildConflictGraph(nil)
	assert.Empty(t, g.Courses)
	assert.Empty(t, g.ConflictPairs())
}
