package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examdesk/exam-scheduler-api/internal/engine"
)

func TestParseRegistrationsDedupesRows(t *testing.T) {
	data := "student_id,course_id\ns1,MATH\ns1,MATH\ns2,MATH\ns1,PHYS\n"

	regs, courses, err := ParseRegistrations(data, ColumnMapping{})
	require.NoError(t, err)

	assert.Len(t, regs, 3)
	require.Contains(t, courses, engine.CourseID("MATH"))
	assert.Equal(t, 2, courses["MATH"].Enrolled())
	assert.Equal(t, 1, courses["PHYS"].Enrolled())
	assert.Equal(t, []engine.StudentID{"s1", "s2"}, courses["MATH"].Students)
}

func TestParseRegistrationsColumnMapping(t *testing.T) {
	data := "nim,matkul,extra\ns1,MATH,x\ns2,PHYS,y\n"

	regs, courses, err := ParseRegistrations(data, ColumnMapping{StudentID: "nim", CourseID: "matkul"})
	require.NoError(t, err)
	assert.Len(t, regs, 2)
	assert.Len(t, courses, 2)
}

func TestParseRegistrationsMissingColumns(t *testing.T) {
	_, _, err := ParseRegistrations("foo,bar\na,b\n", ColumnMapping{})
	assert.ErrorIs(t, err, ErrInvalidInputData)
}

func TestParseRegistrationsEmptyField(t *testing.T) {
	_, _, err := ParseRegistrations("student_id,course_id\ns1,\n", ColumnMapping{})
	assert.ErrorIs(t, err, ErrInvalidInputData)
}

func TestParseRegistrationsEmptyInput(t *testing.T) {
	_, _, err := ParseRegistrations("", ColumnMapping{})
	assert.ErrorIs(t, err, ErrInvalidInputData)
}

func TestParseRegistrationsSkipsComments(t *testing.T) {
	data := "student_id,course_id\n# imported 2025-06-01\ns1,MATH\n"
	regs, _, err := ParseRegistrations(data, ColumnMapping{})
	require.NoError(t, err)
	assert.Len(t, regs, 1)
}

func TestParseHalls(t *testing.T) {
	data := "hall,capacity,group\nA101,60,north\nB202,40,\nA101,99,south\n"

	halls, err := ParseHalls(data, ColumnMapping{})
	require.NoError(t, err)
	require.Len(t, halls, 2, "duplicate hall keeps the first row")

	assert.Equal(t, engine.Hall{ID: "A101", Capacity: 60, Group: "north"}, halls[0])
	assert.Equal(t, engine.Hall{ID: "B202", Capacity: 40, Group: engine.DefaultHallGroup}, halls[1])
}

func TestParseHallsInvalidCapacity(t *testing.T) {
	_, err := ParseHalls("hall,capacity\nA101,lots\n", ColumnMapping{})
	assert.ErrorIs(t, err, ErrInvalidInputData)

	_, err = ParseHalls("hall,capacity\nA101,-5\n", ColumnMapping{})
	assert.ErrorIs(t, err, ErrInvalidInputData)
}

func TestParseHallsWithoutGroupColumn(t *testing.T) {
	halls, err := ParseHalls("hall,capacity\nA101,60\n", ColumnMapping{})
	require.NoError(t, err)
	require.Len(t, halls, 1)
	assert.Equal(t, engine.DefaultHallGroup, halls[0].Group)
}

func TestParseAllowedSlots(t *testing.T) {
	data := "course_id,slot_id\nMATH,0\nMATH,2\nPHYS,1\n"

	allowed, err := ParseAllowedSlots(data)
	require.NoError(t, err)

	assert.True(t, allowed["MATH"][0])
	assert.True(t, allowed["MATH"][2])
	assert.False(t, allowed["MATH"][1])
	assert.True(t, allowed["PHYS"][1])
}

func TestParseAllowedSlotsEmptyMeansUnrestricted(t *testing.T) {
	allowed, err := ParseAllowedSlots("   \n")
	require.NoError(t, err)
	assert.Empty(t, allowed)
}

func TestParseAllowedSlotsBadSlotID(t *testing.T) {
	_, err := ParseAllowedSlots("course_id,slot_id\nMATH,first\n")
	assert.ErrorIs(t, err, ErrInvalidInputData)
}

func TestMergeAllowedCourses(t *testing.T) {
	courses := map[engine.CourseID]*engine.Course{
		"MATH": {ID: "MATH", Students: []engine.StudentID{"s1"}},
	}
	allowed := map[engine.CourseID]map[int]bool{
		"MATH": {0: true},
		"ELEC": {1: true},
	}

	MergeAllowedCourses(courses, allowed)

	require.Contains(t, courses, engine.CourseID("ELEC"))
	assert.Zero(t, courses["ELEC"].Enrolled())
	assert.Equal(t, 1, courses["MATH"].Enrolled())
}
