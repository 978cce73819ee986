// Package engine implements the exam timetabling core: calendar expansion,
// conflict graph construction, randomized multi-trial search, hall packing
// and independent schedule validation. The package is pure computation: it
// performs no I/O and uses context only for cooperative cancellation, so a
// search is fully reproducible from its inputs and seed.
package engine

import "time"

// StudentID identifies a student.
type StudentID string

// CourseID identifies a course.
type CourseID string

// HallID identifies an examination hall.
type HallID string

// Course groups the distinct students registered for one exam. A course with
// no students is still schedulable.
type Course struct {
	ID       CourseID
	Students []StudentID
}

// Enrolled returns the number of distinct registered students.
func (c *Course) Enrolled() int {
	return len(c.Students)
}

// Hall is one examination room. Group defaults to "ungrouped" and marks halls
// that may be combined when a course spans rooms.
type Hall struct {
	ID       HallID
	Capacity int
	Group    string
}

// Registration is one (student, course) row from the registrations table.
type Registration struct {
	StudentID StudentID
	CourseID  CourseID
}

// Slot is one concrete examination window. IDs are dense integers assigned in
// generation order, so identical calendar parameters always yield identical
// IDs even when holidays skip calendar days.
type Slot struct {
	ID         int
	Start      time.Time
	Duration   time.Duration
	DayIndex   int
	IndexInDay int
}

// End returns the instant the slot finishes.
func (s Slot) End() time.Time {
	return s.Start.Add(s.Duration)
}

// UnassignedSlot marks a course the search could not place anywhere.
const UnassignedSlot = -1

// Assignment binds a placed course to its slot and the halls seating it.
// Shortfall counts seats still missing when the halls could not cover the
// enrollment; it is reported, never silently over-filled.
type Assignment struct {
	CourseID  CourseID
	SlotID    int
	Halls     []HallID
	Shortfall int
}

// ScheduleRow is one line of the output timetable. It doubles as the input
// shape when validating schedules produced outside this engine.
type ScheduleRow struct {
	CourseID      CourseID
	SlotID        int
	Start         time.Time
	Halls         []HallID
	EnrolledCount int
	Notes         string
}

// ValidationReport is the outcome of checking a schedule against the
// registrations it claims to cover. Valid is true iff there are no student
// conflicts and no unassigned courses; capacity warnings alone never
// invalidate a schedule.
type ValidationReport struct {
	Valid            bool       `json:"valid"`
	Conflicts        int        `json:"conflicts"`
	Unassigned       []CourseID `json:"unassigned"`
	CapacityWarnings []string   `json:"capacityWarnings"`
	Errors           []string   `json:"errors"`
	StudentClashes   []string   `json:"studentClashes"`
}
