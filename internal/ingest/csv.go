// Package ingest turns raw tabular input (CSV with configurable column
// names) into the typed entities the scheduling engine consumes. It
// deduplicates rows and keeps referential integrity between the tables.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/examdesk/exam-scheduler-api/internal/engine"
)

// ErrInvalidInputData reports malformed or missing required fields in the
// registrations, halls or allowed-slots tables.
var ErrInvalidInputData = errors.New("invalid input data")

// Default column names used when the request carries no mapping override.
const (
	DefaultStudentIDColumn = "student_id"
	DefaultCourseIDColumn  = "course_id"
	DefaultHallIDColumn    = "hall"
	DefaultCapacityColumn  = "capacity"
	DefaultGroupColumn     = "group"
	DefaultSlotIDColumn    = "slot_id"
)

// ColumnMapping overrides the column names the tables are read from. Empty
// fields fall back to the defaults above.
type ColumnMapping struct {
	StudentID string
	CourseID  string
	HallID    string
	Capacity  string
	Group     string
}

func (m ColumnMapping) studentID() string { return orDefault(m.StudentID, DefaultStudentIDColumn) }
func (m ColumnMapping) courseID() string  { return orDefault(m.CourseID, DefaultCourseIDColumn) }
func (m ColumnMapping) hallID() string    { return orDefault(m.HallID, DefaultHallIDColumn) }
func (m ColumnMapping) capacity() string  { return orDefault(m.Capacity, DefaultCapacityColumn) }
func (m ColumnMapping) group() string     { return orDefault(m.Group, DefaultGroupColumn) }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ParseRegistrations reads the registrations table, dropping exact duplicate
// (student, course) rows, and builds the distinct-student course index.
func ParseRegistrations(data string, mapping ColumnMapping) ([]engine.Registration, map[engine.CourseID]*engine.Course, error) {
	reader := newCSVReader(data)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: registrations table is empty", ErrInvalidInputData)
	}

	studentCol := columnIndex(header, mapping.studentID())
	courseCol := columnIndex(header, mapping.courseID())
	if studentCol < 0 || courseCol < 0 {
		return nil, nil, fmt.Errorf("%w: registrations need columns %q and %q", ErrInvalidInputData, mapping.studentID(), mapping.courseID())
	}

	var registrations []engine.Registration
	courses := make(map[engine.CourseID]*engine.Course)
	courseStudents := make(map[engine.CourseID]map[engine.StudentID]struct{})
	seen := make(map[engine.Registration]struct{})

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("%w: registrations line %d: %v", ErrInvalidInputData, line, err)
		}
		if len(record) <= studentCol || len(record) <= courseCol {
			return nil, nil, fmt.Errorf("%w: registrations line %d is missing required fields", ErrInvalidInputData, line)
		}
		studentID := engine.StudentID(strings.TrimSpace(record[studentCol]))
		courseID := engine.CourseID(strings.TrimSpace(record[courseCol]))
		if studentID == "" || courseID == "" {
			return nil, nil, fmt.Errorf("%w: registrations line %d has an empty student or course id", ErrInvalidInputData, line)
		}

		reg := engine.Registration{StudentID: studentID, CourseID: courseID}
		if _, dup := seen[reg]; dup {
			continue
		}
		seen[reg] = struct{}{}
		registrations = append(registrations, reg)

		if courses[courseID] == nil {
			courses[courseID] = &engine.Course{ID: courseID}
			courseStudents[courseID] = make(map[engine.StudentID]struct{})
		}
		if _, dup := courseStudents[courseID][studentID]; !dup {
			courseStudents[courseID][studentID] = struct{}{}
			courses[courseID].Students = append(courses[courseID].Students, studentID)
		}
	}

	for _, course := range courses {
		sort.Slice(course.Students, func(i, j int) bool { return course.Students[i] < course.Students[j] })
	}
	return registrations, courses, nil
}

// ParseHalls reads the hall inventory. Duplicate hall IDs keep the first row;
// a missing group defaults to "ungrouped".
func ParseHalls(data string, mapping ColumnMapping) ([]engine.Hall, error) {
	reader := newCSVReader(data)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: halls table is empty", ErrInvalidInputData)
	}

	hallCol := columnIndex(header, mapping.hallID())
	capacityCol := columnIndex(header, mapping.capacity())
	groupCol := columnIndex(header, mapping.group())
	if hallCol < 0 || capacityCol < 0 {
		return nil, fmt.Errorf("%w: halls need columns %q and %q", ErrInvalidInputData, mapping.hallID(), mapping.capacity())
	}

	var halls []engine.Hall
	seen := make(map[engine.HallID]struct{})
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: halls line %d: %v", ErrInvalidInputData, line, err)
		}
		if len(record) <= hallCol || len(record) <= capacityCol {
			return nil, fmt.Errorf("%w: halls line %d is missing required fields", ErrInvalidInputData, line)
		}
		id := engine.HallID(strings.TrimSpace(record[hallCol]))
		if id == "" {
			return nil, fmt.Errorf("%w: halls line %d has an empty hall id", ErrInvalidInputData, line)
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(record[capacityCol]))
		if err != nil || capacity < 0 {
			return nil, fmt.Errorf("%w: halls line %d has invalid capacity %q", ErrInvalidInputData, line, record[capacityCol])
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		group := engine.DefaultHallGroup
		if groupCol >= 0 && len(record) > groupCol && strings.TrimSpace(record[groupCol]) != "" {
			group = strings.TrimSpace(record[groupCol])
		}
		halls = append(halls, engine.Hall{ID: id, Capacity: capacity, Group: group})
	}
	return halls, nil
}

// ParseAllowedSlots reads the optional table restricting courses to slot
// subsets. An empty input means no restrictions.
func ParseAllowedSlots(data string) (map[engine.CourseID]map[int]bool, error) {
	allowed := make(map[engine.CourseID]map[int]bool)
	if strings.TrimSpace(data) == "" {
		return allowed, nil
	}

	reader := newCSVReader(data)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: allowed-slots table is empty", ErrInvalidInputData)
	}
	courseCol := columnIndex(header, DefaultCourseIDColumn)
	slotCol := columnIndex(header, DefaultSlotIDColumn)
	if courseCol < 0 || slotCol < 0 {
		return nil, fmt.Errorf("%w: allowed-slots need columns %q and %q", ErrInvalidInputData, DefaultCourseIDColumn, DefaultSlotIDColumn)
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: allowed-slots line %d: %v", ErrInvalidInputData, line, err)
		}
		if len(record) <= courseCol || len(record) <= slotCol {
			return nil, fmt.Errorf("%w: allowed-slots line %d is missing required fields", ErrInvalidInputData, line)
		}
		courseID := engine.CourseID(strings.TrimSpace(record[courseCol]))
		slotID, err := strconv.Atoi(strings.TrimSpace(record[slotCol]))
		if courseID == "" || err != nil {
			return nil, fmt.Errorf("%w: allowed-slots line %d has an invalid course or slot id", ErrInvalidInputData, line)
		}
		if allowed[courseID] == nil {
			allowed[courseID] = make(map[int]bool)
		}
		allowed[courseID][slotID] = true
	}
	return allowed, nil
}

// MergeAllowedCourses adds zero-enrollment courses that appear only in the
// allowed-slots table, keeping them schedulable.
func MergeAllowedCourses(courses map[engine.CourseID]*engine.Course, allowed map[engine.CourseID]map[int]bool) {
	for courseID := range allowed {
		if courses[courseID] == nil {
			courses[courseID] = &engine.Course{ID: courseID}
		}
	}
}

func newCSVReader(data string) *csv.Reader {
	reader := csv.NewReader(strings.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	return reader
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if strings.TrimSpace(col) == name {
			return i
		}
	}
	return -1
}
