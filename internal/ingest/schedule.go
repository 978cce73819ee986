package ingest

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/examdesk/exam-scheduler-api/internal/engine"
)

// Schedule CSV columns, shared by the exporter and the standalone validator.
const (
	ScheduleColCourseID     = "course_id"
	ScheduleColSlotID       = "slot_id"
	ScheduleColSlotDatetime = "slot_datetime"
	ScheduleColHalls        = "halls"
	ScheduleColEnrolled     = "enrolled_count"
	ScheduleColNotes        = "notes"
)

// ParseSchedule reads a timetable CSV back into rows, so schedules produced
// elsewhere can be fed to the validator.
func ParseSchedule(data string) ([]engine.ScheduleRow, error) {
	reader := newCSVReader(data)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: schedule table is empty", ErrInvalidInputData)
	}

	courseCol := columnIndex(header, ScheduleColCourseID)
	slotCol := columnIndex(header, ScheduleColSlotID)
	datetimeCol := columnIndex(header, ScheduleColSlotDatetime)
	hallsCol := columnIndex(header, ScheduleColHalls)
	enrolledCol := columnIndex(header, ScheduleColEnrolled)
	notesCol := columnIndex(header, ScheduleColNotes)
	if courseCol < 0 || slotCol < 0 || datetimeCol < 0 || hallsCol < 0 {
		return nil, fmt.Errorf("%w: schedule needs columns %q, %q, %q and %q",
			ErrInvalidInputData, ScheduleColCourseID, ScheduleColSlotID, ScheduleColSlotDatetime, ScheduleColHalls)
	}

	var rows []engine.ScheduleRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: schedule line %d: %v", ErrInvalidInputData, line, err)
		}
		if len(record) <= courseCol || len(record) <= slotCol || len(record) <= datetimeCol || len(record) <= hallsCol {
			return nil, fmt.Errorf("%w: schedule line %d is missing required fields", ErrInvalidInputData, line)
		}

		slotID, err := strconv.Atoi(strings.TrimSpace(record[slotCol]))
		if err != nil {
			return nil, fmt.Errorf("%w: schedule line %d has invalid slot id %q", ErrInvalidInputData, line, record[slotCol])
		}
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(record[datetimeCol]))
		if err != nil {
			return nil, fmt.Errorf("%w: schedule line %d has invalid slot datetime %q", ErrInvalidInputData, line, record[datetimeCol])
		}

		row := engine.ScheduleRow{
			CourseID: engine.CourseID(strings.TrimSpace(record[courseCol])),
			SlotID:   slotID,
			Start:    start,
			Halls:    SplitHalls(record[hallsCol]),
		}
		if row.CourseID == "" {
			return nil, fmt.Errorf("%w: schedule line %d has an empty course id", ErrInvalidInputData, line)
		}
		if enrolledCol >= 0 && len(record) > enrolledCol {
			if n, err := strconv.Atoi(strings.TrimSpace(record[enrolledCol])); err == nil {
				row.EnrolledCount = n
			}
		}
		if notesCol >= 0 && len(record) > notesCol {
			row.Notes = record[notesCol]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SplitHalls parses the semicolon-joined hall list of a schedule row.
func SplitHalls(raw string) []engine.HallID {
	var halls []engine.HallID
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			halls = append(halls, engine.HallID(part))
		}
	}
	return halls
}

// JoinHalls renders a hall list the way schedule rows carry it.
func JoinHalls(halls []engine.HallID) string {
	parts := make([]string, len(halls))
	for i, h := range halls {
		parts[i] = string(h)
	}
	return strings.Join(parts, ";")
}
