package export

import (
	"strconv"
	"time"

	"github.com/examdesk/exam-scheduler-api/internal/engine"
	"github.com/examdesk/exam-scheduler-api/internal/ingest"
)

// ScheduleDataset converts timetable rows into the tabular form both
// exporters consume. Column names match what the CSV ingester reads back.
func ScheduleDataset(rows []engine.ScheduleRow) Dataset {
	data := Dataset{
		Headers: []string{
			ingest.ScheduleColCourseID,
			ingest.ScheduleColSlotID,
			ingest.ScheduleColSlotDatetime,
			ingest.ScheduleColHalls,
			ingest.ScheduleColEnrolled,
			ingest.ScheduleColNotes,
		},
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			ingest.ScheduleColCourseID:     string(row.CourseID),
			ingest.ScheduleColSlotID:       strconv.Itoa(row.SlotID),
			ingest.ScheduleColSlotDatetime: row.Start.Format(time.RFC3339),
			ingest.ScheduleColHalls:        ingest.JoinHalls(row.Halls),
			ingest.ScheduleColEnrolled:     strconv.Itoa(row.EnrolledCount),
			ingest.ScheduleColNotes:        row.Notes,
		})
	}
	return data
}
