package engine

import (
	"fmt"
	"sort"
	"time"
)

// Validate re-checks a schedule against the registrations from scratch. It
// never looks at how the schedule was produced, so it works equally on fresh
// search output and on externally supplied timetables. The report is a fresh
// value on every call; validating the same schedule twice yields the same
// report.
func Validate(registrations []Registration, schedule []ScheduleRow, halls []Hall, minGapMinutes int) *ValidationReport {
	report := &ValidationReport{Valid: true}

	regs := dedupeRegistrations(registrations)

	rowByCourse := make(map[CourseID]ScheduleRow, len(schedule))
	for _, row := range schedule {
		if _, dup := rowByCourse[row.CourseID]; dup {
			report.Errors = append(report.Errors, fmt.Sprintf("course %s appears more than once in the schedule", row.CourseID))
			continue
		}
		rowByCourse[row.CourseID] = row
	}

	// Re-derive enrollment and per-student course lists; never trust the
	// counts the schedule itself claims.
	enrolled := make(map[CourseID]int)
	studentCourses := make(map[StudentID][]CourseID)
	for _, reg := range regs {
		enrolled[reg.CourseID]++
		studentCourses[reg.StudentID] = append(studentCourses[reg.StudentID], reg.CourseID)
	}

	checkClashes(report, studentCourses, rowByCourse)
	if minGapMinutes > 0 {
		checkGaps(report, studentCourses, rowByCourse, minGapMinutes)
	}
	checkCapacity(report, schedule, halls, enrolled)

	for courseID := range enrolled {
		if _, ok := rowByCourse[courseID]; !ok {
			report.Unassigned = append(report.Unassigned, courseID)
		}
	}
	sort.Slice(report.Unassigned, func(i, j int) bool { return report.Unassigned[i] < report.Unassigned[j] })

	report.Valid = report.Conflicts == 0 && len(report.Unassigned) == 0
	return report
}

func dedupeRegistrations(registrations []Registration) []Registration {
	seen := make(map[Registration]struct{}, len(registrations))
	out := make([]Registration, 0, len(registrations))
	for _, reg := range registrations {
		if _, dup := seen[reg]; dup {
			continue
		}
		seen[reg] = struct{}{}
		out = append(out, reg)
	}
	return out
}

// checkClashes counts, per student, every pair of their courses landing in
// the same slot and describes each pair.
func checkClashes(report *ValidationReport, studentCourses map[StudentID][]CourseID, rows map[CourseID]ScheduleRow) {
	students := sortedStudents(studentCourses)
	for _, student := range students {
		courses := studentCourses[student]
		sort.Slice(courses, func(i, j int) bool { return courses[i] < courses[j] })
		for i := 0; i < len(courses); i++ {
			rowA, okA := rows[courses[i]]
			if !okA {
				continue
			}
			for j := i + 1; j < len(courses); j++ {
				rowB, okB := rows[courses[j]]
				if !okB || rowA.SlotID != rowB.SlotID {
					continue
				}
				report.Conflicts++
				report.StudentClashes = append(report.StudentClashes,
					fmt.Sprintf("student %s sits %s and %s in the same slot %d", student, courses[i], courses[j], rowA.SlotID))
			}
		}
	}
}

// checkGaps flags exam pairs of one student closer than the minimum gap.
// Deltas are absolute timestamp differences, so the rule crosses day
// boundaries. Gap violations are reported but do not raise Conflicts.
func checkGaps(report *ValidationReport, studentCourses map[StudentID][]CourseID, rows map[CourseID]ScheduleRow, minGapMinutes int) {
	minGap := time.Duration(minGapMinutes) * time.Minute
	for _, student := range sortedStudents(studentCourses) {
		courses := studentCourses[student]
		for i := 0; i < len(courses); i++ {
			rowA, okA := rows[courses[i]]
			if !okA {
				continue
			}
			for j := i + 1; j < len(courses); j++ {
				rowB, okB := rows[courses[j]]
				if !okB || rowA.SlotID == rowB.SlotID {
					continue
				}
				delta := rowA.Start.Sub(rowB.Start)
				if delta < 0 {
					delta = -delta
				}
				if delta < minGap {
					report.StudentClashes = append(report.StudentClashes,
						fmt.Sprintf("student %s has %s and %s only %d minutes apart (minimum %d)",
							student, courses[i], courses[j], int(delta.Minutes()), minGapMinutes))
				}
			}
		}
	}
}

// checkCapacity warns when a course's halls cannot seat its re-derived
// enrollment and when a whole slot is oversubscribed. Capacity warnings are
// non-fatal.
func checkCapacity(report *ValidationReport, schedule []ScheduleRow, halls []Hall, enrolled map[CourseID]int) {
	capacity := make(map[HallID]int, len(halls))
	for _, h := range halls {
		capacity[h.ID] = h.Capacity
	}

	slotEnrolled := make(map[int]int)
	slotHalls := make(map[int]map[HallID]struct{})

	for _, row := range schedule {
		need := enrolled[row.CourseID]
		total := 0
		for _, hallID := range row.Halls {
			hallCap, known := capacity[hallID]
			if !known {
				report.CapacityWarnings = append(report.CapacityWarnings,
					fmt.Sprintf("course %s assigned to unknown hall %s", row.CourseID, hallID))
				continue
			}
			total += hallCap
			if slotHalls[row.SlotID] == nil {
				slotHalls[row.SlotID] = make(map[HallID]struct{})
			}
			slotHalls[row.SlotID][hallID] = struct{}{}
		}
		if total < need {
			report.CapacityWarnings = append(report.CapacityWarnings,
				fmt.Sprintf("course %s needs %d seats but its halls hold %d in slot %d", row.CourseID, need, total, row.SlotID))
		}
		slotEnrolled[row.SlotID] += need
	}

	slotIDs := make([]int, 0, len(slotEnrolled))
	for id := range slotEnrolled {
		slotIDs = append(slotIDs, id)
	}
	sort.Ints(slotIDs)
	for _, slotID := range slotIDs {
		seats := 0
		for hallID := range slotHalls[slotID] {
			seats += capacity[hallID]
		}
		if slotEnrolled[slotID] > seats {
			report.CapacityWarnings = append(report.CapacityWarnings,
				fmt.Sprintf("slot %d seats %d students across its halls but %d are scheduled", slotID, seats, slotEnrolled[slotID]))
		}
	}
}

func sortedStudents(studentCourses map[StudentID][]CourseID) []StudentID {
	students := make([]StudentID, 0, len(studentCourses))
	for s := range studentCourses {
		students = append(students, s)
	}
	sort.Slice(students, func(i, j int) bool { return students[i] < students[j] })
	return students
}
