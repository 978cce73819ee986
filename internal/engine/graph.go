package engine

import "sort"

// ConflictGraph captures which course pairs share at least one student.
// Adjacency is sparse: it is built by expanding each student's course list
// into pairs, so cost tracks per-student load rather than the square of the
// whole course catalogue.
type ConflictGraph struct {
	Courses []CourseID          // sorted, fixes vertex order for determinism
	Index   map[CourseID]int
	Adj     []map[int]int       // neighbor index -> shared student count
	Degrees []int

	// StudentCourses lists each student's courses sorted by ID, used by the
	// gap checker.
	StudentCourses map[StudentID][]CourseID
}

// BuildConflictGraph derives the conflict graph from normalized courses.
func BuildConflictGraph(courses map[CourseID]*Course) *ConflictGraph {
	ids := make([]CourseID, 0, len(courses))
	for id := range courses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	g := &ConflictGraph{
		Courses:        ids,
		Index:          make(map[CourseID]int, len(ids)),
		Adj:            make([]map[int]int, len(ids)),
		Degrees:        make([]int, len(ids)),
		StudentCourses: make(map[StudentID][]CourseID),
	}
	for i, id := range ids {
		g.Index[id] = i
		g.Adj[i] = make(map[int]int)
	}

	for _, id := range ids {
		for _, student := range courses[id].Students {
			g.StudentCourses[student] = append(g.StudentCourses[student], id)
		}
	}

	for student, list := range g.StudentCourses {
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		g.StudentCourses[student] = list
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				a, b := g.Index[list[i]], g.Index[list[j]]
				if g.Adj[a][b] == 0 {
					g.Degrees[a]++
					g.Degrees[b]++
				}
				g.Adj[a][b]++
				g.Adj[b][a]++
			}
		}
	}
	return g
}

// ConflictPairs returns every unordered conflicting course pair, sorted.
func (g *ConflictGraph) ConflictPairs() [][2]CourseID {
	var pairs [][2]CourseID
	for i := range g.Adj {
		for j := range g.Adj[i] {
			if j > i {
				pairs = append(pairs, [2]CourseID{g.Courses[i], g.Courses[j]})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a][0] != pairs[b][0] {
			return pairs[a][0] < pairs[b][0]
		}
		return pairs[a][1] < pairs[b][1]
	})
	return pairs
}

// SharedStudents returns how many students two courses have in common.
func (g *ConflictGraph) SharedStudents(a, b CourseID) int {
	ia, ok := g.Index[a]
	if !ok {
		return 0
	}
	ib, ok := g.Index[b]
	if !ok {
		return 0
	}
	return g.Adj[ia][ib]
}
