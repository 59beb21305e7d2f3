// Package records defines the student records produced and consumed by the
// in-process simulation, their XML persistence, and a random generator for
// realistic test data.
package records

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cyberinferno/bufferd/utils"
)

// passMark is the minimum average required for a PASS status.
const passMark = 50.0

var (
	firstNames = []string{
		"John", "Jane", "Michael", "Sarah", "David", "Emma", "James", "Olivia", "Robert", "Sophia",
		"William", "Ava", "Joseph", "Isabella", "Thomas", "Mia", "Charles", "Abigail", "Christopher", "Emily",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez",
		"Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
	}
	programmes = []string{
		"Computer Science", "Software Engineering", "Information Technology",
		"Cybersecurity", "Data Science", "AI & Machine Learning", "Computer Engineering",
	}
	courseNames = []string{
		"Programming", "Database", "Networking", "Web Development", "Algorithms",
		"OS", "Security", "Data Structures", "Cloud Computing", "Mobile Development",
	}
)

// Course is one enrolled course with its mark out of 100.
type Course struct {
	Name string  `xml:"name,attr"`
	Mark float64 `xml:"mark,attr"`
}

// Student is one student record as persisted to XML.
type Student struct {
	XMLName   xml.Name `xml:"ITStudent"`
	Name      string   `xml:"Name"`
	StudentID string   `xml:"StudentID"`
	Programme string   `xml:"Programme"`
	Courses   []Course `xml:"Courses>Course"`
}

// Average returns the mean mark across all courses, or 0 for a student with
// no courses.
func (s Student) Average() float64 {
	if len(s.Courses) == 0 {
		return 0
	}

	var sum float64
	for _, c := range s.Courses {
		sum += c.Mark
	}

	return sum / float64(len(s.Courses))
}

// Passed reports whether the student's average reaches the pass mark.
func (s Student) Passed() bool {
	return s.Average() >= passMark
}

// String renders the student as the report block printed when a record is
// consumed.
func (s Student) String() string {
	status := "FAIL"
	if s.Passed() {
		status = "PASS"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Student Name: %s\n", s.Name)
	fmt.Fprintf(&b, "Student ID: %s\n", s.StudentID)
	fmt.Fprintf(&b, "Programme: %s\n", s.Programme)
	b.WriteString("Courses and Marks:\n")
	for _, c := range s.Courses {
		fmt.Fprintf(&b, "    %s: %.2f\n", c.Name, c.Mark)
	}
	fmt.Fprintf(&b, "Average: %.2f%%\n", s.Average())
	fmt.Fprintf(&b, "Status: %s\n", status)
	b.WriteString(strings.Repeat("-", 50))

	return b.String()
}

// Generate returns a random student: a name drawn from the first/last name
// lists, an 8-digit id, a programme, and 4 to 7 distinct courses with marks
// between 30 and 100 rounded to two decimals.
//
// Returns:
//   - A randomly populated Student
func Generate() Student {
	count := utils.RandomIntBetween(4, 7)
	courses := make([]Course, 0, count)
	for _, name := range utils.RandomSample(courseNames, count) {
		mark := math.Round(utils.RandomFloatBetween(30, 100)*100) / 100
		courses = append(courses, Course{Name: name, Mark: mark})
	}

	return Student{
		Name:      utils.GetRandomElement(firstNames) + " " + utils.GetRandomElement(lastNames),
		StudentID: strconv.Itoa(utils.RandomIntBetween(10000000, 99999999)),
		Programme: utils.GetRandomElement(programmes),
		Courses:   courses,
	}
}
