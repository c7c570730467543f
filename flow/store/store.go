// Package store provides the persistence façade around the engine: typed
// tables for workflows, students, learning sessions, progress records,
// assessment results, and teacher alerts.
//
// The engine itself never persists in-flight execution state; the server
// records session outcomes here after the fact. An in-memory implementation
// serves tests, SQLite serves single-instance deployments, MySQL serves
// shared ones.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ellworks/ellflow/flow"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// LearningSession records one completed or abandoned workflow run for a
// student.
type LearningSession struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	WorkflowID  string    `json:"workflowId"`
	ExecutionID string    `json:"executionId"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt,omitempty"`
	NodeCount   int       `json:"nodeCount"`
	Adaptations []string  `json:"adaptations,omitempty"`
}

// ProgressRecord is one point on a student's learning trajectory.
type ProgressRecord struct {
	ID               string    `json:"id"`
	StudentID        string    `json:"studentId"`
	SessionID        string    `json:"sessionId"`
	Subject          string    `json:"subject"`
	Accuracy         float64   `json:"accuracy"`
	TimeSpentSeconds float64   `json:"timeSpentSeconds"`
	LanguageLevel    int       `json:"languageLevel"`
	CreatedAt        time.Time `json:"createdAt"`
}

// AssessmentResult records one scored assessment.
type AssessmentResult struct {
	ID        string         `json:"id"`
	StudentID string         `json:"studentId"`
	SessionID string         `json:"sessionId"`
	Kind      string         `json:"kind"`
	Score     float64        `json:"score"`
	MaxScore  float64        `json:"maxScore"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TeacherAlert surfaces a condition needing teacher attention, such as a
// student repeatedly scoring below threshold.
type TeacherAlert struct {
	ID           string    `json:"id"`
	TeacherID    string    `json:"teacherId"`
	StudentID    string    `json:"studentId"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
	Acknowledged bool      `json:"acknowledged"`
}

// Store is the typed-table persistence façade.
type Store interface {
	// Workflows.
	SaveWorkflow(ctx context.Context, wf *flow.Workflow) error
	Workflow(ctx context.Context, id string) (*flow.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*flow.Workflow, error)

	// Students.
	SaveStudent(ctx context.Context, s *flow.StudentProfile) error
	Student(ctx context.Context, id string) (*flow.StudentProfile, error)

	// Learning sessions.
	SaveSession(ctx context.Context, s *LearningSession) error
	Session(ctx context.Context, id string) (*LearningSession, error)
	SessionsForStudent(ctx context.Context, studentID string) ([]*LearningSession, error)

	// Progress records.
	SaveProgress(ctx context.Context, p *ProgressRecord) error
	ProgressForStudent(ctx context.Context, studentID string) ([]*ProgressRecord, error)

	// Assessment results.
	SaveAssessment(ctx context.Context, a *AssessmentResult) error
	AssessmentsForStudent(ctx context.Context, studentID string) ([]*AssessmentResult, error)

	// Teacher alerts.
	SaveAlert(ctx context.Context, a *TeacherAlert) error
	AlertsForTeacher(ctx context.Context, teacherID string) ([]*TeacherAlert, error)

	Close() error
}
