package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellworks/ellflow/flow"
)

// The same contract suite runs against every Store implementation.
func storeUnderTest(t *testing.T, name string) Store {
	t.Helper()
	switch name {
	case "memory":
		return NewMemoryStore()
	case "sqlite":
		st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ellflow.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	}
	t.Fatalf("unknown store %q", name)
	return nil
}

func TestStoreContract(t *testing.T) {
	for _, name := range []string{"memory", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			t.Run("workflows", func(t *testing.T) { testWorkflows(t, storeUnderTest(t, name)) })
			t.Run("students", func(t *testing.T) { testStudents(t, storeUnderTest(t, name)) })
			t.Run("sessions", func(t *testing.T) { testSessions(t, storeUnderTest(t, name)) })
			t.Run("progress", func(t *testing.T) { testProgress(t, storeUnderTest(t, name)) })
			t.Run("assessments", func(t *testing.T) { testAssessments(t, storeUnderTest(t, name)) })
			t.Run("alerts", func(t *testing.T) { testAlerts(t, storeUnderTest(t, name)) })
		})
	}
}

func testWorkflows(t *testing.T, st Store) {
	ctx := context.Background()

	wf := &flow.Workflow{
		ID:   "wf-1",
		Name: "Water cycle",
		Nodes: []flow.Node{
			{ID: "a", Type: flow.NodeStudentProfile},
			{ID: "b", Type: flow.NodeContentGenerator, Config: map[string]any{"topic": "rain"}},
		},
		Edges: []flow.Edge{{Source: "a", Target: "b"}},
	}
	require.NoError(t, st.SaveWorkflow(ctx, wf))

	got, err := st.Workflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Water cycle", got.Name)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "rain", got.Nodes[1].Config["topic"])

	_, err = st.Workflow(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// Save is an upsert.
	wf.Name = "Water cycle v2"
	require.NoError(t, st.SaveWorkflow(ctx, wf))
	got, err = st.Workflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Water cycle v2", got.Name)

	require.NoError(t, st.SaveWorkflow(ctx, &flow.Workflow{ID: "wf-0", Name: "Earlier"}))
	list, err := st.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wf-0", list[0].ID, "list ordered by id")
}

func testStudents(t *testing.T, st Store) {
	ctx := context.Background()

	s := &flow.StudentProfile{
		ID:             "s-1",
		Name:           "Amal",
		GradeLevel:     "4",
		NativeLanguage: "Arabic",
		ELPALevel:      2,
		Interests:      []string{"soccer", "animals"},
	}
	require.NoError(t, st.SaveStudent(ctx, s))

	got, err := st.Student(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ELPALevel)
	assert.Equal(t, []string{"soccer", "animals"}, got.Interests)

	_, err = st.Student(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testSessions(t *testing.T, st Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	older := &LearningSession{
		ID: "sess-1", StudentID: "s-1", WorkflowID: "wf-1", ExecutionID: "e-1",
		Status: "completed", StartedAt: base, NodeCount: 4,
		Adaptations: []string{"word-bank"},
	}
	newer := &LearningSession{
		ID: "sess-2", StudentID: "s-1", WorkflowID: "wf-1", ExecutionID: "e-2",
		Status: "failed", StartedAt: base.Add(time.Hour), NodeCount: 2,
	}
	other := &LearningSession{
		ID: "sess-3", StudentID: "s-2", WorkflowID: "wf-1", ExecutionID: "e-3",
		Status: "completed", StartedAt: base,
	}
	for _, s := range []*LearningSession{older, newer, other} {
		require.NoError(t, st.SaveSession(ctx, s))
	}

	got, err := st.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"word-bank"}, got.Adaptations)

	sessions, err := st.SessionsForStudent(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-2", sessions[0].ID, "newest first")
}

func testProgress(t *testing.T, st Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveProgress(ctx, &ProgressRecord{
		ID: "p-2", StudentID: "s-1", Subject: "ela", Accuracy: 80, LanguageLevel: 3,
		CreatedAt: base.Add(time.Hour),
	}))
	require.NoError(t, st.SaveProgress(ctx, &ProgressRecord{
		ID: "p-1", StudentID: "s-1", Subject: "ela", Accuracy: 60, LanguageLevel: 2,
		CreatedAt: base,
	}))

	records, err := st.ProgressForStudent(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "p-1", records[0].ID, "oldest first for trajectory charting")
	assert.Equal(t, 60.0, records[0].Accuracy)

	records, err = st.ProgressForStudent(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testAssessments(t *testing.T, st Store) {
	ctx := context.Background()

	require.NoError(t, st.SaveAssessment(ctx, &AssessmentResult{
		ID: "a-1", StudentID: "s-1", SessionID: "sess-1", Kind: "speaking",
		Score: 85, MaxScore: 100,
		Details:   map[string]any{"wordCount": 16.0},
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}))

	results, err := st.AssessmentsForStudent(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 85.0, results[0].Score)
	assert.Equal(t, "speaking", results[0].Kind)
	assert.Equal(t, 16.0, results[0].Details["wordCount"])
}

func testAlerts(t *testing.T, st Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveAlert(ctx, &TeacherAlert{
		ID: "al-1", TeacherID: "t-1", StudentID: "s-1",
		Severity: "warning", Message: "three low scores in a row",
		CreatedAt: base,
	}))
	require.NoError(t, st.SaveAlert(ctx, &TeacherAlert{
		ID: "al-2", TeacherID: "t-1", StudentID: "s-2",
		Severity: "info", Message: "level raised to 3",
		CreatedAt: base.Add(time.Minute),
	}))

	alerts, err := st.AlertsForTeacher(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "al-2", alerts[0].ID, "newest first")

	alerts, err = st.AlertsForTeacher(ctx, "t-2")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
