package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ellworks/ellflow/flow"
)

// MemoryStore is the in-process Store used in tests and demos. All methods
// are safe for concurrent use; returned records are copies.
type MemoryStore struct {
	mu          sync.RWMutex
	workflows   map[string]flow.Workflow
	students    map[string]flow.StudentProfile
	sessions    map[string]LearningSession
	progress    map[string]ProgressRecord
	assessments map[string]AssessmentResult
	alerts      map[string]TeacherAlert
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[string]flow.Workflow),
		students:    make(map[string]flow.StudentProfile),
		sessions:    make(map[string]LearningSession),
		progress:    make(map[string]ProgressRecord),
		assessments: make(map[string]AssessmentResult),
		alerts:      make(map[string]TeacherAlert),
	}
}

// SaveWorkflow implements Store.
func (m *MemoryStore) SaveWorkflow(_ context.Context, wf *flow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = *wf
	return nil
}

// Workflow implements Store.
func (m *MemoryStore) Workflow(_ context.Context, id string) (*flow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &wf, nil
}

// ListWorkflows implements Store. Results are ordered by ID for
// determinism.
func (m *MemoryStore) ListWorkflows(_ context.Context) ([]*flow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*flow.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		copied := wf
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveStudent implements Store.
func (m *MemoryStore) SaveStudent(_ context.Context, s *flow.StudentProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = *s
	return nil
}

// Student implements Store.
func (m *MemoryStore) Student(_ context.Context, id string) (*flow.StudentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// SaveSession implements Store.
func (m *MemoryStore) SaveSession(_ context.Context, s *LearningSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

// Session implements Store.
func (m *MemoryStore) Session(_ context.Context, id string) (*LearningSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// SessionsForStudent implements Store, newest first.
func (m *MemoryStore) SessionsForStudent(_ context.Context, studentID string) ([]*LearningSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*LearningSession
	for _, s := range m.sessions {
		if s.StudentID == studentID {
			copied := s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// SaveProgress implements Store.
func (m *MemoryStore) SaveProgress(_ context.Context, p *ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[p.ID] = *p
	return nil
}

// ProgressForStudent implements Store, oldest first so callers can chart a
// trajectory.
func (m *MemoryStore) ProgressForStudent(_ context.Context, studentID string) ([]*ProgressRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ProgressRecord
	for _, p := range m.progress {
		if p.StudentID == studentID {
			copied := p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveAssessment implements Store.
func (m *MemoryStore) SaveAssessment(_ context.Context, a *AssessmentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[a.ID] = *a
	return nil
}

// AssessmentsForStudent implements Store, oldest first.
func (m *MemoryStore) AssessmentsForStudent(_ context.Context, studentID string) ([]*AssessmentResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*AssessmentResult
	for _, a := range m.assessments {
		if a.StudentID == studentID {
			copied := a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveAlert implements Store.
func (m *MemoryStore) SaveAlert(_ context.Context, a *TeacherAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.ID] = *a
	return nil
}

// AlertsForTeacher implements Store, newest first.
func (m *MemoryStore) AlertsForTeacher(_ context.Context, teacherID string) ([]*TeacherAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*TeacherAlert
	for _, a := range m.alerts {
		if a.TeacherID == teacherID {
			copied := a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
