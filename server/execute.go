package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ellworks/ellflow/flow"
	"github.com/ellworks/ellflow/flow/ratelimit"
	"github.com/ellworks/ellflow/flow/store"
	"github.com/ellworks/ellflow/flow/stream"
)

// executeRequest is the wire shape of an execution request. Node
// configuration may arrive directly on the node or nested under "data",
// matching what workflow editors produce.
type executeRequest struct {
	Workflow wireWorkflow         `json:"workflow"`
	Student  *flow.StudentProfile `json:"student"`
	Options  struct {
		ClassroomID string `json:"classroomId"`
	} `json:"options"`
}

type wireWorkflow struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Nodes []wireNode  `json:"nodes"`
	Edges []flow.Edge `json:"edges"`
}

type wireNode struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Label  string         `json:"label"`
	Config map[string]any `json:"config"`
	Data   *struct {
		Label  string         `json:"label"`
		Config map[string]any `json:"config"`
	} `json:"data"`
}

func (wf wireWorkflow) toWorkflow() *flow.Workflow {
	out := &flow.Workflow{
		ID:    wf.ID,
		Name:  wf.Name,
		Edges: wf.Edges,
	}
	for _, n := range wf.Nodes {
		node := flow.Node{
			ID:     n.ID,
			Type:   flow.NodeType(n.Type),
			Label:  n.Label,
			Config: n.Config,
		}
		if n.Data != nil {
			if node.Config == nil {
				node.Config = n.Data.Config
			}
			if node.Label == "" {
				node.Label = n.Data.Label
			}
		}
		out.Nodes = append(out.Nodes, node)
	}
	return out
}

// handleExecute admits, validates, and runs one workflow execution,
// streaming events to the client as server-sent events. The response stays
// open across human-input pauses; resume and cancel arrive on their own
// endpoints keyed by the X-Execution-Id response header.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid request",
			"issues": []flow.ValidationIssue{{Path: "body", Message: err.Error()}},
		})
		return
	}

	wf := req.Workflow.toWorkflow()
	if err := wf.Validate(); err != nil {
		issues := []flow.ValidationIssue{{Path: "workflow", Message: err.Error()}}
		if verr, ok := err.(*flow.ValidationError); ok {
			issues = verr.Issues
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid workflow",
			"issues": issues,
		})
		return
	}

	if !s.admit(w, r, &req) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming unsupported"})
		return
	}

	sessionID := newSessionID()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Execution-Id", sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := stream.NewSSESink(w, flusher)
	executor := flow.NewExecutor(s.cfg.Registry,
		flow.WithStreamSink(sink),
		flow.WithMetrics(s.cfg.Metrics),
		flow.WithNodeTimeout(s.cfg.NodeTimeout),
	)
	sess := &session{
		executor: executor,
		answers:  make(chan string, 1),
		cancel:   make(chan struct{}),
	}
	s.registerSession(sessionID, sess)
	defer s.dropSession(sessionID)

	// Client disconnect cancels the run.
	ctx := r.Context()
	go func() {
		select {
		case <-ctx.Done():
			executor.Cancel()
		case <-sess.cancel:
		}
	}()

	rec, err := executor.Execute(ctx, wf, req.Student)
	if err != nil {
		s.log.Error().Err(err).Msg("execution rejected")
		return
	}

	// Hold the stream open across pauses; Resume requests feed the answers
	// channel and this goroutine keeps ownership of all SSE writes.
	for rec.Status == flow.ExecutionAwaitingInput {
		select {
		case answer := <-sess.answers:
			if err := executor.Resume(ctx, answer); err != nil {
				s.log.Warn().Err(err).Msg("resume failed")
			}
		case <-sess.cancel:
			executor.Cancel()
		case <-ctx.Done():
			executor.Cancel()
		}
	}

	s.recordSession(rec, req.Student)
}

// admit runs the rate-limit gate, writing the 429 response on denial.
// Authenticated callers are gated per teacher and classroom, anonymous ones
// per source address.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, req *executeRequest) bool {
	teacherID := callerTeacher(r)
	if teacherID == "" && req.Student != nil {
		teacherID = req.Student.TeacherID
	}

	decision := s.gateDecision(r, req, teacherID)
	if decision.Allowed {
		return true
	}

	s.cfg.Metrics.RateLimitDenied(decision.LimitType)
	retryAfter := int(decision.RetryAfter.Seconds() + 0.5)
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":      "rate limited",
		"message":    "execution limit reached, try again later",
		"limitType":  decision.LimitType,
		"limit":      decision.Limit,
		"remaining":  decision.Remaining,
		"retryAfter": retryAfter,
	})
	return false
}

func (s *Server) gateDecision(r *http.Request, req *executeRequest, teacherID string) ratelimit.Decision {
	if teacherID == "" {
		return s.cfg.Gate.CheckIP(r.Context(), clientIP(r))
	}
	classroomID := callerClassroom(r)
	if classroomID == "" {
		classroomID = req.Options.ClassroomID
	}
	return s.cfg.Gate.CheckExecution(r.Context(), teacherID, classroomID)
}

// recordSession persists the run outcome for the dashboard. The request
// context is usually gone by now, so persistence gets its own deadline.
func (s *Server) recordSession(rec *flow.WorkflowExecution, student *flow.StudentProfile) {
	if s.cfg.Store == nil {
		return
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()

	if student != nil && student.ID != "" {
		if err := s.cfg.Store.SaveStudent(ctx, student); err != nil {
			s.log.Error().Err(err).Str("student_id", student.ID).Msg("persist student failed")
		}
	}

	sess := &store.LearningSession{
		ID:          rec.ID,
		WorkflowID:  rec.WorkflowID,
		StudentID:   rec.StudentID,
		ExecutionID: rec.ID,
		Status:      string(rec.Status),
		StartedAt:   rec.StartedAt,
		EndedAt:     rec.EndedAt,
		NodeCount:   len(rec.NodeExecutions),
	}
	if rec.Context != nil {
		sess.Adaptations = rec.Context.Adaptations
	}
	if err := s.cfg.Store.SaveSession(ctx, sess); err != nil {
		s.log.Error().Err(err).Str("execution_id", rec.ID).Msg("persist session failed")
	}
}
