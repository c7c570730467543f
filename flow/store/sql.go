package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/ellworks/ellflow/flow"
)

// SQLStore is the relational Store. Records are stored as JSON documents
// with indexed lookup columns, which keeps the schema stable while the
// record shapes evolve.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store. Use
// ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	s := &SQLStore{db: db, dialect: "sqlite"}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewMySQLStore opens (and migrates) a MySQL-backed store. The DSN must
// include parseTime=true.
func NewMySQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	s := &SQLStore{db: db, dialect: "mysql"}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// tables maps table name to its secondary lookup column.
var tables = map[string]string{
	"workflows":          "",
	"students":           "",
	"learning_sessions":  "student_id",
	"progress_records":   "student_id",
	"assessment_results": "student_id",
	"teacher_alerts":     "teacher_id",
}

func (s *SQLStore) migrate(ctx context.Context) error {
	idType := "TEXT"
	docType := "TEXT"
	if s.dialect == "mysql" {
		idType = "VARCHAR(64)"
		docType = "JSON"
	}
	for table, lookup := range tables {
		ddl := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (id %s PRIMARY KEY, doc %s NOT NULL",
			table, idType, docType,
		)
		if lookup != "" {
			ddl += fmt.Sprintf(", %s %s NOT NULL", lookup, idType)
		}
		ddl += ")"
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		if lookup != "" && s.dialect == "sqlite" {
			idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", table, lookup, table, lookup)
			if _, err := s.db.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("create index on %s: %w", table, err)
			}
		}
	}
	return nil
}

// upsert writes a document, replacing any prior version of the same ID.
func (s *SQLStore) upsert(ctx context.Context, table, id, lookupCol, lookupVal string, record any) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", table, err)
	}

	var query string
	var args []any
	if lookupCol == "" {
		if s.dialect == "mysql" {
			query = fmt.Sprintf(
				"INSERT INTO %s (id, doc) VALUES (?, ?) ON DUPLICATE KEY UPDATE doc = VALUES(doc)", table)
		} else {
			query = fmt.Sprintf(
				"INSERT INTO %s (id, doc) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET doc = excluded.doc", table)
		}
		args = []any{id, string(doc)}
	} else {
		if s.dialect == "mysql" {
			query = fmt.Sprintf(
				"INSERT INTO %s (id, doc, %s) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE doc = VALUES(doc), %s = VALUES(%s)",
				table, lookupCol, lookupCol, lookupCol)
		} else {
			query = fmt.Sprintf(
				"INSERT INTO %s (id, doc, %s) VALUES (?, ?, ?) ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, %s = excluded.%s",
				table, lookupCol, lookupCol, lookupCol)
		}
		args = []any{id, string(doc), lookupVal}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

func (s *SQLStore) get(ctx context.Context, table, id string, record any) error {
	var doc string
	query := fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", table)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select from %s: %w", table, err)
	}
	if err := json.Unmarshal([]byte(doc), record); err != nil {
		return fmt.Errorf("decode %s record: %w", table, err)
	}
	return nil
}

// docsBy returns the raw documents matching the lookup column, or every
// document when lookupCol is empty.
func (s *SQLStore) docsBy(ctx context.Context, table, lookupCol, lookupVal string) ([]string, error) {
	query := fmt.Sprintf("SELECT doc FROM %s", table)
	var args []any
	if lookupCol != "" {
		query += fmt.Sprintf(" WHERE %s = ?", lookupCol)
		args = append(args, lookupVal)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func decodeAll[T any](docs []string, table string) ([]*T, error) {
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		var rec T
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", table, err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// SaveWorkflow implements Store.
func (s *SQLStore) SaveWorkflow(ctx context.Context, wf *flow.Workflow) error {
	return s.upsert(ctx, "workflows", wf.ID, "", "", wf)
}

// Workflow implements Store.
func (s *SQLStore) Workflow(ctx context.Context, id string) (*flow.Workflow, error) {
	var wf flow.Workflow
	if err := s.get(ctx, "workflows", id, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListWorkflows implements Store.
func (s *SQLStore) ListWorkflows(ctx context.Context) ([]*flow.Workflow, error) {
	docs, err := s.docsBy(ctx, "workflows", "", "")
	if err != nil {
		return nil, err
	}
	return decodeAll[flow.Workflow](docs, "workflows")
}

// SaveStudent implements Store.
func (s *SQLStore) SaveStudent(ctx context.Context, p *flow.StudentProfile) error {
	return s.upsert(ctx, "students", p.ID, "", "", p)
}

// Student implements Store.
func (s *SQLStore) Student(ctx context.Context, id string) (*flow.StudentProfile, error) {
	var p flow.StudentProfile
	if err := s.get(ctx, "students", id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveSession implements Store.
func (s *SQLStore) SaveSession(ctx context.Context, sess *LearningSession) error {
	return s.upsert(ctx, "learning_sessions", sess.ID, "student_id", sess.StudentID, sess)
}

// Session implements Store.
func (s *SQLStore) Session(ctx context.Context, id string) (*LearningSession, error) {
	var sess LearningSession
	if err := s.get(ctx, "learning_sessions", id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SessionsForStudent implements Store.
func (s *SQLStore) SessionsForStudent(ctx context.Context, studentID string) ([]*LearningSession, error) {
	docs, err := s.docsBy(ctx, "learning_sessions", "student_id", studentID)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll[LearningSession](docs, "learning_sessions")
	if err != nil {
		return nil, err
	}
	// Newest first, matching MemoryStore.
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// SaveProgress implements Store.
func (s *SQLStore) SaveProgress(ctx context.Context, p *ProgressRecord) error {
	return s.upsert(ctx, "progress_records", p.ID, "student_id", p.StudentID, p)
}

// ProgressForStudent implements Store.
func (s *SQLStore) ProgressForStudent(ctx context.Context, studentID string) ([]*ProgressRecord, error) {
	docs, err := s.docsBy(ctx, "progress_records", "student_id", studentID)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll[ProgressRecord](docs, "progress_records")
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveAssessment implements Store.
func (s *SQLStore) SaveAssessment(ctx context.Context, a *AssessmentResult) error {
	return s.upsert(ctx, "assessment_results", a.ID, "student_id", a.StudentID, a)
}

// AssessmentsForStudent implements Store.
func (s *SQLStore) AssessmentsForStudent(ctx context.Context, studentID string) ([]*AssessmentResult, error) {
	docs, err := s.docsBy(ctx, "assessment_results", "student_id", studentID)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll[AssessmentResult](docs, "assessment_results")
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveAlert implements Store.
func (s *SQLStore) SaveAlert(ctx context.Context, a *TeacherAlert) error {
	return s.upsert(ctx, "teacher_alerts", a.ID, "teacher_id", a.TeacherID, a)
}

// AlertsForTeacher implements Store.
func (s *SQLStore) AlertsForTeacher(ctx context.Context, teacherID string) ([]*TeacherAlert, error) {
	docs, err := s.docsBy(ctx, "teacher_alerts", "teacher_id", teacherID)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll[TeacherAlert](docs, "teacher_alerts")
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
