package projectstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"deepbuild/internal/types"
)

// SQL is the durable transactional backend. The same queries serve postgres
// (pgx) and sqlite (modernc); placeholders are written as ? and rebound.
type SQL struct {
	db     *sql.DB
	driver string
	clock  clock

	schemaOnce sync.Once
	schemaErr  error
}

// OpenSQL opens driver ("postgres" or "sqlite") at dsn and prepares the schema.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	dsn = strings.TrimSpace(dsn)
	var name string
	switch driver {
	case DriverPostgres:
		name = "pgx"
	case DriverSQLite:
		name = "sqlite"
		if dsn == "" {
			dsn = "deepbuild.db"
		}
	default:
		return nil, fmt.Errorf("projectstore: unsupported sql driver %q", driver)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// One connection serializes writers and keeps PRAGMAs in effect.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQL{db: db, driver: driver}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) schema() []string {
	stmts := []string{}
	if s.driver == DriverSQLite {
		stmts = append(stmts,
			`PRAGMA foreign_keys = ON`,
			`PRAGMA journal_mode = WAL`,
			`PRAGMA busy_timeout = 5000`,
		)
	}
	return append(stmts,
		`CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  brief TEXT NOT NULL,
  phase TEXT NOT NULL,
  answers TEXT NOT NULL DEFAULT '{}',
  question_index INTEGER NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS files (
  project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
  path TEXT NOT NULL,
  ordinal INTEGER NOT NULL,
  purpose TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  updated_at BIGINT NOT NULL,
  PRIMARY KEY (project_id, path)
)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects (created_at)`,
	)
}

func (s *SQL) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		for _, stmt := range s.schema() {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.schemaErr = fmt.Errorf("projectstore: migrate: %w", err)
				return
			}
		}
	})
	return s.schemaErr
}

// q rebinds ? placeholders to $n for postgres.
func (s *SQL) q(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) forUpdate() string {
	if s.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

const projectColumns = `id, name, created_at, brief, phase, answers, question_index`
const fileColumns = `project_id, path, ordinal, purpose, content, status, error, message, updated_at`

func (s *SQL) CreateProject(ctx context.Context, name string, brief types.Brief) (string, error) {
	p := newProject(name, brief, s.clock.now())
	if len(p.Files) == 0 {
		return "", fmt.Errorf("%w: brief has no files", ErrInvalidUpdate)
	}
	briefJSON, err := json.Marshal(p.Brief)
	if err != nil {
		return "", err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO projects (`+projectColumns+`) VALUES (?,?,?,?,?,?,?)`),
		p.ID, p.Name, p.CreatedAt.UnixNano(), string(briefJSON), string(p.Phase), "{}", 0)
	if err != nil {
		return "", fmt.Errorf("projectstore: insert project: %w", err)
	}
	ins := s.q(`INSERT INTO files (` + fileColumns + `) VALUES (?,?,?,?,?,?,?,?,?)`)
	for _, f := range p.Files {
		if _, err := tx.ExecContext(ctx, ins,
			f.ProjectID, f.Path, f.Ordinal, f.Purpose, "", string(f.Status), "", "", f.UpdatedAt.UnixNano()); err != nil {
			return "", fmt.Errorf("projectstore: insert file %s: %w", f.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return p.ID, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanProject(row rowScanner) (types.Project, error) {
	var (
		p         types.Project
		createdAt int64
		brief     string
		phase     string
		answers   string
	)
	if err := row.Scan(&p.ID, &p.Name, &createdAt, &brief, &phase, &answers, &p.QuestionIndex); err != nil {
		return types.Project{}, err
	}
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	p.Phase = types.Phase(phase)
	if err := json.Unmarshal([]byte(brief), &p.Brief); err != nil {
		return types.Project{}, fmt.Errorf("projectstore: decode brief of %s: %w", p.ID, err)
	}
	p.Answers = map[string]string{}
	if err := json.Unmarshal([]byte(answers), &p.Answers); err != nil {
		return types.Project{}, fmt.Errorf("projectstore: decode answers of %s: %w", p.ID, err)
	}
	return p, nil
}

func scanFile(row rowScanner) (types.FileTask, error) {
	var (
		f         types.FileTask
		status    string
		updatedAt int64
	)
	if err := row.Scan(&f.ProjectID, &f.Path, &f.Ordinal, &f.Purpose, &f.Content, &status, &f.Error, &f.Message, &updatedAt); err != nil {
		return types.FileTask{}, err
	}
	f.Status = types.FileStatus(status)
	f.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return f, nil
}

func (s *SQL) filesOf(ctx context.Context, qr querier, projectID string) ([]types.FileTask, error) {
	rows, err := qr.QueryContext(ctx, s.q(`SELECT `+fileColumns+` FROM files WHERE project_id = ? ORDER BY ordinal`), projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.FileTask
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQL) GetProject(ctx context.Context, id string) (types.Project, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.Project{}, false, nil
	}
	p, err := scanProject(s.db.QueryRowContext(ctx, s.q(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Project{}, false, nil
	}
	if err != nil {
		return types.Project{}, false, err
	}
	if p.Files, err = s.filesOf(ctx, s.db, id); err != nil {
		return types.Project{}, false, err
	}
	return p, true, nil
}

func (s *SQL) ListProjects(ctx context.Context) []types.Project {
	out, err := s.listProjects(ctx)
	if err != nil {
		log.Printf("projectstore: list projects: %v", err)
		return []types.Project{}
	}
	return out
}

func (s *SQL) listProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	out := make([]types.Project, 0, 32)
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	frows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files ORDER BY project_id, ordinal`)
	if err != nil {
		return nil, err
	}
	defer frows.Close()
	for frows.Next() {
		f, err := scanFile(frows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[f.ProjectID]; ok {
			out[i].Files = append(out[i].Files, f)
		}
	}
	return out, frows.Err()
}

func (s *SQL) UpdateFile(ctx context.Context, projectID, path string, upd FileUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, s.q(`SELECT `+fileColumns+` FROM files WHERE project_id = ? AND path = ?`+s.forUpdate()),
		strings.TrimSpace(projectID), path)
	cur, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: file %s in project %s", ErrNotFound, path, projectID)
	}
	if err != nil {
		return err
	}
	if err := upd.apply(&cur, s.clock.now()); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, s.q(`UPDATE files SET content = ?, status = ?, error = ?, message = ?, updated_at = ?
WHERE project_id = ? AND path = ?`),
		cur.Content, string(cur.Status), cur.Error, cur.Message, cur.UpdatedAt.UnixNano(), cur.ProjectID, cur.Path)
	if err != nil {
		return fmt.Errorf("projectstore: update file %s: %w", path, err)
	}
	return tx.Commit()
}

func (s *SQL) UpdateProject(ctx context.Context, id string, fn func(*ProjectState)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	id = strings.TrimSpace(id)
	p, err := scanProject(tx.QueryRowContext(ctx, s.q(`SELECT `+projectColumns+` FROM projects WHERE id = ?`+s.forUpdate()), id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	st := stateOf(p)
	fn(&st)
	answers, err := json.Marshal(cloneAnswers(st.Answers))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, s.q(`UPDATE projects SET phase = ?, answers = ?, question_index = ? WHERE id = ?`),
		string(st.Phase), string(answers), st.QuestionIndex, id)
	if err != nil {
		return fmt.Errorf("projectstore: update project %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQL) DeleteProject(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	id = strings.TrimSpace(id)
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM files WHERE project_id = ?`), id); err != nil {
		return fmt.Errorf("projectstore: delete files of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("projectstore: delete project %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return tx.Commit()
}
