// Package sqlite implements the storage interfaces using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"
	"golang.org/x/mod/semver"

	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// Store implements storage.Storage using SQLite
type Store struct {
	queries
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// querier abstracts *sql.DB and *sql.Conn so the same query methods serve
// both direct access and transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries carries every storage.Queries method; it runs against the pooled
// database directly or against a dedicated transaction connection.
type queries struct {
	q querier
}

// tx is the storage.Transaction handed to RunInTransaction callbacks
type tx struct {
	queries
}

// setupWASMCache configures WASM compilation caching so the embedded SQLite
// build is compiled once and reused across process starts. Falls back to an
// in-memory cache when the cache directory cannot be created.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "rivet", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New opens (creating if necessary) a rivet SQLite database at path
func New(path string) (*Store, error) {
	var connStr string
	if path == ":memory:" {
		// Shared in-memory database; WAL does not apply here
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else if strings.HasPrefix(path, "file:") {
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory databases are isolated per connection; force a single
	// connection so every query sees the same data.
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	if isInMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{queries: queries{q: db}, db: db, dbPath: path}

	ctx := context.Background()
	stamped, err := s.GetConfig(ctx, "schema_version")
	if err != nil && err != storage.ErrNotFound {
		return nil, err
	}
	if stamped == "" {
		if err := s.SetConfig(ctx, "schema_version", SchemaVersion); err != nil {
			return nil, err
		}
	} else if semver.Compare(semver.Major(stamped), semver.Major(SchemaVersion)) != 0 {
		return nil, fmt.Errorf("database schema %s is incompatible with this binary (wants %s)", stamped, SchemaVersion)
	}

	return s, nil
}

// Close closes the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Path returns the database path the store was opened with
func (s *Store) Path() string {
	return s.dbPath
}

// RunInTransaction executes fn inside one IMMEDIATE transaction. IMMEDIATE
// acquires the write lock up front, serializing concurrent writers instead
// of failing at commit time. The callback's error aborts the transaction
// and is returned unchanged.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// database/sql's BeginTx cannot select IMMEDIATE mode, so issue the
	// statements directly on the dedicated connection.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback happens even if ctx is canceled
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&tx{queries{q: conn}}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// SetConfig stores a config key/value pair
func (q *queries) SetConfig(ctx context.Context, key, value string) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config: %w", err)
	}
	return nil
}

// GetConfig retrieves a config value; missing keys return "" and ErrNotFound
func (q *queries) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := q.q.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value, nil
}

// CreateProject inserts a new project. Duplicate names are a conflict.
func (q *queries) CreateProject(ctx context.Context, project *types.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE name = ?`, project.Name).Scan(&n); err != nil {
		return fmt.Errorf("failed to check project name: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("project %q already exists: %w", project.Name, storage.ErrConflict)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO projects (name, description, suspended, created_at)
		VALUES (?, ?, ?, ?)
	`, project.Name, project.Description, boolInt(project.Suspended), project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	project.ID, err = res.LastInsertId()
	return err
}

// GetProject retrieves a project by id
func (q *queries) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	return q.scanProject(q.q.QueryRowContext(ctx, `
		SELECT id, name, description, suspended, created_at FROM projects WHERE id = ?
	`, id))
}

// GetProjectByName retrieves a project by its unique name
func (q *queries) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	return q.scanProject(q.q.QueryRowContext(ctx, `
		SELECT id, name, description, suspended, created_at FROM projects WHERE name = ?
	`, name))
}

func (q *queries) scanProject(row *sql.Row) (*types.Project, error) {
	var p types.Project
	var suspended int
	err := row.Scan(&p.ID, &p.Name, &p.Description, &suspended, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.Suspended = suspended != 0
	return &p, nil
}

// UpdateProject writes back mutable project attributes
func (q *queries) UpdateProject(ctx context.Context, project *types.Project) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE projects SET description = ?, suspended = ? WHERE id = ?
	`, project.Description, boolInt(project.Suspended), project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// CreateUser inserts a new user
func (q *queries) CreateUser(ctx context.Context, user *types.User) error {
	if user.Name == "" {
		return fmt.Errorf("validation failed: user name is required")
	}
	tz := user.Timezone
	if tz == "" {
		tz = "UTC"
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO users (name, admin, timezone) VALUES (?, ?, ?)
	`, user.Name, boolInt(user.Admin), tz)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	return err
}

// GetUser retrieves a user by id
func (q *queries) GetUser(ctx context.Context, id int64) (*types.User, error) {
	return q.scanUser(q.q.QueryRowContext(ctx, `
		SELECT id, name, admin, timezone FROM users WHERE id = ?
	`, id))
}

// GetUserByName retrieves a user by its unique name
func (q *queries) GetUserByName(ctx context.Context, name string) (*types.User, error) {
	return q.scanUser(q.q.QueryRowContext(ctx, `
		SELECT id, name, admin, timezone FROM users WHERE name = ?
	`, name))
}

func (q *queries) scanUser(row *sql.Row) (*types.User, error) {
	var u types.User
	var admin int
	err := row.Scan(&u.ID, &u.Name, &admin, &u.Timezone)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Admin = admin != 0
	return &u, nil
}

// CreateGroup inserts a new group within a project
func (q *queries) CreateGroup(ctx context.Context, group *types.Group) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO project_groups (project_id, name) VALUES (?, ?)
	`, group.ProjectID, group.Name)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	group.ID, err = res.LastInsertId()
	return err
}

// GetGroupByName retrieves a project's group by name
func (q *queries) GetGroupByName(ctx context.Context, projectID int64, name string) (*types.Group, error) {
	var g types.Group
	err := q.q.QueryRowContext(ctx, `
		SELECT id, project_id, name FROM project_groups WHERE project_id = ? AND name = ?
	`, projectID, name).Scan(&g.ID, &g.ProjectID, &g.Name)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// AddUserToGroup records group membership (idempotent)
func (q *queries) AddUserToGroup(ctx context.Context, userID, groupID int64) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_groups (user_id, group_id) VALUES (?, ?)
	`, userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to add user to group: %w", err)
	}
	return nil
}

// GetUserGroups returns the ids of every group the user belongs to
func (q *queries) GetUserGroups(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT group_id FROM user_groups WHERE user_id = ? ORDER BY group_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user groups: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
