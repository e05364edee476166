package sqlite

// SchemaVersion is stamped into the config table when a database is
// created and checked against the binary at open time.
const SchemaVersion = "v1.0.0"

const schema = `
-- Projects own templates and groups
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE CHECK(length(name) <= 100),
    description TEXT NOT NULL DEFAULT '',
    suspended INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    admin INTEGER NOT NULL DEFAULT 0,
    timezone TEXT NOT NULL DEFAULT 'UTC'
);

CREATE TABLE IF NOT EXISTS project_groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    UNIQUE (project_id, name),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_groups (
    user_id INTEGER NOT NULL,
    group_id INTEGER NOT NULL,
    PRIMARY KEY (user_id, group_id),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY (group_id) REFERENCES project_groups(id) ON DELETE CASCADE
);

-- Templates: name and prefix each unique within the project
CREATE TABLE IF NOT EXISTS templates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    prefix TEXT NOT NULL CHECK(length(prefix) <= 16),
    locked INTEGER NOT NULL DEFAULT 0,
    critical_age INTEGER NOT NULL DEFAULT 0,
    frozen_time INTEGER NOT NULL DEFAULT 0,
    initial_state INTEGER NOT NULL DEFAULT 0,
    UNIQUE (project_id, name),
    UNIQUE (project_id, prefix),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS states (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    template_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'intermediate',
    responsible TEXT NOT NULL DEFAULT 'none',
    UNIQUE (template_id, name),
    FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS state_responsible_groups (
    state_id INTEGER NOT NULL,
    group_id INTEGER NOT NULL,
    PRIMARY KEY (state_id, group_id),
    FOREIGN KEY (state_id) REFERENCES states(id) ON DELETE CASCADE,
    FOREIGN KEY (group_id) REFERENCES project_groups(id) ON DELETE CASCADE
);

-- Fields are scoped to one state; position orders them within it
CREATE TABLE IF NOT EXISTS fields (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    state_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    required INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL,
    max_length INTEGER NOT NULL DEFAULT 0,
    min_value INTEGER,
    max_value INTEGER,
    default_value TEXT NOT NULL DEFAULT '',
    UNIQUE (state_id, position),
    FOREIGN KEY (state_id) REFERENCES states(id) ON DELETE CASCADE
);

-- Administered options of list fields, unique by (field, key)
CREATE TABLE IF NOT EXISTS list_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    field_id INTEGER NOT NULL,
    key INTEGER NOT NULL,
    label TEXT NOT NULL,
    UNIQUE (field_id, key),
    FOREIGN KEY (field_id) REFERENCES fields(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_state INTEGER NOT NULL,
    to_state INTEGER NOT NULL,
    UNIQUE (from_state, to_state),
    FOREIGN KEY (from_state) REFERENCES states(id) ON DELETE CASCADE,
    FOREIGN KEY (to_state) REFERENCES states(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS transition_roles (
    transition_id INTEGER NOT NULL,
    role TEXT NOT NULL,
    PRIMARY KEY (transition_id, role),
    FOREIGN KEY (transition_id) REFERENCES transitions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS transition_groups (
    transition_id INTEGER NOT NULL,
    group_id INTEGER NOT NULL,
    PRIMARY KEY (transition_id, group_id),
    FOREIGN KEY (transition_id) REFERENCES transitions(id) ON DELETE CASCADE,
    FOREIGN KEY (group_id) REFERENCES project_groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS grant_roles (
    template_id INTEGER NOT NULL,
    permission TEXT NOT NULL,
    role TEXT NOT NULL,
    PRIMARY KEY (template_id, permission, role),
    FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS grant_groups (
    template_id INTEGER NOT NULL,
    permission TEXT NOT NULL,
    group_id INTEGER NOT NULL,
    PRIMARY KEY (template_id, permission, group_id),
    FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE,
    FOREIGN KEY (group_id) REFERENCES project_groups(id) ON DELETE CASCADE
);

-- Issues
CREATE TABLE IF NOT EXISTS issues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    template_id INTEGER NOT NULL,
    author_id INTEGER NOT NULL,
    responsible INTEGER,
    subject TEXT NOT NULL CHECK(length(subject) <= 500),
    state_id INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    changed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    closed_at DATETIME,
    suspended INTEGER NOT NULL DEFAULT 0,
    resumes_at DATETIME,
    origin_id INTEGER,
    FOREIGN KEY (template_id) REFERENCES templates(id),
    FOREIGN KEY (author_id) REFERENCES users(id),
    FOREIGN KEY (state_id) REFERENCES states(id)
);

CREATE INDEX IF NOT EXISTS idx_issues_template ON issues(template_id);
CREATE INDEX IF NOT EXISTS idx_issues_state ON issues(state_id);
CREATE INDEX IF NOT EXISTS idx_issues_responsible ON issues(responsible);

-- One row per (issue, field) once populated. value is the inline scalar or
-- a reference into the dedup tables / list_items, by field type.
CREATE TABLE IF NOT EXISTS field_values (
    issue_id INTEGER NOT NULL,
    field_id INTEGER NOT NULL,
    value INTEGER NOT NULL,
    PRIMARY KEY (issue_id, field_id),
    FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE,
    FOREIGN KEY (field_id) REFERENCES fields(id)
);

-- Deduplicated value tables: content-addressed, rows never updated or
-- deleted (history may still reference them)
CREATE TABLE IF NOT EXISTS string_values (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    value TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS text_values (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    value TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS decimal_values (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    value TEXT NOT NULL UNIQUE
);

-- Events table (append-only audit trail)
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    issue_id INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    actor_id INTEGER NOT NULL,
    parameter INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE,
    FOREIGN KEY (actor_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_events_issue ON events(issue_id);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);

-- Per-field before/after records of edited and state_changed events.
-- field_id NULL marks a subject change.
CREATE TABLE IF NOT EXISTS changes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id INTEGER NOT NULL,
    field_id INTEGER,
    old_value INTEGER,
    new_value INTEGER,
    old_subject TEXT NOT NULL DEFAULT '',
    new_subject TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_changes_event ON changes(event_id);

CREATE TABLE IF NOT EXISTS comments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    private INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    mime_type TEXT NOT NULL DEFAULT '',
    storage_key TEXT NOT NULL,
    removed INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
);

-- Symmetric dependency pairs, stored normalized (low id first)
CREATE TABLE IF NOT EXISTS issue_dependencies (
    low_id INTEGER NOT NULL,
    high_id INTEGER NOT NULL CHECK(low_id < high_id),
    PRIMARY KEY (low_id, high_id),
    FOREIGN KEY (low_id) REFERENCES issues(id) ON DELETE CASCADE,
    FOREIGN KEY (high_id) REFERENCES issues(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS watchers (
    issue_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    PRIMARY KEY (issue_id, user_id),
    FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS issue_reads (
    issue_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    read_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (issue_id, user_id),
    FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Config table (schema version stamp, instance settings)
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
