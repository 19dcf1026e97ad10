package staging

// Staging schema. Source-side tables are keyed by the source tenant's ids;
// change logs use a synthesized commentId-seq key because the API returns
// them without ids. Multi-valued associations (categories, versions,
// milestones, notified users) are comma-joined lists: the destination API
// accepts and returns these as lists by name, so normalizing them buys
// nothing.
const schema = `
-- source tenant capture
CREATE TABLE IF NOT EXISTS projects (
    project_id INTEGER PRIMARY KEY,
    project_key TEXT,
    name TEXT
);

CREATE TABLE IF NOT EXISTS users (
    user_id INTEGER PRIMARY KEY,
    login TEXT,
    name TEXT,
    role_type INTEGER,
    mail_address TEXT
);

CREATE TABLE IF NOT EXISTS categories (
    category_id INTEGER PRIMARY KEY,
    name TEXT
);

CREATE TABLE IF NOT EXISTS versions (
    version_id INTEGER PRIMARY KEY,
    name TEXT,
    description TEXT,
    start_date TEXT,
    release_due_date TEXT
);

CREATE TABLE IF NOT EXISTS milestones (
    milestone_id INTEGER PRIMARY KEY,
    name TEXT,
    description TEXT,
    start_date TEXT,
    release_due_date TEXT
);

CREATE TABLE IF NOT EXISTS issue_types (
    issue_type_id INTEGER PRIMARY KEY,
    name TEXT,
    color TEXT
);

CREATE TABLE IF NOT EXISTS statuses (
    status_id INTEGER PRIMARY KEY,
    name TEXT
);

CREATE TABLE IF NOT EXISTS issues (
    issue_id INTEGER PRIMARY KEY,
    issue_key TEXT,
    key_id INTEGER,
    summary TEXT,
    description TEXT,
    issue_type TEXT,
    priority TEXT,
    resolution TEXT,
    status TEXT,
    assignee INTEGER,
    categories TEXT,
    versions TEXT,
    milestones TEXT,
    start_date TEXT,
    due_date TEXT,
    estimated_hours REAL,
    actual_hours REAL,
    parent_issue_id INTEGER,
    created_user INTEGER,
    created TEXT,
    updated_user INTEGER,
    updated TEXT
);

CREATE INDEX IF NOT EXISTS idx_issues_key_id ON issues(key_id);

-- captured for completeness; replay does not reconstruct custom fields
CREATE TABLE IF NOT EXISTS issue_custom_fields (
    custom_field_key TEXT PRIMARY KEY,   -- issueId-fieldId
    issue_id INTEGER,
    field_id INTEGER,
    name TEXT,
    value TEXT
);

CREATE TABLE IF NOT EXISTS issue_comments (
    comment_id INTEGER PRIMARY KEY,
    issue_id INTEGER,
    content TEXT,
    created_user INTEGER,
    created TEXT,
    updated TEXT,
    notified_user_ids TEXT
);

CREATE INDEX IF NOT EXISTS idx_issue_comments_issue ON issue_comments(issue_id);

CREATE TABLE IF NOT EXISTS issue_comment_change_logs (
    change_log_key TEXT PRIMARY KEY,     -- commentId-seq
    comment_id INTEGER,
    issue_id INTEGER,
    seq INTEGER,
    field TEXT,
    original_value TEXT,
    new_value TEXT,
    attachment_id INTEGER,
    attribute_info TEXT,
    notification_info TEXT
);

CREATE INDEX IF NOT EXISTS idx_change_logs_comment ON issue_comment_change_logs(comment_id);

CREATE TABLE IF NOT EXISTS issue_attachments (
    attachment_id INTEGER PRIMARY KEY,
    issue_id INTEGER,
    name TEXT,
    size INTEGER,
    local_filename TEXT
);

CREATE TABLE IF NOT EXISTS wikis (
    wiki_id INTEGER PRIMARY KEY,
    name TEXT,
    content TEXT,
    created_user INTEGER,
    created TEXT,
    updated TEXT
);

CREATE TABLE IF NOT EXISTS wiki_attachments (
    attachment_id INTEGER PRIMARY KEY,
    wiki_id INTEGER,
    name TEXT,
    size INTEGER,
    local_filename TEXT
);

CREATE TABLE IF NOT EXISTS shared_files (
    file_id INTEGER PRIMARY KEY,
    dir TEXT,
    name TEXT,
    size INTEGER,
    local_filename TEXT
);

-- target tenant capture (replay prerequisites)
CREATE TABLE IF NOT EXISTS target_project (
    project_id INTEGER PRIMARY KEY,
    project_key TEXT,
    name TEXT
);

CREATE TABLE IF NOT EXISTS target_users (
    user_id INTEGER PRIMARY KEY,
    login TEXT,
    name TEXT,
    role_type INTEGER,
    mail_address TEXT
);

CREATE TABLE IF NOT EXISTS target_issue_types (
    issue_type_id INTEGER PRIMARY KEY,
    name TEXT,
    color TEXT
);

CREATE TABLE IF NOT EXISTS target_priorities (
    priority_id INTEGER PRIMARY KEY,
    name TEXT
);

CREATE TABLE IF NOT EXISTS target_resolutions (
    resolution_id INTEGER PRIMARY KEY,
    name TEXT
);

CREATE TABLE IF NOT EXISTS target_statuses (
    status_id INTEGER PRIMARY KEY,
    name TEXT
);

CREATE TABLE IF NOT EXISTS target_categories (
    category_id INTEGER PRIMARY KEY,
    name TEXT
);

CREATE TABLE IF NOT EXISTS target_versions (
    version_id INTEGER PRIMARY KEY,
    name TEXT
);

CREATE TABLE IF NOT EXISTS target_milestones (
    milestone_id INTEGER PRIMARY KEY,
    name TEXT
);

-- the only record of the source->target issue correlation
CREATE TABLE IF NOT EXISTS target_issues (
    target_issue_id INTEGER PRIMARY KEY,
    source_issue_id INTEGER,
    key_id INTEGER,
    issue_key TEXT,
    summary TEXT,
    created TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_target_issues_source ON target_issues(source_issue_id);

CREATE TABLE IF NOT EXISTS user_mapping (
    source_user_id INTEGER PRIMARY KEY,
    target_user_id INTEGER NOT NULL DEFAULT 0,
    reviewed INTEGER NOT NULL DEFAULT 0,
    mapping_result TEXT,
    created TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tool_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    at TEXT DEFAULT CURRENT_TIMESTAMP,
    level TEXT,
    message TEXT
);
`
