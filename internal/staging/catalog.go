package staging

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/backmig/backmig/internal/backlog"
)

// Source-side catalog tables: project, users and the name spaces issues
// reference. Each is a plain two-phase write keyed by the source id.

func (s *Store) PutProject(ctx context.Context, p *backlog.Project) error {
	cols := []string{"project_key", "name"}
	vals := []interface{}{p.ProjectKey, p.Name}
	return s.twoPhasePut(ctx, "projects", KindProject, "project_id", p.ID, cols, vals)
}

func (s *Store) PutUser(ctx context.Context, u *backlog.User) error {
	cols := []string{"login", "name", "role_type", "mail_address"}
	vals := []interface{}{u.UserID, u.Name, u.RoleType, u.MailAddress}
	return s.twoPhasePut(ctx, "users", KindUser, "user_id", u.ID, cols, vals)
}

func (s *Store) PutCategory(ctx context.Context, c backlog.Category) error {
	return s.twoPhasePut(ctx, "categories", KindCategory, "category_id", c.ID,
		[]string{"name"}, []interface{}{c.Name})
}

func (s *Store) PutVersion(ctx context.Context, v backlog.Version) error {
	cols := []string{"name", "description", "start_date", "release_due_date"}
	vals := []interface{}{v.Name, v.Description, v.StartDate, v.ReleaseDueDate}
	return s.twoPhasePut(ctx, "versions", KindVersion, "version_id", v.ID, cols, vals)
}

// PutMilestone stages a version record into the milestones table; Backlog
// serves milestones from the same endpoint as versions.
func (s *Store) PutMilestone(ctx context.Context, v backlog.Version) error {
	cols := []string{"name", "description", "start_date", "release_due_date"}
	vals := []interface{}{v.Name, v.Description, v.StartDate, v.ReleaseDueDate}
	return s.twoPhasePut(ctx, "milestones", KindMilestone, "milestone_id", v.ID, cols, vals)
}

func (s *Store) PutIssueType(ctx context.Context, t backlog.IssueType) error {
	cols := []string{"name", "color"}
	vals := []interface{}{t.Name, t.Color}
	return s.twoPhasePut(ctx, "issue_types", KindIssueType, "issue_type_id", t.ID, cols, vals)
}

func (s *Store) PutStatus(ctx context.Context, st backlog.Status) error {
	return s.twoPhasePut(ctx, "statuses", KindStatus, "status_id", st.ID,
		[]string{"name"}, []interface{}{st.Name})
}

func (s *Store) PutWiki(ctx context.Context, w *backlog.Wiki) error {
	var createdUser interface{}
	if w.CreatedUser != nil {
		createdUser = w.CreatedUser.ID
		if err := s.PutUser(ctx, w.CreatedUser); err != nil {
			return err
		}
	}
	cols := []string{"name", "content", "created_user", "created", "updated"}
	vals := []interface{}{w.Name, w.Content, createdUser, w.Created, w.Updated}
	return s.twoPhasePut(ctx, "wikis", KindWiki, "wiki_id", w.ID, cols, vals)
}

// NamedRow is a (id, name) pair from a catalog table.
type NamedRow struct {
	ID   int64
	Name string
}

// namedRows runs a two-column (id, name) query.
func (s *Store) namedRows(ctx context.Context, query string, args ...interface{}) ([]NamedRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var out []NamedRow
	for rows.Next() {
		var r NamedRow
		var name sql.NullString
		if err := rows.Scan(&r.ID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		r.Name = name.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// SourceCategories lists staged source categories in id order.
func (s *Store) SourceCategories(ctx context.Context) ([]NamedRow, error) {
	return s.namedRows(ctx, "SELECT category_id, name FROM categories ORDER BY category_id")
}

// IssueTypeRow is a staged issue type.
type IssueTypeRow struct {
	ID    int64
	Name  string
	Color string
}

// SourceIssueTypes lists staged source issue types in id order.
func (s *Store) SourceIssueTypes(ctx context.Context) ([]IssueTypeRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT issue_type_id, name, color FROM issue_types ORDER BY issue_type_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query issue types: %w", err)
	}
	defer rows.Close()

	var out []IssueTypeRow
	for rows.Next() {
		var r IssueTypeRow
		var name, color sql.NullString
		if err := rows.Scan(&r.ID, &name, &color); err != nil {
			return nil, fmt.Errorf("failed to scan issue type: %w", err)
		}
		r.Name = name.String
		r.Color = color.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// VersionCatalogRow is a staged version/milestone with its date fields.
type VersionCatalogRow struct {
	ID             int64
	Name           string
	Description    string
	StartDate      string
	ReleaseDueDate string
}

func (s *Store) versionCatalog(ctx context.Context, table, keyCol string) ([]VersionCatalogRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+keyCol+", name, description, start_date, release_due_date FROM "+table+" ORDER BY "+keyCol)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []VersionCatalogRow
	for rows.Next() {
		var r VersionCatalogRow
		var name, desc, start, due sql.NullString
		if err := rows.Scan(&r.ID, &name, &desc, &start, &due); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		r.Name = name.String
		r.Description = desc.String
		r.StartDate = start.String
		r.ReleaseDueDate = due.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// SourceVersions lists staged source versions in id order.
func (s *Store) SourceVersions(ctx context.Context) ([]VersionCatalogRow, error) {
	return s.versionCatalog(ctx, "versions", "version_id")
}

// SourceMilestones lists staged source milestones in id order.
func (s *Store) SourceMilestones(ctx context.Context) ([]VersionCatalogRow, error) {
	return s.versionCatalog(ctx, "milestones", "milestone_id")
}

// WikiRow is a staged wiki page.
type WikiRow struct {
	WikiID  int64
	Name    string
	Content string
}

// Wikis lists staged wiki pages in id order.
func (s *Store) Wikis(ctx context.Context) ([]WikiRow, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT wiki_id, name, content FROM wikis ORDER BY wiki_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query staged wikis: %w", err)
	}
	defer rows.Close()

	var out []WikiRow
	for rows.Next() {
		var r WikiRow
		var name, content sql.NullString
		if err := rows.Scan(&r.WikiID, &name, &content); err != nil {
			return nil, fmt.Errorf("failed to scan staged wiki: %w", err)
		}
		r.Name = name.String
		r.Content = content.String
		out = append(out, r)
	}
	return out, rows.Err()
}
