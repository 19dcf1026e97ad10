package staging

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/backmig/backmig/internal/backlog"
)

// Target-side tables: the target tenant's catalog captured before replay,
// plus the source->target issue correlation written during replay.

func (s *Store) PutTargetProject(ctx context.Context, p *backlog.Project) error {
	cols := []string{"project_key", "name"}
	vals := []interface{}{p.ProjectKey, p.Name}
	return s.twoPhasePut(ctx, "target_project", KindTargetProject, "project_id", p.ID, cols, vals)
}

func (s *Store) PutTargetUser(ctx context.Context, u backlog.User) error {
	cols := []string{"login", "name", "role_type", "mail_address"}
	vals := []interface{}{u.UserID, u.Name, u.RoleType, u.MailAddress}
	return s.twoPhasePut(ctx, "target_users", KindTargetUser, "user_id", u.ID, cols, vals)
}

func (s *Store) PutTargetIssueType(ctx context.Context, t backlog.IssueType) error {
	cols := []string{"name", "color"}
	vals := []interface{}{t.Name, t.Color}
	return s.twoPhasePut(ctx, "target_issue_types", KindTargetIssueType, "issue_type_id", t.ID, cols, vals)
}

func (s *Store) PutTargetPriority(ctx context.Context, p backlog.Priority) error {
	return s.twoPhasePut(ctx, "target_priorities", KindTargetPriority, "priority_id", p.ID,
		[]string{"name"}, []interface{}{p.Name})
}

func (s *Store) PutTargetResolution(ctx context.Context, r backlog.Resolution) error {
	return s.twoPhasePut(ctx, "target_resolutions", KindTargetResolution, "resolution_id", r.ID,
		[]string{"name"}, []interface{}{r.Name})
}

func (s *Store) PutTargetStatus(ctx context.Context, st backlog.Status) error {
	return s.twoPhasePut(ctx, "target_statuses", KindTargetStatus, "status_id", st.ID,
		[]string{"name"}, []interface{}{st.Name})
}

func (s *Store) PutTargetCategory(ctx context.Context, c backlog.Category) error {
	return s.twoPhasePut(ctx, "target_categories", KindTargetCategory, "category_id", c.ID,
		[]string{"name"}, []interface{}{c.Name})
}

func (s *Store) PutTargetVersion(ctx context.Context, v backlog.Version) error {
	return s.twoPhasePut(ctx, "target_versions", KindTargetVersion, "version_id", v.ID,
		[]string{"name"}, []interface{}{v.Name})
}

func (s *Store) PutTargetMilestone(ctx context.Context, v backlog.Version) error {
	return s.twoPhasePut(ctx, "target_milestones", KindTargetMilestone, "milestone_id", v.ID,
		[]string{"name"}, []interface{}{v.Name})
}

// TargetProject returns the captured target project, or nil when Prepare
// has not run.
func (s *Store) TargetProject(ctx context.Context) (*backlog.Project, error) {
	var p backlog.Project
	var key, name sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT project_id, project_key, name FROM target_project LIMIT 1").
		Scan(&p.ID, &key, &name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query target project: %w", err)
	}
	p.ProjectKey = key.String
	p.Name = name.String
	return &p, nil
}

// nameLookup resolves a single name to an id in a target catalog table.
// Returns (0, nil) when the name is unknown; callers warn and skip.
func (s *Store) nameLookup(ctx context.Context, table, idCol, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT "+idCol+" FROM "+table+" WHERE name = ? ORDER BY "+idCol+" LIMIT 1", name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve name in %s: %w", table, err)
	}
	return id, nil
}

func (s *Store) TargetIssueTypeIDByName(ctx context.Context, name string) (int64, error) {
	return s.nameLookup(ctx, "target_issue_types", "issue_type_id", name)
}

func (s *Store) TargetPriorityIDByName(ctx context.Context, name string) (int64, error) {
	return s.nameLookup(ctx, "target_priorities", "priority_id", name)
}

func (s *Store) TargetResolutionIDByName(ctx context.Context, name string) (int64, error) {
	return s.nameLookup(ctx, "target_resolutions", "resolution_id", name)
}

func (s *Store) TargetStatusIDByName(ctx context.Context, name string) (int64, error) {
	return s.nameLookup(ctx, "target_statuses", "status_id", name)
}

func (s *Store) TargetCategoryIDByName(ctx context.Context, name string) (int64, error) {
	return s.nameLookup(ctx, "target_categories", "category_id", name)
}

func (s *Store) TargetVersionIDByName(ctx context.Context, name string) (int64, error) {
	return s.nameLookup(ctx, "target_versions", "version_id", name)
}

func (s *Store) TargetMilestoneIDByName(ctx context.Context, name string) (int64, error) {
	return s.nameLookup(ctx, "target_milestones", "milestone_id", name)
}

// ResolveNameList resolves a comma-joined name list with the given
// per-name resolver. Unknown names come back in missing; they are a
// data-integrity warning, never fatal.
func ResolveNameList(ctx context.Context, names string, resolve func(context.Context, string) (int64, error)) (ids []int64, missing []string, err error) {
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, err := resolve(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		if id == 0 {
			missing = append(missing, name)
			continue
		}
		ids = append(ids, id)
	}
	return ids, missing, nil
}

// PutTargetIssueCorrelation records a newly created target issue and the
// source issue it mirrors. This row is the only place the correlation
// exists; it is written once, at creation time.
func (s *Store) PutTargetIssueCorrelation(ctx context.Context, target *backlog.Issue, sourceIssueID int64) error {
	cols := []string{"source_issue_id", "key_id", "issue_key", "summary"}
	vals := []interface{}{sourceIssueID, target.KeyID, target.IssueKey, target.Summary}
	return s.twoPhasePut(ctx, "target_issues", KindTargetIssue, "target_issue_id", target.ID, cols, vals)
}

// TargetIssueIDForSource resolves the target issue created for a source
// issue. Returns (0, nil) when no correlation exists.
func (s *Store) TargetIssueIDForSource(ctx context.Context, sourceIssueID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT target_issue_id FROM target_issues WHERE source_issue_id = ?", sourceIssueID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve issue correlation: %w", err)
	}
	return id, nil
}
