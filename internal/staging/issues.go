package staging

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/backmig/backmig/internal/backlog"
)

// Counter kinds, one per staged entity table.
const (
	KindProject         = "Project"
	KindUser            = "User"
	KindCategory        = "Category"
	KindVersion         = "Version"
	KindMilestone       = "Milestone"
	KindIssueType       = "IssueType"
	KindStatus          = "IssueStatusType"
	KindIssue           = "Issue"
	KindIssueComment    = "IssueComment"
	KindChangeLog       = "IssueCommentChangeLog"
	KindIssueAttachment = "IssueAttachment"
	KindCustomField     = "IssueCustomField"
	KindWiki            = "Wiki"
	KindWikiAttachment  = "WikiAttachment"
	KindSharedFile      = "File"

	KindTargetProject    = "TargetProject"
	KindTargetUser       = "TargetUser"
	KindTargetIssueType  = "TargetIssueType"
	KindTargetPriority   = "TargetIssuePriorityType"
	KindTargetResolution = "TargetIssueResolutionType"
	KindTargetStatus     = "TargetIssueStatusType"
	KindTargetCategory   = "TargetCategory"
	KindTargetVersion    = "TargetVersion"
	KindTargetMilestone  = "TargetMilestone"
	KindTargetIssue      = "TargetIssue"
	KindMappingUser      = "MappingUser"
)

// PutIssue stages one issue snapshot. Multi-valued associations are stored
// as comma-joined name lists; referenced users are staged as a side effect
// so the identity mapper sees every user the project mentions.
func (s *Store) PutIssue(ctx context.Context, issue *backlog.Issue) error {
	var assignee, createdUser, updatedUser interface{}
	if issue.Assignee != nil {
		assignee = issue.Assignee.ID
		if err := s.PutUser(ctx, issue.Assignee); err != nil {
			return err
		}
	}
	if issue.CreatedUser != nil {
		createdUser = issue.CreatedUser.ID
		if err := s.PutUser(ctx, issue.CreatedUser); err != nil {
			return err
		}
	}
	if issue.UpdatedUser != nil {
		updatedUser = issue.UpdatedUser.ID
		if err := s.PutUser(ctx, issue.UpdatedUser); err != nil {
			return err
		}
	}

	var resolution interface{}
	if issue.Resolution != nil {
		resolution = issue.Resolution.Name
	}

	cols := []string{
		"issue_key", "key_id", "summary", "description", "issue_type",
		"priority", "resolution", "status", "assignee",
		"categories", "versions", "milestones",
		"start_date", "due_date", "estimated_hours", "actual_hours",
		"parent_issue_id", "created_user", "created", "updated_user", "updated",
	}
	vals := []interface{}{
		issue.IssueKey, issue.KeyID, issue.Summary, issue.Description, issue.IssueType.Name,
		issue.Priority.Name, resolution, issue.Status.Name, assignee,
		joinCategoryNames(issue.Categories), joinVersionNames(issue.Versions), joinVersionNames(issue.Milestones),
		issue.StartDate, issue.DueDate, nullableFloat(issue.EstimatedHours), nullableFloat(issue.ActualHours),
		issue.ParentIssueID, createdUser, issue.Created, updatedUser, issue.Updated,
	}
	return s.twoPhasePut(ctx, "issues", KindIssue, "issue_id", issue.ID, cols, vals)
}

// PutIssueCustomField stages one custom-field value, keyed issueId-fieldId.
func (s *Store) PutIssueCustomField(ctx context.Context, issueID int64, cf backlog.CustomField) error {
	key := fmt.Sprintf("%d-%d", issueID, cf.ID)
	cols := []string{"issue_id", "field_id", "name", "value"}
	vals := []interface{}{issueID, cf.ID, cf.Name, fmt.Sprintf("%v", cf.Value)}
	return s.twoPhasePut(ctx, "issue_custom_fields", KindCustomField, "custom_field_key", key, cols, vals)
}

// IssueRow is an issue snapshot as staged.
type IssueRow struct {
	IssueID        int64
	IssueKey       string
	KeyID          int64
	Summary        string
	Description    string
	IssueType      string
	Priority       string
	Resolution     string
	Status         string
	Assignee       int64
	Categories     string
	Versions       string
	Milestones     string
	StartDate      string
	DueDate        string
	EstimatedHours *float64
	ActualHours    *float64
	ParentIssueID  int64
	CreatedUser    int64
	Created        string
	UpdatedUser    int64
	Updated        string
}

// IssuesByKey returns every staged issue in ascending key id order, the
// order replay must process them in.
func (s *Store) IssuesByKey(ctx context.Context) ([]IssueRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, issue_key, key_id, summary, description, issue_type,
		       priority, resolution, status, assignee,
		       categories, versions, milestones,
		       start_date, due_date, estimated_hours, actual_hours,
		       parent_issue_id, created_user, created, updated_user, updated
		FROM issues ORDER BY key_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged issues: %w", err)
	}
	defer rows.Close()

	var out []IssueRow
	for rows.Next() {
		var r IssueRow
		var issueKey, summary, description, issueType, priority, resolution, status sql.NullString
		var categories, versions, milestones, startDate, dueDate, created, updated sql.NullString
		var assignee, parent, createdUser, updatedUser sql.NullInt64
		var est, act sql.NullFloat64
		if err := rows.Scan(&r.IssueID, &issueKey, &r.KeyID, &summary, &description, &issueType,
			&priority, &resolution, &status, &assignee,
			&categories, &versions, &milestones,
			&startDate, &dueDate, &est, &act,
			&parent, &createdUser, &created, &updatedUser, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan staged issue: %w", err)
		}
		r.IssueKey = issueKey.String
		r.Summary = summary.String
		r.Description = description.String
		r.IssueType = issueType.String
		r.Priority = priority.String
		r.Resolution = resolution.String
		r.Status = status.String
		r.Categories = categories.String
		r.Versions = versions.String
		r.Milestones = milestones.String
		r.StartDate = startDate.String
		r.DueDate = dueDate.String
		r.Created = created.String
		r.Updated = updated.String
		r.Assignee = assignee.Int64
		r.ParentIssueID = parent.Int64
		r.CreatedUser = createdUser.Int64
		r.UpdatedUser = updatedUser.Int64
		if est.Valid {
			v := est.Float64
			r.EstimatedHours = &v
		}
		if act.Valid {
			v := act.Float64
			r.ActualHours = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ParentChildKeys lists staged issues that reference a parent issue.
type ParentChildKeys struct {
	ChildSourceID  int64
	ParentSourceID int64
}

// IssuesWithParents returns the child->parent source id pairs for the
// deferred parent-linkage pass.
func (s *Store) IssuesWithParents(ctx context.Context) ([]ParentChildKeys, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, parent_issue_id FROM issues
		WHERE parent_issue_id IS NOT NULL AND parent_issue_id <> 0
		ORDER BY issue_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parent links: %w", err)
	}
	defer rows.Close()

	var out []ParentChildKeys
	for rows.Next() {
		var p ParentChildKeys
		if err := rows.Scan(&p.ChildSourceID, &p.ParentSourceID); err != nil {
			return nil, fmt.Errorf("failed to scan parent link: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func joinCategoryNames(cats []backlog.Category) string {
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	return strings.Join(names, ",")
}

func joinVersionNames(versions []backlog.Version) string {
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		names = append(names, v.Name)
	}
	return strings.Join(names, ",")
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
