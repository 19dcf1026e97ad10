package staging

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/backmig/backmig/internal/backlog"
)

// PutComment stages one comment and its change log. The API returns change
// log entries unordered and without ids, so each gets a synthetic 1-based
// sequence scoped to the comment; commentId-seq is the staging key.
func (s *Store) PutComment(ctx context.Context, issueID int64, c *backlog.Comment) error {
	var createdUser interface{}
	if c.CreatedUser != nil {
		createdUser = c.CreatedUser.ID
		if err := s.PutUser(ctx, c.CreatedUser); err != nil {
			return err
		}
	}

	notified := make([]string, 0, len(c.Notifications))
	for _, n := range c.Notifications {
		notified = append(notified, strconv.FormatInt(n.User.ID, 10))
		user := n.User
		if err := s.PutUser(ctx, &user); err != nil {
			return err
		}
	}

	cols := []string{"issue_id", "content", "created_user", "created", "updated", "notified_user_ids"}
	vals := []interface{}{issueID, c.Content, createdUser, c.Created, c.Updated, strings.Join(notified, ",")}
	if err := s.twoPhasePut(ctx, "issue_comments", KindIssueComment, "comment_id", c.ID, cols, vals); err != nil {
		return err
	}

	for i, cl := range c.ChangeLog {
		if err := s.putChangeLog(ctx, issueID, c.ID, int64(i+1), cl); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) putChangeLog(ctx context.Context, issueID, commentID, seq int64, cl backlog.ChangeLog) error {
	key := fmt.Sprintf("%d-%d", commentID, seq)

	var attachmentID interface{}
	if cl.AttachmentInfo != nil {
		attachmentID = cl.AttachmentInfo.ID
	}
	var attributeInfo interface{}
	if cl.AttributeInfo != nil {
		attributeInfo = fmt.Sprintf("%d:%d", cl.AttributeInfo.ID, cl.AttributeInfo.TypeID)
	}
	var notificationInfo interface{}
	if cl.NotificationInfo != nil {
		notificationInfo = cl.NotificationInfo.Type
	}

	cols := []string{"comment_id", "issue_id", "seq", "field", "original_value", "new_value",
		"attachment_id", "attribute_info", "notification_info"}
	vals := []interface{}{commentID, issueID, seq, cl.Field, cl.OriginalValue, cl.NewValue,
		attachmentID, attributeInfo, notificationInfo}
	return s.twoPhasePut(ctx, "issue_comment_change_logs", KindChangeLog, "change_log_key", key, cols, vals)
}

// CommentRow is a staged comment.
type CommentRow struct {
	CommentID       int64
	IssueID         int64
	Content         string
	CreatedUser     int64
	Created         string
	Updated         string
	NotifiedUserIDs []int64
}

// CommentsForIssue returns the staged comments of one source issue in
// ascending comment id order, the order history replay applies them in.
func (s *Store) CommentsForIssue(ctx context.Context, issueID int64) ([]CommentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT comment_id, issue_id, content, created_user, created, updated, notified_user_ids
		FROM issue_comments WHERE issue_id = ? ORDER BY comment_id`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged comments: %w", err)
	}
	defer rows.Close()

	var out []CommentRow
	for rows.Next() {
		var r CommentRow
		var content, created, updated, notified sql.NullString
		var createdUser sql.NullInt64
		if err := rows.Scan(&r.CommentID, &r.IssueID, &content, &createdUser, &created, &updated, &notified); err != nil {
			return nil, fmt.Errorf("failed to scan staged comment: %w", err)
		}
		r.Content = content.String
		r.Created = created.String
		r.Updated = updated.String
		r.CreatedUser = createdUser.Int64
		r.NotifiedUserIDs = splitIDList(notified.String)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CommentCountForIssue reports how many comments are staged for an issue;
// export cross-checks it against the API's page-independent count.
func (s *Store) CommentCountForIssue(ctx context.Context, issueID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issue_comments WHERE issue_id = ?", issueID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count staged comments: %w", err)
	}
	return n, nil
}

// ChangeLogRow is one staged change event.
type ChangeLogRow struct {
	Key              string
	CommentID        int64
	IssueID          int64
	Seq              int64
	Field            string
	OriginalValue    string
	NewValue         string
	AttachmentID     int64
	AttributeInfo    string
	NotificationInfo string
}

// ChangeLogsForComment returns a comment's change events in the exact
// ascending sequence assigned during export, regardless of row order.
func (s *Store) ChangeLogsForComment(ctx context.Context, commentID int64) ([]ChangeLogRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT change_log_key, comment_id, issue_id, seq, field, original_value, new_value,
		       attachment_id, attribute_info, notification_info
		FROM issue_comment_change_logs WHERE comment_id = ? ORDER BY seq`, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged change logs: %w", err)
	}
	defer rows.Close()

	var out []ChangeLogRow
	for rows.Next() {
		var r ChangeLogRow
		var field, orig, newVal, attrInfo, notiInfo sql.NullString
		var attachmentID sql.NullInt64
		if err := rows.Scan(&r.Key, &r.CommentID, &r.IssueID, &r.Seq, &field, &orig, &newVal,
			&attachmentID, &attrInfo, &notiInfo); err != nil {
			return nil, fmt.Errorf("failed to scan staged change log: %w", err)
		}
		r.Field = field.String
		r.OriginalValue = orig.String
		r.NewValue = newVal.String
		r.AttachmentID = attachmentID.Int64
		r.AttributeInfo = attrInfo.String
		r.NotificationInfo = notiInfo.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func splitIDList(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
