package staging

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/backmig/backmig/internal/backlog"
)

// PutIssueAttachment stages attachment metadata plus the local filename the
// exported bytes were written to; replay re-uploads from that file.
func (s *Store) PutIssueAttachment(ctx context.Context, issueID int64, att backlog.Attachment, localFilename string) error {
	cols := []string{"issue_id", "name", "size", "local_filename"}
	vals := []interface{}{issueID, att.Name, att.Size, localFilename}
	return s.twoPhasePut(ctx, "issue_attachments", KindIssueAttachment, "attachment_id", att.ID, cols, vals)
}

// AttachmentRow is a staged issue attachment.
type AttachmentRow struct {
	AttachmentID  int64
	IssueID       int64
	Name          string
	Size          int64
	LocalFilename string
}

// IssueAttachmentByID looks up one staged attachment. Returns (nil, nil)
// when absent; replay treats that as a data-integrity warning, not an
// error.
func (s *Store) IssueAttachmentByID(ctx context.Context, attachmentID int64) (*AttachmentRow, error) {
	var r AttachmentRow
	var name, local sql.NullString
	var size sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT attachment_id, issue_id, name, size, local_filename
		FROM issue_attachments WHERE attachment_id = ?`, attachmentID).
		Scan(&r.AttachmentID, &r.IssueID, &name, &size, &local)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query staged attachment: %w", err)
	}
	r.Name = name.String
	r.Size = size.Int64
	r.LocalFilename = local.String
	return &r, nil
}

// PutWikiAttachment stages wiki attachment metadata and local filename.
func (s *Store) PutWikiAttachment(ctx context.Context, wikiID int64, att backlog.Attachment, localFilename string) error {
	cols := []string{"wiki_id", "name", "size", "local_filename"}
	vals := []interface{}{wikiID, att.Name, att.Size, localFilename}
	return s.twoPhasePut(ctx, "wiki_attachments", KindWikiAttachment, "attachment_id", att.ID, cols, vals)
}

// WikiAttachmentRow is a staged wiki attachment.
type WikiAttachmentRow struct {
	AttachmentID  int64
	WikiID        int64
	Name          string
	LocalFilename string
}

// WikiAttachmentsForWiki returns a wiki page's staged attachments in id
// order.
func (s *Store) WikiAttachmentsForWiki(ctx context.Context, wikiID int64) ([]WikiAttachmentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attachment_id, wiki_id, name, local_filename
		FROM wiki_attachments WHERE wiki_id = ? ORDER BY attachment_id`, wikiID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged wiki attachments: %w", err)
	}
	defer rows.Close()

	var out []WikiAttachmentRow
	for rows.Next() {
		var r WikiAttachmentRow
		var name, local sql.NullString
		if err := rows.Scan(&r.AttachmentID, &r.WikiID, &name, &local); err != nil {
			return nil, fmt.Errorf("failed to scan staged wiki attachment: %w", err)
		}
		r.Name = name.String
		r.LocalFilename = local.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutSharedFile stages a shared-file record and its local filename.
func (s *Store) PutSharedFile(ctx context.Context, f backlog.SharedFile, localFilename string) error {
	cols := []string{"dir", "name", "size", "local_filename"}
	vals := []interface{}{f.Dir, f.Name, f.Size, localFilename}
	return s.twoPhasePut(ctx, "shared_files", KindSharedFile, "file_id", f.ID, cols, vals)
}
