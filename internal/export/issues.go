package export

import (
	"context"
	"fmt"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/gateway"
)

// emptyPageStop is how many consecutive empty pages the issue walk reads
// before deciding it is past the end. The list endpoint has returned thin
// pages mid-range on large projects, so one empty page is not proof.
const emptyPageStop = 2

// Issues captures every issue snapshot by walking the list endpoint in
// ascending order with offset pagination. The offset advances by the
// number of issues actually returned, so an empty or thin page is re-read
// from where it left off rather than jumped past.
func (p *Pipeline) Issues(ctx context.Context) error {
	offset := 0
	emptyPages := 0
	for {
		page, err := gateway.Call(p.gw, ctx, "get issues", func(ctx context.Context) ([]backlog.Issue, error) {
			return p.api.GetIssues(ctx, p.projectID(), offset, backlog.DefaultPageSize)
		})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			emptyPages++
			if emptyPages >= emptyPageStop {
				return nil
			}
			continue
		}
		emptyPages = 0
		for i := range page {
			issue := &page[i]
			if err := p.store.PutIssue(ctx, issue); err != nil {
				return err
			}
			for _, cf := range issue.CustomFields {
				if err := p.store.PutIssueCustomField(ctx, issue.ID, cf); err != nil {
					return err
				}
			}
		}
		p.log.Trace("staged %d issues at offset %d", len(page), offset)
		offset += len(page)
	}
}

// Comments captures the comment history of every staged issue. Comments are
// paged with a sliding minId window because the offset the list endpoint
// takes is unstable while history grows. The staged count is cross-checked
// against the page-independent count endpoint; a mismatch is logged as a
// data-integrity problem but does not stop the export.
func (p *Pipeline) Comments(ctx context.Context) error {
	issues, err := p.store.IssuesByKey(ctx)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		want, err := gateway.Call(p.gw, ctx, "get comment count", func(ctx context.Context) (int, error) {
			return p.api.GetIssueCommentCount(ctx, issue.IssueID)
		})
		if err != nil {
			return err
		}

		// minId is inclusive, so the window slides to one past the
		// largest id seen; only an empty page ends the walk.
		minID := int64(0)
		for {
			page, err := gateway.Call(p.gw, ctx, "get comments", func(ctx context.Context) ([]backlog.Comment, error) {
				return p.api.GetIssueComments(ctx, issue.IssueID, minID, backlog.DefaultPageSize)
			})
			if err != nil {
				return err
			}
			if len(page) == 0 {
				break
			}
			for i := range page {
				if err := p.store.PutComment(ctx, issue.IssueID, &page[i]); err != nil {
					return err
				}
				if page[i].ID >= minID {
					minID = page[i].ID + 1
				}
			}
		}

		got, err := p.store.CommentCountForIssue(ctx, issue.IssueID)
		if err != nil {
			return err
		}
		if got != want {
			p.log.Error("comment count mismatch on %s: api reports %d, staged %d", issue.IssueKey, want, got)
		}
	}
	return nil
}

func describeDownload(apiName, fallback string) string {
	if apiName != "" {
		return apiName
	}
	return fallback
}

// localAttachmentName builds the on-disk name for a downloaded file: the
// attachment id plus the original extension, so names never collide.
func localAttachmentName(id int64, remoteName string) string {
	return fmt.Sprintf("%d%s", id, fileExt(remoteName))
}
