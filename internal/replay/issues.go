package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/gateway"
	"github.com/backmig/backmig/internal/guard"
	"github.com/backmig/backmig/internal/staging"
)

const (
	// tombstoneMessage marks placeholder issues created for source keys
	// that were deleted upstream; the key id is appended per tombstone.
	tombstoneMessage = "[deleted] This issue was deleted in the source project. Empty placeholder created during migration to preserve issue numbering"

	// fillerComment is substituted when the target API rejects an update
	// that carries no net textual change, so metadata-only history still
	// gets recorded.
	fillerComment = "(no net change after migration)"

	// tombstonePriorityID is Backlog's space-wide id for the Low priority.
	tombstonePriorityID = 4

	// defaultPriorityID is Backlog's space-wide id for the Normal
	// priority, the fallback when a staged priority name is unknown in
	// the target.
	defaultPriorityID = 3
)

// Issues recreates every staged issue in the target project, in ascending
// source key order, gap-filling deleted keys with tombstones and replaying
// each issue's comment history after its shell is created.
func (p *Pipeline) Issues(ctx context.Context, opts Options) error {
	if err := guard.CheckOverrides(opts.ForceProduction, opts.ForceImport); err != nil {
		return err
	}
	ok, err := p.guardAllows(ctx, opts.ForceProduction)
	if err != nil || !ok {
		return err
	}

	existing, err := gateway.Call(p.gw, ctx, "count target issues", func(ctx context.Context) ([]backlog.Issue, error) {
		return p.api.GetIssues(ctx, p.projectID(), 0, backlog.DefaultPageSize)
	})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if !opts.ForceImport {
			return fmt.Errorf("target project already contains %d issue(s); pass --force-import to replay anyway", len(existing))
		}
		p.log.Warn("target project already contains %d issue(s); continuing (--force-import)", len(existing))
	}

	rows, err := p.store.IssuesByKey(ctx)
	if err != nil {
		return err
	}

	skipLeft := opts.SkipIssues
	lastKey := int64(0)
	for i := range rows {
		row := &rows[i]

		issueTypeID, err := p.store.TargetIssueTypeIDByName(ctx, row.IssueType)
		if err != nil {
			return err
		}
		if issueTypeID == 0 {
			return fmt.Errorf("issue type %q of %s not found in target catalog; run the ensure phases first", row.IssueType, row.IssueKey)
		}

		if err := p.fillGap(ctx, lastKey, row.KeyID, issueTypeID); err != nil {
			return err
		}
		lastKey = row.KeyID

		if skipLeft > 0 {
			skipLeft--
			p.log.Info("skipping already replayed issue (%d) %s", row.KeyID, row.Summary)
			continue
		}

		created, err := p.createShell(ctx, row, issueTypeID)
		if err != nil {
			return err
		}
		if err := p.store.PutTargetIssueCorrelation(ctx, created, row.IssueID); err != nil {
			return err
		}
		p.log.Trace("created issue [%s] %s", created.IssueKey, created.Summary)

		if err := p.replayComments(ctx, row, created); err != nil {
			return err
		}
	}

	p.log.Info("issue replay complete: %s", p.store.Counters.Line(staging.KindTargetIssue))
	return nil
}

// fillGap creates one tombstone per key between lastKey and nextKey
// (exclusive on both ends). Tombstones carry a fixed deleted-issue message
// plus the key they stand in for, and the lowest priority.
func (p *Pipeline) fillGap(ctx context.Context, lastKey, nextKey, issueTypeID int64) error {
	for key := lastKey + 1; key < nextKey; key++ {
		msg := fmt.Sprintf("%s: %d", tombstoneMessage, key)
		_, err := gateway.Call(p.gw, ctx, "create tombstone", func(ctx context.Context) (*backlog.Issue, error) {
			return p.api.CreateIssue(ctx, backlog.CreateIssueParams{
				ProjectID:   p.projectID(),
				Summary:     msg,
				Description: msg,
				IssueTypeID: issueTypeID,
				PriorityID:  tombstonePriorityID,
			})
		})
		if err != nil {
			return err
		}
		p.log.Info("created tombstone for deleted key %d", key)
	}
	return nil
}

// createShell creates the target issue from the staged snapshot, resolving
// every name and identity to the target tenant.
func (p *Pipeline) createShell(ctx context.Context, row *staging.IssueRow, issueTypeID int64) (*backlog.Issue, error) {
	priorityID, err := p.store.TargetPriorityIDByName(ctx, row.Priority)
	if err != nil {
		return nil, err
	}
	if priorityID == 0 {
		p.log.Warn("priority %q of %s not found in target; using the default", row.Priority, row.IssueKey)
		priorityID = defaultPriorityID
	}

	params := backlog.CreateIssueParams{
		ProjectID:      p.projectID(),
		Summary:        row.Summary,
		Description:    row.Description,
		IssueTypeID:    issueTypeID,
		PriorityID:     priorityID,
		StartDate:      row.StartDate,
		DueDate:        row.DueDate,
		EstimatedHours: row.EstimatedHours,
		ActualHours:    row.ActualHours,
	}

	params.CategoryIDs, err = p.resolveNames(ctx, row.Categories, row.IssueKey, "category", p.store.TargetCategoryIDByName)
	if err != nil {
		return nil, err
	}
	params.VersionIDs, err = p.resolveNames(ctx, row.Versions, row.IssueKey, "version", p.store.TargetVersionIDByName)
	if err != nil {
		return nil, err
	}
	params.MilestoneIDs, err = p.resolveNames(ctx, row.Milestones, row.IssueKey, "milestone", p.store.TargetMilestoneIDByName)
	if err != nil {
		return nil, err
	}

	if row.Assignee != 0 {
		params.AssigneeID, err = p.mapper.Resolve(ctx, row.Assignee)
		if err != nil {
			return nil, err
		}
	}

	// Parent linkage is deferred to the second pass: the parent may not
	// have a target correlation yet.
	if row.ParentIssueID != 0 {
		p.log.Trace("deferring parent linkage of %s", row.IssueKey)
	}

	return gateway.Call(p.gw, ctx, "create issue", func(ctx context.Context) (*backlog.Issue, error) {
		return p.api.CreateIssue(ctx, params)
	})
}

func (p *Pipeline) resolveNames(ctx context.Context, names, issueKey, kind string,
	resolve func(context.Context, string) (int64, error)) ([]int64, error) {

	ids, missing, err := staging.ResolveNameList(ctx, names, resolve)
	if err != nil {
		return nil, err
	}
	for _, name := range missing {
		p.log.Warn("%s %q of %s not found in target; skipped", kind, name, issueKey)
	}
	return ids, nil
}

// replayComments walks the staged comments of one source issue in
// ascending id order. Each comment's change events become a single update
// call; textual content becomes a separate add-comment call.
func (p *Pipeline) replayComments(ctx context.Context, row *staging.IssueRow, target *backlog.Issue) error {
	comments, err := p.store.CommentsForIssue(ctx, row.IssueID)
	if err != nil {
		return err
	}
	for _, c := range comments {
		var up backlog.UpdateIssueParams
		add := backlog.AddCommentParams{IssueID: target.ID, Content: c.Content}

		for _, srcUserID := range c.NotifiedUserIDs {
			targetUserID, err := p.mapper.Resolve(ctx, srcUserID)
			if err != nil {
				return err
			}
			add.NotifiedUserIDs = append(add.NotifiedUserIDs, targetUserID)
		}

		if err := p.applyChangeEvents(ctx, c.CommentID, row.IssueKey, &up, &add); err != nil {
			return err
		}

		if up.HasChanges() {
			if err := p.updateIssue(ctx, target.ID, up); err != nil {
				return err
			}
			p.store.Counters.IncrUpd(staging.KindTargetIssue)
		}

		if add.HasContent() {
			_, err := gateway.Call(p.gw, ctx, "add comment", func(ctx context.Context) (*backlog.Comment, error) {
				return p.api.AddIssueComment(ctx, add)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// updateIssue issues one history update. The target API rejects an update
// with no net textual change; that specific rejection is retried once with
// the filler comment substituted.
func (p *Pipeline) updateIssue(ctx context.Context, targetIssueID int64, up backlog.UpdateIssueParams) error {
	err := p.gw.Do(ctx, "update issue", func(ctx context.Context) error {
		_, err := p.api.UpdateIssue(ctx, targetIssueID, up)
		return err
	})
	if err == nil {
		return nil
	}
	if !backlog.IsNoContentChange(err) {
		return err
	}

	p.log.Trace("update rejected with no comment content; retrying with filler comment")
	up.Comment = fillerComment
	return p.gw.Do(ctx, "update issue", func(ctx context.Context) error {
		_, err := p.api.UpdateIssue(ctx, targetIssueID, up)
		return err
	})
}

// applyChangeEvents folds one comment's change events, in the sequence
// assigned during export, into the update and add-comment parameter sets.
// Unknown target names and unknown fields warn and skip, never abort.
func (p *Pipeline) applyChangeEvents(ctx context.Context, commentID int64, issueKey string, up *backlog.UpdateIssueParams, add *backlog.AddCommentParams) error {
	events, err := p.store.ChangeLogsForComment(ctx, commentID)
	if err != nil {
		return err
	}
	for _, ev := range events {
		switch ev.Field {
		case "parentIssue":
			// Handled by the dedicated second pass.
		case "summary":
			v := ev.NewValue
			up.Summary = &v
		case "description":
			v := ev.NewValue
			up.Description = &v
		case "notification":
			ids, err := p.resolveNotified(ctx, ev.NewValue)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				up.NotifiedUserIDs = ids
				add.NotifiedUserIDs = ids
			}
		case "priority":
			id, err := p.store.TargetPriorityIDByName(ctx, ev.NewValue)
			if err != nil {
				return err
			}
			if id == 0 {
				p.log.Warn("priority %q of %s not found in target; change event skipped", ev.NewValue, issueKey)
				continue
			}
			up.PriorityID = id
		case "status":
			id, err := p.store.TargetStatusIDByName(ctx, ev.NewValue)
			if err != nil {
				return err
			}
			if id == 0 {
				p.log.Warn("status %q of %s not found in target; change event skipped", ev.NewValue, issueKey)
				continue
			}
			up.StatusID = id
		case "assigner":
			// Changelog reports the assignee as a bare display name; the
			// by-name path is best effort under duplicate names.
			id, err := p.mapper.ResolveByName(ctx, ev.NewValue)
			if err != nil {
				return err
			}
			up.AssigneeID = id
		case "startDate":
			v := ev.NewValue
			up.StartDate = &v
		case "limitDate":
			v := ev.NewValue
			up.DueDate = &v
		case "estimatedHours":
			v := ev.NewValue
			up.EstimatedHours = &v
		case "actualHours":
			v := ev.NewValue
			up.ActualHours = &v
		case "attachment":
			if err := p.replayAttachment(ctx, ev.AttachmentID, up); err != nil {
				return err
			}
		case "resolution":
			if ev.NewValue == "" {
				up.ClearResolution = true
				continue
			}
			id, err := p.store.TargetResolutionIDByName(ctx, ev.NewValue)
			if err != nil {
				return err
			}
			if id == 0 {
				p.log.Warn("resolution %q of %s not found in target; change event skipped", ev.NewValue, issueKey)
				continue
			}
			up.ResolutionID = id
		case "component", "category":
			ids, err := p.resolveNames(ctx, ev.NewValue, issueKey, "category", p.store.TargetCategoryIDByName)
			if err != nil {
				return err
			}
			up.CategoryIDs = ids
		case "milestone":
			ids, err := p.resolveNames(ctx, ev.NewValue, issueKey, "milestone", p.store.TargetMilestoneIDByName)
			if err != nil {
				return err
			}
			up.MilestoneIDs = ids
		case "version":
			ids, err := p.resolveNames(ctx, ev.NewValue, issueKey, "version", p.store.TargetVersionIDByName)
			if err != nil {
				return err
			}
			up.VersionIDs = ids
		case "issueType":
			id, err := p.store.TargetIssueTypeIDByName(ctx, ev.NewValue)
			if err != nil {
				return err
			}
			if id == 0 {
				p.log.Warn("issue type %q of %s not found in target; change event skipped", ev.NewValue, issueKey)
				continue
			}
			up.IssueTypeID = id
		default:
			p.log.Warn("unhandled change event field %q [%s]", ev.Field, ev.NewValue)
		}
	}
	return nil
}

// resolveNotified remaps a comma-joined list of source user ids.
func (p *Pipeline) resolveNotified(ctx context.Context, list string) ([]int64, error) {
	var out []int64
	for _, id := range splitCommaIDs(list) {
		targetID, err := p.mapper.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, targetID)
	}
	return out, nil
}

// replayAttachment re-uploads the locally exported file of an attachment
// change event and links the new attachment id into the update. A missing
// staging row or local file is a data-integrity warning; the event is
// skipped.
func (p *Pipeline) replayAttachment(ctx context.Context, attachmentID int64, up *backlog.UpdateIssueParams) error {
	row, err := p.store.IssueAttachmentByID(ctx, attachmentID)
	if err != nil {
		return err
	}
	if row == nil {
		p.log.Warn("attachment %d has no staged record; change event skipped", attachmentID)
		return nil
	}

	path := filepath.Join(p.cfg.DirAttachments, row.LocalFilename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.log.Warn("local attachment file %s missing; change event skipped", path)
			return nil
		}
		return fmt.Errorf("failed to open attachment %s: %w", path, err)
	}
	defer f.Close()

	att, err := gateway.Call(p.gw, ctx, "post attachment", func(ctx context.Context) (*backlog.Attachment, error) {
		// Rewind so a rate-limit retry re-reads the whole file.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return p.api.PostAttachment(ctx, row.Name, f)
	})
	if err != nil {
		return err
	}
	up.AttachmentIDs = append(up.AttachmentIDs, att.ID)
	return nil
}
