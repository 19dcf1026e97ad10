package replay

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/backmig/backmig/internal/backlog"
)

// Parents is the deferred second pass: once every source issue has a
// target correlation, child issues are linked to their parents. Running it
// before the issue phase finishes leaves unlinkable children as warnings.
func (p *Pipeline) Parents(ctx context.Context, opts Options) error {
	ok, err := p.guardAllows(ctx, opts.ForceProduction)
	if err != nil || !ok {
		return err
	}

	links, err := p.store.IssuesWithParents(ctx)
	if err != nil {
		return err
	}
	for _, link := range links {
		childID, err := p.store.TargetIssueIDForSource(ctx, link.ChildSourceID)
		if err != nil {
			return err
		}
		parentID, err := p.store.TargetIssueIDForSource(ctx, link.ParentSourceID)
		if err != nil {
			return err
		}
		if childID == 0 || parentID == 0 {
			p.log.Warn("parent linkage skipped: no correlation for source child %d or parent %d",
				link.ChildSourceID, link.ParentSourceID)
			continue
		}

		up := backlog.UpdateIssueParams{
			ParentIssueID: parentID,
			Comment:       fmt.Sprintf("Set parent issue %d during migration.", parentID),
		}
		err = p.gw.Do(ctx, "link parent issue", func(ctx context.Context) error {
			_, err := p.api.UpdateIssue(ctx, childID, up)
			return err
		})
		if err != nil {
			return err
		}
		p.log.Trace("linked child %d to parent %d", childID, parentID)
	}
	return nil
}

func splitCommaIDs(s string) []int64 {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
