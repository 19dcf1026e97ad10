package replay

import (
	"context"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/gateway"
)

// The ensure phases are the simple synchronizers: any staged source name
// missing from the target tenant is created there, and the created record
// joins the target catalog so later name lookups resolve it. Names that
// already exist are left untouched.

// EnsureCategories creates the source categories the target is missing.
func (p *Pipeline) EnsureCategories(ctx context.Context, opts Options) error {
	ok, err := p.guardAllows(ctx, opts.ForceProduction)
	if err != nil || !ok {
		return err
	}
	src, err := p.store.SourceCategories(ctx)
	if err != nil {
		return err
	}
	for _, c := range src {
		id, err := p.store.TargetCategoryIDByName(ctx, c.Name)
		if err != nil {
			return err
		}
		if id != 0 {
			p.log.Trace("category %q already exists in target", c.Name)
			continue
		}
		created, err := gateway.Call(p.gw, ctx, "add category", func(ctx context.Context) (*backlog.Category, error) {
			return p.api.AddCategory(ctx, p.projectID(), c.Name)
		})
		if err != nil {
			return err
		}
		if err := p.store.PutTargetCategory(ctx, *created); err != nil {
			return err
		}
		p.log.Info("created target category %q (%d)", created.Name, created.ID)
	}
	return nil
}

// EnsureVersions creates the source versions the target is missing.
func (p *Pipeline) EnsureVersions(ctx context.Context, opts Options) error {
	ok, err := p.guardAllows(ctx, opts.ForceProduction)
	if err != nil || !ok {
		return err
	}
	src, err := p.store.SourceVersions(ctx)
	if err != nil {
		return err
	}
	for _, v := range src {
		id, err := p.store.TargetVersionIDByName(ctx, v.Name)
		if err != nil {
			return err
		}
		if id != 0 {
			p.log.Trace("version %q already exists in target", v.Name)
			continue
		}
		created, err := gateway.Call(p.gw, ctx, "add version", func(ctx context.Context) (*backlog.Version, error) {
			return p.api.AddVersion(ctx, p.projectID(), backlog.AddVersionParams{
				Name:           v.Name,
				Description:    v.Description,
				StartDate:      v.StartDate,
				ReleaseDueDate: v.ReleaseDueDate,
			})
		})
		if err != nil {
			return err
		}
		if err := p.store.PutTargetVersion(ctx, *created); err != nil {
			return err
		}
		p.log.Info("created target version %q (%d)", created.Name, created.ID)
	}
	return nil
}

// EnsureMilestones creates the source milestones the target is missing.
// Backlog backs milestones with version records, so creation goes through
// the version endpoint; the result lands in the milestone catalog.
func (p *Pipeline) EnsureMilestones(ctx context.Context, opts Options) error {
	ok, err := p.guardAllows(ctx, opts.ForceProduction)
	if err != nil || !ok {
		return err
	}
	src, err := p.store.SourceMilestones(ctx)
	if err != nil {
		return err
	}
	for _, m := range src {
		id, err := p.store.TargetMilestoneIDByName(ctx, m.Name)
		if err != nil {
			return err
		}
		if id != 0 {
			p.log.Trace("milestone %q already exists in target", m.Name)
			continue
		}
		created, err := gateway.Call(p.gw, ctx, "add milestone", func(ctx context.Context) (*backlog.Version, error) {
			return p.api.AddVersion(ctx, p.projectID(), backlog.AddVersionParams{
				Name:           m.Name,
				Description:    m.Description,
				StartDate:      m.StartDate,
				ReleaseDueDate: m.ReleaseDueDate,
			})
		})
		if err != nil {
			return err
		}
		if err := p.store.PutTargetMilestone(ctx, *created); err != nil {
			return err
		}
		p.log.Info("created target milestone %q (%d)", created.Name, created.ID)
	}
	return nil
}

// EnsureIssueTypes creates the source issue types the target is missing,
// carrying the source color over.
func (p *Pipeline) EnsureIssueTypes(ctx context.Context, opts Options) error {
	ok, err := p.guardAllows(ctx, opts.ForceProduction)
	if err != nil || !ok {
		return err
	}
	src, err := p.store.SourceIssueTypes(ctx)
	if err != nil {
		return err
	}
	for _, t := range src {
		id, err := p.store.TargetIssueTypeIDByName(ctx, t.Name)
		if err != nil {
			return err
		}
		if id != 0 {
			p.log.Trace("issue type %q already exists in target", t.Name)
			continue
		}
		color := t.Color
		if color == "" {
			color = "#7ea800"
		}
		created, err := gateway.Call(p.gw, ctx, "add issue type", func(ctx context.Context) (*backlog.IssueType, error) {
			return p.api.AddIssueType(ctx, p.projectID(), t.Name, color)
		})
		if err != nil {
			return err
		}
		if err := p.store.PutTargetIssueType(ctx, *created); err != nil {
			return err
		}
		p.log.Info("created target issue type %q (%d)", created.Name, created.ID)
	}
	return nil
}
