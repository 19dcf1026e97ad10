// Package replay reconstructs the staged project inside the target tenant:
// catalog entries are ensured by name, issues are recreated in source key
// order with tombstones filling deleted keys, and each issue's comment
// history is replayed as incremental updates so the target carries edit
// history, not just final state.
package replay

import (
	"context"
	"fmt"
	"io"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/config"
	"github.com/backmig/backmig/internal/gateway"
	"github.com/backmig/backmig/internal/guard"
	"github.com/backmig/backmig/internal/identity"
	"github.com/backmig/backmig/internal/logging"
	"github.com/backmig/backmig/internal/staging"
)

// TargetAPI is the slice of the Backlog client the replay pipeline drives.
// *backlog.Client satisfies it; tests substitute a fake.
type TargetAPI interface {
	GetProject(ctx context.Context, projectID int64) (*backlog.Project, error)
	GetProjectUsers(ctx context.Context, projectID int64) ([]backlog.User, error)
	GetIssueTypes(ctx context.Context, projectID int64) ([]backlog.IssueType, error)
	GetPriorities(ctx context.Context) ([]backlog.Priority, error)
	GetResolutions(ctx context.Context) ([]backlog.Resolution, error)
	GetStatuses(ctx context.Context, projectID int64) ([]backlog.Status, error)
	GetCategories(ctx context.Context, projectID int64) ([]backlog.Category, error)
	GetVersions(ctx context.Context, projectID int64) ([]backlog.Version, error)
	AddCategory(ctx context.Context, projectID int64, name string) (*backlog.Category, error)
	AddVersion(ctx context.Context, projectID int64, p backlog.AddVersionParams) (*backlog.Version, error)
	AddIssueType(ctx context.Context, projectID int64, name, color string) (*backlog.IssueType, error)
	GetIssues(ctx context.Context, projectID int64, offset, count int) ([]backlog.Issue, error)
	CreateIssue(ctx context.Context, p backlog.CreateIssueParams) (*backlog.Issue, error)
	UpdateIssue(ctx context.Context, issueID int64, p backlog.UpdateIssueParams) (*backlog.Issue, error)
	AddIssueComment(ctx context.Context, p backlog.AddCommentParams) (*backlog.Comment, error)
	PostAttachment(ctx context.Context, name string, r io.Reader) (*backlog.Attachment, error)
	GetWikis(ctx context.Context, projectID int64) ([]backlog.Wiki, error)
	CreateWiki(ctx context.Context, projectID int64, name, content string) (*backlog.Wiki, error)
	AddWikiAttachment(ctx context.Context, wikiID int64, attachmentIDs []int64) ([]backlog.Attachment, error)
}

// Options are the operator overrides of a replay run.
type Options struct {
	// ForceProduction allows writing to a project whose key does not mark
	// it as a migration test target.
	ForceProduction bool
	// ForceImport allows replaying into a project that already contains
	// issues.
	ForceImport bool
	// SkipIssues resumes a partial replay by skipping the first N staged
	// issues.
	SkipIssues int
}

// Pipeline replays the staging store into one target project.
type Pipeline struct {
	store  *staging.Store
	gw     *gateway.Gateway
	api    TargetAPI
	cfg    *config.Config
	log    *logging.Log
	mapper *identity.Mapper
}

func New(store *staging.Store, gw *gateway.Gateway, api TargetAPI, cfg *config.Config, log *logging.Log, mapper *identity.Mapper) *Pipeline {
	return &Pipeline{store: store, gw: gw, api: api, cfg: cfg, log: log, mapper: mapper}
}

func (p *Pipeline) projectID() int64 { return p.cfg.Target.ProjectID }

// Prepare captures the target tenant's catalog into the target_* tables.
// Everything replay resolves by name comes from this snapshot. The
// production check here is fatal: nothing later runs without a prepared
// target.
func (p *Pipeline) Prepare(ctx context.Context, opts Options) error {
	project, err := gateway.Call(p.gw, ctx, "get target project", func(ctx context.Context) (*backlog.Project, error) {
		return p.api.GetProject(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	p.log.Info("target project: [%s] %s (%d)", project.ProjectKey, project.Name, project.ID)

	if !guard.Allow(project.ProjectKey, opts.ForceProduction) {
		return fmt.Errorf("target project key %q does not start with %s; pass --force-production to write to a production project",
			project.ProjectKey, guard.TestProjectKeyPrefix)
	}

	if err := p.store.PutTargetProject(ctx, project); err != nil {
		return err
	}

	users, err := gateway.Call(p.gw, ctx, "get target users", func(ctx context.Context) ([]backlog.User, error) {
		return p.api.GetProjectUsers(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := p.store.PutTargetUser(ctx, u); err != nil {
			return err
		}
	}

	types, err := gateway.Call(p.gw, ctx, "get target issue types", func(ctx context.Context) ([]backlog.IssueType, error) {
		return p.api.GetIssueTypes(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, t := range types {
		if err := p.store.PutTargetIssueType(ctx, t); err != nil {
			return err
		}
	}

	priorities, err := gateway.Call(p.gw, ctx, "get target priorities", func(ctx context.Context) ([]backlog.Priority, error) {
		return p.api.GetPriorities(ctx)
	})
	if err != nil {
		return err
	}
	for _, pr := range priorities {
		if err := p.store.PutTargetPriority(ctx, pr); err != nil {
			return err
		}
	}

	resolutions, err := gateway.Call(p.gw, ctx, "get target resolutions", func(ctx context.Context) ([]backlog.Resolution, error) {
		return p.api.GetResolutions(ctx)
	})
	if err != nil {
		return err
	}
	for _, r := range resolutions {
		if err := p.store.PutTargetResolution(ctx, r); err != nil {
			return err
		}
	}

	statuses, err := gateway.Call(p.gw, ctx, "get target statuses", func(ctx context.Context) ([]backlog.Status, error) {
		return p.api.GetStatuses(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, st := range statuses {
		if err := p.store.PutTargetStatus(ctx, st); err != nil {
			return err
		}
	}

	cats, err := gateway.Call(p.gw, ctx, "get target categories", func(ctx context.Context) ([]backlog.Category, error) {
		return p.api.GetCategories(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, c := range cats {
		if err := p.store.PutTargetCategory(ctx, c); err != nil {
			return err
		}
	}

	versions, err := gateway.Call(p.gw, ctx, "get target versions", func(ctx context.Context) ([]backlog.Version, error) {
		return p.api.GetVersions(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := p.store.PutTargetVersion(ctx, v); err != nil {
			return err
		}
		if err := p.store.PutTargetMilestone(ctx, v); err != nil {
			return err
		}
	}

	p.log.Info("prepare complete: %s %s %s",
		p.store.Counters.Line(staging.KindTargetUser),
		p.store.Counters.Line(staging.KindTargetIssueType),
		p.store.Counters.Line(staging.KindTargetStatus))
	return nil
}

// guardAllows is the soft production check of the ensure/issue/wiki phases:
// a mismatch skips the phase with a warning, it does not abort the run.
// Prepare must have captured the target project first.
func (p *Pipeline) guardAllows(ctx context.Context, forceProduction bool) (bool, error) {
	project, err := p.store.TargetProject(ctx)
	if err != nil {
		return false, err
	}
	if project == nil {
		return false, fmt.Errorf("no target project captured; run the prepare phase first")
	}
	if !guard.Allow(project.ProjectKey, forceProduction) {
		p.log.Warn("target project key %q does not start with %s; skipping this phase",
			project.ProjectKey, guard.TestProjectKeyPrefix)
		return false, nil
	}
	return true, nil
}
