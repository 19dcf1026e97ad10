// Package export walks the source tenant through the retry gateway and
// captures everything the project contains into the staging store: catalog
// data, issues, their comment history, attachments, wiki pages and shared
// files. Export is resumable; rerunning it refreshes staged rows in place.
package export

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/config"
	"github.com/backmig/backmig/internal/gateway"
	"github.com/backmig/backmig/internal/logging"
	"github.com/backmig/backmig/internal/staging"
)

// SourceAPI is the slice of the Backlog client the export pipeline reads
// through. *backlog.Client satisfies it; tests substitute a fake.
type SourceAPI interface {
	GetProject(ctx context.Context, projectID int64) (*backlog.Project, error)
	GetProjectUsers(ctx context.Context, projectID int64) ([]backlog.User, error)
	GetCategories(ctx context.Context, projectID int64) ([]backlog.Category, error)
	GetVersions(ctx context.Context, projectID int64) ([]backlog.Version, error)
	GetIssueTypes(ctx context.Context, projectID int64) ([]backlog.IssueType, error)
	GetStatuses(ctx context.Context, projectID int64) ([]backlog.Status, error)
	GetIssues(ctx context.Context, projectID int64, offset, count int) ([]backlog.Issue, error)
	GetIssueCommentCount(ctx context.Context, issueID int64) (int, error)
	GetIssueComments(ctx context.Context, issueID, minID int64, count int) ([]backlog.Comment, error)
	GetIssueAttachments(ctx context.Context, issueID int64) ([]backlog.Attachment, error)
	DownloadIssueAttachment(ctx context.Context, issueID, attachmentID int64) (string, io.ReadCloser, error)
	GetWikis(ctx context.Context, projectID int64) ([]backlog.Wiki, error)
	GetWiki(ctx context.Context, wikiID int64) (*backlog.Wiki, error)
	GetWikiAttachments(ctx context.Context, wikiID int64) ([]backlog.Attachment, error)
	DownloadWikiAttachment(ctx context.Context, wikiID, attachmentID int64) (string, io.ReadCloser, error)
	GetSharedFiles(ctx context.Context, projectID int64, dir string) ([]backlog.SharedFile, error)
	DownloadSharedFile(ctx context.Context, projectID, sharedFileID int64) (string, io.ReadCloser, error)
}

// Pipeline captures one source project into the staging store.
type Pipeline struct {
	store *staging.Store
	gw    *gateway.Gateway
	api   SourceAPI
	cfg   *config.Config
	log   *logging.Log
}

func New(store *staging.Store, gw *gateway.Gateway, api SourceAPI, cfg *config.Config, log *logging.Log) *Pipeline {
	return &Pipeline{store: store, gw: gw, api: api, cfg: cfg, log: log}
}

func (p *Pipeline) projectID() int64 { return p.cfg.Source.ProjectID }

// Run executes every export stage in dependency order and dumps the staging
// counters when done.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, dir := range []string{p.cfg.DirAttachments, p.cfg.DirWikiAttachments, p.cfg.DirSharedFiles} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export dir %s: %w", dir, err)
		}
	}

	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{"project", p.Project},
		{"users", p.Users},
		{"categories", p.Categories},
		{"versions", p.Versions},
		{"issue types", p.IssueTypes},
		{"statuses", p.Statuses},
		{"issues", p.Issues},
		{"comments", p.Comments},
		{"issue attachments", p.IssueAttachments},
		{"wikis", p.Wikis},
		{"wiki attachments", p.WikiAttachments},
		{"shared files", p.SharedFiles},
	}
	for _, st := range stages {
		p.log.Info("export: %s", st.name)
		if err := st.run(ctx); err != nil {
			return fmt.Errorf("export %s: %w", st.name, err)
		}
	}

	p.log.Info("export complete\n%s", p.store.Counters.Report())
	return nil
}

// Project captures the source project record.
func (p *Pipeline) Project(ctx context.Context) error {
	project, err := gateway.Call(p.gw, ctx, "get project", func(ctx context.Context) (*backlog.Project, error) {
		return p.api.GetProject(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	return p.store.PutProject(ctx, project)
}

// Users captures the project's member list.
func (p *Pipeline) Users(ctx context.Context) error {
	users, err := gateway.Call(p.gw, ctx, "get project users", func(ctx context.Context) ([]backlog.User, error) {
		return p.api.GetProjectUsers(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for i := range users {
		if err := p.store.PutUser(ctx, &users[i]); err != nil {
			return err
		}
	}
	return nil
}

// Categories captures the project's categories.
func (p *Pipeline) Categories(ctx context.Context) error {
	cats, err := gateway.Call(p.gw, ctx, "get categories", func(ctx context.Context) ([]backlog.Category, error) {
		return p.api.GetCategories(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, c := range cats {
		if err := p.store.PutCategory(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Versions captures the project's version records. Backlog models versions
// and milestones with the same record, so each one is staged into both
// catalogs; issues decide which role a record played for them.
func (p *Pipeline) Versions(ctx context.Context) error {
	versions, err := gateway.Call(p.gw, ctx, "get versions", func(ctx context.Context) ([]backlog.Version, error) {
		return p.api.GetVersions(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := p.store.PutVersion(ctx, v); err != nil {
			return err
		}
		if err := p.store.PutMilestone(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// IssueTypes captures the project's issue types.
func (p *Pipeline) IssueTypes(ctx context.Context) error {
	types, err := gateway.Call(p.gw, ctx, "get issue types", func(ctx context.Context) ([]backlog.IssueType, error) {
		return p.api.GetIssueTypes(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, t := range types {
		if err := p.store.PutIssueType(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Statuses captures the project's status catalog.
func (p *Pipeline) Statuses(ctx context.Context) error {
	statuses, err := gateway.Call(p.gw, ctx, "get statuses", func(ctx context.Context) ([]backlog.Status, error) {
		return p.api.GetStatuses(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, st := range statuses {
		if err := p.store.PutStatus(ctx, st); err != nil {
			return err
		}
	}
	return nil
}
