package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/gateway"
)

// IssueAttachments downloads every staged issue's attachments into the
// attachment directory and records the local filename alongside the
// metadata; replay re-uploads from those files.
func (p *Pipeline) IssueAttachments(ctx context.Context) error {
	issues, err := p.store.IssuesByKey(ctx)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		atts, err := gateway.Call(p.gw, ctx, "get issue attachments", func(ctx context.Context) ([]backlog.Attachment, error) {
			return p.api.GetIssueAttachments(ctx, issue.IssueID)
		})
		if err != nil {
			return err
		}
		for _, att := range atts {
			local, err := p.fetch(ctx, "download issue attachment", p.cfg.DirAttachments, att.ID, att.Name,
				func(ctx context.Context) (string, io.ReadCloser, error) {
					return p.api.DownloadIssueAttachment(ctx, issue.IssueID, att.ID)
				})
			if err != nil {
				return err
			}
			if err := p.store.PutIssueAttachment(ctx, issue.IssueID, att, local); err != nil {
				return err
			}
		}
	}
	return nil
}

// Wikis captures every wiki page. The list endpoint omits page content, so
// each page is re-fetched individually.
func (p *Pipeline) Wikis(ctx context.Context) error {
	pages, err := gateway.Call(p.gw, ctx, "get wikis", func(ctx context.Context) ([]backlog.Wiki, error) {
		return p.api.GetWikis(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	for _, page := range pages {
		full, err := gateway.Call(p.gw, ctx, "get wiki", func(ctx context.Context) (*backlog.Wiki, error) {
			return p.api.GetWiki(ctx, page.ID)
		})
		if err != nil {
			return err
		}
		if err := p.store.PutWiki(ctx, full); err != nil {
			return err
		}
	}
	return nil
}

// WikiAttachments downloads every staged wiki page's attachments.
func (p *Pipeline) WikiAttachments(ctx context.Context) error {
	wikis, err := p.store.Wikis(ctx)
	if err != nil {
		return err
	}
	for _, w := range wikis {
		atts, err := gateway.Call(p.gw, ctx, "get wiki attachments", func(ctx context.Context) ([]backlog.Attachment, error) {
			return p.api.GetWikiAttachments(ctx, w.WikiID)
		})
		if err != nil {
			return err
		}
		for _, att := range atts {
			local, err := p.fetch(ctx, "download wiki attachment", p.cfg.DirWikiAttachments, att.ID, att.Name,
				func(ctx context.Context) (string, io.ReadCloser, error) {
					return p.api.DownloadWikiAttachment(ctx, w.WikiID, att.ID)
				})
			if err != nil {
				return err
			}
			if err := p.store.PutWikiAttachment(ctx, w.WikiID, att, local); err != nil {
				return err
			}
		}
	}
	return nil
}

// SharedFiles walks the project's shared file tree recursively, starting at
// the root directory, downloading every file it finds.
func (p *Pipeline) SharedFiles(ctx context.Context) error {
	return p.sharedFilesIn(ctx, "/")
}

func (p *Pipeline) sharedFilesIn(ctx context.Context, dir string) error {
	entries, err := gateway.Call(p.gw, ctx, "get shared files", func(ctx context.Context) ([]backlog.SharedFile, error) {
		return p.api.GetSharedFiles(ctx, p.projectID(), dir)
	})
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Type == "directory" {
			if err := p.sharedFilesIn(ctx, entry.Dir+entry.Name+"/"); err != nil {
				return err
			}
			continue
		}
		local, err := p.fetch(ctx, "download shared file", p.cfg.DirSharedFiles, entry.ID, entry.Name,
			func(ctx context.Context) (string, io.ReadCloser, error) {
				return p.api.DownloadSharedFile(ctx, p.projectID(), entry.ID)
			})
		if err != nil {
			return err
		}
		if err := p.store.PutSharedFile(ctx, entry, local); err != nil {
			return err
		}
	}
	return nil
}

// fetch downloads one remote file through the gateway and writes it under
// dir, returning the local filename recorded in staging.
func (p *Pipeline) fetch(ctx context.Context, name, dir string, id int64, fallbackName string,
	dl func(context.Context) (string, io.ReadCloser, error)) (string, error) {

	var remoteName string
	var body io.ReadCloser
	err := p.gw.Do(ctx, name, func(ctx context.Context) error {
		var err error
		remoteName, body, err = dl(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	local := localAttachmentName(id, describeDownload(remoteName, fallbackName))
	path := filepath.Join(dir, local)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	p.log.Trace("saved %s", path)
	return local, nil
}

func fileExt(name string) string {
	return filepath.Ext(name)
}
