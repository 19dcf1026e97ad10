package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/gateway"
)

// Wikis recreates the staged wiki pages in the target project and
// re-uploads their attachments. Pages whose name already exists in the
// target are left alone, which makes reruns safe.
func (p *Pipeline) Wikis(ctx context.Context, opts Options) error {
	ok, err := p.guardAllows(ctx, opts.ForceProduction)
	if err != nil || !ok {
		return err
	}

	existing, err := gateway.Call(p.gw, ctx, "get target wikis", func(ctx context.Context) ([]backlog.Wiki, error) {
		return p.api.GetWikis(ctx, p.projectID())
	})
	if err != nil {
		return err
	}
	taken := make(map[string]bool, len(existing))
	for _, w := range existing {
		taken[w.Name] = true
	}

	pages, err := p.store.Wikis(ctx)
	if err != nil {
		return err
	}
	for _, page := range pages {
		if taken[page.Name] {
			p.log.Trace("wiki %q already exists in target; skipped", page.Name)
			continue
		}
		created, err := gateway.Call(p.gw, ctx, "create wiki", func(ctx context.Context) (*backlog.Wiki, error) {
			return p.api.CreateWiki(ctx, p.projectID(), page.Name, page.Content)
		})
		if err != nil {
			return err
		}
		p.log.Info("created wiki %q (%d)", created.Name, created.ID)

		if err := p.replayWikiAttachments(ctx, page.WikiID, created.ID); err != nil {
			return err
		}
	}
	return nil
}

// replayWikiAttachments uploads the locally exported files of one source
// wiki page and attaches them to the freshly created target page.
func (p *Pipeline) replayWikiAttachments(ctx context.Context, sourceWikiID, targetWikiID int64) error {
	atts, err := p.store.WikiAttachmentsForWiki(ctx, sourceWikiID)
	if err != nil {
		return err
	}

	var uploaded []int64
	for _, att := range atts {
		path := filepath.Join(p.cfg.DirWikiAttachments, att.LocalFilename)
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				p.log.Warn("local wiki attachment file %s missing; skipped", path)
				continue
			}
			return fmt.Errorf("failed to open wiki attachment %s: %w", path, err)
		}

		posted, err := gateway.Call(p.gw, ctx, "post wiki attachment", func(ctx context.Context) (*backlog.Attachment, error) {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
			return p.api.PostAttachment(ctx, att.Name, f)
		})
		f.Close()
		if err != nil {
			return err
		}
		uploaded = append(uploaded, posted.ID)
	}

	if len(uploaded) == 0 {
		return nil
	}
	_, err = gateway.Call(p.gw, ctx, "attach wiki files", func(ctx context.Context) ([]backlog.Attachment, error) {
		return p.api.AddWikiAttachment(ctx, targetWikiID, uploaded)
	})
	return err
}
