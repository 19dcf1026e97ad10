package replay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/config"
	"github.com/backmig/backmig/internal/gateway"
	"github.com/backmig/backmig/internal/guard"
	"github.com/backmig/backmig/internal/identity"
	"github.com/backmig/backmig/internal/logging"
	"github.com/backmig/backmig/internal/staging"
)

// fakeTarget records every write the pipeline issues.
type fakeTarget struct {
	projectKey     string
	existingIssues []backlog.Issue

	nextIssueID int64
	nextKeyID   int64
	created     []backlog.CreateIssueParams

	updates       []recordedUpdate
	updateErrs    []error // popped per UpdateIssue call, nil = success
	comments      []backlog.AddCommentParams
	attachments   []string
	existingWikis []backlog.Wiki
	createdWikis  []string
}

type recordedUpdate struct {
	issueID int64
	params  backlog.UpdateIssueParams
}

func (f *fakeTarget) GetProject(ctx context.Context, projectID int64) (*backlog.Project, error) {
	return &backlog.Project{ID: projectID, ProjectKey: f.projectKey, Name: "Target"}, nil
}

func (f *fakeTarget) GetProjectUsers(ctx context.Context, projectID int64) ([]backlog.User, error) {
	return []backlog.User{
		{ID: 101, UserID: "alice", Name: "Alice", RoleType: 2, MailAddress: "alice@example.com"},
		{ID: 102, UserID: "bob", Name: "Bob", RoleType: 1, MailAddress: "bob@example.com"},
	}, nil
}

func (f *fakeTarget) GetIssueTypes(ctx context.Context, projectID int64) ([]backlog.IssueType, error) {
	return []backlog.IssueType{{ID: 400, Name: "Bug", Color: "#990000"}}, nil
}

func (f *fakeTarget) GetPriorities(ctx context.Context) ([]backlog.Priority, error) {
	return []backlog.Priority{{ID: 2, Name: "High"}, {ID: 3, Name: "Normal"}, {ID: 4, Name: "Low"}}, nil
}

func (f *fakeTarget) GetResolutions(ctx context.Context) ([]backlog.Resolution, error) {
	return []backlog.Resolution{{ID: 0, Name: "Fixed"}}, nil
}

func (f *fakeTarget) GetStatuses(ctx context.Context, projectID int64) ([]backlog.Status, error) {
	return []backlog.Status{{ID: 1, Name: "Open"}, {ID: 4, Name: "Closed"}}, nil
}

func (f *fakeTarget) GetCategories(ctx context.Context, projectID int64) ([]backlog.Category, error) {
	return []backlog.Category{{ID: 500, Name: "backend"}}, nil
}

func (f *fakeTarget) GetVersions(ctx context.Context, projectID int64) ([]backlog.Version, error) {
	return nil, nil
}

func (f *fakeTarget) AddCategory(ctx context.Context, projectID int64, name string) (*backlog.Category, error) {
	return &backlog.Category{ID: int64(600 + len(name)), Name: name}, nil
}

func (f *fakeTarget) AddVersion(ctx context.Context, projectID int64, p backlog.AddVersionParams) (*backlog.Version, error) {
	return &backlog.Version{ID: int64(700 + len(p.Name)), Name: p.Name}, nil
}

func (f *fakeTarget) AddIssueType(ctx context.Context, projectID int64, name, color string) (*backlog.IssueType, error) {
	return &backlog.IssueType{ID: int64(800 + len(name)), Name: name, Color: color}, nil
}

func (f *fakeTarget) GetIssues(ctx context.Context, projectID int64, offset, count int) ([]backlog.Issue, error) {
	return f.existingIssues, nil
}

func (f *fakeTarget) CreateIssue(ctx context.Context, p backlog.CreateIssueParams) (*backlog.Issue, error) {
	f.created = append(f.created, p)
	f.nextIssueID++
	f.nextKeyID++
	return &backlog.Issue{
		ID:       9000 + f.nextIssueID,
		KeyID:    f.nextKeyID,
		IssueKey: fmt.Sprintf("%s-%d", f.projectKey, f.nextKeyID),
		Summary:  p.Summary,
	}, nil
}

func (f *fakeTarget) UpdateIssue(ctx context.Context, issueID int64, p backlog.UpdateIssueParams) (*backlog.Issue, error) {
	var err error
	if len(f.updateErrs) > 0 {
		err = f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
	}
	if err != nil {
		return nil, err
	}
	f.updates = append(f.updates, recordedUpdate{issueID: issueID, params: p})
	return &backlog.Issue{ID: issueID}, nil
}

func (f *fakeTarget) AddIssueComment(ctx context.Context, p backlog.AddCommentParams) (*backlog.Comment, error) {
	f.comments = append(f.comments, p)
	return &backlog.Comment{ID: int64(len(f.comments))}, nil
}

func (f *fakeTarget) PostAttachment(ctx context.Context, name string, r io.Reader) (*backlog.Attachment, error) {
	f.attachments = append(f.attachments, name)
	return &backlog.Attachment{ID: int64(8000 + len(f.attachments)), Name: name}, nil
}

func (f *fakeTarget) GetWikis(ctx context.Context, projectID int64) ([]backlog.Wiki, error) {
	return f.existingWikis, nil
}

func (f *fakeTarget) CreateWiki(ctx context.Context, projectID int64, name, content string) (*backlog.Wiki, error) {
	f.createdWikis = append(f.createdWikis, name)
	return &backlog.Wiki{ID: int64(len(f.createdWikis)), Name: name, Content: content}, nil
}

func (f *fakeTarget) AddWikiAttachment(ctx context.Context, wikiID int64, attachmentIDs []int64) ([]backlog.Attachment, error) {
	return nil, nil
}

func setupReplay(t *testing.T, fake *fakeTarget) (*Pipeline, *staging.Store, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()

	store, err := staging.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var buf bytes.Buffer
	log := logging.NewWriter(&buf, true)

	cfg := &config.Config{DirAttachments: t.TempDir(), DirWikiAttachments: t.TempDir()}
	cfg.Target.ProjectID = 200

	gw := gateway.New(time.Nanosecond, log)
	mapper := identity.NewMapper(store, log)
	return New(store, gw, fake, cfg, log, mapper), store, &buf
}

// stageIssue puts a minimal issue snapshot with the given key id.
func stageIssue(t *testing.T, store *staging.Store, id, keyID int64, mutate func(*backlog.Issue)) {
	t.Helper()
	issue := backlog.Issue{
		ID:        id,
		ProjectID: 100,
		IssueKey:  fmt.Sprintf("SRC-%d", keyID),
		KeyID:     keyID,
		Summary:   fmt.Sprintf("issue %d", keyID),
		IssueType: backlog.IssueType{ID: 30, Name: "Bug"},
		Priority:  backlog.Priority{ID: 3, Name: "Normal"},
		Status:    backlog.Status{ID: 1, Name: "Open"},
	}
	if mutate != nil {
		mutate(&issue)
	}
	require.NoError(t, store.PutIssue(context.Background(), &issue))
}

// prepareMapped runs Prepare plus the user-mapping passes so name and id
// resolution work against the fake target catalog.
func prepareMapped(t *testing.T, p *Pipeline, store *staging.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, p.Prepare(ctx, Options{}))

	// Source users mirror the target users by email.
	require.NoError(t, store.PutUser(ctx, &backlog.User{ID: 1, UserID: "alice", Name: "Alice", RoleType: 2, MailAddress: "alice@example.com"}))
	require.NoError(t, store.PutUser(ctx, &backlog.User{ID: 2, UserID: "bob", Name: "Bob", RoleType: 1, MailAddress: "bob@example.com"}))
	require.NoError(t, p.mapper.Seed(ctx))
	require.NoError(t, p.mapper.MapByEmail(ctx))
}

func TestPrepareRejectsProductionKey(t *testing.T) {
	fake := &fakeTarget{projectKey: "LIVE"}
	p, _, _ := setupReplay(t, fake)

	err := p.Prepare(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "force-production")
}

func TestIssuesRejectsBothOverrides(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	p, _, _ := setupReplay(t, fake)

	err := p.Issues(context.Background(), Options{ForceProduction: true, ForceImport: true})
	assert.ErrorIs(t, err, guard.ErrConflictingOverrides)
}

func TestIssuesRejectsNonEmptyTarget(t *testing.T) {
	fake := &fakeTarget{
		projectKey:     "MIGTEST1",
		existingIssues: []backlog.Issue{{ID: 1}},
	}
	p, store, _ := setupReplay(t, fake)
	prepareMapped(t, p, store)

	err := p.Issues(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "force-import")

	// The override downgrades the abort to a warning.
	require.NoError(t, p.Issues(context.Background(), Options{ForceImport: true}))
}

func TestGapFillTombstones(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	p, store, _ := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	stageIssue(t, store, 1001, 1, nil)
	stageIssue(t, store, 1002, 2, nil)
	stageIssue(t, store, 1005, 5, nil)

	require.NoError(t, p.Issues(ctx, Options{}))

	// Keys 3 and 4 were deleted upstream: two tombstones between key 2
	// and key 5, five creations total.
	require.Len(t, fake.created, 5)
	assert.Contains(t, fake.created[2].Summary, ": 3")
	assert.Contains(t, fake.created[3].Summary, ": 4")
	assert.Equal(t, int64(tombstonePriorityID), fake.created[2].PriorityID)

	// The correlation for key 5 points at the fifth created target issue.
	targetID, err := store.TargetIssueIDForSource(ctx, 1005)
	require.NoError(t, err)
	assert.Equal(t, int64(9000+5), targetID)

	assert.Equal(t, 3, store.Counters.Ins(staging.KindTargetIssue))
}

func TestSkipIssuesResumes(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	p, store, buf := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	stageIssue(t, store, 1001, 1, nil)
	stageIssue(t, store, 1002, 2, nil)

	require.NoError(t, p.Issues(ctx, Options{SkipIssues: 1}))

	require.Len(t, fake.created, 1)
	assert.Equal(t, "issue 2", fake.created[0].Summary)
	assert.Contains(t, buf.String(), "skipping already replayed issue (1)")
}

func TestNoContentChangeRetriesWithFiller(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	fake.updateErrs = []error{&backlog.APIError{
		StatusCode: http.StatusBadRequest,
		Errors:     []backlog.ErrorDetail{{Message: "No comment content"}},
	}}
	p, store, _ := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	stageIssue(t, store, 1001, 1, nil)
	require.NoError(t, store.PutComment(ctx, 1001, &backlog.Comment{
		ID: 50,
		ChangeLog: []backlog.ChangeLog{
			{Field: "status", NewValue: "Closed"},
		},
	}))

	require.NoError(t, p.Issues(ctx, Options{}))

	require.Len(t, fake.updates, 1)
	assert.Equal(t, fillerComment, fake.updates[0].params.Comment)
	assert.Equal(t, int64(4), fake.updates[0].params.StatusID)
}

func TestEndToEndHistoryReplay(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	p, store, _ := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	stageIssue(t, store, 1001, 1, nil)
	stageIssue(t, store, 1002, 2, nil)
	stageIssue(t, store, 1004, 4, func(i *backlog.Issue) {
		i.Assignee = &backlog.User{ID: 1, UserID: "alice", Name: "Alice", RoleType: 2, MailAddress: "alice@example.com"}
	})

	// Two change events in separate comments: status Open→Closed, then
	// assignee Alice→Bob by display name.
	require.NoError(t, store.PutComment(ctx, 1004, &backlog.Comment{
		ID:        60,
		ChangeLog: []backlog.ChangeLog{{Field: "status", OriginalValue: "Open", NewValue: "Closed"}},
	}))
	require.NoError(t, store.PutComment(ctx, 1004, &backlog.Comment{
		ID:        61,
		Content:   "handing this over",
		ChangeLog: []backlog.ChangeLog{{Field: "assigner", OriginalValue: "Alice", NewValue: "Bob"}},
	}))

	require.NoError(t, p.Issues(ctx, Options{}))

	// Keys 1, 2, tombstone 3, 4.
	require.Len(t, fake.created, 4)
	assert.Contains(t, fake.created[2].Summary, ": 3")

	// Shell of key 4 carries the mapped assignee.
	assert.Equal(t, int64(101), fake.created[3].AssigneeID)

	// Exactly one correlated insert per real issue, two history updates.
	assert.Equal(t, 3, store.Counters.Ins(staging.KindTargetIssue))
	assert.Equal(t, 2, store.Counters.Upd(staging.KindTargetIssue))

	require.Len(t, fake.updates, 2)
	assert.Equal(t, int64(4), fake.updates[0].params.StatusID)
	assert.Equal(t, int64(102), fake.updates[1].params.AssigneeID)

	// The textual comment was replayed separately.
	require.Len(t, fake.comments, 1)
	assert.Equal(t, "handing this over", fake.comments[0].Content)
}

func TestChangeEventsLastWriteWins(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	p, store, _ := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	stageIssue(t, store, 1001, 1, nil)
	require.NoError(t, store.PutComment(ctx, 1001, &backlog.Comment{
		ID: 70,
		ChangeLog: []backlog.ChangeLog{
			{Field: "summary", NewValue: "first"},
			{Field: "summary", NewValue: "second"},
		},
	}))

	require.NoError(t, p.Issues(ctx, Options{}))

	require.Len(t, fake.updates, 1)
	require.NotNil(t, fake.updates[0].params.Summary)
	assert.Equal(t, "second", *fake.updates[0].params.Summary)
}

func TestUnknownNameWarnsAndSkips(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	p, store, buf := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	stageIssue(t, store, 1001, 1, nil)
	require.NoError(t, store.PutComment(ctx, 1001, &backlog.Comment{
		ID: 80,
		ChangeLog: []backlog.ChangeLog{
			{Field: "status", NewValue: "Nonexistent"},
			{Field: "milestone", NewValue: "Ghost Release"},
			{Field: "summary", NewValue: "still applied"},
		},
	}))

	require.NoError(t, p.Issues(ctx, Options{}))

	// Warnings identify the issue the change event came from.
	assert.Contains(t, buf.String(), `status "Nonexistent" of SRC-1 not found`)
	assert.Contains(t, buf.String(), `milestone "Ghost Release" of SRC-1 not found`)
	require.Len(t, fake.updates, 1)
	assert.Zero(t, fake.updates[0].params.StatusID)
	require.NotNil(t, fake.updates[0].params.Summary)
	assert.Equal(t, "still applied", *fake.updates[0].params.Summary)
}

func TestEnsureCategoriesCreatesMissing(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	p, store, _ := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	require.NoError(t, store.PutCategory(ctx, backlog.Category{ID: 10, Name: "backend"}))
	require.NoError(t, store.PutCategory(ctx, backlog.Category{ID: 11, Name: "frontend"}))

	require.NoError(t, p.EnsureCategories(ctx, Options{}))

	// "backend" already exists in the target catalog; only "frontend" is
	// created, and it becomes resolvable afterwards.
	id, err := p.store.TargetCategoryIDByName(ctx, "frontend")
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestEnsurePhaseSkipsOnGuard(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	p, store, buf := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	// Rewrite the captured project as a production one.
	require.NoError(t, store.PutTargetProject(ctx, &backlog.Project{ID: 200, ProjectKey: "LIVE", Name: "Live"}))
	require.NoError(t, store.PutCategory(ctx, backlog.Category{ID: 12, Name: "ops"}))

	require.NoError(t, p.EnsureCategories(ctx, Options{}))

	assert.Contains(t, buf.String(), "skipping this phase")
	id, err := p.store.TargetCategoryIDByName(ctx, "ops")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestParentsLinksCorrelatedIssues(t *testing.T) {
	fake := &fakeTarget{projectKey: "MIGTEST1"}
	p, store, _ := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	stageIssue(t, store, 1001, 1, nil)
	stageIssue(t, store, 1002, 2, func(i *backlog.Issue) { i.ParentIssueID = 1001 })

	require.NoError(t, p.Issues(ctx, Options{}))
	require.NoError(t, p.Parents(ctx, Options{}))

	require.Len(t, fake.updates, 1)
	assert.Equal(t, int64(9002), fake.updates[0].issueID)
	assert.Equal(t, int64(9001), fake.updates[0].params.ParentIssueID)
	assert.True(t, strings.Contains(fake.updates[0].params.Comment, "parent"))
}

func TestWikisSkipExisting(t *testing.T) {
	fake := &fakeTarget{
		projectKey:    "MIGTEST1",
		existingWikis: []backlog.Wiki{{ID: 90, Name: "Home"}},
	}
	p, store, _ := setupReplay(t, fake)
	prepareMapped(t, p, store)

	ctx := context.Background()
	require.NoError(t, store.PutWiki(ctx, &backlog.Wiki{ID: 1, Name: "Home", Content: "welcome"}))
	require.NoError(t, store.PutWiki(ctx, &backlog.Wiki{ID: 2, Name: "Setup", Content: "steps"}))

	require.NoError(t, p.Wikis(ctx, Options{}))
	assert.Equal(t, []string{"Setup"}, fake.createdWikis)
}
