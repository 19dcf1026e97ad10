package staging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmig/backmig/internal/backlog"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleIssue(id, keyID int64) *backlog.Issue {
	return &backlog.Issue{
		ID:        id,
		IssueKey:  "SRC-1",
		KeyID:     keyID,
		Summary:   "summary",
		IssueType: backlog.IssueType{Name: "Bug"},
		Priority:  backlog.Priority{Name: "Normal"},
		Status:    backlog.Status{Name: "Open"},
		Categories: []backlog.Category{
			{ID: 1, Name: "backend"},
			{ID: 2, Name: "frontend"},
		},
	}
}

func TestPutIssueIdempotent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	issue := sampleIssue(100, 1)
	require.NoError(t, s.PutIssue(ctx, issue))
	require.NoError(t, s.PutIssue(ctx, issue))

	assert.Equal(t, 1, s.Counters.Ins(KindIssue), "only the first write counts as an insert")
	assert.Equal(t, 1, s.Counters.Upd(KindIssue))

	rows, err := s.IssuesByKey(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(100), rows[0].IssueID)
	assert.Equal(t, "backend,frontend", rows[0].Categories)
}

func TestPutIssueStagesReferencedUsers(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	issue := sampleIssue(100, 1)
	issue.Assignee = &backlog.User{ID: 7, Name: "alice", MailAddress: "alice@example.com"}
	issue.CreatedUser = &backlog.User{ID: 8, Name: "bob"}
	require.NoError(t, s.PutIssue(ctx, issue))

	ids, err := s.SourceUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, ids)
}

func TestIssuesByKeyOrder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	// Staged out of key order on purpose.
	require.NoError(t, s.PutIssue(ctx, sampleIssue(300, 5)))
	require.NoError(t, s.PutIssue(ctx, sampleIssue(100, 1)))
	require.NoError(t, s.PutIssue(ctx, sampleIssue(200, 2)))

	rows, err := s.IssuesByKey(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{1, 2, 5}, []int64{rows[0].KeyID, rows[1].KeyID, rows[2].KeyID})
}

func TestChangeLogSequenceSurvivesInsertionOrder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	comment := &backlog.Comment{
		ID: 50,
		ChangeLog: []backlog.ChangeLog{
			{Field: "status", OriginalValue: "Open", NewValue: "Closed"},
			{Field: "assigner", OriginalValue: "A", NewValue: "B"},
		},
	}
	require.NoError(t, s.PutComment(ctx, 100, comment))
	// A rerun restages the same comment; rows must stay stable.
	require.NoError(t, s.PutComment(ctx, 100, comment))

	logs, err := s.ChangeLogsForComment(ctx, 50)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "50-1", logs[0].Key)
	assert.Equal(t, "status", logs[0].Field)
	assert.Equal(t, "50-2", logs[1].Key)
	assert.Equal(t, "assigner", logs[1].Field)

	assert.Equal(t, 2, s.Counters.Ins(KindChangeLog))
	assert.Equal(t, 2, s.Counters.Upd(KindChangeLog))
}

func TestCommentNotifiedUserRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	comment := &backlog.Comment{
		ID:      51,
		Content: "hello",
		Notifications: []backlog.Notification{
			{ID: 1, User: backlog.User{ID: 11, Name: "carol"}},
			{ID: 2, User: backlog.User{ID: 12, Name: "dave"}},
		},
	}
	require.NoError(t, s.PutComment(ctx, 100, comment))

	comments, err := s.CommentsForIssue(ctx, 100)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, []int64{11, 12}, comments[0].NotifiedUserIDs)
}

func TestResolveNameList(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutTargetCategory(ctx, backlog.Category{ID: 10, Name: "backend"}))

	ids, missing, err := ResolveNameList(ctx, "backend, ghost", s.TargetCategoryIDByName)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)
	assert.Equal(t, []string{"ghost"}, missing)
}

func TestTargetIssueCorrelation(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	target := &backlog.Issue{ID: 9001, IssueKey: "DST-1", KeyID: 1, Summary: "mirrored"}
	require.NoError(t, s.PutTargetIssueCorrelation(ctx, target, 100))

	id, err := s.TargetIssueIDForSource(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(9001), id)

	id, err = s.TargetIssueIDForSource(ctx, 999)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestAppendLogNeverFails(t *testing.T) {
	s := setupStore(t)
	s.AppendLog("info", "phase complete")

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM tool_log").Scan(&n))
	assert.Equal(t, 1, n)
}
