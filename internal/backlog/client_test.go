package backlog

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{BaseURL: srv.URL, APIKey: "secret", HTTPClient: srv.Client()}
}

func TestGetIssuesQuery(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/issues", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "secret", q.Get("apiKey"))
		assert.Equal(t, "42", q.Get("projectId[]"))
		assert.Equal(t, "200", q.Get("offset"))
		assert.Equal(t, "100", q.Get("count"))
		assert.Equal(t, "asc", q.Get("order"))
		io.WriteString(w, `[{"id": 7, "issueKey": "SRC-7", "keyId": 7, "summary": "a bug",
			"assignee": {"id": 3, "name": "Alice"}, "estimatedHours": 1.5}]`)
	})

	issues, err := c.GetIssues(context.Background(), 42, 200, 100)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, int64(7), issues[0].KeyID)
	require.NotNil(t, issues[0].Assignee)
	assert.Equal(t, "Alice", issues[0].Assignee.Name)
	require.NotNil(t, issues[0].EstimatedHours)
	assert.Equal(t, 1.5, *issues[0].EstimatedHours)
	assert.Nil(t, issues[0].Resolution)
}

func TestCreateIssuePostsForm(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "10", r.PostForm.Get("projectId"))
		assert.Equal(t, "hello", r.PostForm.Get("summary"))
		assert.Equal(t, []string{"1", "2"}, r.PostForm["categoryId[]"])
		assert.Empty(t, r.PostForm.Get("description"))
		io.WriteString(w, `{"id": 99, "issueKey": "DST-1", "keyId": 1}`)
	})

	issue, err := c.CreateIssue(context.Background(), CreateIssueParams{
		ProjectID:   10,
		Summary:     "hello",
		IssueTypeID: 5,
		PriorityID:  3,
		CategoryIDs: []int64{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), issue.ID)
}

func TestUpdateIssueClearsResolution(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, r.ParseForm())
		// Resolution is cleared with an explicit empty value.
		_, present := r.PostForm["resolutionId"]
		assert.True(t, present)
		assert.Equal(t, "", r.PostForm.Get("resolutionId"))
		io.WriteString(w, `{"id": 99}`)
	})

	_, err := c.UpdateIssue(context.Background(), 99, UpdateIssueParams{ClearResolution: true})
	require.NoError(t, err)
}

func TestAPIErrorDecoding(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errors": [{"message": "No comment content", "code": 7}]}`)
	})

	_, err := c.UpdateIssue(context.Background(), 1, UpdateIssueParams{})
	require.Error(t, err)
	assert.True(t, IsNoContentChange(err))
	assert.False(t, IsRateLimited(err))
}

func TestRateLimitErrorDetection(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetPriorities(context.Background())
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsNoContentChange(err))
}

func TestDownloadUsesContentDisposition(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		io.WriteString(w, "pdf-bytes")
	})

	name, body, err := c.DownloadIssueAttachment(context.Background(), 1, 2)
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, "report.pdf", name)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(data))
}

func TestPostAttachmentMultipart(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/space/attachment", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "notes.txt", header.Filename)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "contents", string(data))
		io.WriteString(w, `{"id": 123, "name": "notes.txt", "size": 8}`)
	})

	att, err := c.PostAttachment(context.Background(), "notes.txt", strings.NewReader("contents"))
	require.NoError(t, err)
	assert.Equal(t, int64(123), att.ID)
}

func TestNewClientDomains(t *testing.T) {
	assert.Equal(t, "https://acme.backlog.com/api/v2", NewClient("acme", "k", false).BaseURL)
	assert.Equal(t, "https://acme.backlog.jp/api/v2", NewClient("acme", "k", true).BaseURL)
}
