package backlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single HTTP exchange, downloads included.
	DefaultTimeout = 60 * time.Second

	// DefaultPageSize is the page size for all list endpoints.
	DefaultPageSize = 100
)

// Client talks to one Backlog space over the v2 REST API. It performs no
// retries and no pacing: every call is a single HTTP exchange, and the
// retry gateway owns rate-limit handling above this layer.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a client for the given space. siteJP selects the
// backlog.jp domain instead of backlog.com.
func NewClient(space, apiKey string, siteJP bool) *Client {
	domain := "backlog.com"
	if siteJP {
		domain = "backlog.jp"
	}
	return &Client{
		BaseURL: fmt.Sprintf("https://%s.%s/api/v2", space, domain),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

func (c *Client) buildURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", c.APIKey)
	return c.BaseURL + path + "?" + query.Encode()
}

// request performs one HTTP exchange and decodes the JSON response into
// out. A non-2xx status becomes an *APIError.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, query), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	var payload struct {
		Errors []ErrorDetail `json:"errors"`
	}
	// The error body is best-effort; a non-JSON body still yields a typed
	// error carrying the status code.
	_ = json.Unmarshal(body, &payload)
	return &APIError{StatusCode: status, Errors: payload.Errors}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.request(ctx, http.MethodGet, path, query, nil, "", out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	return c.request(ctx, http.MethodPost, path, nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", out)
}

func (c *Client) patchForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	return c.request(ctx, http.MethodPatch, path, nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", out)
}

// download performs a GET that returns raw file bytes. The filename comes
// from the Content-Disposition header when present.
func (c *Client) download(ctx context.Context, path string) (string, io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path, nil), nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return "", nil, decodeAPIError(resp.StatusCode, body)
	}
	name := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			name = params["filename"]
		}
	}
	return name, resp.Body, nil
}

// --- project / space metadata ---

func (c *Client) GetProject(ctx context.Context, projectID int64) (*Project, error) {
	var p Project
	if err := c.get(ctx, "/projects/"+strconv.FormatInt(projectID, 10), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetProjectUsers(ctx context.Context, projectID int64) ([]User, error) {
	var users []User
	err := c.get(ctx, fmt.Sprintf("/projects/%d/users", projectID), nil, &users)
	return users, err
}

func (c *Client) GetCategories(ctx context.Context, projectID int64) ([]Category, error) {
	var cats []Category
	err := c.get(ctx, fmt.Sprintf("/projects/%d/categories", projectID), nil, &cats)
	return cats, err
}

func (c *Client) AddCategory(ctx context.Context, projectID int64, name string) (*Category, error) {
	form := url.Values{"name": {name}}
	var cat Category
	if err := c.postForm(ctx, fmt.Sprintf("/projects/%d/categories", projectID), form, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// GetVersions lists the project's versions/milestones; Backlog stores both
// in the same record set.
func (c *Client) GetVersions(ctx context.Context, projectID int64) ([]Version, error) {
	var versions []Version
	err := c.get(ctx, fmt.Sprintf("/projects/%d/versions", projectID), nil, &versions)
	return versions, err
}

func (c *Client) AddVersion(ctx context.Context, projectID int64, p AddVersionParams) (*Version, error) {
	var v Version
	if err := c.postForm(ctx, fmt.Sprintf("/projects/%d/versions", projectID), p.Values(), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) GetIssueTypes(ctx context.Context, projectID int64) ([]IssueType, error) {
	var types []IssueType
	err := c.get(ctx, fmt.Sprintf("/projects/%d/issueTypes", projectID), nil, &types)
	return types, err
}

func (c *Client) AddIssueType(ctx context.Context, projectID int64, name, color string) (*IssueType, error) {
	form := url.Values{"name": {name}, "color": {color}}
	var it IssueType
	if err := c.postForm(ctx, fmt.Sprintf("/projects/%d/issueTypes", projectID), form, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (c *Client) GetStatuses(ctx context.Context, projectID int64) ([]Status, error) {
	var statuses []Status
	err := c.get(ctx, fmt.Sprintf("/projects/%d/statuses", projectID), nil, &statuses)
	return statuses, err
}

func (c *Client) GetPriorities(ctx context.Context) ([]Priority, error) {
	var priorities []Priority
	err := c.get(ctx, "/priorities", nil, &priorities)
	return priorities, err
}

func (c *Client) GetResolutions(ctx context.Context) ([]Resolution, error) {
	var resolutions []Resolution
	err := c.get(ctx, "/resolutions", nil, &resolutions)
	return resolutions, err
}

// --- issues ---

// GetIssues returns one ascending page of the project's issues starting at
// offset.
func (c *Client) GetIssues(ctx context.Context, projectID int64, offset, count int) ([]Issue, error) {
	query := url.Values{
		"projectId[]": {strconv.FormatInt(projectID, 10)},
		"offset":      {strconv.Itoa(offset)},
		"count":       {strconv.Itoa(count)},
		"sort":        {"created"},
		"order":       {"asc"},
	}
	var issues []Issue
	err := c.get(ctx, "/issues", query, &issues)
	return issues, err
}

// GetIssueCount returns the project's total issue count.
func (c *Client) GetIssueCount(ctx context.Context, projectID int64) (int, error) {
	query := url.Values{"projectId[]": {strconv.FormatInt(projectID, 10)}}
	var out struct {
		Count int `json:"count"`
	}
	err := c.get(ctx, "/issues/count", query, &out)
	return out.Count, err
}

func (c *Client) CreateIssue(ctx context.Context, p CreateIssueParams) (*Issue, error) {
	var issue Issue
	if err := c.postForm(ctx, "/issues", p.Values(), &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *Client) UpdateIssue(ctx context.Context, issueID int64, p UpdateIssueParams) (*Issue, error) {
	var issue Issue
	if err := c.patchForm(ctx, "/issues/"+strconv.FormatInt(issueID, 10), p.Values(), &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// --- comments ---

// GetIssueComments returns one ascending page of comments with id >= minID.
func (c *Client) GetIssueComments(ctx context.Context, issueID, minID int64, count int) ([]Comment, error) {
	query := url.Values{
		"minId": {strconv.FormatInt(minID, 10)},
		"count": {strconv.Itoa(count)},
		"order": {"asc"},
	}
	var comments []Comment
	err := c.get(ctx, fmt.Sprintf("/issues/%d/comments", issueID), query, &comments)
	return comments, err
}

// GetIssueCommentCount returns the page-independent total comment count the
// export pipeline cross-checks against.
func (c *Client) GetIssueCommentCount(ctx context.Context, issueID int64) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.get(ctx, fmt.Sprintf("/issues/%d/comments/count", issueID), nil, &out)
	return out.Count, err
}

func (c *Client) AddIssueComment(ctx context.Context, p AddCommentParams) (*Comment, error) {
	var comment Comment
	if err := c.postForm(ctx, fmt.Sprintf("/issues/%d/comments", p.IssueID), p.Values(), &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// --- attachments ---

func (c *Client) GetIssueAttachments(ctx context.Context, issueID int64) ([]Attachment, error) {
	var atts []Attachment
	err := c.get(ctx, fmt.Sprintf("/issues/%d/attachments", issueID), nil, &atts)
	return atts, err
}

func (c *Client) DownloadIssueAttachment(ctx context.Context, issueID, attachmentID int64) (string, io.ReadCloser, error) {
	return c.download(ctx, fmt.Sprintf("/issues/%d/attachments/%d", issueID, attachmentID))
}

// PostAttachment uploads a file to the space attachment area and returns
// the handle used to link it to an issue create or update.
func (c *Client) PostAttachment(ctx context.Context, name string, r io.Reader) (*Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read attachment data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}
	var att Attachment
	if err := c.request(ctx, http.MethodPost, "/space/attachment", nil, &buf, mw.FormDataContentType(), &att); err != nil {
		return nil, err
	}
	return &att, nil
}

// --- wikis ---

func (c *Client) GetWikis(ctx context.Context, projectID int64) ([]Wiki, error) {
	query := url.Values{"projectIdOrKey": {strconv.FormatInt(projectID, 10)}}
	var wikis []Wiki
	err := c.get(ctx, "/wikis", query, &wikis)
	return wikis, err
}

// GetWiki fetches a full wiki page; the list endpoint omits content.
func (c *Client) GetWiki(ctx context.Context, wikiID int64) (*Wiki, error) {
	var w Wiki
	if err := c.get(ctx, "/wikis/"+strconv.FormatInt(wikiID, 10), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) CreateWiki(ctx context.Context, projectID int64, name, content string) (*Wiki, error) {
	form := url.Values{
		"projectId": {strconv.FormatInt(projectID, 10)},
		"name":      {name},
		"content":   {content},
	}
	var w Wiki
	if err := c.postForm(ctx, "/wikis", form, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) GetWikiAttachments(ctx context.Context, wikiID int64) ([]Attachment, error) {
	var atts []Attachment
	err := c.get(ctx, fmt.Sprintf("/wikis/%d/attachments", wikiID), nil, &atts)
	return atts, err
}

func (c *Client) DownloadWikiAttachment(ctx context.Context, wikiID, attachmentID int64) (string, io.ReadCloser, error) {
	return c.download(ctx, fmt.Sprintf("/wikis/%d/attachments/%d", wikiID, attachmentID))
}

// AddWikiAttachment links previously posted attachments to a wiki page.
func (c *Client) AddWikiAttachment(ctx context.Context, wikiID int64, attachmentIDs []int64) ([]Attachment, error) {
	form := url.Values{}
	for _, id := range attachmentIDs {
		form.Add("attachmentId[]", strconv.FormatInt(id, 10))
	}
	var atts []Attachment
	err := c.postForm(ctx, fmt.Sprintf("/wikis/%d/attachments", wikiID), form, &atts)
	return atts, err
}

// --- shared files ---

// GetSharedFiles lists the shared file area under dir ("" for the root).
func (c *Client) GetSharedFiles(ctx context.Context, projectID int64, dir string) ([]SharedFile, error) {
	path := fmt.Sprintf("/projects/%d/files/metadata/%s", projectID, strings.TrimPrefix(dir, "/"))
	var files []SharedFile
	err := c.get(ctx, path, nil, &files)
	return files, err
}

func (c *Client) DownloadSharedFile(ctx context.Context, projectID, sharedFileID int64) (string, io.ReadCloser, error) {
	return c.download(ctx, fmt.Sprintf("/projects/%d/files/%d", projectID, sharedFileID))
}
