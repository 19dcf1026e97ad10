package backlog

import (
	"net/url"
	"strconv"
	"strings"
)

// CreateIssueParams builds the form body for issue creation. Zero-valued
// optional fields are omitted from the request.
type CreateIssueParams struct {
	ProjectID      int64
	Summary        string
	IssueTypeID    int64
	PriorityID     int64
	Description    string
	StartDate      string
	DueDate        string
	EstimatedHours *float64
	ActualHours    *float64
	CategoryIDs    []int64
	VersionIDs     []int64
	MilestoneIDs   []int64
	AssigneeID     int64
	AttachmentIDs  []int64
}

func (p CreateIssueParams) Values() url.Values {
	form := url.Values{
		"projectId":   {strconv.FormatInt(p.ProjectID, 10)},
		"summary":     {p.Summary},
		"issueTypeId": {strconv.FormatInt(p.IssueTypeID, 10)},
		"priorityId":  {strconv.FormatInt(p.PriorityID, 10)},
	}
	if p.Description != "" {
		form.Set("description", p.Description)
	}
	if p.StartDate != "" {
		form.Set("startDate", p.StartDate)
	}
	if p.DueDate != "" {
		form.Set("dueDate", p.DueDate)
	}
	if p.EstimatedHours != nil {
		form.Set("estimatedHours", formatHours(*p.EstimatedHours))
	}
	if p.ActualHours != nil {
		form.Set("actualHours", formatHours(*p.ActualHours))
	}
	addIDList(form, "categoryId[]", p.CategoryIDs)
	addIDList(form, "versionId[]", p.VersionIDs)
	addIDList(form, "milestoneId[]", p.MilestoneIDs)
	addIDList(form, "attachmentId[]", p.AttachmentIDs)
	if p.AssigneeID != 0 {
		form.Set("assigneeId", strconv.FormatInt(p.AssigneeID, 10))
	}
	return form
}

// UpdateIssueParams accumulates the field deltas of one comment's change
// events into a single update call. Pointer fields distinguish "not
// touched" from "set to empty"; resolution uses an extra flag because the
// API clears it with an explicit empty value.
type UpdateIssueParams struct {
	Summary         *string
	Description     *string
	IssueTypeID     int64
	PriorityID      int64
	StatusID        int64
	ResolutionID    int64
	ClearResolution bool
	AssigneeID      int64
	StartDate       *string
	DueDate         *string
	EstimatedHours  *string
	ActualHours     *string
	CategoryIDs     []int64
	VersionIDs      []int64
	MilestoneIDs    []int64
	ParentIssueID   int64
	AttachmentIDs   []int64
	NotifiedUserIDs []int64
	Comment         string
}

// HasChanges reports whether anything would be sent; an empty update call
// is skipped entirely.
func (p UpdateIssueParams) HasChanges() bool {
	return p.Summary != nil || p.Description != nil || p.IssueTypeID != 0 ||
		p.PriorityID != 0 || p.StatusID != 0 || p.ResolutionID != 0 ||
		p.ClearResolution || p.AssigneeID != 0 || p.StartDate != nil ||
		p.DueDate != nil || p.EstimatedHours != nil || p.ActualHours != nil ||
		len(p.CategoryIDs) > 0 || len(p.VersionIDs) > 0 || len(p.MilestoneIDs) > 0 ||
		p.ParentIssueID != 0 || len(p.AttachmentIDs) > 0 ||
		len(p.NotifiedUserIDs) > 0 || p.Comment != ""
}

func (p UpdateIssueParams) Values() url.Values {
	form := url.Values{}
	if p.Summary != nil {
		form.Set("summary", *p.Summary)
	}
	if p.Description != nil {
		form.Set("description", *p.Description)
	}
	if p.IssueTypeID != 0 {
		form.Set("issueTypeId", strconv.FormatInt(p.IssueTypeID, 10))
	}
	if p.PriorityID != 0 {
		form.Set("priorityId", strconv.FormatInt(p.PriorityID, 10))
	}
	if p.StatusID != 0 {
		form.Set("statusId", strconv.FormatInt(p.StatusID, 10))
	}
	if p.ClearResolution {
		form.Set("resolutionId", "")
	} else if p.ResolutionID != 0 {
		form.Set("resolutionId", strconv.FormatInt(p.ResolutionID, 10))
	}
	if p.AssigneeID != 0 {
		form.Set("assigneeId", strconv.FormatInt(p.AssigneeID, 10))
	}
	if p.StartDate != nil {
		form.Set("startDate", *p.StartDate)
	}
	if p.DueDate != nil {
		form.Set("dueDate", *p.DueDate)
	}
	if p.EstimatedHours != nil {
		form.Set("estimatedHours", *p.EstimatedHours)
	}
	if p.ActualHours != nil {
		form.Set("actualHours", *p.ActualHours)
	}
	addIDList(form, "categoryId[]", p.CategoryIDs)
	addIDList(form, "versionId[]", p.VersionIDs)
	addIDList(form, "milestoneId[]", p.MilestoneIDs)
	addIDList(form, "attachmentId[]", p.AttachmentIDs)
	addIDList(form, "notifiedUserId[]", p.NotifiedUserIDs)
	if p.ParentIssueID != 0 {
		form.Set("parentIssueId", strconv.FormatInt(p.ParentIssueID, 10))
	}
	if p.Comment != "" {
		form.Set("comment", p.Comment)
	}
	return form
}

// AddCommentParams builds the form body for adding a comment.
type AddCommentParams struct {
	IssueID         int64
	Content         string
	NotifiedUserIDs []int64
	AttachmentIDs   []int64
}

// HasContent reports whether a comment call should be issued at all;
// change-event-only comments carry no content and are replayed purely as
// issue updates.
func (p AddCommentParams) HasContent() bool {
	return p.Content != ""
}

func (p AddCommentParams) Values() url.Values {
	form := url.Values{"content": {p.Content}}
	addIDList(form, "notifiedUserId[]", p.NotifiedUserIDs)
	addIDList(form, "attachmentId[]", p.AttachmentIDs)
	return form
}

// AddVersionParams builds the form body for creating a version/milestone.
type AddVersionParams struct {
	Name           string
	Description    string
	StartDate      string
	ReleaseDueDate string
}

func (p AddVersionParams) Values() url.Values {
	form := url.Values{"name": {p.Name}}
	if p.Description != "" {
		form.Set("description", p.Description)
	}
	if p.StartDate != "" {
		form.Set("startDate", p.StartDate)
	}
	if p.ReleaseDueDate != "" {
		form.Set("releaseDueDate", p.ReleaseDueDate)
	}
	return form
}

func addIDList(form url.Values, key string, ids []int64) {
	for _, id := range ids {
		form.Add(key, strconv.FormatInt(id, 10))
	}
}

func formatHours(h float64) string {
	s := strconv.FormatFloat(h, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
