package backlog

// Types mirror the JSON payloads of the Backlog v2 REST API. Only the
// fields the migration pipelines read are mapped; everything else is
// dropped at decode time.

// Project is a Backlog project (one per migrated tenant side).
type Project struct {
	ID         int64  `json:"id"`
	ProjectKey string `json:"projectKey"`
	Name       string `json:"name"`
	Archived   bool   `json:"archived"`
}

// User is a space member. RoleType 1 is administrator; higher values carry
// fewer privileges.
type User struct {
	ID          int64  `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	RoleType    int    `json:"roleType"`
	MailAddress string `json:"mailAddress"`
}

// IssueType is a project-scoped issue kind (Bug, Task, ...).
type IssueType struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Category is a project-scoped issue category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Version is a project version or milestone; Backlog models both with the
// same record and distinguishes them only by how an issue references them.
type Version struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	StartDate      string `json:"startDate"`
	ReleaseDueDate string `json:"releaseDueDate"`
	Archived       bool   `json:"archived"`
}

// Status is a project-scoped issue status (Open, In Progress, ...).
type Status struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Priority is a space-wide priority level.
type Priority struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Resolution is a space-wide resolution (Fixed, Won't Fix, ...).
type Resolution struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Attachment is a file attached to an issue, comment or wiki page.
type Attachment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// SharedFile is a file in the project's shared file area.
type SharedFile struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // "file" or "directory"
	Dir  string `json:"dir"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// CustomField is an issue-level custom field value. Captured during export
// for completeness; replay does not reconstruct custom fields.
type CustomField struct {
	ID    int64       `json:"id"`
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Issue is the current snapshot of an issue. KeyID is the numeric suffix of
// IssueKey and drives numbering continuity during replay.
type Issue struct {
	ID             int64         `json:"id"`
	ProjectID      int64         `json:"projectId"`
	IssueKey       string        `json:"issueKey"`
	KeyID          int64         `json:"keyId"`
	Summary        string        `json:"summary"`
	Description    string        `json:"description"`
	IssueType      IssueType     `json:"issueType"`
	Priority       Priority      `json:"priority"`
	Resolution     *Resolution   `json:"resolution"`
	Status         Status        `json:"status"`
	Assignee       *User         `json:"assignee"`
	Categories     []Category    `json:"category"`
	Versions       []Version     `json:"versions"`
	Milestones     []Version     `json:"milestone"`
	StartDate      string        `json:"startDate"`
	DueDate        string        `json:"dueDate"`
	EstimatedHours *float64      `json:"estimatedHours"`
	ActualHours    *float64      `json:"actualHours"`
	ParentIssueID  int64         `json:"parentIssueId"`
	CreatedUser    *User         `json:"createdUser"`
	Created        string        `json:"created"`
	UpdatedUser    *User         `json:"updatedUser"`
	Updated        string        `json:"updated"`
	CustomFields   []CustomField `json:"customFields"`
	SharedFiles    []SharedFile  `json:"sharedFiles"`
}

// AttachmentInfo identifies the attachment referenced by an "attachment"
// change log entry.
type AttachmentInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AttributeInfo carries the custom-field descriptor of a change log entry.
type AttributeInfo struct {
	ID     int64 `json:"id"`
	TypeID int64 `json:"typeId"`
}

// NotificationInfo carries notification metadata of a change log entry.
type NotificationInfo struct {
	Type string `json:"type"`
}

// ChangeLog is one field-level delta attached to a comment. The API returns
// change logs unordered and without ids; export assigns a synthetic
// per-comment sequence before staging.
type ChangeLog struct {
	Field            string            `json:"field"`
	OriginalValue    string            `json:"originalValue"`
	NewValue         string            `json:"newValue"`
	AttachmentInfo   *AttachmentInfo   `json:"attachmentInfo"`
	AttributeInfo    *AttributeInfo    `json:"attributeInfo"`
	NotificationInfo *NotificationInfo `json:"notificationInfo"`
}

// Notification is a user notified by a comment.
type Notification struct {
	ID   int64 `json:"id"`
	User User  `json:"user"`
}

// Comment is an issue comment plus its change log. Comments are the atomic
// unit of history: replay walks them in ascending id order.
type Comment struct {
	ID            int64          `json:"id"`
	Content       string         `json:"content"`
	ChangeLog     []ChangeLog    `json:"changeLog"`
	CreatedUser   *User          `json:"createdUser"`
	Created       string         `json:"created"`
	Updated       string         `json:"updated"`
	Notifications []Notification `json:"notifications"`
}

// Wiki is a wiki page. The list endpoint returns pages without content;
// GetWiki fetches the full page.
type Wiki struct {
	ID          int64        `json:"id"`
	ProjectID   int64        `json:"projectId"`
	Name        string       `json:"name"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	CreatedUser *User        `json:"createdUser"`
	Created     string       `json:"created"`
	Updated     string       `json:"updated"`
}
