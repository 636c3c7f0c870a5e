package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the fixed set of labels a message can be classified into.
type Category string

const (
	CategoryMeeting    Category = "meeting"
	CategoryTask       Category = "task"
	CategoryNewsletter Category = "newsletter"
	CategoryJunk       Category = "junk"
	CategoryOther      Category = "other"
)

// Categories lists every valid category in prompt order.
var Categories = []Category{
	CategoryMeeting,
	CategoryTask,
	CategoryNewsletter,
	CategoryJunk,
	CategoryOther,
}

// ParseCategory normalizes s and reports whether it names a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

func (c Category) Valid() bool {
	switch c {
	case CategoryMeeting, CategoryTask, CategoryNewsletter, CategoryJunk, CategoryOther:
		return true
	}
	return false
}

// IsJunk reports whether the category produces a JunkRecord.
func (c Category) IsJunk() bool {
	return c == CategoryJunk || c == CategoryNewsletter
}

// ClassificationResult is the validated outcome for one email. One per email;
// writes overwrite.
type ClassificationResult struct {
	EmailID        string          `json:"email_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Category       Category        `json:"category"`
	Confidence     float64         `json:"confidence"`
	Meeting        *MeetingDetails `json:"meeting,omitempty"`
	Task           *TaskDetails    `json:"task,omitempty"`
	UnsubscribeURL string          `json:"unsubscribe_url,omitempty"`
	Model          string          `json:"model,omitempty"`
	ClassifiedAt   time.Time       `json:"classified_at"`
}

type MeetingDetails struct {
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  string    `json:"location,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
}

type TaskDetails struct {
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// =============================================================================
// Derived records
// =============================================================================

// Meeting is the meeting view of a classification.
type Meeting struct {
	EmailID    string    `json:"email_id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Title      string    `json:"title"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Location   string    `json:"location,omitempty"`
	Attendees  []string  `json:"attendees"`
	Confidence float64   `json:"confidence"`
}

type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
)

// Task is the task view of a classification.
type Task struct {
	EmailID     string     `json:"email_id"`
	Subject     string     `json:"subject"`
	Sender      string     `json:"sender"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      TaskStatus `json:"status"`
	Confidence  float64    `json:"confidence"`
}

type UnsubscribeStatus string

const (
	UnsubscribePending UnsubscribeStatus = "pending"
)

// JunkRecord is the newsletter/junk view of a classification.
type JunkRecord struct {
	EmailID        string            `json:"email_id"`
	Subject        string            `json:"subject"`
	Sender         string            `json:"sender"`
	Category       Category          `json:"category"`
	UnsubscribeURL string            `json:"unsubscribe_url,omitempty"`
	Status         UnsubscribeStatus `json:"status"`
}

// =============================================================================
// Pipeline outcomes
// =============================================================================

// ClassificationOutcome is emitted once per email by the batch classifier:
// either Result is set (classified and written) or Err explains the failure.
type ClassificationOutcome struct {
	EmailID string
	Result  *ClassificationResult
	Err     error
}

func (o ClassificationOutcome) Classified() bool {
	return o.Err == nil && o.Result != nil
}

// Classified builds a successful outcome.
func Classified(result *ClassificationResult) ClassificationOutcome {
	return ClassificationOutcome{EmailID: result.EmailID, Result: result}
}

// Failed builds a failed outcome.
func Failed(emailID string, err error) ClassificationOutcome {
	return ClassificationOutcome{EmailID: emailID, Err: err}
}
