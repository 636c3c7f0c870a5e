package classification

import (
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/pkg/apperr"
)

// defaultMeetingLength is used when the model gives no end time.
const defaultMeetingLength = time.Hour

// record is the per-message shape requested from the model.
type record struct {
	ID             string   `json:"id"`
	Category       string   `json:"category"`
	Confidence     *float64 `json:"confidence"`
	Meeting        *meeting `json:"meeting"`
	Task           *task    `json:"task"`
	UnsubscribeURL string   `json:"unsubscribe_url"`
}

type meeting struct {
	Title     string   `json:"title"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Location  string   `json:"location"`
	Attendees []string `json:"attendees"`
}

type task struct {
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
}

// Validator checks one raw model record against the batch it belongs to.
type Validator struct {
	// loc interprets timestamps that carry no zone.
	loc *time.Location
	now func() time.Time
}

// NewValidator creates a validator. A nil loc means UTC.
func NewValidator(loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{loc: loc, now: time.Now}
}

// Validate decodes raw and checks it. The returned id is the email the record
// claims, or "" when it cannot be attributed to any email in the batch.
// Errors are ValidationErrors and concern only that one email.
func (v *Validator) Validate(raw json.RawMessage, userID uuid.UUID, batch map[string]*domain.Email) (string, *domain.ClassificationResult, error) {
	id := recordID(raw)
	if id == "" {
		return "", nil, apperr.ValidationError("", "record has no id")
	}
	email, ok := batch[id]
	if !ok {
		return "", nil, apperr.ValidationError(id, "record id is not part of the batch")
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return id, nil, apperr.ValidationError(id, fmt.Sprintf("malformed record: %v", err))
	}

	category, ok := domain.ParseCategory(rec.Category)
	if !ok {
		return id, nil, apperr.ValidationError(id, fmt.Sprintf("unknown category %q", rec.Category))
	}

	result := &domain.ClassificationResult{
		EmailID:      id,
		UserID:       userID,
		Category:     category,
		ClassifiedAt: v.now().UTC(),
	}

	if rec.Confidence != nil {
		c := *rec.Confidence
		if c < 0 || c > 1 {
			return id, nil, apperr.ValidationError(id, fmt.Sprintf("confidence %v out of range", c))
		}
		result.Confidence = c
	}

	switch category {
	case domain.CategoryMeeting:
		details, err := v.meetingDetails(rec.Meeting, email)
		if err != nil {
			return id, nil, apperr.ValidationError(id, err.Error())
		}
		result.Meeting = details
	case domain.CategoryTask:
		details, err := v.taskDetails(rec.Task, email)
		if err != nil {
			return id, nil, apperr.ValidationError(id, err.Error())
		}
		result.Task = details
	}

	result.UnsubscribeURL = email.UnsubscribeURL
	if u := cleanURL(rec.UnsubscribeURL); u != "" {
		result.UnsubscribeURL = u
	}

	return id, result, nil
}

func (v *Validator) meetingDetails(m *meeting, email *domain.Email) (*domain.MeetingDetails, error) {
	if m == nil {
		return nil, fmt.Errorf("meeting details missing")
	}

	start, err := v.parseTime(m.StartTime)
	if err != nil {
		return nil, fmt.Errorf("meeting start_time: %w", err)
	}

	end := start.Add(defaultMeetingLength)
	if strings.TrimSpace(m.EndTime) != "" {
		end, err = v.parseTime(m.EndTime)
		if err != nil {
			return nil, fmt.Errorf("meeting end_time: %w", err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("meeting ends before it starts")
		}
	}

	title := unescape(m.Title)
	if title == "" {
		title = strings.TrimSpace(email.Subject)
	}
	if title == "" {
		return nil, fmt.Errorf("meeting title missing")
	}

	attendees := make([]string, 0, len(m.Attendees))
	for _, a := range m.Attendees {
		if a = strings.TrimSpace(a); a != "" {
			attendees = append(attendees, a)
		}
	}

	return &domain.MeetingDetails{
		Title:     title,
		StartTime: start,
		EndTime:   end,
		Location:  unescape(m.Location),
		Attendees: attendees,
	}, nil
}

func (v *Validator) taskDetails(t *task, email *domain.Email) (*domain.TaskDetails, error) {
	details := &domain.TaskDetails{Description: email.Subject}
	if t == nil {
		return details, nil
	}

	if d := unescape(t.Description); d != "" {
		details.Description = d
	}
	if strings.TrimSpace(t.DueDate) != "" {
		due, err := v.parseTime(t.DueDate)
		if err != nil {
			return nil, fmt.Errorf("task due_date: %w", err)
		}
		details.DueDate = &due
	}
	if details.Description == "" {
		return nil, fmt.Errorf("task description missing")
	}
	return details, nil
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime accepts RFC 3339, or a zoneless layout read in v.loc.
func (v *Validator) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, v.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// recordID pulls the id out of a record without requiring the rest to decode.
func recordID(raw json.RawMessage) string {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	switch id := fields["id"].(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return ""
}

func unescape(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}

// cleanURL keeps only absolute http(s) URLs.
func cleanURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return s
}
