package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in     string
		want   Category
		wantOK bool
	}{
		{"meeting", CategoryMeeting, true},
		{" Task ", CategoryTask, true},
		{"NEWSLETTER", CategoryNewsletter, true},
		{"junk", CategoryJunk, true},
		{"other", CategoryOther, true},
		{"spam", Category("spam"), false},
		{"", Category(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCategory(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}

func TestJobState_IsTerminal(t *testing.T) {
	tests := []struct {
		state JobState
		want  bool
	}{
		{JobQueued, false},
		{JobRunning, false},
		{JobCompleted, true},
		{JobFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSyncJob_Clone(t *testing.T) {
	now := time.Now()
	job := NewSyncJob(uuid.New(), now)
	job.FinishedAt = &now

	c := job.Clone()
	c.Processed = 7
	*c.FinishedAt = now.Add(time.Hour)

	if job.Processed != 0 {
		t.Errorf("expected original untouched, got processed=%d", job.Processed)
	}
	if !job.FinishedAt.Equal(now) {
		t.Error("expected FinishedAt to be deep copied")
	}
	if job.State != JobQueued {
		t.Errorf("expected queued, got %s", job.State)
	}
}

func TestCredential_NeedsRefresh(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"no expiry", time.Time{}, false},
		{"far future", now.Add(time.Hour), false},
		{"within leeway", now.Add(4 * time.Minute), true},
		{"expired", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Credential{Expiry: tt.expiry}
			if got := c.NeedsRefresh(now); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
