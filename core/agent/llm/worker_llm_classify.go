package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/apperr"
)

var _ out.EmailClassifier = (*Classifier)(nil)

const systemPrompt = "You output concise JSON only."

// Classifier implements out.EmailClassifier on top of Client. It builds the
// prompt and splits the reply into raw per-message records; validating them
// is left to the caller.
type Classifier struct {
	client *Client
	// zone names the timezone assumed for timestamps without an offset.
	zone string
}

func NewClassifier(client *Client, zone string) *Classifier {
	if zone == "" {
		zone = "UTC"
	}
	return &Classifier{client: client, zone: zone}
}

// ClassifyBatch sends the whole batch in one request.
func (c *Classifier) ClassifyBatch(ctx context.Context, batch []out.ClassificationRequest) (*out.ClassificationResponse, error) {
	if len(batch) == 0 {
		return &out.ClassificationResponse{Model: c.client.Model()}, nil
	}

	prompt, err := buildPrompt(batch, c.zone)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	resp, err := c.client.CompleteJSON(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(resp.Content)
	if err != nil {
		return nil, apperr.TransportError("openai", err)
	}

	return &out.ClassificationResponse{
		Records:          records,
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}

// ===== Prompt =====

const instructions = `Classify each email as one of: %s.
Return a JSON object {"results": [...]} with exactly one entry per email, using the email's "id".
Entry shape:
{"id": string, "category": string, "confidence": number 0-1,
 "meeting": {"title", "start_time", "end_time", "location", "attendees": [string]},
 "task": {"description", "due_date"},
 "unsubscribe_url": string}
Include "meeting" only for meetings and "task" only for tasks.
Timestamps: RFC3339 (2024-05-01T18:00:00-04:00). Without a known offset use YYYY-MM-DDTHH:MM:SS, read as %s time. Use 24-hour clock.
Meetings: take the start time from the content, not the send time. "Tonight"/"today" is the email date, "tomorrow" is the email date plus one day.
A bare hour from 1 to 11 without am/pm means the afternoon. Use the email date only when the content names no time.
End time defaults to one hour after the start.
Tasks: due_date may be a date (YYYY-MM-DD) or a timestamp; omit it when no deadline is stated.
Newsletters and junk: include an unsubscribe link if one appears in the email.`

// promptEmail is the per-message payload embedded in the prompt.
type promptEmail struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func buildPrompt(batch []out.ClassificationRequest, zone string) (string, error) {
	emails := make([]promptEmail, 0, len(batch))
	for _, r := range batch {
		pe := promptEmail{
			ID:      r.EmailID,
			From:    orDefault(r.Sender, "Unknown"),
			Subject: orDefault(r.Subject, "No subject"),
			Body:    r.Body,
		}
		if !r.ReceivedAt.IsZero() {
			pe.Date = r.ReceivedAt.Format(time.RFC3339)
		}
		emails = append(emails, pe)
	}

	payload, err := json.Marshal(emails)
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt emails: %w", err)
	}

	var sb strings.Builder
	names := make([]string, len(domain.Categories))
	for i, cat := range domain.Categories {
		names[i] = string(cat)
	}
	sb.WriteString(fmt.Sprintf(instructions, strings.Join(names, ", "), zone))
	sb.WriteString("\n\nEmails:\n")
	sb.Write(payload)
	return sb.String(), nil
}

// ===== Response =====

// decodeRecords splits the reply into raw records. Only a reply that is not
// a JSON object with a results array (or a bare array) is an error.
func decodeRecords(content string) ([]json.RawMessage, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("empty classification response")
	}

	if strings.HasPrefix(content, "[") {
		var records []json.RawMessage
		if err := json.Unmarshal([]byte(content), &records); err != nil {
			return nil, fmt.Errorf("failed to parse classification response: %w", err)
		}
		return records, nil
	}

	var envelope struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}
	if envelope.Results == nil {
		return nil, errors.New("classification response has no results array")
	}
	return envelope.Results, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
