package out

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// ClassificationRequest is one message inside a classification batch.
type ClassificationRequest struct {
	EmailID    string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// ClassificationResponse is the decoded but unvalidated model output.
// Each record is kept raw so one malformed record can be rejected alone.
type ClassificationResponse struct {
	Records          []json.RawMessage
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// EmailClassifier calls the external classification model for one batch.
type EmailClassifier interface {
	ClassifyBatch(ctx context.Context, batch []ClassificationRequest) (*ClassificationResponse, error)
}
