// Package provider reads mailboxes through provider APIs.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/httputil"
	"github.com/FinanGammell/pare/pkg/logger"
	"github.com/FinanGammell/pare/pkg/resilience"
)

var _ out.MailboxProvider = (*GmailAdapter)(nil)

// maxPageSize is the Gmail API ceiling for messages.list.
const maxPageSize = 500

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Concurrency bounds parallel messages.get calls per fetch.
	Concurrency int
	// QPS limits API calls per user.
	QPS float64
	// MessageTimeout bounds one messages.get call.
	MessageTimeout time.Duration
	// HTTPClient is the base transport. Nil uses a pooled client sized by Concurrency.
	HTTPClient *http.Client
}

// GmailAdapter implements out.MailboxProvider for Gmail. It only reads.
type GmailAdapter struct {
	config   *oauth2.Config
	cb       *gobreaker.CircuitBreaker
	cfg      GmailConfig
	limiters sync.Map // uuid.UUID -> *rate.Limiter

	// newSession is swapped in tests to point at a fake API.
	newSession func(ctx context.Context, cred *domain.Credential) (*gmailSession, error)
}

// gmailSession pairs the typed API client with the authorized HTTP client
// it was built on. Message bodies are read through the HTTP client so the
// resource bytes are kept exactly as served.
type gmailSession struct {
	svc    *gmail.Service
	client *http.Client
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg GmailConfig) *GmailAdapter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 10
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httputil.NewClient(httputil.GmailClientConfig(cfg.Concurrency))
	}

	breaker := resilience.DefaultBreakerConfig("gmail-api")
	// client errors and cancellations must not open the circuit
	breaker.IsSuccessful = func(err error) bool {
		if err == nil || errors.Is(err, context.Canceled) {
			return true
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return true
			}
		}
		return false
	}

	a := &GmailAdapter{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		cb:  resilience.NewBreaker(breaker),
		cfg: cfg,
	}
	a.newSession = a.defaultSession
	return a
}

func (a *GmailAdapter) defaultSession(ctx context.Context, cred *domain.Credential) (*gmailSession, error) {
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
	}
	// token refreshes and API calls share the pooled transport
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
	client := oauth2.NewClient(ctx, a.config.TokenSource(ctx, token))
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}
	return &gmailSession{svc: svc, client: client}, nil
}

// =============================================================================
// Listing
// =============================================================================

// ListMessageIDs pages through messages.list until MaxResults ids are collected.
func (a *GmailAdapter) ListMessageIDs(ctx context.Context, cred *domain.Credential, q domain.FetchQuery) ([]string, error) {
	sess, err := a.newSession(ctx, cred)
	if err != nil {
		return nil, apperr.TransportError("gmail", fmt.Errorf("failed to create gmail service: %w", err))
	}

	limit := q.MaxResults
	if limit <= 0 {
		limit = maxPageSize
	}
	query := BuildQuery(q)
	limiter := a.limiter(cred.UserID)

	var ids []string
	pageToken := ""
	for len(ids) < limit {
		if err := limiter.Wait(ctx); err != nil {
			return nil, wrapError(err)
		}

		req := sess.svc.Users.Messages.List("me").MaxResults(int64(min(limit-len(ids), maxPageSize)))
		if query != "" {
			req = req.Q(query)
		}
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		resp, err := resilience.Execute(a.cb, func() (*gmail.ListMessagesResponse, error) {
			return req.Context(ctx).Do()
		})
		if err != nil {
			return nil, wrapError(err)
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}
	logger.Debug("[GmailAdapter.ListMessageIDs] user=%s query=%q ids=%d", cred.UserID, query, len(ids))
	return ids, nil
}

// BuildQuery renders a FetchQuery as a Gmail search string.
func BuildQuery(q domain.FetchQuery) string {
	var parts []string
	if !q.After.IsZero() {
		parts = append(parts, "after:"+q.After.Format("2006/01/02"))
	}
	if from := strings.TrimSpace(q.ExcludeFrom); from != "" {
		parts = append(parts, `-from:"`+from+`"`)
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// Fetching
// =============================================================================

// FetchMessages loads every id in full format. Any single failure fails the
// whole call so the caller never stores a partial set.
func (a *GmailAdapter) FetchMessages(ctx context.Context, cred *domain.Credential, ids []string) ([]*domain.FetchedMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sess, err := a.newSession(ctx, cred)
	if err != nil {
		return nil, apperr.TransportError("gmail", fmt.Errorf("failed to create gmail service: %w", err))
	}

	limiter := a.limiter(cred.UserID)
	results := make([]*domain.FetchedMessage, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)

	for i, id := range ids {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			msgCtx, cancel := context.WithTimeout(gctx, a.cfg.MessageTimeout)
			defer cancel()

			raw, err := resilience.Execute(a.cb, func() ([]byte, error) {
				return sess.getMessage(msgCtx, id)
			})
			if err != nil {
				return fmt.Errorf("message %s: %w", id, err)
			}

			fm, err := ConvertMessage(raw)
			if err != nil {
				return fmt.Errorf("message %s: %w", id, err)
			}
			results[i] = fm
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, wrapError(err)
	}
	return results, nil
}

// getMessage fetches one full-format message resource and returns the
// response body untouched.
func (s *gmailSession) getMessage(ctx context.Context, id string) ([]byte, error) {
	endpoint := s.svc.BasePath + "gmail/v1/users/me/messages/" + url.PathEscape(id) + "?format=full&alt=json&prettyPrint=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (a *GmailAdapter) limiter(userID uuid.UUID) *rate.Limiter {
	if l, ok := a.limiters.Load(userID); ok {
		return l.(*rate.Limiter)
	}
	burst := max(int(a.cfg.QPS), 1)
	l, _ := a.limiters.LoadOrStore(userID, rate.NewLimiter(rate.Limit(a.cfg.QPS), burst))
	return l.(*rate.Limiter)
}

// CircuitState returns the breaker state for health reporting.
func (a *GmailAdapter) CircuitState() string {
	return a.cb.State().String()
}

// =============================================================================
// Errors
// =============================================================================

func wrapError(err error) error {
	if apperr.IsAppError(err) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return apperr.CredentialError("gmail rejected the credential", err)
		case apiErr.Code == http.StatusForbidden && !isRateLimited(apiErr):
			return apperr.CredentialError("gmail access forbidden", err)
		}
		return apperr.TransportError("gmail", err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return apperr.CredentialError("failed to refresh gmail token", err)
	}

	if resilience.IsOpen(err) {
		return apperr.TransportError("gmail", fmt.Errorf("circuit open: %w", err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.TransportError("gmail", fmt.Errorf("request timed out: %w", err))
	}
	return apperr.TransportError("gmail", err)
}

func isRateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if strings.Contains(item.Reason, "rateLimitExceeded") || strings.Contains(item.Reason, "userRateLimitExceeded") {
			return true
		}
	}
	return false
}
