package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/pkg/apperr"
)

type memCredRepo struct {
	creds   map[uuid.UUID]*domain.Credential
	saved   int
	getErr  error
	saveErr error
}

func (r *memCredRepo) Get(_ context.Context, userID uuid.UUID) (*domain.Credential, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	c, ok := r.creds[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memCredRepo) Save(_ context.Context, cred *domain.Credential) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved++
	cp := *cred
	r.creds[cred.UserID] = &cp
	return nil
}

func (r *memCredRepo) ListUserIDs(context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(r.creds))
	for id := range r.creds {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeRefresher struct {
	tok   *oauth2.Token
	err   error
	calls int
	got   string
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	f.got = refreshToken
	return f.tok, f.err
}

func newTestService(repo *memCredRepo, ref *fakeRefresher, now time.Time) *CredentialService {
	s := NewCredentialService(repo, ref)
	s.now = func() time.Time { return now }
	return s
}

func TestUsableCredential_ValidTokenNotRefreshed(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	uid := uuid.New()
	repo := &memCredRepo{creds: map[uuid.UUID]*domain.Credential{
		uid: {UserID: uid, AccessToken: "a1", RefreshToken: "r1", Expiry: now.Add(time.Hour)},
	}}
	ref := &fakeRefresher{}

	cred, err := newTestService(repo, ref, now).UsableCredential(context.Background(), uid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.AccessToken != "a1" {
		t.Errorf("expected a1, got %s", cred.AccessToken)
	}
	if ref.calls != 0 {
		t.Errorf("expected no refresh, got %d calls", ref.calls)
	}
}

func TestUsableCredential_RefreshesWithinLeeway(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	uid := uuid.New()
	repo := &memCredRepo{creds: map[uuid.UUID]*domain.Credential{
		uid: {UserID: uid, AccessToken: "a1", RefreshToken: "r1", Expiry: now.Add(2 * time.Minute)},
	}}
	ref := &fakeRefresher{tok: &oauth2.Token{AccessToken: "a2", Expiry: now.Add(time.Hour)}}

	cred, err := newTestService(repo, ref, now).UsableCredential(context.Background(), uid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.got != "r1" {
		t.Errorf("expected refresh with r1, got %q", ref.got)
	}
	if cred.AccessToken != "a2" {
		t.Errorf("expected a2, got %s", cred.AccessToken)
	}
	if cred.RefreshToken != "r1" {
		t.Errorf("expected refresh token kept, got %q", cred.RefreshToken)
	}
	if repo.saved != 1 || repo.creds[uid].AccessToken != "a2" {
		t.Errorf("expected refreshed credential persisted")
	}
}

func TestUsableCredential_Failures(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	uid := uuid.New()
	expired := &domain.Credential{UserID: uid, AccessToken: "a1", RefreshToken: "r1", Expiry: now.Add(-time.Minute)}

	tests := []struct {
		name string
		repo *memCredRepo
		ref  *fakeRefresher
	}{
		{"missing credential", &memCredRepo{creds: map[uuid.UUID]*domain.Credential{}}, &fakeRefresher{}},
		{"load error", &memCredRepo{creds: map[uuid.UUID]*domain.Credential{}, getErr: errors.New("db down")}, &fakeRefresher{}},
		{"revoked", &memCredRepo{creds: map[uuid.UUID]*domain.Credential{uid: expired}},
			&fakeRefresher{err: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}}},
		{"refresh transport error", &memCredRepo{creds: map[uuid.UUID]*domain.Credential{uid: expired}},
			&fakeRefresher{err: errors.New("connection reset")}},
		{"no refresh token", &memCredRepo{creds: map[uuid.UUID]*domain.Credential{
			uid: {UserID: uid, AccessToken: "a1", Expiry: now.Add(-time.Minute)},
		}}, &fakeRefresher{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestService(tt.repo, tt.ref, now).UsableCredential(context.Background(), uid)
			if !apperr.IsCode(err, apperr.CodeCredentialError) {
				t.Errorf("expected CREDENTIAL_ERROR, got %v", err)
			}
		})
	}
}

func TestIsTokenRevokedError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New(`oauth2: "invalid_grant" "Token has been expired or revoked."`), true},
		{errors.New("Token has been revoked"), true},
		{&oauth2.RetrieveError{ErrorCode: "invalid_client"}, true},
		{errors.New("i/o timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := isTokenRevokedError(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSaveCredential(t *testing.T) {
	uid := uuid.New()
	repo := &memCredRepo{creds: map[uuid.UUID]*domain.Credential{}}
	s := newTestService(repo, &fakeRefresher{}, time.Now())

	if err := s.SaveCredential(context.Background(), &domain.Credential{UserID: uid}); !apperr.IsCode(err, apperr.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
	if err := s.SaveCredential(context.Background(), &domain.Credential{UserID: uid, RefreshToken: "r"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.creds[uid].Provider != domain.MailProviderGmail {
		t.Errorf("expected provider defaulted, got %q", repo.creds[uid].Provider)
	}
}
