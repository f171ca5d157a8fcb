package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/session"
)

// Remote auth endpoints. Their schemas are owned by the auth service; we
// only need enough to know whether the caller is authenticated afterwards.
const (
	PathSession = "/api/v1/auth/session"
	PathRefresh = "/api/v1/auth/refresh"
)

type sessionResponse struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// AuthClient performs the two session black-box operations against the raw
// transport, deliberately below the pipeline so neither can recurse into
// the other.
type AuthClient struct {
	tr     Transport
	cache  *session.Cache
	logger *zap.Logger
}

func NewAuthClient(tr Transport, cache *session.Cache, logger *zap.Logger) *AuthClient {
	return &AuthClient{tr: tr, cache: cache, logger: logger}
}

// Bootstrap performs the read-only "who am I" call and caches the identity.
// Idempotent and side-effect-free on the server.
func (a *AuthClient) Bootstrap(ctx context.Context) error {
	call := &Call{Method: http.MethodGet, Auth: session.Options{AllowAnonymous: true}}
	if tok := a.cache.Token(); tok != "" {
		call.Headers = map[string]string{"Authorization": "Bearer " + tok}
	}

	reply, err := a.tr.RoundTrip(ctx, PathSession, call)
	if err != nil {
		return err
	}
	if reply.Status == http.StatusUnauthorized {
		return domain.NewAPIError(reply.Status, domain.CodeNotAuthenticated, "no server session")
	}
	if reply.Status < 200 || reply.Status >= 300 {
		return domain.NewAPIError(reply.Status, domain.CodeServerError, "session bootstrap failed")
	}

	var sr sessionResponse
	if err := json.Unmarshal(reply.Body, &sr); err != nil {
		return domain.NewAPIError(reply.Status, domain.CodeServerError, "malformed session response")
	}
	a.cache.SetIdentity(sr.User.ID)
	a.logger.Debug("session bootstrapped", zap.String("user_id", sr.User.ID))
	return nil
}

// Refresh performs the token refresh network call and caches the new access
// token. Safe to call at most once per coordinator cycle; the coordinator
// enforces that.
func (a *AuthClient) Refresh(ctx context.Context) (bool, error) {
	reply, err := a.tr.RoundTrip(ctx, PathRefresh, &Call{
		Method: http.MethodPost,
		Auth:   session.Options{AllowAnonymous: true},
	})
	if err != nil {
		return false, err
	}
	if reply.Status < 200 || reply.Status >= 300 {
		a.cache.Clear()
		return false, nil
	}

	var rr refreshResponse
	if err := json.Unmarshal(reply.Body, &rr); err != nil || rr.AccessToken == "" {
		a.cache.Clear()
		return false, nil
	}
	a.cache.SetToken(rr.AccessToken)
	return true, nil
}
