package transport

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/domain"
	"github.com/learnhub/offline-sync/internal/session"
)

// Doer is the pipeline surface producers depend on. Tests substitute a
// scripted fake.
type Doer interface {
	Do(ctx context.Context, path string, call *Call) (*Reply, error)
}

// Pipeline composes the session gate and the refresh coordinator around the
// transport. Every outgoing call goes through Do; producers never touch the
// transport directly.
type Pipeline struct {
	tr     Transport
	gate   *session.Gate
	cache  *session.Cache
	coord  *session.Coordinator
	auth   *AuthClient
	logger *zap.Logger

	// onAuthRetry counts transparent 401 replays, injected by main.
	onAuthRetry func()
}

func NewPipeline(
	tr Transport,
	gate *session.Gate,
	cache *session.Cache,
	coord *session.Coordinator,
	auth *AuthClient,
	logger *zap.Logger,
	onAuthRetry func(),
) *Pipeline {
	if onAuthRetry == nil {
		onAuthRetry = func() {}
	}
	return &Pipeline{
		tr:          tr,
		gate:        gate,
		cache:       cache,
		coord:       coord,
		auth:        auth,
		logger:      logger,
		onAuthRetry: onAuthRetry,
	}
}

// Do executes one call. Failure modes, in order:
//
//   - session required, none establishable → not_authenticated, the call is
//     never attempted
//   - transport failure → timeout / network_unreachable (retriable)
//   - 401 → at most one transparent replay after a successful refresh
//   - other 4xx → client_error (final), 5xx → server_error (retriable)
func (p *Pipeline) Do(ctx context.Context, path string, call *Call) (*Reply, error) {
	explicitBearer := call.Headers != nil && call.Headers["Authorization"] != ""

	if p.gate.RequiresSession(path, call.Auth) && !p.cache.HasActiveSession() && !explicitBearer {
		if err := p.establishSession(ctx); err != nil {
			return nil, err
		}
	}

	reply, err := p.execute(ctx, path, call, explicitBearer)
	if err != nil {
		return nil, err
	}

	if reply.Status == http.StatusUnauthorized && !call.retried {
		ok, err := p.awaitRefresh(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.NewAPIError(http.StatusUnauthorized, domain.CodeNotAuthenticated, "refresh failed")
		}
		p.onAuthRetry()
		p.logger.Debug("replaying request after refresh", zap.String("path", path))
		call.retried = true
		reply, err = p.execute(ctx, path, call, explicitBearer)
		if err != nil {
			return nil, err
		}
	}

	return classifyReply(reply)
}

// execute resolves auth headers and performs the raw call. The bearer header
// is re-resolved on each attempt so a replay picks up a refreshed token.
func (p *Pipeline) execute(ctx context.Context, path string, call *Call, explicitBearer bool) (*Reply, error) {
	if !explicitBearer {
		if tok := p.cache.Token(); tok != "" {
			if call.Headers == nil {
				call.Headers = make(map[string]string)
			}
			call.Headers["Authorization"] = "Bearer " + tok
		}
	}
	return p.tr.RoundTrip(ctx, path, call)
}

// establishSession attempts bootstrap, falling back to a coordinated
// refresh plus exactly one bootstrap retry. Failing that, the request is
// rejected before it is ever attempted; queueing an action that cannot
// succeed without a session would only mislead the user.
func (p *Pipeline) establishSession(ctx context.Context) error {
	err := p.auth.Bootstrap(ctx)
	if err == nil {
		return nil
	}
	if !domain.IsAuthError(err) {
		return err
	}

	ok, refreshErr := p.coord.Refresh(ctx)
	if refreshErr != nil {
		return refreshErr
	}
	if ok {
		if err := p.auth.Bootstrap(ctx); err == nil {
			return nil
		}
	}
	return domain.NewAPIError(http.StatusUnauthorized, domain.CodeNotAuthenticated, "no session could be established")
}

// awaitRefresh joins the in-flight refresh if one exists, otherwise starts
// one. Either way the wait is bounded by the coordinator's watchdog.
func (p *Pipeline) awaitRefresh(ctx context.Context) (bool, error) {
	ok, waited, err := p.coord.Wait(ctx)
	if err != nil {
		return false, err
	}
	if waited {
		return ok, nil
	}
	return p.coord.Refresh(ctx)
}

var _ Doer = (*Pipeline)(nil)

func classifyReply(reply *Reply) (*Reply, error) {
	switch {
	case reply.Status >= 200 && reply.Status < 400:
		return reply, nil
	case reply.Status == http.StatusUnauthorized:
		return nil, domain.NewAPIError(reply.Status, domain.CodeNotAuthenticated, "")
	case reply.Status == http.StatusTooManyRequests:
		return nil, domain.NewAPIError(reply.Status, domain.CodeRateLimited, "")
	case reply.Status >= 400 && reply.Status < 500:
		return nil, domain.NewAPIError(reply.Status, domain.CodeClientError, "")
	default:
		return nil, domain.NewAPIError(reply.Status, domain.CodeServerError, "")
	}
}
