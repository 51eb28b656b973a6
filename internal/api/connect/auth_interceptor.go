package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"
)

var errInvalidToken = errors.New("invalid admin token")

// adminAuthInterceptor rejects calls without the admin token, for unary and
// streaming calls alike.
type adminAuthInterceptor struct {
	token string
}

// NewAdminAuthInterceptor creates an interceptor that validates admin tokens
// from request headers.
func NewAdminAuthInterceptor(token string) connect.Interceptor {
	return &adminAuthInterceptor{token: token}
}

func (i *adminAuthInterceptor) check(token string) error {
	if token == "" || i.token == "" {
		return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
	}
	return nil
}

func (i *adminAuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		if err := i.check(req.Header().Get(AdminTokenHeader)); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *adminAuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *adminAuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.RequestHeader().Get(AdminTokenHeader)); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

// tokenInterceptor adds the admin token to outgoing calls.
type tokenInterceptor struct {
	token string
}

// NewTokenInterceptor creates a client interceptor sending token on every call.
func NewTokenInterceptor(token string) connect.Interceptor {
	return &tokenInterceptor{token: token}
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			req.Header().Set(AdminTokenHeader, i.token)
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		conn.RequestHeader().Set(AdminTokenHeader, i.token)
		return conn
	}
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
