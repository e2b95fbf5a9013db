// Package grpcauth authenticates gRPC calls with the same bearer tokens the
// HTTP API accepts.
package grpcauth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"hookrelay.io/internal/apierr"
	"hookrelay.io/internal/auth"
	"hookrelay.io/internal/obs"
)

// HealthPrefix is the method prefix of the standard health service.
const HealthPrefix = "/grpc.health.v1.Health/"

// Interceptor resolves the "authorization" metadata into auth.Permissions.
// The raw token is kept in the context for handlers that run a guard.
type Interceptor struct {
	auth   auth.Authenticator
	public []string
}

// Option configures Interceptor.
type Option func(*Interceptor)

// WithPublicPrefixes replaces the method prefixes that skip authentication.
func WithPublicPrefixes(prefixes ...string) Option {
	return func(i *Interceptor) {
		i.public = append([]string(nil), prefixes...)
	}
}

// New builds an Interceptor. Health checks are public by default.
func New(a auth.Authenticator, opts ...Option) *Interceptor {
	i := &Interceptor{auth: a, public: []string{HealthPrefix}}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Unary returns the unary server interceptor.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if i.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}
		ctx, err := i.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns the stream server interceptor.
func (i *Interceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if i.isPublic(info.FullMethod) {
			return handler(srv, ss)
		}
		ctx, err := i.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func (i *Interceptor) isPublic(method string) bool {
	for _, p := range i.public {
		if strings.HasPrefix(method, p) {
			return true
		}
	}
	return false
}

func (i *Interceptor) authenticate(ctx context.Context) (context.Context, error) {
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			token, _ = auth.BearerToken(vals[0])
		}
	}
	perms, err := i.auth.Authenticate(token)
	if err != nil {
		e := apierr.From(err)
		obs.ObserveAuthDecision("grpc", e.Kind.String())
		return nil, Status(e)
	}
	obs.ObserveAuthDecision("grpc", "allowed")
	return auth.ContextWithToken(auth.ContextWithPermissions(ctx, perms), token), nil
}

// Status converts an error into a gRPC status using its apierr kind.
func Status(err error) error {
	if err == nil {
		return nil
	}
	e := apierr.From(err)
	body := e.Public()
	return status.Error(Code(e.Kind), body.Detail)
}

// Code maps an error kind onto a gRPC code.
func Code(k apierr.Kind) codes.Code {
	switch k {
	case apierr.KindUnauthorized:
		return codes.Unauthenticated
	case apierr.KindBadRequest:
		return codes.InvalidArgument
	case apierr.KindPermissionDenied:
		return codes.PermissionDenied
	case apierr.KindNotFound:
		return codes.NotFound
	case apierr.KindConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
