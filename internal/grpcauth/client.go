package grpcauth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// WithBearer attaches token to outgoing call metadata.
func WithBearer(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

// BearerCredentials sends a fixed token on every call.
type BearerCredentials struct {
	Token string
	// Secure requires a TLS transport.
	Secure bool
}

func (c BearerCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.Token}, nil
}

func (c BearerCredentials) RequireTransportSecurity() bool { return c.Secure }

// Dial creates a client connection carrying token. Without opts the transport is insecure.
func Dial(target, token string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(BearerCredentials{Token: token}))
	}
	return grpc.NewClient(target, opts...)
}
