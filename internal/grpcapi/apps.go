// Package grpcapi exposes application lookups over gRPC. Messages are
// protobuf well-known types so the service needs no generated code.
package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"hookrelay.io/internal/apierr"
	"hookrelay.io/internal/apps"
	"hookrelay.io/internal/auth"
	"hookrelay.io/internal/grpcauth"
	"hookrelay.io/internal/obs"
)

const (
	AppsServiceName = "hookrelay.v1.Apps"
	GetAppMethod    = "/" + AppsServiceName + "/GetApp"
)

// AppsService is the server side of hookrelay.v1.Apps.
type AppsService interface {
	// GetApp takes an application id or uid and returns the application.
	GetApp(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
}

// AppsServer resolves applications through the same guard as
// GET /api/v1/app/{app_id}.
type AppsServer struct {
	guard auth.Guard
}

var _ AppsService = (*AppsServer)(nil)

func NewAppsServer(a auth.Authenticator, finder auth.AppFinder) *AppsServer {
	return &AppsServer{guard: auth.NewApplicationGuard(a, finder)}
}

func (s *AppsServer) GetApp(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	token, _ := auth.TokenFromContext(ctx)
	authz, err := s.guard.Authorize(ctx, auth.Request{Token: token, AppID: in.GetValue(), HasAppID: true})
	if err != nil {
		obs.ObserveAuthDecision("grpc_application", apierr.From(err).Kind.String())
		return nil, grpcauth.Status(err)
	}
	obs.ObserveAuthDecision("grpc_application", "allowed")
	out, err := appStruct(authz.App)
	if err != nil {
		return nil, grpcauth.Status(apierr.Internal(err))
	}
	return out, nil
}

func appStruct(app *apps.Application) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":        string(app.ID),
		"name":      app.Name,
		"createdAt": app.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt": app.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if app.UID != "" {
		fields["uid"] = string(app.UID)
	}
	return structpb.NewStruct(fields)
}

// RegisterAppsServer attaches srv to s.
func RegisterAppsServer(s grpc.ServiceRegistrar, srv AppsService) {
	s.RegisterService(&appsServiceDesc, srv)
}

func getAppHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AppsService).GetApp(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetAppMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AppsService).GetApp(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var appsServiceDesc = grpc.ServiceDesc{
	ServiceName: AppsServiceName,
	HandlerType: (*AppsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetApp", Handler: getAppHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hookrelay/v1/apps.proto",
}

// AppsClient calls hookrelay.v1.Apps.
type AppsClient struct {
	cc grpc.ClientConnInterface
}

func NewAppsClient(cc grpc.ClientConnInterface) *AppsClient {
	return &AppsClient{cc: cc}
}

func (c *AppsClient) GetApp(ctx context.Context, idOrUID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetAppMethod, wrapperspb.String(idOrUID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
