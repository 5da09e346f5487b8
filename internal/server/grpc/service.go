package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct messages with the same field names
// as the HTTP JSON bodies.
const ServiceName = "authkeeper.v1.AuthService"

const (
	SignInMethod  = "/" + ServiceName + "/SignIn"
	RefreshMethod = "/" + ServiceName + "/Refresh"
	MeMethod      = "/" + ServiceName + "/Me"
)

// AuthServiceServer is the server side of authkeeper.v1.AuthService.
type AuthServiceServer interface {
	SignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Me(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&authServiceDesc, srv)
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SignIn", Handler: unaryHandler(SignInMethod, AuthServiceServer.SignIn)},
		{MethodName: "Refresh", Handler: unaryHandler(RefreshMethod, AuthServiceServer.Refresh)},
		{MethodName: "Me", Handler: unaryHandler(MeMethod, AuthServiceServer.Me)},
	},
	Streams: []grpc.StreamDesc{},
}

type structMethod func(AuthServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a Struct-in Struct-out method to grpc.MethodDesc,
// running it through the server's interceptor chain.
func unaryHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AuthServiceClient calls authkeeper.v1.AuthService over conn.
type AuthServiceClient struct {
	conn grpc.ClientConnInterface
}

func NewAuthServiceClient(conn grpc.ClientConnInterface) *AuthServiceClient {
	return &AuthServiceClient{conn: conn}
}

func (c *AuthServiceClient) SignIn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SignInMethod, in, opts)
}

func (c *AuthServiceClient) Refresh(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, RefreshMethod, in, opts)
}

func (c *AuthServiceClient) Me(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MeMethod, in, opts)
}

func (c *AuthServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
