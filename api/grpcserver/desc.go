package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "matchd.v1.Matching"

// MatchingServer is the gRPC surface of the engine. Every message is a
// google.protobuf.Struct carrying the JSON form of the request and
// response types.
type MatchingServer interface {
	PlaceLimitOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	PlaceMarketOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	PlaceStopOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CancelOrders(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetOrderBook(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetBalance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv MatchingServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MatchingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(MatchingServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PlaceLimitOrder", MatchingServer.PlaceLimitOrder),
		unary("PlaceMarketOrder", MatchingServer.PlaceMarketOrder),
		unary("PlaceStopOrder", MatchingServer.PlaceStopOrder),
		unary("CancelOrders", MatchingServer.CancelOrders),
		unary("GetOrderBook", MatchingServer.GetOrderBook),
		unary("GetBalance", MatchingServer.GetBalance),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matchd/v1/matching.proto",
}

func RegisterMatchingServer(s grpc.ServiceRegistrar, srv MatchingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls a remote MatchingServer.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
