// Package proto describes the Cloudd gRPC service spoken between cloudd and
// cloudctl. Messages are the api documents, encoded by the json codec.
package proto

import (
	"context"

	"github.com/platformlayer/openstack-jenkins/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "cloudd.Cloudd"

const (
	Cloudd_Ping_FullMethodName              = "/cloudd.Cloudd/Ping"
	Cloudd_ListClouds_FullMethodName        = "/cloudd.Cloudd/ListClouds"
	Cloudd_Provision_FullMethodName         = "/cloudd.Cloudd/Provision"
	Cloudd_ProvisionTemplate_FullMethodName = "/cloudd.Cloudd/ProvisionTemplate"
	Cloudd_Attach_FullMethodName            = "/cloudd.Cloudd/Attach"
	Cloudd_TestConnection_FullMethodName    = "/cloudd.Cloudd/TestConnection"
	Cloudd_ListZones_FullMethodName         = "/cloudd.Cloudd/ListZones"
	Cloudd_ValidateImage_FullMethodName     = "/cloudd.Cloudd/ValidateImage"
	Cloudd_Keygen_FullMethodName            = "/cloudd.Cloudd/Keygen"
	Cloudd_ListNodes_FullMethodName         = "/cloudd.Cloudd/ListNodes"
	Cloudd_TerminateNode_FullMethodName     = "/cloudd.Cloudd/TerminateNode"
	Cloudd_AcquireNode_FullMethodName       = "/cloudd.Cloudd/AcquireNode"
	Cloudd_ReleaseNode_FullMethodName       = "/cloudd.Cloudd/ReleaseNode"
	Cloudd_Console_FullMethodName           = "/cloudd.Cloudd/Console"
	Cloudd_StreamNodeLog_FullMethodName     = "/cloudd.Cloudd/StreamNodeLog"
)

// CloudClient is the client API for the Cloudd service.
type CloudClient interface {
	Ping(ctx context.Context, in *api.PingRequest, opts ...grpc.CallOption) (*api.Ping, error)
	ListClouds(ctx context.Context, in *api.ListCloudsRequest, opts ...grpc.CallOption) (*api.CloudList, error)
	Provision(ctx context.Context, in *api.ProvisionRequest, opts ...grpc.CallOption) (*api.ProvisionResponse, error)
	ProvisionTemplate(ctx context.Context, in *api.ProvisionTemplateRequest, opts ...grpc.CallOption) (*api.ProvisionResponse, error)
	Attach(ctx context.Context, in *api.AttachRequest, opts ...grpc.CallOption) (*api.ProvisionResponse, error)
	TestConnection(ctx context.Context, in *api.CloudRequest, opts ...grpc.CallOption) (*api.TestResult, error)
	ListZones(ctx context.Context, in *api.CloudRequest, opts ...grpc.CallOption) (*api.ZoneList, error)
	ValidateImage(ctx context.Context, in *api.ImageRequest, opts ...grpc.CallOption) (*api.Image, error)
	Keygen(ctx context.Context, in *api.KeygenRequest, opts ...grpc.CallOption) (*api.KeyPair, error)
	ListNodes(ctx context.Context, in *api.ListNodesRequest, opts ...grpc.CallOption) (*api.NodeList, error)
	TerminateNode(ctx context.Context, in *api.NodeRequest, opts ...grpc.CallOption) (*api.Empty, error)
	AcquireNode(ctx context.Context, in *api.NodeRequest, opts ...grpc.CallOption) (*api.Node, error)
	ReleaseNode(ctx context.Context, in *api.NodeRequest, opts ...grpc.CallOption) (*api.Node, error)
	Console(ctx context.Context, in *api.ConsoleRequest, opts ...grpc.CallOption) (*api.Console, error)
	StreamNodeLog(ctx context.Context, in *api.LogRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.LogChunk], error)
}

type cloudClient struct {
	cc grpc.ClientConnInterface
}

func NewCloudClient(cc grpc.ClientConnInterface) CloudClient {
	return &cloudClient{cc}
}

// invoke performs a unary call with the json codec selected.
func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *cloudClient) Ping(ctx context.Context, in *api.PingRequest, opts ...grpc.CallOption) (*api.Ping, error) {
	return invoke[api.Ping](ctx, c.cc, Cloudd_Ping_FullMethodName, in, opts)
}

func (c *cloudClient) ListClouds(ctx context.Context, in *api.ListCloudsRequest, opts ...grpc.CallOption) (*api.CloudList, error) {
	return invoke[api.CloudList](ctx, c.cc, Cloudd_ListClouds_FullMethodName, in, opts)
}

func (c *cloudClient) Provision(ctx context.Context, in *api.ProvisionRequest, opts ...grpc.CallOption) (*api.ProvisionResponse, error) {
	return invoke[api.ProvisionResponse](ctx, c.cc, Cloudd_Provision_FullMethodName, in, opts)
}

func (c *cloudClient) ProvisionTemplate(ctx context.Context, in *api.ProvisionTemplateRequest, opts ...grpc.CallOption) (*api.ProvisionResponse, error) {
	return invoke[api.ProvisionResponse](ctx, c.cc, Cloudd_ProvisionTemplate_FullMethodName, in, opts)
}

func (c *cloudClient) Attach(ctx context.Context, in *api.AttachRequest, opts ...grpc.CallOption) (*api.ProvisionResponse, error) {
	return invoke[api.ProvisionResponse](ctx, c.cc, Cloudd_Attach_FullMethodName, in, opts)
}

func (c *cloudClient) TestConnection(ctx context.Context, in *api.CloudRequest, opts ...grpc.CallOption) (*api.TestResult, error) {
	return invoke[api.TestResult](ctx, c.cc, Cloudd_TestConnection_FullMethodName, in, opts)
}

func (c *cloudClient) ListZones(ctx context.Context, in *api.CloudRequest, opts ...grpc.CallOption) (*api.ZoneList, error) {
	return invoke[api.ZoneList](ctx, c.cc, Cloudd_ListZones_FullMethodName, in, opts)
}

func (c *cloudClient) ValidateImage(ctx context.Context, in *api.ImageRequest, opts ...grpc.CallOption) (*api.Image, error) {
	return invoke[api.Image](ctx, c.cc, Cloudd_ValidateImage_FullMethodName, in, opts)
}

func (c *cloudClient) Keygen(ctx context.Context, in *api.KeygenRequest, opts ...grpc.CallOption) (*api.KeyPair, error) {
	return invoke[api.KeyPair](ctx, c.cc, Cloudd_Keygen_FullMethodName, in, opts)
}

func (c *cloudClient) ListNodes(ctx context.Context, in *api.ListNodesRequest, opts ...grpc.CallOption) (*api.NodeList, error) {
	return invoke[api.NodeList](ctx, c.cc, Cloudd_ListNodes_FullMethodName, in, opts)
}

func (c *cloudClient) TerminateNode(ctx context.Context, in *api.NodeRequest, opts ...grpc.CallOption) (*api.Empty, error) {
	return invoke[api.Empty](ctx, c.cc, Cloudd_TerminateNode_FullMethodName, in, opts)
}

func (c *cloudClient) AcquireNode(ctx context.Context, in *api.NodeRequest, opts ...grpc.CallOption) (*api.Node, error) {
	return invoke[api.Node](ctx, c.cc, Cloudd_AcquireNode_FullMethodName, in, opts)
}

func (c *cloudClient) ReleaseNode(ctx context.Context, in *api.NodeRequest, opts ...grpc.CallOption) (*api.Node, error) {
	return invoke[api.Node](ctx, c.cc, Cloudd_ReleaseNode_FullMethodName, in, opts)
}

func (c *cloudClient) Console(ctx context.Context, in *api.ConsoleRequest, opts ...grpc.CallOption) (*api.Console, error) {
	return invoke[api.Console](ctx, c.cc, Cloudd_Console_FullMethodName, in, opts)
}

func (c *cloudClient) StreamNodeLog(ctx context.Context, in *api.LogRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[api.LogChunk], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &Cloudd_ServiceDesc.Streams[0], Cloudd_StreamNodeLog_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[api.LogRequest, api.LogChunk]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// CloudServer is the server API for the Cloudd service. Implementations must
// embed UnimplementedCloudServer.
type CloudServer interface {
	Ping(context.Context, *api.PingRequest) (*api.Ping, error)
	ListClouds(context.Context, *api.ListCloudsRequest) (*api.CloudList, error)
	Provision(context.Context, *api.ProvisionRequest) (*api.ProvisionResponse, error)
	ProvisionTemplate(context.Context, *api.ProvisionTemplateRequest) (*api.ProvisionResponse, error)
	Attach(context.Context, *api.AttachRequest) (*api.ProvisionResponse, error)
	TestConnection(context.Context, *api.CloudRequest) (*api.TestResult, error)
	ListZones(context.Context, *api.CloudRequest) (*api.ZoneList, error)
	ValidateImage(context.Context, *api.ImageRequest) (*api.Image, error)
	Keygen(context.Context, *api.KeygenRequest) (*api.KeyPair, error)
	ListNodes(context.Context, *api.ListNodesRequest) (*api.NodeList, error)
	TerminateNode(context.Context, *api.NodeRequest) (*api.Empty, error)
	AcquireNode(context.Context, *api.NodeRequest) (*api.Node, error)
	ReleaseNode(context.Context, *api.NodeRequest) (*api.Node, error)
	Console(context.Context, *api.ConsoleRequest) (*api.Console, error)
	StreamNodeLog(*api.LogRequest, grpc.ServerStreamingServer[api.LogChunk]) error
	mustEmbedUnimplementedCloudServer()
}

// UnimplementedCloudServer answers Unimplemented to every call.
type UnimplementedCloudServer struct{}

func (UnimplementedCloudServer) Ping(context.Context, *api.PingRequest) (*api.Ping, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Ping not implemented")
}
func (UnimplementedCloudServer) ListClouds(context.Context, *api.ListCloudsRequest) (*api.CloudList, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListClouds not implemented")
}
func (UnimplementedCloudServer) Provision(context.Context, *api.ProvisionRequest) (*api.ProvisionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Provision not implemented")
}
func (UnimplementedCloudServer) ProvisionTemplate(context.Context, *api.ProvisionTemplateRequest) (*api.ProvisionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ProvisionTemplate not implemented")
}
func (UnimplementedCloudServer) Attach(context.Context, *api.AttachRequest) (*api.ProvisionResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Attach not implemented")
}
func (UnimplementedCloudServer) TestConnection(context.Context, *api.CloudRequest) (*api.TestResult, error) {
	return nil, status.Errorf(codes.Unimplemented, "method TestConnection not implemented")
}
func (UnimplementedCloudServer) ListZones(context.Context, *api.CloudRequest) (*api.ZoneList, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListZones not implemented")
}
func (UnimplementedCloudServer) ValidateImage(context.Context, *api.ImageRequest) (*api.Image, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ValidateImage not implemented")
}
func (UnimplementedCloudServer) Keygen(context.Context, *api.KeygenRequest) (*api.KeyPair, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Keygen not implemented")
}
func (UnimplementedCloudServer) ListNodes(context.Context, *api.ListNodesRequest) (*api.NodeList, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListNodes not implemented")
}
func (UnimplementedCloudServer) TerminateNode(context.Context, *api.NodeRequest) (*api.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method TerminateNode not implemented")
}
func (UnimplementedCloudServer) AcquireNode(context.Context, *api.NodeRequest) (*api.Node, error) {
	return nil, status.Errorf(codes.Unimplemented, "method AcquireNode not implemented")
}
func (UnimplementedCloudServer) ReleaseNode(context.Context, *api.NodeRequest) (*api.Node, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ReleaseNode not implemented")
}
func (UnimplementedCloudServer) Console(context.Context, *api.ConsoleRequest) (*api.Console, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Console not implemented")
}
func (UnimplementedCloudServer) StreamNodeLog(*api.LogRequest, grpc.ServerStreamingServer[api.LogChunk]) error {
	return status.Errorf(codes.Unimplemented, "method StreamNodeLog not implemented")
}
func (UnimplementedCloudServer) mustEmbedUnimplementedCloudServer() {}

func RegisterCloudServer(s grpc.ServiceRegistrar, srv CloudServer) {
	s.RegisterService(&Cloudd_ServiceDesc, srv)
}

// unary builds the descriptor of a unary method dispatching to call.
func unary[Req, Res any](name, fullMethod string, call func(CloudServer, context.Context, *Req) (*Res, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CloudServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CloudServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func _Cloudd_StreamNodeLog_Handler(srv any, stream grpc.ServerStream) error {
	m := new(api.LogRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(CloudServer).StreamNodeLog(m, &grpc.GenericServerStream[api.LogRequest, api.LogChunk]{ServerStream: stream})
}

var Cloudd_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CloudServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", Cloudd_Ping_FullMethodName, CloudServer.Ping),
		unary("ListClouds", Cloudd_ListClouds_FullMethodName, CloudServer.ListClouds),
		unary("Provision", Cloudd_Provision_FullMethodName, CloudServer.Provision),
		unary("ProvisionTemplate", Cloudd_ProvisionTemplate_FullMethodName, CloudServer.ProvisionTemplate),
		unary("Attach", Cloudd_Attach_FullMethodName, CloudServer.Attach),
		unary("TestConnection", Cloudd_TestConnection_FullMethodName, CloudServer.TestConnection),
		unary("ListZones", Cloudd_ListZones_FullMethodName, CloudServer.ListZones),
		unary("ValidateImage", Cloudd_ValidateImage_FullMethodName, CloudServer.ValidateImage),
		unary("Keygen", Cloudd_Keygen_FullMethodName, CloudServer.Keygen),
		unary("ListNodes", Cloudd_ListNodes_FullMethodName, CloudServer.ListNodes),
		unary("TerminateNode", Cloudd_TerminateNode_FullMethodName, CloudServer.TerminateNode),
		unary("AcquireNode", Cloudd_AcquireNode_FullMethodName, CloudServer.AcquireNode),
		unary("ReleaseNode", Cloudd_ReleaseNode_FullMethodName, CloudServer.ReleaseNode),
		unary("Console", Cloudd_Console_FullMethodName, CloudServer.Console),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamNodeLog",
			Handler:       _Cloudd_StreamNodeLog_Handler,
			ServerStreams: true,
		},
	},
}
