package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "proctor.v1.ProctorEngine"

// Method names of the ProctorEngine service.
const (
	MethodStartSession = "StartSession"
	MethodIngest       = "Ingest"
	MethodListEvents   = "ListEvents"
	MethodGetSummary   = "GetSummary"
	MethodExportReport = "ExportReport"
	MethodEndSession   = "EndSession"
)

// FullMethod returns the "/service/method" path for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ProctorEngineServer is the server API for the ProctorEngine service. Every
// message is a google.protobuf.Struct so detector payloads of any shape can
// travel unchanged.
type ProctorEngineServer interface {
	StartSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSummary(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedProctorEngineServer can be embedded to satisfy the interface
// while only implementing some methods.
type UnimplementedProctorEngineServer struct{}

func (UnimplementedProctorEngineServer) StartSession(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method StartSession not implemented")
}

func (UnimplementedProctorEngineServer) Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Ingest not implemented")
}

func (UnimplementedProctorEngineServer) ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListEvents not implemented")
}

func (UnimplementedProctorEngineServer) GetSummary(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSummary not implemented")
}

func (UnimplementedProctorEngineServer) ExportReport(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ExportReport not implemented")
}

func (UnimplementedProctorEngineServer) EndSession(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method EndSession not implemented")
}

// RegisterProctorEngineServer registers srv on s.
func RegisterProctorEngineServer(s grpc.ServiceRegistrar, srv ProctorEngineServer) {
	s.RegisterService(&ProctorEngineServiceDesc, srv)
}

type unaryCall func(ProctorEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ProctorEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ProctorEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ProctorEngineServiceDesc describes the ProctorEngine service for grpc.Server.
var ProctorEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProctorEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodStartSession, Handler: unaryHandler(MethodStartSession, ProctorEngineServer.StartSession)},
		{MethodName: MethodIngest, Handler: unaryHandler(MethodIngest, ProctorEngineServer.Ingest)},
		{MethodName: MethodListEvents, Handler: unaryHandler(MethodListEvents, ProctorEngineServer.ListEvents)},
		{MethodName: MethodGetSummary, Handler: unaryHandler(MethodGetSummary, ProctorEngineServer.GetSummary)},
		{MethodName: MethodExportReport, Handler: unaryHandler(MethodExportReport, ProctorEngineServer.ExportReport)},
		{MethodName: MethodEndSession, Handler: unaryHandler(MethodEndSession, ProctorEngineServer.EndSession)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proctor/v1/proctor.proto",
}
