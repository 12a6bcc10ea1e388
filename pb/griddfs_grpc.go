package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	NameNodeService_RegisterDataNode_FullMethodName = "/griddfs.NameNodeService/RegisterDataNode"
	NameNodeService_Heartbeat_FullMethodName        = "/griddfs.NameNodeService/Heartbeat"

	DataNodeService_WriteBlock_FullMethodName  = "/griddfs.DataNodeService/WriteBlock"
	DataNodeService_ReadBlock_FullMethodName   = "/griddfs.DataNodeService/ReadBlock"
	DataNodeService_DeleteBlock_FullMethodName = "/griddfs.DataNodeService/DeleteBlock"
)

// ============================================================
// NameNodeService
// ============================================================

type NameNodeServiceClient interface {
	RegisterDataNode(ctx context.Context, in *RegisterDataNodeRequest, opts ...grpc.CallOption) (*RegisterDataNodeResponse, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
}

type nameNodeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewNameNodeServiceClient(cc grpc.ClientConnInterface) NameNodeServiceClient {
	return &nameNodeServiceClient{cc}
}

func (c *nameNodeServiceClient) RegisterDataNode(ctx context.Context, in *RegisterDataNodeRequest, opts ...grpc.CallOption) (*RegisterDataNodeResponse, error) {
	out := new(RegisterDataNodeResponse)
	err := c.cc.Invoke(ctx, NameNodeService_RegisterDataNode_FullMethodName, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nameNodeServiceClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	err := c.cc.Invoke(ctx, NameNodeService_Heartbeat_FullMethodName, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type NameNodeServiceServer interface {
	RegisterDataNode(context.Context, *RegisterDataNodeRequest) (*RegisterDataNodeResponse, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	mustEmbedUnimplementedNameNodeServiceServer()
}

type UnimplementedNameNodeServiceServer struct{}

func (UnimplementedNameNodeServiceServer) RegisterDataNode(context.Context, *RegisterDataNodeRequest) (*RegisterDataNodeResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RegisterDataNode not implemented")
}

func (UnimplementedNameNodeServiceServer) Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Heartbeat not implemented")
}

func (UnimplementedNameNodeServiceServer) mustEmbedUnimplementedNameNodeServiceServer() {}

func RegisterNameNodeServiceServer(s grpc.ServiceRegistrar, srv NameNodeServiceServer) {
	s.RegisterService(&NameNodeService_ServiceDesc, srv)
}

func _NameNodeService_RegisterDataNode_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RegisterDataNodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NameNodeServiceServer).RegisterDataNode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: NameNodeService_RegisterDataNode_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NameNodeServiceServer).RegisterDataNode(ctx, req.(*RegisterDataNodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _NameNodeService_Heartbeat_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NameNodeServiceServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: NameNodeService_Heartbeat_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NameNodeServiceServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var NameNodeService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "griddfs.NameNodeService",
	HandlerType: (*NameNodeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RegisterDataNode",
			Handler:    _NameNodeService_RegisterDataNode_Handler,
		},
		{
			MethodName: "Heartbeat",
			Handler:    _NameNodeService_Heartbeat_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "griddfs.proto",
}

// ============================================================
// DataNodeService
// ============================================================

type DataNodeServiceClient interface {
	WriteBlock(ctx context.Context, opts ...grpc.CallOption) (DataNodeService_WriteBlockClient, error)
	ReadBlock(ctx context.Context, in *ReadBlockRequest, opts ...grpc.CallOption) (DataNodeService_ReadBlockClient, error)
	DeleteBlock(ctx context.Context, in *DeleteBlockRequest, opts ...grpc.CallOption) (*DeleteBlockResponse, error)
}

type dataNodeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDataNodeServiceClient(cc grpc.ClientConnInterface) DataNodeServiceClient {
	return &dataNodeServiceClient{cc}
}

func (c *dataNodeServiceClient) WriteBlock(ctx context.Context, opts ...grpc.CallOption) (DataNodeService_WriteBlockClient, error) {
	stream, err := c.cc.NewStream(ctx, &DataNodeService_ServiceDesc.Streams[0], DataNodeService_WriteBlock_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &dataNodeServiceWriteBlockClient{stream}, nil
}

type DataNodeService_WriteBlockClient interface {
	Send(*WriteBlockRequest) error
	CloseAndRecv() (*WriteBlockResponse, error)
	grpc.ClientStream
}

type dataNodeServiceWriteBlockClient struct {
	grpc.ClientStream
}

func (x *dataNodeServiceWriteBlockClient) Send(m *WriteBlockRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *dataNodeServiceWriteBlockClient) CloseAndRecv() (*WriteBlockResponse, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(WriteBlockResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *dataNodeServiceClient) ReadBlock(ctx context.Context, in *ReadBlockRequest, opts ...grpc.CallOption) (DataNodeService_ReadBlockClient, error) {
	stream, err := c.cc.NewStream(ctx, &DataNodeService_ServiceDesc.Streams[1], DataNodeService_ReadBlock_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &dataNodeServiceReadBlockClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type DataNodeService_ReadBlockClient interface {
	Recv() (*ReadBlockResponse, error)
	grpc.ClientStream
}

type dataNodeServiceReadBlockClient struct {
	grpc.ClientStream
}

func (x *dataNodeServiceReadBlockClient) Recv() (*ReadBlockResponse, error) {
	m := new(ReadBlockResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *dataNodeServiceClient) DeleteBlock(ctx context.Context, in *DeleteBlockRequest, opts ...grpc.CallOption) (*DeleteBlockResponse, error) {
	out := new(DeleteBlockResponse)
	err := c.cc.Invoke(ctx, DataNodeService_DeleteBlock_FullMethodName, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type DataNodeServiceServer interface {
	WriteBlock(DataNodeService_WriteBlockServer) error
	ReadBlock(*ReadBlockRequest, DataNodeService_ReadBlockServer) error
	DeleteBlock(context.Context, *DeleteBlockRequest) (*DeleteBlockResponse, error)
	mustEmbedUnimplementedDataNodeServiceServer()
}

type UnimplementedDataNodeServiceServer struct{}

func (UnimplementedDataNodeServiceServer) WriteBlock(DataNodeService_WriteBlockServer) error {
	return status.Errorf(codes.Unimplemented, "method WriteBlock not implemented")
}

func (UnimplementedDataNodeServiceServer) ReadBlock(*ReadBlockRequest, DataNodeService_ReadBlockServer) error {
	return status.Errorf(codes.Unimplemented, "method ReadBlock not implemented")
}

func (UnimplementedDataNodeServiceServer) DeleteBlock(context.Context, *DeleteBlockRequest) (*DeleteBlockResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DeleteBlock not implemented")
}

func (UnimplementedDataNodeServiceServer) mustEmbedUnimplementedDataNodeServiceServer() {}

func RegisterDataNodeServiceServer(s grpc.ServiceRegistrar, srv DataNodeServiceServer) {
	s.RegisterService(&DataNodeService_ServiceDesc, srv)
}

func _DataNodeService_WriteBlock_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(DataNodeServiceServer).WriteBlock(&dataNodeServiceWriteBlockServer{stream})
}

type DataNodeService_WriteBlockServer interface {
	SendAndClose(*WriteBlockResponse) error
	Recv() (*WriteBlockRequest, error)
	grpc.ServerStream
}

type dataNodeServiceWriteBlockServer struct {
	grpc.ServerStream
}

func (x *dataNodeServiceWriteBlockServer) SendAndClose(m *WriteBlockResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *dataNodeServiceWriteBlockServer) Recv() (*WriteBlockRequest, error) {
	m := new(WriteBlockRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _DataNodeService_ReadBlock_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(ReadBlockRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(DataNodeServiceServer).ReadBlock(m, &dataNodeServiceReadBlockServer{stream})
}

type DataNodeService_ReadBlockServer interface {
	Send(*ReadBlockResponse) error
	grpc.ServerStream
}

type dataNodeServiceReadBlockServer struct {
	grpc.ServerStream
}

func (x *dataNodeServiceReadBlockServer) Send(m *ReadBlockResponse) error {
	return x.ServerStream.SendMsg(m)
}

func _DataNodeService_DeleteBlock_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeleteBlockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DataNodeServiceServer).DeleteBlock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DataNodeService_DeleteBlock_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DataNodeServiceServer).DeleteBlock(ctx, req.(*DeleteBlockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var DataNodeService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "griddfs.DataNodeService",
	HandlerType: (*DataNodeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "DeleteBlock",
			Handler:    _DataNodeService_DeleteBlock_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WriteBlock",
			Handler:       _DataNodeService_WriteBlock_Handler,
			ClientStreams: true,
		},
		{
			StreamName:    "ReadBlock",
			Handler:       _DataNodeService_ReadBlock_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "griddfs.proto",
}
