package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const slotsServiceName = "podoclinic.v1.Slots"

// SlotsService is the server side of podoclinic.v1.Slots. Every method takes
// and returns a google.protobuf.Struct so the service needs no generated code.
type SlotsService interface {
	GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv SlotsService, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + slotsServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SlotsService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SlotsService), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var slotsServiceDesc = grpc.ServiceDesc{
	ServiceName: slotsServiceName,
	HandlerType: (*SlotsService)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GetAvailability", SlotsService.GetAvailability),
		unaryHandler("CheckBooking", SlotsService.CheckBooking),
		unaryHandler("CreateAppointment", SlotsService.CreateAppointment),
		unaryHandler("UpdateAppointment", SlotsService.UpdateAppointment),
		unaryHandler("SetStatus", SlotsService.SetStatus),
		unaryHandler("ListAppointments", SlotsService.ListAppointments),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "podoclinic/v1/slots.proto",
}

func RegisterSlotsServer(s grpc.ServiceRegistrar, srv SlotsService) {
	s.RegisterService(&slotsServiceDesc, srv)
}

// SlotsClient calls podoclinic.v1.Slots.
type SlotsClient struct {
	cc grpc.ClientConnInterface
}

func NewSlotsClient(cc grpc.ClientConnInterface) *SlotsClient {
	return &SlotsClient{cc: cc}
}

// Call invokes method with req and returns the response struct.
func (c *SlotsClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+slotsServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
