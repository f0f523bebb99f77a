package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const (
	FleetServiceName    = "fleet.v1.FleetService"
	DeliveryServiceName = "delivery.v1.DeliveryService"
)

// unary builds a method descriptor for a handler on server type S. The request is
// decoded with the connection's codec, then runs through the interceptor chain.
func unary[S any, Req any, Resp any](service, method string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(S)
			if interceptor == nil {
				return fn(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(*Req))
			})
		},
	}
}

// FleetService is the handler set registered under fleet.v1.FleetService.
type FleetService interface {
	GetDrone(context.Context, *DroneRequest) (*DroneResponse, error)
	ListDrones(context.Context, *ListDronesRequest) (*ListDronesResponse, error)
	ListAllDrones(context.Context, *ListAllDronesRequest) (*ListDronesResponse, error)
	SetMaintenance(context.Context, *DroneRequest) (*DroneResponse, error)
	ClearMaintenance(context.Context, *DroneRequest) (*DroneResponse, error)
	SubmitRegistration(context.Context, *SubmitRegistrationRequest) (*RequestResponse, error)
	SubmitDeletion(context.Context, *SubmitDeletionRequest) (*RequestResponse, error)
	ListRequests(context.Context, *ListRequestsRequest) (*ListRequestsResponse, error)
	GetRequest(context.Context, *RequestIDRequest) (*RequestResponse, error)
	ApproveRequest(context.Context, *ResolveRequest) (*RequestResponse, error)
	RejectRequest(context.Context, *ResolveRequest) (*RequestResponse, error)
}

var fleetServiceDesc = grpc.ServiceDesc{
	ServiceName: FleetServiceName,
	HandlerType: (*FleetService)(nil),
	Methods: []grpc.MethodDesc{
		unary(FleetServiceName, "GetDrone", FleetService.GetDrone),
		unary(FleetServiceName, "ListDrones", FleetService.ListDrones),
		unary(FleetServiceName, "ListAllDrones", FleetService.ListAllDrones),
		unary(FleetServiceName, "SetMaintenance", FleetService.SetMaintenance),
		unary(FleetServiceName, "ClearMaintenance", FleetService.ClearMaintenance),
		unary(FleetServiceName, "SubmitRegistration", FleetService.SubmitRegistration),
		unary(FleetServiceName, "SubmitDeletion", FleetService.SubmitDeletion),
		unary(FleetServiceName, "ListRequests", FleetService.ListRequests),
		unary(FleetServiceName, "GetRequest", FleetService.GetRequest),
		unary(FleetServiceName, "ApproveRequest", FleetService.ApproveRequest),
		unary(FleetServiceName, "RejectRequest", FleetService.RejectRequest),
	},
	Metadata: "fleet/v1/fleet.json",
}

// DeliveryService is the handler set registered under delivery.v1.DeliveryService.
type DeliveryService interface {
	ShipOrder(context.Context, *ShipOrderRequest) (*ShipOrderResponse, error)
	NotifyArrived(context.Context, *DroneRequest) (*DeliveryResponse, error)
	ConfirmDelivery(context.Context, *OrderRequest) (*DeliveryResponse, error)
	NotifyReturned(context.Context, *DroneRequest) (*DroneResponse, error)
	ReportTelemetry(context.Context, *TelemetryRequest) (*Empty, error)
	GetDelivery(context.Context, *OrderRequest) (*DeliveryLogResponse, error)
	Subscribe(*SubscribeRequest, grpc.ServerStream) error
}

var subscribeStreamDesc = grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
}

var deliveryServiceDesc = grpc.ServiceDesc{
	ServiceName: DeliveryServiceName,
	HandlerType: (*DeliveryService)(nil),
	Methods: []grpc.MethodDesc{
		unary(DeliveryServiceName, "ShipOrder", DeliveryService.ShipOrder),
		unary(DeliveryServiceName, "NotifyArrived", DeliveryService.NotifyArrived),
		unary(DeliveryServiceName, "ConfirmDelivery", DeliveryService.ConfirmDelivery),
		unary(DeliveryServiceName, "NotifyReturned", DeliveryService.NotifyReturned),
		unary(DeliveryServiceName, "ReportTelemetry", DeliveryService.ReportTelemetry),
		unary(DeliveryServiceName, "GetDelivery", DeliveryService.GetDelivery),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    subscribeStreamDesc.StreamName,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(SubscribeRequest)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(DeliveryService).Subscribe(in, stream)
		},
	}},
	Metadata: "delivery/v1/delivery.json",
}
