package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client calls the coordinator's services over an existing connection using the
// JSON content-subtype.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithToken attaches a bearer token to outgoing calls made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func (c *Client) invoke(ctx context.Context, service, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+service+"/"+method, in, out, opts...)
}

func (c *Client) GetDrone(ctx context.Context, in *DroneRequest) (*DroneResponse, error) {
	out := new(DroneResponse)
	return out, c.invoke(ctx, FleetServiceName, "GetDrone", in, out)
}

func (c *Client) ListDrones(ctx context.Context, in *ListDronesRequest) (*ListDronesResponse, error) {
	out := new(ListDronesResponse)
	return out, c.invoke(ctx, FleetServiceName, "ListDrones", in, out)
}

func (c *Client) ListAllDrones(ctx context.Context, in *ListAllDronesRequest) (*ListDronesResponse, error) {
	out := new(ListDronesResponse)
	return out, c.invoke(ctx, FleetServiceName, "ListAllDrones", in, out)
}

func (c *Client) SetMaintenance(ctx context.Context, in *DroneRequest) (*DroneResponse, error) {
	out := new(DroneResponse)
	return out, c.invoke(ctx, FleetServiceName, "SetMaintenance", in, out)
}

func (c *Client) ClearMaintenance(ctx context.Context, in *DroneRequest) (*DroneResponse, error) {
	out := new(DroneResponse)
	return out, c.invoke(ctx, FleetServiceName, "ClearMaintenance", in, out)
}

func (c *Client) SubmitRegistration(ctx context.Context, in *SubmitRegistrationRequest) (*RequestResponse, error) {
	out := new(RequestResponse)
	return out, c.invoke(ctx, FleetServiceName, "SubmitRegistration", in, out)
}

func (c *Client) SubmitDeletion(ctx context.Context, in *SubmitDeletionRequest) (*RequestResponse, error) {
	out := new(RequestResponse)
	return out, c.invoke(ctx, FleetServiceName, "SubmitDeletion", in, out)
}

func (c *Client) ListRequests(ctx context.Context, in *ListRequestsRequest) (*ListRequestsResponse, error) {
	out := new(ListRequestsResponse)
	return out, c.invoke(ctx, FleetServiceName, "ListRequests", in, out)
}

func (c *Client) GetRequest(ctx context.Context, in *RequestIDRequest) (*RequestResponse, error) {
	out := new(RequestResponse)
	return out, c.invoke(ctx, FleetServiceName, "GetRequest", in, out)
}

func (c *Client) ApproveRequest(ctx context.Context, in *ResolveRequest) (*RequestResponse, error) {
	out := new(RequestResponse)
	return out, c.invoke(ctx, FleetServiceName, "ApproveRequest", in, out)
}

func (c *Client) RejectRequest(ctx context.Context, in *ResolveRequest) (*RequestResponse, error) {
	out := new(RequestResponse)
	return out, c.invoke(ctx, FleetServiceName, "RejectRequest", in, out)
}

func (c *Client) ShipOrder(ctx context.Context, in *ShipOrderRequest) (*ShipOrderResponse, error) {
	out := new(ShipOrderResponse)
	return out, c.invoke(ctx, DeliveryServiceName, "ShipOrder", in, out)
}

func (c *Client) NotifyArrived(ctx context.Context, in *DroneRequest) (*DeliveryResponse, error) {
	out := new(DeliveryResponse)
	return out, c.invoke(ctx, DeliveryServiceName, "NotifyArrived", in, out)
}

func (c *Client) ConfirmDelivery(ctx context.Context, in *OrderRequest) (*DeliveryResponse, error) {
	out := new(DeliveryResponse)
	return out, c.invoke(ctx, DeliveryServiceName, "ConfirmDelivery", in, out)
}

func (c *Client) NotifyReturned(ctx context.Context, in *DroneRequest) (*DroneResponse, error) {
	out := new(DroneResponse)
	return out, c.invoke(ctx, DeliveryServiceName, "NotifyReturned", in, out)
}

func (c *Client) ReportTelemetry(ctx context.Context, in *TelemetryRequest) (*Empty, error) {
	out := new(Empty)
	return out, c.invoke(ctx, DeliveryServiceName, "ReportTelemetry", in, out)
}

func (c *Client) GetDelivery(ctx context.Context, in *OrderRequest) (*DeliveryLogResponse, error) {
	out := new(DeliveryLogResponse)
	return out, c.invoke(ctx, DeliveryServiceName, "GetDelivery", in, out)
}

// TelemetryStream receives messages from a Subscribe call.
type TelemetryStream struct {
	grpc.ClientStream
}

// Recv returns io.EOF once the server ends the stream.
func (s *TelemetryStream) Recv() (*TelemetryMessage, error) {
	m := new(TelemetryMessage)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) Subscribe(ctx context.Context, in *SubscribeRequest) (*TelemetryStream, error) {
	stream, err := c.cc.NewStream(ctx, &subscribeStreamDesc, "/"+DeliveryServiceName+"/Subscribe",
		grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &TelemetryStream{ClientStream: stream}, nil
}
