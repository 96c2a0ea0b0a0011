package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype for JSON-encoded messages.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const checkoutServiceName = "storefront.v1.CheckoutService"

type CheckoutRPCRequest struct {
	ShippingAddress  string  `json:"shipping_address"`
	PaymentReference *string `json:"payment_reference,omitempty"`
	IdempotencyKey   string  `json:"idempotency_key,omitempty"`
}

type GetOrderRPCRequest struct {
	OrderID string `json:"order_id"`
}

type UpdateStatusRPCRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type OrderReply struct {
	Order    OrderDTO `json:"order"`
	Warning  string   `json:"warning,omitempty"`
	Replayed bool     `json:"replayed,omitempty"`
}

type CheckoutServer interface {
	Checkout(context.Context, *CheckoutRPCRequest) (*OrderReply, error)
	GetOrder(context.Context, *GetOrderRPCRequest) (*OrderReply, error)
	UpdateOrderStatus(context.Context, *UpdateStatusRPCRequest) (*OrderReply, error)
}

func RegisterCheckoutServer(s grpc.ServiceRegistrar, srv CheckoutServer) {
	s.RegisterService(&checkoutServiceDesc, srv)
}

var checkoutServiceDesc = grpc.ServiceDesc{
	ServiceName: checkoutServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Checkout", Handler: unaryHandler("Checkout", CheckoutServer.Checkout)},
		{MethodName: "GetOrder", Handler: unaryHandler("GetOrder", CheckoutServer.GetOrder)},
		{MethodName: "UpdateOrderStatus", Handler: unaryHandler("UpdateOrderStatus", CheckoutServer.UpdateOrderStatus)},
	},
	Streams: []grpc.StreamDesc{},
}

func unaryHandler[Req any](method string, call func(CheckoutServer, context.Context, *Req) (*OrderReply, error)) grpc.MethodHandler {
	fullMethod := "/" + checkoutServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CheckoutServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CheckoutServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
