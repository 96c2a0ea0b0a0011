package handler

import (
	"context"
	"log/slog"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

type GRPCHandler struct {
	log      *slog.Logger
	checkout *service.CheckoutService
	orders   *service.OrderService
}

func NewGRPCHandler(log *slog.Logger, checkout *service.CheckoutService, orders *service.OrderService) *GRPCHandler {
	return &GRPCHandler{log: log, checkout: checkout, orders: orders}
}

func (h *GRPCHandler) Checkout(ctx context.Context, req *CheckoutRPCRequest) (*OrderReply, error) {
	caller, _ := identityFrom(ctx)
	res, err := h.checkout.Checkout(ctx, service.CheckoutRequest{
		UserID:           caller.UserID,
		Email:            caller.Email,
		ShippingAddress:  req.ShippingAddress,
		PaymentReference: req.PaymentReference,
		IdempotencyKey:   req.IdempotencyKey,
	})
	if err != nil {
		return nil, h.statusError("Checkout", err)
	}
	return &OrderReply{Order: toOrderDTO(res.Order), Warning: res.Warning, Replayed: res.Replayed}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRPCRequest) (*OrderReply, error) {
	caller, _ := identityFrom(ctx)
	order, err := h.orders.Get(ctx, caller, req.OrderID)
	if err != nil {
		return nil, h.statusError("GetOrder", err)
	}
	return &OrderReply{Order: toOrderDTO(order)}, nil
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *UpdateStatusRPCRequest) (*OrderReply, error) {
	caller, _ := identityFrom(ctx)
	order, err := h.orders.UpdateStatus(ctx, caller, req.OrderID, req.Status)
	if err != nil {
		return nil, h.statusError("UpdateOrderStatus", err)
	}
	return &OrderReply{Order: toOrderDTO(order)}, nil
}

func (h *GRPCHandler) statusError(method string, err error) error {
	m := mapError(err)
	if m.status >= http.StatusInternalServerError {
		h.log.Error("rpc failed", "method", method, "err", err)
	}
	return status.Error(m.grpc, publicMessage(err, m))
}

// AuthInterceptor resolves the bearer token in the authorization metadata.
func AuthInterceptor(identity port.IdentityProvider) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var token string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("authorization"); len(v) > 0 {
				token = bearerToken(v[0])
			}
		}
		id, err := identity.Resolve(ctx, token)
		if err != nil {
			return nil, status.Error(mapError(domain.ErrUnauthenticated).grpc, err.Error())
		}
		return handler(withIdentity(ctx, id), req)
	}
}

// CheckoutClient calls the checkout service over a JSON-coded gRPC connection.
type CheckoutClient struct {
	cc grpc.ClientConnInterface
}

func NewCheckoutClient(cc grpc.ClientConnInterface) *CheckoutClient {
	return &CheckoutClient{cc: cc}
}

// WithToken attaches a bearer token to outgoing calls made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func (c *CheckoutClient) Checkout(ctx context.Context, req *CheckoutRPCRequest) (*OrderReply, error) {
	return c.invoke(ctx, "Checkout", req)
}

func (c *CheckoutClient) GetOrder(ctx context.Context, req *GetOrderRPCRequest) (*OrderReply, error) {
	return c.invoke(ctx, "GetOrder", req)
}

func (c *CheckoutClient) UpdateOrderStatus(ctx context.Context, req *UpdateStatusRPCRequest) (*OrderReply, error) {
	return c.invoke(ctx, "UpdateOrderStatus", req)
}

func (c *CheckoutClient) invoke(ctx context.Context, method string, req any) (*OrderReply, error) {
	out := new(OrderReply)
	err := c.cc.Invoke(ctx, "/"+checkoutServiceName+"/"+method, req, out, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}
