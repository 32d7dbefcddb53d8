package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/pharmacy-cart/internal/core/cart"
	"github.com/rl1809/pharmacy-cart/internal/core/coupon"
	"github.com/rl1809/pharmacy-cart/internal/core/service"
)

const cartServiceName = "pharmacy.cart.v1.CartService"

type GetSummaryRequest struct{}

type AddItemRequest struct {
	Product  ProductDTO `json:"product"`
	Quantity int        `json:"quantity"`
	Variant  string     `json:"variant"`
}

type UpdateQuantityRequest struct {
	ProductID string `json:"productId"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity"`
}

type RemoveItemRequest struct {
	ProductID string `json:"productId"`
	Variant   string `json:"variant"`
}

type ApplyCouponRequest struct {
	Code string `json:"code"`
}

type CartResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Summary service.Summary `json:"summary"`
}

type CartServiceServer interface {
	GetSummary(context.Context, *GetSummaryRequest) (*CartResponse, error)
	AddItem(context.Context, *AddItemRequest) (*CartResponse, error)
	UpdateQuantity(context.Context, *UpdateQuantityRequest) (*CartResponse, error)
	RemoveItem(context.Context, *RemoveItemRequest) (*CartResponse, error)
	ApplyCoupon(context.Context, *ApplyCouponRequest) (*CartResponse, error)
}

type GRPCHandler struct {
	sessions *service.SessionService
}

func NewGRPCHandler(sessions *service.SessionService) *GRPCHandler {
	return &GRPCHandler{sessions: sessions}
}

func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&cartServiceDesc, srv)
}

// session returns the caller's cart. The owner is set by OwnerResolver.UnaryInterceptor; a
// server registered without it rejects every call.
func (h *GRPCHandler) session(ctx context.Context) (*service.Session, error) {
	sess, err := h.sessions.Get(ctx, ownerFrom(ctx))
	switch {
	case errors.Is(err, service.ErrMissingOwner):
		return nil, status.Error(codes.Unauthenticated, err.Error())
	case err != nil:
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return sess, nil
}

func (h *GRPCHandler) GetSummary(ctx context.Context, _ *GetSummaryRequest) (*CartResponse, error) {
	sess, err := h.session(ctx)
	if err != nil {
		return nil, err
	}
	return &CartResponse{Success: true, Summary: sess.Summary(ctx)}, nil
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *AddItemRequest) (*CartResponse, error) {
	sess, err := h.session(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := sess.AddItem(ctx, req.Product.toDomain(), req.Quantity, req.Variant)
	if errors.Is(err, cart.ErrInvalidProduct) {
		return &CartResponse{Success: false, Message: err.Error(), Summary: sess.Summary(ctx)}, nil
	}
	return &CartResponse{Success: true, Summary: summary}, nil
}

func (h *GRPCHandler) UpdateQuantity(ctx context.Context, req *UpdateQuantityRequest) (*CartResponse, error) {
	sess, err := h.session(ctx)
	if err != nil {
		return nil, err
	}
	return &CartResponse{Success: true, Summary: sess.UpdateQuantity(ctx, req.ProductID, req.Variant, req.Quantity)}, nil
}

func (h *GRPCHandler) RemoveItem(ctx context.Context, req *RemoveItemRequest) (*CartResponse, error) {
	sess, err := h.session(ctx)
	if err != nil {
		return nil, err
	}
	return &CartResponse{Success: true, Summary: sess.RemoveItem(ctx, req.ProductID, req.Variant)}, nil
}

func (h *GRPCHandler) ApplyCoupon(ctx context.Context, req *ApplyCouponRequest) (*CartResponse, error) {
	sess, err := h.session(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := sess.ApplyCoupon(ctx, req.Code)
	if err != nil {
		if errors.Is(err, coupon.ErrEmptyCode) || errors.Is(err, coupon.ErrCouponRejected) ||
			errors.Is(err, coupon.ErrValidationInFlight) {
			return &CartResponse{Success: false, Message: err.Error(), Summary: summary}, nil
		}
		return nil, status.Error(codes.Unavailable, "coupon service unavailable")
	}
	return &CartResponse{Success: true, Summary: summary}, nil
}

func unaryHandler[Req any](call func(CartServiceServer, context.Context, *Req) (*CartResponse, error), method string) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CartServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + cartServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(CartServiceServer), ctx, req.(*Req))
		})
	}
}

var cartServiceDesc = grpc.ServiceDesc{
	ServiceName: cartServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSummary", Handler: unaryHandler(CartServiceServer.GetSummary, "GetSummary")},
		{MethodName: "AddItem", Handler: unaryHandler(CartServiceServer.AddItem, "AddItem")},
		{MethodName: "UpdateQuantity", Handler: unaryHandler(CartServiceServer.UpdateQuantity, "UpdateQuantity")},
		{MethodName: "RemoveItem", Handler: unaryHandler(CartServiceServer.RemoveItem, "RemoveItem")},
		{MethodName: "ApplyCoupon", Handler: unaryHandler(CartServiceServer.ApplyCoupon, "ApplyCoupon")},
	},
	Streams: []grpc.StreamDesc{},
}

// CartServiceClient calls the cart service using the JSON codec.
type CartServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCartServiceClient(cc grpc.ClientConnInterface) *CartServiceClient {
	return &CartServiceClient{cc: cc}
}

func (c *CartServiceClient) invoke(ctx context.Context, method string, in interface{}, opts ...grpc.CallOption) (*CartResponse, error) {
	out := new(CartResponse)
	opts = append(opts, grpc.CallContentSubtype(JSONCodecName))
	if err := c.cc.Invoke(ctx, "/"+cartServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) GetSummary(ctx context.Context, in *GetSummaryRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.invoke(ctx, "GetSummary", in, opts...)
}

func (c *CartServiceClient) AddItem(ctx context.Context, in *AddItemRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.invoke(ctx, "AddItem", in, opts...)
}

func (c *CartServiceClient) UpdateQuantity(ctx context.Context, in *UpdateQuantityRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.invoke(ctx, "UpdateQuantity", in, opts...)
}

func (c *CartServiceClient) RemoveItem(ctx context.Context, in *RemoveItemRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.invoke(ctx, "RemoveItem", in, opts...)
}

func (c *CartServiceClient) ApplyCoupon(ctx context.Context, in *ApplyCouponRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.invoke(ctx, "ApplyCoupon", in, opts...)
}

// WithGuestSession attaches a guest cart session id to an outgoing call.
func WithGuestSession(ctx context.Context, session string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, guestSessionMetadata, session)
}

// WithBearerToken attaches a signed-in customer's token to an outgoing call.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, authorizationMetadata, "Bearer "+token)
}
