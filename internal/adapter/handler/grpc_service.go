package handler

import (
	"context"

	"google.golang.org/grpc"
)

const storefrontServiceName = "storefront.v1.Storefront"

type UpsertCartItemRequest struct {
	CartID    string `json:"cart_id"`
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type SetCartItemQuantityRequest struct {
	CartID    string `json:"cart_id"`
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type CartRequest struct {
	CartID string `json:"cart_id"`
}

type CartResponse struct {
	Cart    *CartView `json:"cart"`
	Created bool      `json:"created"`
}

type DeleteCartResponse struct{}

type CreateOrderRequest struct {
	CartID    string `json:"cart_id"`
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id"`
}

type OrderRequest struct {
	OrderID string `json:"order_id"`
}

type OrderResponse struct {
	Order *OrderView `json:"order"`
}

type ListOrdersRequest struct{}

type ListOrdersResponse struct {
	Orders []OrderView `json:"orders"`
}

// StorefrontServer is the server API for the storefront.v1.Storefront service.
type StorefrontServer interface {
	UpsertCartItem(context.Context, *UpsertCartItemRequest) (*CartResponse, error)
	SetCartItemQuantity(context.Context, *SetCartItemQuantityRequest) (*CartResponse, error)
	GetCart(context.Context, *CartRequest) (*CartResponse, error)
	DeleteCart(context.Context, *CartRequest) (*DeleteCartResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error)
	GetOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
}

func RegisterStorefrontServer(s grpc.ServiceRegistrar, srv StorefrontServer) {
	s.RegisterService(&storefrontServiceDesc, srv)
}

var storefrontServiceDesc = grpc.ServiceDesc{
	ServiceName: storefrontServiceName,
	HandlerType: (*StorefrontServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UpsertCartItem", Handler: unaryHandler("UpsertCartItem", StorefrontServer.UpsertCartItem)},
		{MethodName: "SetCartItemQuantity", Handler: unaryHandler("SetCartItemQuantity", StorefrontServer.SetCartItemQuantity)},
		{MethodName: "GetCart", Handler: unaryHandler("GetCart", StorefrontServer.GetCart)},
		{MethodName: "DeleteCart", Handler: unaryHandler("DeleteCart", StorefrontServer.DeleteCart)},
		{MethodName: "CreateOrder", Handler: unaryHandler("CreateOrder", StorefrontServer.CreateOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler("GetOrder", StorefrontServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler("ListOrders", StorefrontServer.ListOrders)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/storefront.proto",
}

func unaryHandler[Req, Resp any](method string, call func(StorefrontServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StorefrontServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + storefrontServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StorefrontServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// StorefrontClient calls the service over any connection, always with the
// JSON codec.
type StorefrontClient struct {
	cc grpc.ClientConnInterface
}

func NewStorefrontClient(cc grpc.ClientConnInterface) *StorefrontClient {
	return &StorefrontClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+storefrontServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StorefrontClient) UpsertCartItem(ctx context.Context, in *UpsertCartItemRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, "UpsertCartItem", in, opts)
}

func (c *StorefrontClient) SetCartItemQuantity(ctx context.Context, in *SetCartItemQuantityRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, "SetCartItemQuantity", in, opts)
}

func (c *StorefrontClient) GetCart(ctx context.Context, in *CartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, "GetCart", in, opts)
}

func (c *StorefrontClient) DeleteCart(ctx context.Context, in *CartRequest, opts ...grpc.CallOption) (*DeleteCartResponse, error) {
	return invoke[DeleteCartResponse](ctx, c.cc, "DeleteCart", in, opts)
}

func (c *StorefrontClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, "CreateOrder", in, opts)
}

func (c *StorefrontClient) GetOrder(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, "GetOrder", in, opts)
}

func (c *StorefrontClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, "ListOrders", in, opts)
}
