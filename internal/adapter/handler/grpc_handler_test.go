package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newTestGRPCClient(t *testing.T) *CartServiceClient {
	t.Helper()
	svcs := newTestServices(t, stubValidator{})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(NewOwnerResolver(testSecret).UnaryInterceptor()))
	RegisterCartServiceServer(srv, NewGRPCHandler(svcs.sessions))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewCartServiceClient(conn)
}

func product(id, price string) ProductDTO {
	return ProductDTO{ID: id, Name: "Product " + id, Unit: "tab", InStock: true, Price: decimal.RequireFromString(price)}
}

func TestGRPC_RequiresOwner(t *testing.T) {
	client := newTestGRPCClient(t)

	_, err := client.GetSummary(context.Background(), &GetSummaryRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGRPC_CartOperations(t *testing.T) {
	client := newTestGRPCClient(t)
	ctx := WithGuestSession(context.Background(), "grpc")

	resp, err := client.AddItem(ctx, &AddItemRequest{Product: product("a", "10"), Quantity: 2})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Summary.ItemCount)

	resp, err = client.AddItem(ctx, &AddItemRequest{Product: product("a", "10"), Quantity: 1})
	require.NoError(t, err)
	require.Len(t, resp.Summary.Items, 1, "same product and variant merge into one line")
	assert.Equal(t, 3, resp.Summary.Items[0].Quantity)

	resp, err = client.ApplyCoupon(ctx, &ApplyCouponRequest{Code: "SAVE5"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "5", resp.Summary.Pricing.Discount.String())

	resp, err = client.UpdateQuantity(ctx, &UpdateQuantityRequest{ProductID: "a", Variant: "tab", Quantity: 1})
	require.NoError(t, err)
	assert.Nil(t, resp.Summary.Coupon)
	assert.Contains(t, resp.Summary.Notices, "coupon SAVE5 removed: minimum order not met")

	resp, err = client.RemoveItem(ctx, &RemoveItemRequest{ProductID: "a", Variant: "tab"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Summary.ItemCount)

	resp, err = client.GetSummary(ctx, &GetSummaryRequest{})
	require.NoError(t, err)
	assert.True(t, resp.Summary.Pricing.Total.IsZero())
}

func TestGRPC_DomainErrorsInResponse(t *testing.T) {
	client := newTestGRPCClient(t)
	ctx := WithGuestSession(context.Background(), "grpc")

	resp, err := client.AddItem(ctx, &AddItemRequest{Product: ProductDTO{Name: "no id"}, Quantity: 1})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)

	resp, err = client.ApplyCoupon(ctx, &ApplyCouponRequest{Code: "   "})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestGRPC_OwnerCannotBeSpoofed(t *testing.T) {
	client := newTestGRPCClient(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	alice := WithBearerToken(context.Background(), signed)

	resp, err := client.AddItem(alice, &AddItemRequest{Product: product("a", "10"), Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Summary.ItemCount)

	// a raw owner key is not a credential
	raw := metadata.AppendToOutgoingContext(context.Background(), "x-cart-owner", "user:alice")
	_, err = client.GetSummary(raw, &GetSummaryRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	// a guest session named after the user lands in the guest namespace
	resp, err = client.GetSummary(WithGuestSession(context.Background(), "user:alice"), &GetSummaryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Summary.ItemCount)

	forged, err := token.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	ctx := WithGuestSession(WithBearerToken(context.Background(), forged), "grpc")
	_, err = client.GetSummary(ctx, &GetSummaryRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err = client.GetSummary(alice, &GetSummaryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Summary.ItemCount)
}

func TestGRPC_HandlerWithoutInterceptorRejectsCalls(t *testing.T) {
	svcs := newTestServices(t, stubValidator{})
	h := NewGRPCHandler(svcs.sessions)

	_, err := h.GetSummary(WithGuestSession(context.Background(), "g"), &GetSummaryRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
