package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	guestSessionHeader = "X-Cart-Session"

	authorizationMetadata = "authorization"
	guestSessionMetadata  = "x-cart-session"
)

var errUnauthenticated = errors.New("missing or invalid credentials")

type ownerKey struct{}

// OwnerResolver works out whose cart a request addresses. Signed-in customers are identified
// by the subject of an HS256 bearer token, guests by the X-Cart-Session header (or the
// x-cart-session metadata key over gRPC).
type OwnerResolver struct {
	secret []byte
}

func NewOwnerResolver(jwtSecret string) *OwnerResolver {
	return &OwnerResolver{secret: []byte(jwtSecret)}
}

func (o *OwnerResolver) Resolve(r *http.Request) (string, error) {
	return o.resolve(r.Header.Get("Authorization"), r.Header.Get(guestSessionHeader))
}

// resolve maps credentials to an owner id. A present but invalid bearer token never falls back
// to the guest session.
func (o *OwnerResolver) resolve(auth, guestSession string) (string, error) {
	if auth != "" {
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || len(o.secret) == 0 {
			return "", errUnauthenticated
		}
		sub, err := o.subject(strings.TrimSpace(raw))
		if err != nil {
			return "", errUnauthenticated
		}
		return "user:" + sub, nil
	}

	if guest := strings.TrimSpace(guestSession); guest != "" {
		return "guest:" + guest, nil
	}
	return "", errUnauthenticated
}

func (o *OwnerResolver) subject(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return o.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func (o *OwnerResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := o.Resolve(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

// UnaryInterceptor resolves the owner from incoming metadata the same way Middleware does for
// HTTP headers.
func (o *OwnerResolver) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		owner, err := o.resolve(firstValue(md, authorizationMetadata), firstValue(md, guestSessionMetadata))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(context.WithValue(ctx, ownerKey{}, owner), req)
	}
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}
