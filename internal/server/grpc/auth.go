package grpcserver

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/lendkeeper/internal/access"
	"github.com/and161185/lendkeeper/internal/api"
)

// Authorizer authenticates a bearer token and checks one capability.
type Authorizer interface {
	Check(ctx context.Context, raw string, c access.Capability) (access.Principal, error)
}

var methodCaps = map[string]access.Capability{
	api.MethodRegister: access.Public,
	api.MethodLogin:    access.Public,

	api.MethodCreateBook:  access.BookWrite,
	api.MethodUpdateBook:  access.BookWrite,
	api.MethodDeleteBook:  access.BookDelete,
	api.MethodGetBook:     access.BookRead,
	api.MethodListBooks:   access.BookRead,
	api.MethodSearchBooks: access.BookRead,

	api.MethodBorrow:         access.BorrowCreate,
	api.MethodReturnBook:     access.BorrowReturnOwn,
	api.MethodDeleteBorrow:   access.BorrowDelete,
	api.MethodListBorrows:    access.BorrowRead,
	api.MethodMyBorrows:      access.BorrowRead,
	api.MethodBorrowHistory:  access.BorrowHistoryAll,
	api.MethodOverdueBorrows: access.BorrowOverdue,
	api.MethodOverdueReport:  access.BorrowOverdueReport,

	api.MethodListUsers:  access.UserRead,
	api.MethodGetUser:    access.UserRead,
	api.MethodUpdateUser: access.UserWrite,
	api.MethodDeleteUser: access.UserWrite,

	api.MethodWatchAvailability: access.Authenticated,
}

var publicPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.v1.ServerReflection/",
	"/grpc.reflection.v1alpha.ServerReflection/",
}

// CapabilityFor returns the capability a full method name requires. Unknown methods need any identity.
func CapabilityFor(fullMethod string) access.Capability {
	if c, ok := methodCaps[fullMethod]; ok {
		return c
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(fullMethod, p) {
			return access.Public
		}
	}
	return access.Authenticated
}

// AuthUnary authorizes every unary call before its handler runs.
func AuthUnary(g Authorizer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		ctx, err := authorize(ctx, g, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// AuthStream authorizes every stream before its handler runs.
func AuthStream(g Authorizer) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		ctx, err := authorize(ss.Context(), g, info.FullMethod)
		if err != nil {
			return err
		}
		return next(srv, &ctxStream{ServerStream: ss, ctx: ctx})
	}
}

func authorize(ctx context.Context, g Authorizer, method string) (context.Context, error) {
	c := CapabilityFor(method)
	if c == access.Public {
		return ctx, nil
	}
	raw, err := bearerTokenFromMD(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	p, err := g.Check(ctx, raw, c)
	if err != nil {
		return nil, toStatus(err)
	}
	return WithPrincipal(ctx, p), nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

// ctxStream overrides the context of a server stream.
type ctxStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *ctxStream) Context() context.Context { return s.ctx }
