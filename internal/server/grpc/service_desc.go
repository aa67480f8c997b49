package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"github.com/and161185/lendkeeper/internal/api"
)

// LendingServer is the server API for the lendkeeper.v1.Lending service.
type LendingServer interface {
	Register(context.Context, *api.RegisterRequest) (*api.User, error)
	Login(context.Context, *api.LoginRequest) (*api.LoginResponse, error)

	CreateBook(context.Context, *api.BookInput) (*api.Book, error)
	UpdateBook(context.Context, *api.UpdateBookRequest) (*api.Book, error)
	DeleteBook(context.Context, *api.IDRequest) (*api.Empty, error)
	GetBook(context.Context, *api.IDRequest) (*api.Book, error)
	ListBooks(context.Context, *api.Empty) (*api.BooksResponse, error)
	SearchBooks(context.Context, *api.SearchBooksRequest) (*api.BooksResponse, error)

	Borrow(context.Context, *api.BorrowRequest) (*api.BorrowRecord, error)
	ReturnBook(context.Context, *api.ReturnRequest) (*api.BorrowRecord, error)
	DeleteBorrow(context.Context, *api.IDRequest) (*api.Empty, error)
	ListBorrows(context.Context, *api.Empty) (*api.BorrowsResponse, error)
	BorrowHistory(context.Context, *api.HistoryRequest) (*api.BorrowsResponse, error)
	MyBorrows(context.Context, *api.Empty) (*api.BorrowsResponse, error)
	OverdueBorrows(context.Context, *api.OverdueRequest) (*api.BorrowsResponse, error)
	OverdueReport(context.Context, *api.OverdueRequest) (*api.OverdueReportResponse, error)

	ListUsers(context.Context, *api.Empty) (*api.UsersResponse, error)
	GetUser(context.Context, *api.IDRequest) (*api.User, error)
	UpdateUser(context.Context, *api.UpdateUserRequest) (*api.User, error)
	DeleteUser(context.Context, *api.IDRequest) (*api.Empty, error)

	WatchAvailability(*api.WatchRequest, grpc.ServerStreamingServer[api.AvailabilityEvent]) error
}

// unary builds a method descriptor that decodes Req, runs the interceptor chain and calls the handler.
func unary[Req, Resp any](name string, call func(LendingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + api.ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			ls := srv.(LendingServer)
			if interceptor == nil {
				return call(ls, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(ls, ctx, req.(*Req))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(api.WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LendingServer).WatchAvailability(in, &grpc.GenericServerStream[api.WatchRequest, api.AvailabilityEvent]{ServerStream: stream})
}

// ServiceDesc describes lendkeeper.v1.Lending. Messages travel with the JSON codec from package api.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*LendingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", LendingServer.Register),
		unary("Login", LendingServer.Login),
		unary("CreateBook", LendingServer.CreateBook),
		unary("UpdateBook", LendingServer.UpdateBook),
		unary("DeleteBook", LendingServer.DeleteBook),
		unary("GetBook", LendingServer.GetBook),
		unary("ListBooks", LendingServer.ListBooks),
		unary("SearchBooks", LendingServer.SearchBooks),
		unary("Borrow", LendingServer.Borrow),
		unary("ReturnBook", LendingServer.ReturnBook),
		unary("DeleteBorrow", LendingServer.DeleteBorrow),
		unary("ListBorrows", LendingServer.ListBorrows),
		unary("BorrowHistory", LendingServer.BorrowHistory),
		unary("MyBorrows", LendingServer.MyBorrows),
		unary("OverdueBorrows", LendingServer.OverdueBorrows),
		unary("OverdueReport", LendingServer.OverdueReport),
		unary("ListUsers", LendingServer.ListUsers),
		unary("GetUser", LendingServer.GetUser),
		unary("UpdateUser", LendingServer.UpdateUser),
		unary("DeleteUser", LendingServer.DeleteUser),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "WatchAvailability",
		Handler:       watchHandler,
		ServerStreams: true,
	}},
	Metadata: "lendkeeper/v1/lending",
}

// RegisterLendingServer registers srv on s.
func RegisterLendingServer(s grpc.ServiceRegistrar, srv LendingServer) {
	s.RegisterService(&ServiceDesc, srv)
}
