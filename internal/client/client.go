// Package client is a typed client for the lendkeeper.v1.Lending service.
package client

import (
	"context"
	"errors"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/and161185/lendkeeper/internal/api"
)

// Client calls the lending API over any gRPC connection.
type Client struct {
	cc    grpc.ClientConnInterface
	token string
}

// New wraps a connection.
func New(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens a connection that speaks the JSON codec by default.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName))}
	return grpc.NewClient(target, append(base, opts...)...)
}

// WithToken returns a copy that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = strings.TrimSpace(token)
	return &cp
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(c.outgoing(ctx), method, in, out, grpc.CallContentSubtype(api.CodecName))
}

func call[Resp any](ctx context.Context, c *Client, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := c.invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Auth ---

func (c *Client) Register(ctx context.Context, req *api.RegisterRequest) (*api.User, error) {
	return call[api.User](ctx, c, api.MethodRegister, req)
}

func (c *Client) Login(ctx context.Context, username, password string) (*api.LoginResponse, error) {
	return call[api.LoginResponse](ctx, c, api.MethodLogin, &api.LoginRequest{Username: username, Password: password})
}

// --- Catalog ---

func (c *Client) CreateBook(ctx context.Context, in *api.BookInput) (*api.Book, error) {
	return call[api.Book](ctx, c, api.MethodCreateBook, in)
}

func (c *Client) UpdateBook(ctx context.Context, in *api.UpdateBookRequest) (*api.Book, error) {
	return call[api.Book](ctx, c, api.MethodUpdateBook, in)
}

func (c *Client) DeleteBook(ctx context.Context, id int64) error {
	_, err := call[api.Empty](ctx, c, api.MethodDeleteBook, &api.IDRequest{ID: id})
	return err
}

func (c *Client) GetBook(ctx context.Context, id int64) (*api.Book, error) {
	return call[api.Book](ctx, c, api.MethodGetBook, &api.IDRequest{ID: id})
}

func (c *Client) ListBooks(ctx context.Context) ([]api.Book, error) {
	out, err := call[api.BooksResponse](ctx, c, api.MethodListBooks, &api.Empty{})
	if err != nil {
		return nil, err
	}
	return out.Books, nil
}

func (c *Client) SearchBooks(ctx context.Context, keyword string) ([]api.Book, error) {
	out, err := call[api.BooksResponse](ctx, c, api.MethodSearchBooks, &api.SearchBooksRequest{Keyword: keyword})
	if err != nil {
		return nil, err
	}
	return out.Books, nil
}

// --- Lending ---

func (c *Client) Borrow(ctx context.Context, in *api.BorrowRequest) (*api.BorrowRecord, error) {
	return call[api.BorrowRecord](ctx, c, api.MethodBorrow, in)
}

func (c *Client) ReturnBook(ctx context.Context, borrowID int64) (*api.BorrowRecord, error) {
	return call[api.BorrowRecord](ctx, c, api.MethodReturnBook, &api.ReturnRequest{BorrowID: borrowID})
}

func (c *Client) DeleteBorrow(ctx context.Context, id int64) error {
	_, err := call[api.Empty](ctx, c, api.MethodDeleteBorrow, &api.IDRequest{ID: id})
	return err
}

func (c *Client) borrows(ctx context.Context, method string, in any) ([]api.BorrowRecord, error) {
	out, err := call[api.BorrowsResponse](ctx, c, method, in)
	if err != nil {
		return nil, err
	}
	return out.Borrows, nil
}

func (c *Client) ListBorrows(ctx context.Context) ([]api.BorrowRecord, error) {
	return c.borrows(ctx, api.MethodListBorrows, &api.Empty{})
}

// BorrowHistory returns username's history, or everyone's when username is empty.
func (c *Client) BorrowHistory(ctx context.Context, username string) ([]api.BorrowRecord, error) {
	return c.borrows(ctx, api.MethodBorrowHistory, &api.HistoryRequest{Username: username})
}

func (c *Client) MyBorrows(ctx context.Context) ([]api.BorrowRecord, error) {
	return c.borrows(ctx, api.MethodMyBorrows, &api.Empty{})
}

func (c *Client) OverdueBorrows(ctx context.Context, in *api.OverdueRequest) ([]api.BorrowRecord, error) {
	return c.borrows(ctx, api.MethodOverdueBorrows, in)
}

func (c *Client) OverdueReport(ctx context.Context, in *api.OverdueRequest) ([]api.OverdueEntry, error) {
	out, err := call[api.OverdueReportResponse](ctx, c, api.MethodOverdueReport, in)
	if err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// --- Users ---

func (c *Client) ListUsers(ctx context.Context) ([]api.User, error) {
	out, err := call[api.UsersResponse](ctx, c, api.MethodListUsers, &api.Empty{})
	if err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) GetUser(ctx context.Context, id int64) (*api.User, error) {
	return call[api.User](ctx, c, api.MethodGetUser, &api.IDRequest{ID: id})
}

func (c *Client) UpdateUser(ctx context.Context, in *api.UpdateUserRequest) (*api.User, error) {
	return call[api.User](ctx, c, api.MethodUpdateUser, in)
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	_, err := call[api.Empty](ctx, c, api.MethodDeleteUser, &api.IDRequest{ID: id})
	return err
}

// --- Events ---

var watchDesc = grpc.StreamDesc{StreamName: "WatchAvailability", ServerStreams: true}

// WatchAvailability opens the availability stream. Cancel ctx to stop it.
func (c *Client) WatchAvailability(ctx context.Context, in *api.WatchRequest) (grpc.ServerStreamingClient[api.AvailabilityEvent], error) {
	st, err := c.cc.NewStream(c.outgoing(ctx), &watchDesc, api.MethodWatchAvailability, grpc.CallContentSubtype(api.CodecName))
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[api.WatchRequest, api.AvailabilityEvent]{ClientStream: st}
	// io.EOF means the server already ended the stream; Recv reports why.
	if err := x.ClientStream.SendMsg(in); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
