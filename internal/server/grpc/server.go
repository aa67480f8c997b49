// Package grpcserver exposes the lending API over gRPC.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/lendkeeper/internal/access"
	"github.com/and161185/lendkeeper/internal/api"
	"github.com/and161185/lendkeeper/internal/convert"
	"github.com/and161185/lendkeeper/internal/events"
	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/service"
)

// OverdueFinder reports overdue borrows.
type OverdueFinder interface {
	FindOverdue(ctx context.Context, now time.Time) ([]model.BorrowRecord, error)
	OverdueReport(ctx context.Context, now time.Time) ([]model.OverdueEntry, error)
	Now() time.Time
}

// Subscriber hands out availability subscriptions.
type Subscriber interface {
	Subscribe(buffer int) *events.Subscription
}

// Services groups the application services behind the API.
type Services struct {
	Auth    service.AuthService
	Users   service.UserService
	Catalog service.CatalogService
	Lending service.LendingService
	Overdue OverdueFinder
	Events  Subscriber
}

// Server wires services into gRPC handlers.
type Server struct {
	svc         Services
	log         *zap.Logger
	watchBuffer int
}

var _ LendingServer = (*Server)(nil)

// Option customizes a Server.
type Option func(*Server)

// WithWatchBuffer sets the per-stream event buffer for WatchAvailability.
func WithWatchBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.watchBuffer = n
		}
	}
}

// New constructs a gRPC server with injected services.
func New(svc Services, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{svc: svc, log: log, watchBuffer: events.DefaultBuffer}
	for _, o := range opts {
		o(s)
	}
	return s
}

// --- Auth ---

// Register creates a new user account.
func (s *Server) Register(ctx context.Context, req *api.RegisterRequest) (*api.User, error) {
	u, err := s.svc.Auth.Register(ctx, convert.FromAPIRegister(req))
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIUser(u)
	return &out, nil
}

func remoteIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// Login authenticates a user and returns an access token.
func (s *Server) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	tok, u, err := s.svc.Auth.LoginWithIP(ctx, req.Username, req.Password, remoteIP(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.LoginResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt, User: convert.ToAPIUser(u)}, nil
}

// --- Catalog ---

func (s *Server) CreateBook(ctx context.Context, req *api.BookInput) (*api.Book, error) {
	b, err := s.svc.Catalog.Create(ctx, convert.FromAPIBookInput(*req))
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIBook(b)
	return &out, nil
}

func (s *Server) UpdateBook(ctx context.Context, req *api.UpdateBookRequest) (*api.Book, error) {
	b, err := s.svc.Catalog.Update(ctx, req.ID, convert.FromAPIBookInput(req.BookInput))
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIBook(b)
	return &out, nil
}

func (s *Server) DeleteBook(ctx context.Context, req *api.IDRequest) (*api.Empty, error) {
	if err := s.svc.Catalog.Delete(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) GetBook(ctx context.Context, req *api.IDRequest) (*api.Book, error) {
	b, err := s.svc.Catalog.Get(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIBook(b)
	return &out, nil
}

func (s *Server) ListBooks(ctx context.Context, _ *api.Empty) (*api.BooksResponse, error) {
	bs, err := s.svc.Catalog.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.BooksResponse{Books: convert.ToAPIBooks(bs)}, nil
}

func (s *Server) SearchBooks(ctx context.Context, req *api.SearchBooksRequest) (*api.BooksResponse, error) {
	bs, err := s.svc.Catalog.Search(ctx, req.Keyword)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.BooksResponse{Books: convert.ToAPIBooks(bs)}, nil
}

// --- Lending ---

// Borrow lends a book to the caller.
func (s *Server) Borrow(ctx context.Context, req *api.BorrowRequest) (*api.BorrowRecord, error) {
	p, err := callerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.svc.Lending.Borrow(ctx, p.Username, convert.FromAPIBorrow(req))
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIBorrow(rec)
	return &out, nil
}

// ReturnBook closes one of the caller's borrows.
func (s *Server) ReturnBook(ctx context.Context, req *api.ReturnRequest) (*api.BorrowRecord, error) {
	p, err := callerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.svc.Lending.Return(ctx, p.Username, req.BorrowID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIBorrow(rec)
	return &out, nil
}

func (s *Server) DeleteBorrow(ctx context.Context, req *api.IDRequest) (*api.Empty, error) {
	if err := s.svc.Lending.DeleteBorrow(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// ListBorrows shows librarians every borrow and patrons their own.
func (s *Server) ListBorrows(ctx context.Context, _ *api.Empty) (*api.BorrowsResponse, error) {
	p, err := callerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var recs []model.BorrowRecord
	if p.Role == model.RoleLibrarian {
		recs, err = s.svc.Lending.ListAll(ctx)
	} else {
		recs, err = s.svc.Lending.ListForUser(ctx, p.Username)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.BorrowsResponse{Borrows: convert.ToAPIBorrows(recs)}, nil
}

// BorrowHistory returns the history of one user, or of everyone.
func (s *Server) BorrowHistory(ctx context.Context, req *api.HistoryRequest) (*api.BorrowsResponse, error) {
	var (
		recs []model.BorrowRecord
		err  error
	)
	if req.Username == "" {
		recs, err = s.svc.Lending.ListAll(ctx)
	} else {
		recs, err = s.svc.Lending.ListForUser(ctx, req.Username)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.BorrowsResponse{Borrows: convert.ToAPIBorrows(recs)}, nil
}

func (s *Server) MyBorrows(ctx context.Context, _ *api.Empty) (*api.BorrowsResponse, error) {
	p, err := callerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.svc.Lending.ListForUser(ctx, p.Username)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.BorrowsResponse{Borrows: convert.ToAPIBorrows(recs)}, nil
}

func (s *Server) OverdueBorrows(ctx context.Context, req *api.OverdueRequest) (*api.BorrowsResponse, error) {
	recs, err := s.svc.Overdue.FindOverdue(ctx, s.asOf(req))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.BorrowsResponse{Borrows: convert.ToAPIBorrows(recs)}, nil
}

func (s *Server) OverdueReport(ctx context.Context, req *api.OverdueRequest) (*api.OverdueReportResponse, error) {
	es, err := s.svc.Overdue.OverdueReport(ctx, s.asOf(req))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.OverdueReportResponse{Entries: convert.ToAPIOverdue(es)}, nil
}

func (s *Server) asOf(req *api.OverdueRequest) time.Time {
	if req.AsOf != nil {
		return *req.AsOf
	}
	return s.svc.Overdue.Now()
}

// --- Users ---

func (s *Server) ListUsers(ctx context.Context, _ *api.Empty) (*api.UsersResponse, error) {
	us, err := s.svc.Users.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.UsersResponse{Users: convert.ToAPIUsers(us)}, nil
}

func (s *Server) GetUser(ctx context.Context, req *api.IDRequest) (*api.User, error) {
	u, err := s.svc.Users.Get(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIUser(u)
	return &out, nil
}

func (s *Server) UpdateUser(ctx context.Context, req *api.UpdateUserRequest) (*api.User, error) {
	u, err := s.svc.Users.Update(ctx, req.ID, convert.FromAPIUserUpdate(req))
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIUser(u)
	return &out, nil
}

func (s *Server) DeleteUser(ctx context.Context, req *api.IDRequest) (*api.Empty, error) {
	if err := s.svc.Users.Delete(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// --- Events ---

// WatchAvailability streams availability changes until the client goes away or the bus closes.
func (s *Server) WatchAvailability(req *api.WatchRequest, stream grpc.ServerStreamingServer[api.AvailabilityEvent]) error {
	ctx := stream.Context()
	want := make(map[int64]bool, len(req.BookIDs))
	for _, id := range req.BookIDs {
		want[id] = true
	}

	sub := s.svc.Events.Subscribe(s.watchBuffer)
	defer sub.Close()
	s.log.Debug("watch opened", zap.String("subscription", sub.ID()), zap.Int("books", len(want)))

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("watch closed", zap.String("subscription", sub.ID()), zap.Uint64("dropped", sub.Dropped()))
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return status.Error(codes.Unavailable, "event stream closed")
			}
			if len(want) > 0 && !want[ev.BookID] {
				continue
			}
			if err := stream.Send(convert.ToAPIEvent(ev)); err != nil {
				return err
			}
		}
	}
}

func callerFromCtx(ctx context.Context) (access.Principal, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok || p.Username == "" {
		return access.Principal{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return p, nil
}
