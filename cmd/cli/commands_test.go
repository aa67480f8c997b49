package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/lendkeeper/internal/access"
	"github.com/and161185/lendkeeper/internal/api"
	"github.com/and161185/lendkeeper/internal/client"
	"github.com/and161185/lendkeeper/internal/events"
	"github.com/and161185/lendkeeper/internal/repository/memory"
	grpcserver "github.com/and161185/lendkeeper/internal/server/grpc"
	"github.com/and161185/lendkeeper/internal/service"
	"github.com/and161185/lendkeeper/internal/token"
)

type cliEnv struct {
	lis *bufconn.Listener
}

func startServer(t *testing.T, today time.Time) *cliEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := memory.New()
	ts, err := token.NewService([]byte("cli-secret"), time.Hour)
	require.NoError(t, err)
	bus := events.NewBus(log)
	clock := func() time.Time { return today }

	srv := grpcserver.New(grpcserver.Services{
		Auth:    service.NewAuthService(st.Users(), ts, nil, log),
		Users:   service.NewUserService(st.Users(), log),
		Catalog: service.NewCatalogService(st.Books(), log),
		Lending: service.NewLendingService(st.Users(), st.Borrows(), st, bus, log, service.WithClock(clock)),
		Overdue: service.NewOverdueService(st.Borrows(), log, clock),
		Events:  bus,
	}, log)
	guard := access.NewGuard(ts, st.Users())

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcserver.RecoverUnary(log), grpcserver.AuthUnary(guard)),
		grpc.ChainStreamInterceptor(grpcserver.RecoverStream(log), grpcserver.AuthStream(guard)),
	)
	grpcserver.RegisterLendingServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(func() {
		bus.Close()
		gs.Stop()
		_ = lis.Close()
	})
	return &cliEnv{lis: lis}
}

func (e *cliEnv) dial(context.Context) (*client.Client, io.Closer, error) {
	cc, err := client.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return e.lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return client.New(cc), cc, nil
}

// run executes one CLI invocation and returns its stdout.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{in: strings.NewReader(stdin), out: &out, errOut: io.Discard, dial: e.dial}
	a.readPassword = a.promptPassword
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) must(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	require.NoError(t, err, strings.Join(args, " "))
	return out
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestCLI_LendingScenario(t *testing.T) {
	_ = withTmpConfig(t)
	env := startServer(t, time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC))

	lib := decode[api.User](t, env.must(t, "register", "-u", "lib", "-p", "pw", "--role", "LIBRARIAN"))
	require.Equal(t, "LIBRARIAN", lib.Role)

	out, err := env.run(t, "pw\n", "register", "-u", "alice", "--name", "Alice")
	require.NoError(t, err)
	alice := decode[api.User](t, out)
	require.Equal(t, "PATRON", alice.Role)
	require.Equal(t, "Alice", alice.Name)

	require.Contains(t, env.must(t, "login", "-u", "lib", "-p", "pw"), "logged in as lib (LIBRARIAN)")
	book := decode[api.Book](t, env.must(t, "books", "add",
		"--title", "Dune", "--author", "Frank Herbert", "--isbn", "111", "--published", "1965-08-01"))
	require.True(t, book.Available)
	require.Equal(t, "1965-08-01", book.PublicationDate.Format(dayLayout))
	bookID := strconv.FormatInt(book.ID, 10)

	require.Contains(t, env.must(t, "login", "-u", "alice", "-p", "pw"), "logged in as alice")
	rec := decode[api.BorrowRecord](t, env.must(t, "borrow", bookID, "--date", "2024-01-01", "--return-by", "2024-01-10"))
	require.Equal(t, "Dune", rec.BookTitle)
	require.False(t, rec.Returned)
	require.Equal(t, "2024-01-10", rec.RequestedReturnDate.Format(dayLayout))

	_, err = env.run(t, "", "borrows", "report")
	require.Equal(t, codes.PermissionDenied, status.Code(err), "patrons cannot see the overdue report")

	mine := decode[[]api.BorrowRecord](t, env.must(t, "borrows", "mine"))
	require.Len(t, mine, 1)

	env.must(t, "login", "-u", "lib", "-p", "pw")
	report := decode[[]api.OverdueEntry](t, env.must(t, "borrows", "report"))
	require.Len(t, report, 1)
	require.Equal(t, "alice", report[0].Username)
	require.Equal(t, "2024-01-15", report[0].DueDate.Format(dayLayout))

	early := decode[[]api.BorrowRecord](t, env.must(t, "borrows", "overdue", "--as-of", "2024-01-15"))
	require.Empty(t, early, "14 days is not yet overdue")

	history := decode[[]api.BorrowRecord](t, env.must(t, "borrows", "history", "alice"))
	require.Len(t, history, 1)

	env.must(t, "login", "-u", "alice", "-p", "pw")
	done := decode[api.BorrowRecord](t, env.must(t, "return", strconv.FormatInt(rec.ID, 10)))
	require.True(t, done.Returned)
	require.Equal(t, "2024-01-20", done.ReturnDate.Format(dayLayout))

	_, err = env.run(t, "", "return", strconv.FormatInt(rec.ID, 10))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	env.must(t, "login", "-u", "lib", "-p", "pw")
	got := decode[api.Book](t, env.must(t, "books", "get", bookID))
	require.True(t, got.Available)

	found := decode[[]api.Book](t, env.must(t, "books", "search", "frank", "herbert"))
	require.Len(t, found, 1)

	upd := decode[api.User](t, env.must(t, "users", "update", strconv.FormatInt(alice.ID, 10), "--contact", "alice@example.com"))
	require.Equal(t, "alice@example.com", upd.ContactInfo)
	require.Equal(t, "PATRON", upd.Role)

	env.must(t, "logout")
	_, err = env.run(t, "", "books", "list")
	require.ErrorContains(t, err, "not logged in")
}

func TestCLI_InputErrors(t *testing.T) {
	_ = withTmpConfig(t)
	env := startServer(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))

	_, err := env.run(t, "", "login")
	require.ErrorContains(t, err, `required flag(s) "username" not set`)

	_, err = env.run(t, "\n", "register", "-u", "x")
	require.ErrorContains(t, err, "empty password")

	env.must(t, "register", "-u", "lib", "-p", "pw", "--role", "LIBRARIAN")
	_, err = env.run(t, "", "login", "-u", "lib", "-p", "wrong")
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	env.must(t, "login", "-u", "lib", "-p", "pw")
	_, err = env.run(t, "", "books", "get", "abc")
	require.ErrorContains(t, err, `invalid id "abc"`)
	_, err = env.run(t, "", "books", "add", "--title", "x", "--published", "yesterday")
	require.ErrorContains(t, err, "invalid date")
	_, err = env.run(t, "", "books", "get", "99")
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestCLI_Version(t *testing.T) {
	t.Parallel()
	env := &cliEnv{}
	out, err := env.run(t, "", "version")
	require.NoError(t, err)
	require.Equal(t, "lendkeeper dev (unknown)\n", out)
}
