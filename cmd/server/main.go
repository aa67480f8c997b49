// Command lendkeeper-server starts the lending gRPC server.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/lendkeeper/internal/access"
	"github.com/and161185/lendkeeper/internal/api"
	"github.com/and161185/lendkeeper/internal/config"
	"github.com/and161185/lendkeeper/internal/events"
	"github.com/and161185/lendkeeper/internal/limiter"
	"github.com/and161185/lendkeeper/internal/migrate"
	"github.com/and161185/lendkeeper/internal/relay"
	"github.com/and161185/lendkeeper/internal/repository"
	"github.com/and161185/lendkeeper/internal/repository/memory"
	"github.com/and161185/lendkeeper/internal/repository/postgres"
	grpcserver "github.com/and161185/lendkeeper/internal/server/grpc"
	"github.com/and161185/lendkeeper/internal/service"
	"github.com/and161185/lendkeeper/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// stores bundles one storage backend.
type stores struct {
	users   repository.UserRepository
	books   repository.BookRepository
	borrows repository.BorrowRepository
	lending repository.LendingStore
	lim     limiter.Limiter
	close   func()
}

// main loads configuration, opens storage, and serves gRPC until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		// Logger is not configured yet.
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bg sync.WaitGroup
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	goBg := func(fn func(context.Context)) {
		bg.Add(1)
		go func() {
			defer bg.Done()
			fn(bgCtx)
		}()
	}

	st, err := openStores(ctx, cfg, logger, goBg)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer st.close()

	tokens, err := token.NewService([]byte(cfg.JWTKey), cfg.AccessTTL)
	if err != nil {
		logger.Fatal("token service", zap.Error(err))
	}

	bus := events.NewBus(logger.Named("events"))
	defer bus.Close()

	// Services
	overdue := service.NewOverdueService(st.borrows, logger.Named("overdue"), time.Now)
	svc := grpcserver.Services{
		Auth:    service.NewAuthService(st.users, tokens, st.lim, logger.Named("auth")),
		Users:   service.NewUserService(st.users, logger.Named("users")),
		Catalog: service.NewCatalogService(st.books, logger.Named("catalog")),
		Lending: service.NewLendingService(st.users, st.borrows, st.lending, bus, logger.Named("lending")),
		Overdue: overdue,
		Events:  bus,
	}
	guard := access.NewGuard(tokens, st.users)

	goBg(func(ctx context.Context) { overdue.RunPeriodic(ctx, cfg.OverdueEvery) })
	startRelays(ctx, cfg, bus, logger, goBg)

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.RequestIDUnary(),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(guard),
		),
		grpc.ChainStreamInterceptor(
			grpcserver.RecoverStream(logger),
			grpcserver.RequestIDStream(),
			grpcserver.LoggingStream(logger),
			grpcserver.AuthStream(guard),
		),
	}
	if cfg.TLS() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("serving without TLS")
	}
	s := grpc.NewServer(opts...)

	app := grpcserver.New(svc, logger, grpcserver.WithWatchBuffer(cfg.EventBuffer))
	grpcserver.RegisterLendingServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Dev {
		reflection.Register(s)
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLS()))
		errCh <- s.Serve(lis)
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		// Open watch streams end once the bus closes.
		bus.Close()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
		cancelBg()
		bg.Wait()
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		cancelBg()
		bg.Wait()
		st.close()
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openStores selects the storage backend. Postgres runs migrations first and keeps login
// lockouts in the database; memory keeps them in process and sweeps idle entries.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger, goBg func(func(context.Context))) (*stores, error) {
	lset := limiter.Settings{Window: cfg.LoginWindow, MaxFails: cfg.LoginMaxFails, BlockFor: cfg.LoginBlockFor}

	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on exit")
		st := memory.New()
		lim := limiter.NewMemory(lset)
		if cfg.LoginWindow > 0 {
			goBg(func(ctx context.Context) { lim.Run(ctx, cfg.LoginWindow) })
		}
		return &stores{
			users:   st.Users(),
			books:   st.Books(),
			borrows: st.Borrows(),
			lending: st,
			lim:     lim,
			close:   func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return &stores{
		users:   postgres.NewUserRepo(db),
		books:   postgres.NewBookRepo(db),
		borrows: postgres.NewBorrowRepo(db),
		lending: postgres.NewLendingStore(db),
		lim:     limiter.NewPG(db.Pool, lset),
		close:   func() { once.Do(db.Close) },
	}, nil
}

// startRelays subscribes one relay per configured broker.
func startRelays(ctx context.Context, cfg *config.Config, bus *events.Bus, log *zap.Logger, goBg func(func(context.Context))) {
	if len(cfg.KafkaBrokers) > 0 {
		sub := bus.Subscribe(cfg.EventBuffer)
		r := relay.New("kafka", relay.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), log)
		goBg(func(ctx context.Context) {
			defer sub.Close()
			r.Run(ctx, sub)
		})
	}
	if cfg.RedisURL != "" {
		client, err := relay.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Error("redis relay disabled", zap.Error(err))
			return
		}
		sub := bus.Subscribe(cfg.EventBuffer)
		r := relay.New("redis", relay.NewRedisSink(client, cfg.RedisChannel), log)
		goBg(func(ctx context.Context) {
			defer sub.Close()
			r.Run(ctx, sub)
		})
	}
}
