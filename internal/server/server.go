package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/eskrenkovic/challenge-board/internal/config"
	authcommands "github.com/eskrenkovic/challenge-board/internal/modules/auth/commands"
	authdomain "github.com/eskrenkovic/challenge-board/internal/modules/auth/domain"
	"github.com/eskrenkovic/challenge-board/internal/modules/broadcast"
	challengecommands "github.com/eskrenkovic/challenge-board/internal/modules/challenge/commands"
	challengedomain "github.com/eskrenkovic/challenge-board/internal/modules/challenge/domain"
	challengequeries "github.com/eskrenkovic/challenge-board/internal/modules/challenge/queries"
	"github.com/eskrenkovic/challenge-board/internal/modules/core"
	"github.com/eskrenkovic/challenge-board/internal/modules/gateway"
	"github.com/eskrenkovic/challenge-board/internal/modules/presence"
	presencequeries "github.com/eskrenkovic/challenge-board/internal/modules/presence/queries"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/migrate-go"
	"github.com/eskrenkovic/tql"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

type Server interface {
	Start() error
	Stop(ctx context.Context) error
	Handler() http.Handler
}

var _ Server = &HTTPServer{}

// HTTPServer acts as the composition root for an application.
type HTTPServer struct {
	server *http.Server
	hub    *broadcast.Hub
	db     *sqlx.DB
	logger *zap.Logger

	cancelBase context.CancelFunc
}

// NewHTTPServer connects to the store, applies migrations and wires every
// module. Any failure here is fatal: nothing is served without a store.
func NewHTTPServer(config config.Config) (Server, error) {
	baseCtx, cancelBase := context.WithCancel(context.Background())

	srv, err := newHTTPServer(baseCtx, config)
	if err != nil {
		cancelBase()
		return nil, err
	}

	srv.cancelBase = cancelBase
	return srv, nil
}

func newHTTPServer(baseCtx context.Context, config config.Config) (*HTTPServer, error) {
	logger := config.Logger

	db, err := sqlx.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	startupCtx, cancel := context.WithTimeout(baseCtx, config.StoreTimeout)
	defer cancel()

	if err := db.PingContext(startupCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to reach database: %w", err), db.Close())
	}

	if err := migrate.Run(baseCtx, db.DB, config.MigrationsPath); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to apply migrations: %w", err), db.Close())
	}

	if err := warmRowMappers(startupCtx, db.DB); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to prepare row mappers: %w", err), db.Close())
	}

	registry := presence.NewRegistry(presence.NewPostgresStore(db.DB), logger)

	if config.ResetPresenceOnStart {
		if err := registry.ResetAll(startupCtx); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to reset presence: %w", err), db.Close())
		}
	}

	if err := registerHandlers(config, db); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	hub := broadcast.NewHub(logger)
	gw := gateway.NewGateway(registry, hub, logger, config.StoreTimeout)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		baseContextMiddleware(baseCtx),
		loggerMiddleware(logger),
		core.CorrelationIDHTTPMiddleware,
	)

	// http

	r.Get("/ws", gateway.NewWebsocketHandler(gw, config.AllowedOrigins, logger).ServeHTTP)

	r.Get("/users", presencequeries.HandleGetRoster)
	r.Get("/users/{name}/challenges", challengequeries.HandleGetUserChallenges)

	server := http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(config.Port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &HTTPServer{
		server: &server,
		hub:    hub,
		db:     db,
		logger: logger,
	}, nil
}

// warmRowMappers scans one row of every struct type read through tql. The
// library caches struct field mappings in a global map without locking, so
// the cache is filled here before any request runs concurrently.
func warmRowMappers(ctx context.Context, db *sql.DB) error {
	const userRow = `
		SELECT
			CAST(0 AS bigint) AS id,
			'' AS name,
			'' AS password_hash,
			false AS is_online,
			now() AS created_at;`

	if _, err := tql.QueryFirst[authdomain.User](ctx, db, userRow); err != nil {
		return err
	}

	const challengeRow = `
		SELECT
			CAST(0 AS bigint) AS id,
			'' AS title,
			'' AS activity,
			now() AS created_at;`

	_, err := tql.QueryFirst[challengedomain.Challenge](ctx, db, challengeRow)
	return err
}

func registerHandlers(config config.Config, db *sqlx.DB) error {
	requestLoggingBehavior := core.RequestLoggingBehavior{Logger: config.Logger}
	handlerErrorLoggingBehavior := core.HandlerErrorLoggingBehavior{Logger: config.Logger}
	requestValidationBehavior := core.RequestValidationBehavior{}

	mediator.RegisterPipelineBehavior(&requestLoggingBehavior)
	mediator.RegisterPipelineBehavior(&handlerErrorLoggingBehavior)
	mediator.RegisterPipelineBehavior(&requestValidationBehavior)

	// handler registration

	// auth

	identifyHandler := authcommands.NewIdentifyCommandHandler(db.DB, authdomain.NewPasswordHasher(config.BcryptCost))
	err := mediator.RegisterRequestHandler[authcommands.IdentifyCommand, authcommands.IdentifyResponse](
		identifyHandler,
	)
	if err != nil {
		return err
	}

	// challenge

	createChallengeHandler := challengecommands.NewCreateChallengeCommandHandler(db.DB)
	err = mediator.RegisterRequestHandler[challengecommands.CreateChallengeCommand, challengecommands.CreateChallengeResponse](
		createChallengeHandler,
	)
	if err != nil {
		return err
	}

	confirmDoneHandler := challengecommands.NewConfirmDoneCommandHandler(db.DB)
	err = mediator.RegisterRequestHandler[challengecommands.ConfirmDoneCommand, challengecommands.ConfirmDoneResponse](
		confirmDoneHandler,
	)
	if err != nil {
		return err
	}

	deleteAccountHandler := challengecommands.NewDeleteAccountCommandHandler(db.DB, config.Logger)
	err = mediator.RegisterRequestHandler[challengecommands.DeleteAccountCommand, challengecommands.DeleteAccountResponse](
		deleteAccountHandler,
	)
	if err != nil {
		return err
	}

	getUserChallengesHandler := challengequeries.NewGetUserChallengesQueryHandler(db)
	err = mediator.RegisterRequestHandler[challengequeries.GetUserChallengesQuery, []challengequeries.ChallengeView](
		getUserChallengesHandler,
	)
	if err != nil {
		return err
	}

	// presence

	getRosterHandler := presencequeries.NewGetRosterQueryHandler(db)
	return mediator.RegisterRequestHandler[presencequeries.GetRosterQuery, []presencequeries.RosterEntry](
		getRosterHandler,
	)
}

func (s *HTTPServer) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop closes every websocket session, drains in-flight requests and
// releases the database.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.hub.Close()

	err := s.server.Shutdown(ctx)
	if s.cancelBase != nil {
		s.cancelBase()
	}

	return errors.Join(err, s.db.Close())
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func loggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(core.WithLogger(r.Context(), logger)))
		})
	}
}

// baseContextMiddleware detaches request handling from the connection
// context so in-flight commands are cancelled by Stop, not by a client
// hanging up mid-request.
func baseContextMiddleware(baseCtx context.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			baseCtx := baseCtx

			if v, ok := ctx.Value(http.ServerContextKey).(*http.Server); ok {
				baseCtx = context.WithValue(baseCtx, http.ServerContextKey, v)
			}

			if v, ok := ctx.Value(http.LocalAddrContextKey).(net.Addr); ok {
				baseCtx = context.WithValue(baseCtx, http.LocalAddrContextKey, v)
			}

			if v := ctx.Value(chi.RouteCtxKey); v != nil {
				baseCtx = context.WithValue(baseCtx, chi.RouteCtxKey, v)
			}

			next.ServeHTTP(w, r.WithContext(baseCtx))
		})
	}
}
