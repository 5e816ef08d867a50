// Package rest exposes the public JSON API over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/dmitrijs2005/refkeeper/internal/logging"
	"github.com/dmitrijs2005/refkeeper/internal/server/models"
	"github.com/dmitrijs2005/refkeeper/internal/server/services"
)

type Registrar interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	ListReferrals(ctx context.Context, userID string) ([]models.User, error)
}

type CodeService interface {
	Issue(ctx context.Context, userID string) (*models.ReferralCode, error)
	Fetch(ctx context.Context, userID string) (*models.ReferralCode, error)
	Retire(ctx context.Context, userID string) error
	ResolveByOwnerEmail(ctx context.Context, email string) (*models.ReferralCode, error)
}

type Authenticator interface {
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	VerifyToken(ctx context.Context, accessToken string) (string, error)
}

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	address      string
	logger       logging.Logger
	registration Registrar
	codes        CodeService
	users        Authenticator
}

func NewServer(addr string, l logging.Logger, reg Registrar, codes CodeService, users Authenticator) *Server {
	return &Server{
		address:      addr,
		logger:       l.With("module", "http_server"),
		registration: reg,
		codes:        codes,
		users:        users,
	}
}

// Routes builds the router. Everything except registration, login, token
// endpoints and /health requires a bearer access token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.logRequests, s.rescue)

	r.Get("/health", s.health)
	r.Post("/register", s.register)
	r.Post("/login", s.login)
	r.Post("/token/refresh", s.refreshToken)
	r.Post("/token/verify", s.verifyToken)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/ref_code", s.issueCode)
		r.Get("/ref_code", s.getCode)
		r.Delete("/ref_code", s.deleteCode)
		r.Get("/ref_code_by_email/{email}", s.getCodeByEmail)
		r.Get("/referrals/{userId}", s.listReferrals)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "err", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and runs its validation.
func decode(w http.ResponseWriter, r *http.Request, dst interface{ Validate() error }) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return invalidInput(errors.New("malformed JSON body"))
	}
	if err := dst.Validate(); err != nil {
		return invalidInput(err)
	}
	return nil
}
