package rest

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/dmitrijs2005/refkeeper/internal/server/auth"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// logRequests logs one line per response, at error level for 5xx and warn
// for 4xx.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		args := []any{
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", time.Since(start),
		}
		switch {
		case rec.status >= http.StatusInternalServerError:
			s.logger.Error(r.Context(), "response", args...)
		case rec.status >= http.StatusBadRequest:
			s.logger.Warn(r.Context(), "response", args...)
		default:
			s.logger.Info(r.Context(), "response", args...)
		}
	})
}

// rescue turns a handler panic into a logged 500.
func (s *Server) rescue(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.logger.Error(r.Context(), "request panic",
					"method", r.Method, "path", r.URL.Path, "panic", p, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
					Kind: kindInternal, Message: "internal server error",
				}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAuth accepts "Authorization: Bearer <access token>" and stores the
// token's user id in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errorBody{
				Kind: kindUnauthenticated, Message: "missing bearer token",
			}})
			return
		}

		userID, err := s.users.VerifyToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			s.writeError(w, r, err, "token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}
