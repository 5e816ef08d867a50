package rest

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/dmitrijs2005/refkeeper/internal/common"
)

const (
	kindValidation      = "validation"
	kindConflict        = "conflict"
	kindUnauthenticated = "unauthenticated"
	kindNotFound        = "not_found"
	kindInternal        = "internal"
)

// invalidInput turns ozzo-validation output into a *common.ValidationError
// carrying one message per offending field.
func invalidInput(err error) error {
	verr := common.NewValidationError(common.ReasonInvalidInput, "invalid input", nil)

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		verr.Fields = make(map[string]string, len(fieldErrs))
		for field, fe := range fieldErrs {
			verr.Fields[field] = fe.Error()
		}
		return verr
	}

	verr.Message = err.Error()
	return verr
}

// writeError maps service errors onto the HTTP error envelope. what names
// the missing resource in 404 messages. Anything unrecognised is logged and
// reported as a bare 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	var verr *common.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
			Kind: kindValidation, Reason: verr.Reason, Message: verr.Message, Fields: verr.Fields,
		}})
	case errors.Is(err, common.ErrorConflict):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
			Kind: kindConflict, Message: err.Error(),
		}})
	case errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrRefreshTokenExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errorBody{
			Kind: kindUnauthenticated, Message: err.Error(),
		}})
	case errors.Is(err, common.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errorBody{
			Kind: kindUnauthenticated, Message: "invalid token",
		}})
	case errors.Is(err, common.ErrorUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errorBody{
			Kind: kindUnauthenticated, Message: "invalid credentials",
		}})
	case errors.Is(err, common.ErrCodeExpired):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{
			Kind: kindNotFound, Reason: common.ReasonCodeExpired, Message: "referral code has expired",
		}})
	case errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{
			Kind: kindNotFound, Message: what + " not found",
		}})
	default:
		s.writeInternal(w, r, err)
	}
}

func (s *Server) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
		Kind: kindInternal, Message: "internal server error",
	}})
}
