package rest

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/dmitrijs2005/refkeeper/internal/common"
	"github.com/dmitrijs2005/refkeeper/internal/server/auth"
	"github.com/dmitrijs2005/refkeeper/internal/server/services"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}

	u, err := s.registration.Register(r.Context(), services.RegisterInput{
		Username:     req.Username,
		Password:     req.Password,
		Email:        req.Email,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		s.writeError(w, r, err, "user")
		return
	}

	writeJSON(w, http.StatusCreated, newUserResponse(u))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}

	pair, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err, "user")
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}

	pair, err := s.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err, "refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err, "")
		return
	}

	userID, err := s.users.VerifyToken(r.Context(), req.Token)
	if err != nil {
		s.writeError(w, r, err, "token")
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{UserID: userID})
}

func (s *Server) issueCode(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	code, err := s.codes.Issue(r.Context(), userID)
	if err != nil {
		// running out of collision retries is our failure, not the caller's
		if errors.Is(err, common.ErrorConflict) {
			s.writeInternal(w, r, err)
			return
		}
		s.writeError(w, r, err, "user")
		return
	}

	writeJSON(w, http.StatusCreated, newCodeResponse(code))
}

func (s *Server) getCode(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	code, err := s.codes.Fetch(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, "referral code")
		return
	}

	writeJSON(w, http.StatusOK, newCodeResponse(code))
}

func (s *Server) deleteCode(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := s.codes.Retire(r.Context(), userID); err != nil {
		s.writeError(w, r, err, "referral code")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getCodeByEmail(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err == nil {
		err = validation.Validate(email, validation.Required, is.Email)
	}
	if err != nil {
		s.writeError(w, r, invalidInput(validation.Errors{"email": err}), "")
		return
	}

	code, err := s.codes.ResolveByOwnerEmail(r.Context(), email)
	if err != nil {
		s.writeError(w, r, err, "referral code")
		return
	}

	writeJSON(w, http.StatusOK, newCodeResponse(code))
}

func (s *Server) listReferrals(w http.ResponseWriter, r *http.Request) {
	users, err := s.registration.ListReferrals(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err, "user")
		return
	}

	out := make([]referralResponse, 0, len(users))
	for _, u := range users {
		out = append(out, referralResponse{Username: u.UserName})
	}
	writeJSON(w, http.StatusOK, out)
}
