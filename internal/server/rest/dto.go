package rest

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/dmitrijs2005/refkeeper/internal/server/models"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

type registerRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Email        string `json:"email"`
	ReferralCode string `json:"referralCode"`
}

// Validate checks shape only. The referral code is opaque; whether it exists
// is decided by the registration service.
func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 150), validation.Match(usernamePattern)),
		// bcrypt rejects passwords longer than 72 bytes
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&r.Email, validation.Length(0, 254), is.Email),
	)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.RefreshToken, validation.Required))
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (r verifyRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Token, validation.Required))
}

type userResponse struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Referrer *string `json:"referrer"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.UserName, Referrer: u.ReferrerID}
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type codeResponse struct {
	Code       string    `json:"code"`
	User       string    `json:"user"`
	Expiration time.Time `json:"expiration"`
}

func newCodeResponse(c *models.ReferralCode) codeResponse {
	return codeResponse{Code: c.Code, User: c.UserID, Expiration: c.ExpirationDate.UTC()}
}

type referralResponse struct {
	Username string `json:"username"`
}

type verifyResponse struct {
	UserID string `json:"userId"`
}

type errorBody struct {
	Kind    string            `json:"kind"`
	Reason  string            `json:"reason,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}
