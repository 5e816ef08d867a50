package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/refkeeper/internal/common"
	"github.com/dmitrijs2005/refkeeper/internal/logging"
	"github.com/dmitrijs2005/refkeeper/internal/server/models"
	"github.com/dmitrijs2005/refkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	gotInput  services.RegisterInput
	user      *models.User
	err       error
	referrals []models.User
	listErr   error
}

func (f *fakeRegistrar) Register(_ context.Context, in services.RegisterInput) (*models.User, error) {
	f.gotInput = in
	return f.user, f.err
}

func (f *fakeRegistrar) ListReferrals(context.Context, string) ([]models.User, error) {
	return f.referrals, f.listErr
}

type fakeCodes struct {
	code      *models.ReferralCode
	err       error
	gotUserID string
	gotEmail  string
	panicking bool
}

func (f *fakeCodes) Issue(_ context.Context, userID string) (*models.ReferralCode, error) {
	if f.panicking {
		panic("kaboom")
	}
	f.gotUserID = userID
	return f.code, f.err
}

func (f *fakeCodes) Fetch(_ context.Context, userID string) (*models.ReferralCode, error) {
	f.gotUserID = userID
	return f.code, f.err
}

func (f *fakeCodes) Retire(_ context.Context, userID string) error {
	f.gotUserID = userID
	return f.err
}

func (f *fakeCodes) ResolveByOwnerEmail(_ context.Context, email string) (*models.ReferralCode, error) {
	f.gotEmail = email
	return f.code, f.err
}

// fakeAuth accepts the access token "good" for user "u-alice".
type fakeAuth struct {
	pair     *services.TokenPair
	loginErr error
}

func (f *fakeAuth) Login(context.Context, string, string) (*services.TokenPair, error) {
	return f.pair, f.loginErr
}

func (f *fakeAuth) RefreshToken(_ context.Context, token string) (*services.TokenPair, error) {
	switch token {
	case "fresh":
		return f.pair, nil
	case "stale":
		return nil, common.ErrRefreshTokenExpired
	}
	return nil, common.ErrorUnauthorized
}

func (f *fakeAuth) VerifyToken(_ context.Context, token string) (string, error) {
	switch token {
	case "good":
		return "u-alice", nil
	case "old":
		return "", common.ErrTokenExpired
	case "broken":
		return "", fmt.Errorf("keystore: %w", errBoom)
	}
	return "", common.ErrInvalidToken
}

var errBoom = fmt.Errorf("boom")

type fixture struct {
	reg   *fakeRegistrar
	codes *fakeCodes
	auth  *fakeAuth
	h     http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		reg:   &fakeRegistrar{},
		codes: &fakeCodes{},
		auth:  &fakeAuth{pair: &services.TokenPair{AccessToken: "a", RefreshToken: "r"}},
	}
	f.h = NewServer(":0", logging.Nop{}, f.reg, f.codes, f.auth).Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error
}

func TestHealth(t *testing.T) {
	rec := newFixture().do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegister_Created(t *testing.T) {
	f := newFixture()
	ref := "u-alice"
	f.reg.user = &models.User{ID: "u-bob", UserName: "bob", Email: "bob@example.com", PasswordHash: "$2a$secret", ReferrerID: &ref}

	rec := f.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "bob", "password": "pw", "email": "bob@example.com", "referralCode": "abc123",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"u-bob","username":"bob","referrer":"u-alice"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.NotContains(t, rec.Body.String(), "bob@example.com")
	assert.Equal(t, services.RegisterInput{
		Username: "bob", Password: "pw", Email: "bob@example.com", ReferralCode: "abc123",
	}, f.reg.gotInput)
}

func TestRegister_ValidationFailures(t *testing.T) {
	cases := map[string]struct {
		body  any
		field string
	}{
		"missing username": {map[string]string{"password": "pw"}, "username"},
		"missing password": {map[string]string{"username": "bob"}, "password"},
		"bad email":        {map[string]string{"username": "bob", "password": "pw", "email": "nope"}, "email"},
		"bad username":     {map[string]string{"username": "bob smith", "password": "pw"}, "username"},
		"long password":    {map[string]string{"username": "bob", "password": strings.Repeat("x", 73)}, "password"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(t, http.MethodPost, "/register", "", tc.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, kindValidation, body.Kind)
			assert.Equal(t, common.ReasonInvalidInput, body.Reason)
			assert.Contains(t, body.Fields, tc.field)
			assert.Empty(t, f.reg.gotInput.Username, "service must not be called")
		})
	}
}

func TestRegister_OpaqueReferralCodeReachesService(t *testing.T) {
	codes := []string{
		"no-such-code",
		"8f14e45f-ceea-4e7a-9b2f-5c1d2e3f4a5b",
		strings.Repeat("a", 65),
		strings.Repeat("z", 300),
	}
	for _, code := range codes {
		t.Run(code[:min(len(code), 20)], func(t *testing.T) {
			f := newFixture()
			f.reg.err = common.NewValidationError(common.ReasonCodeNotFound, "referral code does not exist", common.ErrCodeNotFound)

			rec := f.do(t, http.MethodPost, "/register", "", map[string]string{
				"username": "carol", "password": "pw", "referralCode": code,
			})

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, kindValidation, body.Kind)
			assert.Equal(t, common.ReasonCodeNotFound, body.Reason)
			assert.Empty(t, body.Fields)
			assert.Equal(t, code, f.reg.gotInput.ReferralCode)
		})
	}
}

func TestRegister_MalformedJSON(t *testing.T) {
	rec := newFixture().do(t, http.MethodPost, "/register", "", `{"username":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, kindValidation, decodeError(t, rec).Kind)
}

func TestRegister_ServiceErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		kind   string
		reason string
	}{
		"duplicate":    {fmt.Errorf("username %q: %w", "bob", common.ErrorConflict), http.StatusBadRequest, kindConflict, ""},
		"code missing": {common.NewValidationError(common.ReasonCodeNotFound, "referral code does not exist", nil), http.StatusBadRequest, kindValidation, common.ReasonCodeNotFound},
		"code expired": {common.NewValidationError(common.ReasonCodeExpired, "referral code has expired", nil), http.StatusBadRequest, kindValidation, common.ReasonCodeExpired},
		"storage":      {fmt.Errorf("db error: %w", errBoom), http.StatusInternalServerError, kindInternal, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.reg.err = tc.err

			rec := f.do(t, http.MethodPost, "/register", "", map[string]string{"username": "bob", "password": "pw"})

			require.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.kind, body.Kind)
			assert.Equal(t, tc.reason, body.Reason)
			assert.NotContains(t, body.Message, "db error")
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accessToken":"a","refreshToken":"r"}`, rec.Body.String())

	f.auth.loginErr = common.ErrorUnauthorized
	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "bad"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, kindUnauthenticated, decodeError(t, rec).Kind)
}

func TestTokenEndpoints(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/token/refresh", "", map[string]string{"refreshToken": "fresh"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/token/refresh", "", map[string]string{"refreshToken": "stale"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/token/refresh", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/token/verify", "", map[string]string{"token": "good"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"u-alice"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/token/verify", "", map[string]string{"token": "forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	routes := []struct{ method, path string }{
		{http.MethodPost, "/ref_code"},
		{http.MethodGet, "/ref_code"},
		{http.MethodDelete, "/ref_code"},
		{http.MethodGet, "/ref_code_by_email/a@b.co"},
		{http.MethodGet, "/referrals/u-1"},
	}
	for _, rt := range routes {
		for _, token := range []string{"", "forged", "old"} {
			t.Run(rt.method+rt.path+"/"+token, func(t *testing.T) {
				rec := newFixture().do(t, rt.method, rt.path, token, nil)
				require.Equal(t, http.StatusUnauthorized, rec.Code)
				assert.Equal(t, kindUnauthenticated, decodeError(t, rec).Kind)
			})
		}
	}
}

func TestAuthBackendFailureIs500(t *testing.T) {
	rec := newFixture().do(t, http.MethodGet, "/ref_code", "broken", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIssueCode(t *testing.T) {
	f := newFixture()
	exp := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	f.codes.code = &models.ReferralCode{UserID: "u-alice", Code: "c0ffee", ExpirationDate: exp}

	rec := f.do(t, http.MethodPost, "/ref_code", "good", nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"code":"c0ffee","user":"u-alice","expiration":"2026-04-01T00:00:00Z"}`, rec.Body.String())
	assert.Equal(t, "u-alice", f.codes.gotUserID)
}

func TestIssueCode_CollisionExhaustionIs500(t *testing.T) {
	f := newFixture()
	f.codes.err = common.ErrorConflict

	rec := f.do(t, http.MethodPost, "/ref_code", "good", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, kindInternal, decodeError(t, rec).Kind)
}

func TestGetAndDeleteCode(t *testing.T) {
	f := newFixture()
	f.codes.code = &models.ReferralCode{UserID: "u-alice", Code: "c1", ExpirationDate: time.Now()}

	rec := f.do(t, http.MethodGet, "/ref_code", "good", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/ref_code", "good", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	f.codes.err = common.ErrorNotFound
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec = f.do(t, method, "/ref_code", "good", nil)
		require.Equal(t, http.StatusNotFound, rec.Code, method)
		body := decodeError(t, rec)
		assert.Equal(t, kindNotFound, body.Kind)
		assert.Equal(t, "referral code not found", body.Message)
	}
}

func TestGetCodeByEmail(t *testing.T) {
	f := newFixture()
	f.codes.code = &models.ReferralCode{UserID: "u-alice", Code: "c1", ExpirationDate: time.Now()}

	rec := f.do(t, http.MethodGet, "/ref_code_by_email/alice%40example.com", "good", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", f.codes.gotEmail)

	rec = f.do(t, http.MethodGet, "/ref_code_by_email/not-an-email", "good", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "email")

	f.codes.err = common.ErrCodeExpired
	rec = f.do(t, http.MethodGet, "/ref_code_by_email/alice@example.com", "good", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, common.ReasonCodeExpired, decodeError(t, rec).Reason)

	f.codes.err = common.ErrorNotFound
	rec = f.do(t, http.MethodGet, "/ref_code_by_email/alice@example.com", "good", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReferrals(t *testing.T) {
	f := newFixture()
	f.reg.referrals = []models.User{{ID: "1", UserName: "bob", Email: "b@x.io"}, {ID: "2", UserName: "carol"}}

	rec := f.do(t, http.MethodGet, "/referrals/u-alice", "good", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"username":"bob"},{"username":"carol"}]`, rec.Body.String())

	f.reg.referrals = []models.User{}
	rec = f.do(t, http.MethodGet, "/referrals/u-alice", "good", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())

	f.reg.listErr = common.ErrorNotFound
	rec = f.do(t, http.MethodGet, "/referrals/u-ghost", "good", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", decodeError(t, rec).Message)
}

func TestRescueRecoversPanics(t *testing.T) {
	f := newFixture()
	f.codes.panicking = true

	rec := f.do(t, http.MethodPost, "/ref_code", "good", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, kindInternal, decodeError(t, rec).Kind)
}
