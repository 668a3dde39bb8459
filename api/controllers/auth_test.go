package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forsocials/replyriser-backend/internal/accounts"
	"github.com/forsocials/replyriser-backend/pkg/enums"
	pkgerrors "github.com/forsocials/replyriser-backend/pkg/errors"
)

type stubAccountService struct {
	signup   *accounts.SignupResult
	verified *accounts.AccountDTO
	login    *accounts.LoginResponse
	err      error
	token    string
}

func (s *stubAccountService) Signup(context.Context, accounts.SignupRequest) (*accounts.SignupResult, error) {
	return s.signup, s.err
}

func (s *stubAccountService) Verify(_ context.Context, token string) (*accounts.AccountDTO, error) {
	s.token = token
	return s.verified, s.err
}

func (s *stubAccountService) Login(context.Context, accounts.LoginRequest) (*accounts.LoginResponse, error) {
	return s.login, s.err
}

func TestAuthSignupCreated(t *testing.T) {
	svc := &stubAccountService{signup: &accounts.SignupResult{
		Account: &accounts.AccountDTO{ID: uuid.New(), Email: "a@b.co", SubscriptionPlan: enums.PlanFree},
		Message: "ok",
	}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", strings.NewReader(`{"email":"a@b.co","password":"password1"}`))
	AuthSignup(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"a@b.co"`)
}

func TestAuthSignupConflict(t *testing.T) {
	svc := &stubAccountService{err: pkgerrors.New(pkgerrors.CodeConflict, "email already registered")}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", strings.NewReader(`{"email":"a@b.co","password":"password1"}`))
	AuthSignup(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "email already registered", body["error"])
}

func TestAuthVerifyRequiresToken(t *testing.T) {
	svc := &stubAccountService{verified: &accounts.AccountDTO{IsVerified: true}}

	rec := httptest.NewRecorder()
	AuthVerify(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/verify", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	AuthVerify(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/verify?token=abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", svc.token)
}

func TestAuthLoginSetsTokenHeader(t *testing.T) {
	svc := &stubAccountService{login: &accounts.LoginResponse{Token: "jwt-token", Account: &accounts.AccountDTO{Email: "a@b.co"}}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))
	AuthLogin(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jwt-token", rec.Header().Get(tokenHeader))

	var body struct {
		Data accounts.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "jwt-token", body.Data.Token)
}

func TestAuthLoginUnverifiedIsForbidden(t *testing.T) {
	svc := &stubAccountService{err: pkgerrors.New(pkgerrors.CodeForbidden, "email not verified")}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))
	AuthLogin(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
